// Package main provides an interactive CLI that runs a scripted sample
// through the full stack (steps, subtasks, tool dispatch, logging) and lets
// a human browse the resulting transcript.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/tmc/langchaingo/llms"
	lcschema "github.com/tmc/langchaingo/schema"

	"github.com/loomkit/loom"
	"github.com/loomkit/loom/dispatch"
	"github.com/loomkit/loom/sandbox"
	"github.com/loomkit/loom/schema"
	"github.com/loomkit/loom/subtask"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%sError: %v%s\n", colorRed, err, colorReset)
		os.Exit(1)
	}
}

func run() error {
	rl, err := readline.New(colorCyan + "transcript> " + colorReset)
	if err != nil {
		return fmt.Errorf("create readline: %w", err)
	}
	defer rl.Close()

	fmt.Println(colorBold + "loom transcript browser" + colorReset)
	fmt.Println("Commands: run | events | tree | yaml | json | store | q")

	var ec *loom.ExecutionContext
	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			return nil
		}

		switch strings.TrimSpace(line) {
		case "q", "quit", "exit":
			return nil
		case "run":
			ec, err = runScriptedSample()
			if err != nil {
				fmt.Printf("%ssample failed: %v%s\n", colorRed, err, colorReset)
			}
			if ec != nil {
				fmt.Printf("%ssample finished: %d top-level events%s\n",
					colorGreen, ec.Transcript().Len(), colorReset)
			}
		case "events":
			if ec == nil {
				fmt.Println(colorYellow + "run a sample first" + colorReset)
				continue
			}
			for _, e := range ec.Transcript().Events() {
				fmt.Println(summarize(e))
			}
		case "tree":
			if ec == nil {
				fmt.Println(colorYellow + "run a sample first" + colorReset)
				continue
			}
			printTree(ec.Transcript().Events(), 0)
		case "yaml":
			if ec == nil {
				fmt.Println(colorYellow + "run a sample first" + colorReset)
				continue
			}
			if err := ec.Transcript().WriteYAML(os.Stdout); err != nil {
				fmt.Printf("%s%v%s\n", colorRed, err, colorReset)
			}
		case "json":
			if ec == nil {
				fmt.Println(colorYellow + "run a sample first" + colorReset)
				continue
			}
			if err := ec.Transcript().WriteJSON(os.Stdout); err != nil {
				fmt.Printf("%s%v%s\n", colorRed, err, colorReset)
			}
		case "store":
			if ec == nil {
				fmt.Println(colorYellow + "run a sample first" + colorReset)
				continue
			}
			for _, item := range ec.Store().Items() {
				fmt.Printf("  %s%s%s = %v\n", colorBlue, item.Key, colorReset, item.Value)
			}
		case "":
		default:
			fmt.Println("Commands: run | events | tree | yaml | json | store | q")
		}
	}
}

// -----------------------------------------------------------------------------
// Scripted Sample
// -----------------------------------------------------------------------------

// scriptedModel always answers with a fixed completion.
type scriptedModel struct{}

func (scriptedModel) GenerateContent(_ context.Context, _ []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: "I'll run the commands now."}},
	}, nil
}

// runScriptedSample exercises steps, tool dispatch (parallel and serial),
// subtask fan-out, log capture, and the local sandbox, then returns the root
// context for browsing.
func runScriptedSample() (*loom.ExecutionContext, error) {
	ec := loom.NewExecutionContext("main")
	ctx := loom.WithContext(context.Background(), ec)
	logger := slog.New(loom.NewLogHandler(slog.LevelInfo))

	registry := dispatch.NewRegistry().
		MustRegister(&dispatch.Tool{
			Name:        "exec",
			Version:     "1",
			Description: "Run a command in the local sandbox",
			Parameters: schema.MustCompile(schema.Object(map[string]*schema.Property{
				"command": schema.Array("Command and arguments", map[string]any{"type": "string"}),
			}, "command")),
			Parallel: true,
			Execute: dispatch.Typed(func(ctx context.Context, in struct {
				Command []string `json:"command"`
			}) (any, error) {
				return sandbox.NewLocal().Exec(ctx, in.Command, 10*time.Second)
			}),
		}).
		MustRegister(&dispatch.Tool{
			Name:        "remember",
			Version:     "1",
			Description: "Save a note into the sample store",
			Parameters: schema.MustCompile(schema.Object(map[string]*schema.Property{
				"note": schema.String("Note to save"),
			}, "note")),
			Parallel: false,
			Execute: func(ctx context.Context, args map[string]any) (any, error) {
				store := loom.Current(ctx).Store()
				notes, _ := store.Get("notes", []any{}).([]any)
				store.Set("notes", append(notes, args["note"]))
				return "saved", nil
			},
		})
	dispatcher := dispatch.New(registry, dispatch.WithTimeout(30*time.Second))
	model := loom.NewRecordedModel("scripted", scriptedModel{})

	stepCtx, span := loom.BeginStep(ctx, "plan")
	logger.InfoContext(stepCtx, "asking the model for a plan")
	if _, err := model.GenerateContent(stepCtx, []llms.MessageContent{
		llms.TextParts(lcschema.ChatMessageTypeHuman, "List the current directory and date."),
	}); err != nil {
		span.End()
		return ec, err
	}
	span.End()

	// Parallel batch: both tools are parallel-eligible.
	if _, err := dispatcher.ExecuteBatch(ctx, []dispatch.ToolCall{
		{ID: "call_1", Name: "exec", Arguments: map[string]any{"command": []any{"ls"}}},
		{ID: "call_2", Name: "exec", Arguments: map[string]any{"command": []any{"date"}}},
	}); err != nil {
		return ec, err
	}

	// Serial batch: "remember" forces the whole batch sequential.
	if _, err := dispatcher.ExecuteBatch(ctx, []dispatch.ToolCall{
		{ID: "call_3", Name: "remember", Arguments: map[string]any{"note": "listing looked fine"}},
		{ID: "call_4", Name: "exec", Arguments: map[string]any{"command": []any{"hostname"}}},
	}); err != nil {
		return ec, err
	}

	// Fan-out: two isolated graders score the same input.
	grade := func(suffix string) subtask.Func[string, string] {
		return func(ctx context.Context, input string) (string, error) {
			loom.Current(ctx).Store().Set("verdict", input+suffix)
			loom.Current(ctx).Transcript().Info("graded")
			return input + suffix, nil
		}
	}
	if _, err := subtask.Fork(ctx, "grade", "sample-1", grade(":pass"), grade(":flag")); err != nil {
		return ec, err
	}

	ec.Transcript().Info("sample complete")
	return ec, nil
}

// -----------------------------------------------------------------------------
// Rendering
// -----------------------------------------------------------------------------

func summarize(e loom.Event) string {
	switch ev := e.(type) {
	case *loom.ModelEvent:
		return fmt.Sprintf("%s[model]%s %s (%s)", colorBlue, colorReset, ev.Model, ev.Duration.Round(time.Millisecond))
	case *loom.ToolEvent:
		status := colorGreen + "ok" + colorReset
		if ev.Error != nil {
			status = colorRed + string(ev.Error.Kind) + colorReset
		}
		return fmt.Sprintf("%s[tool]%s %s %s", colorBlue, colorReset, ev.Name, status)
	case *loom.StoreEvent:
		return fmt.Sprintf("%s[store]%s %d ops", colorBlue, colorReset, len(ev.Ops))
	case *loom.StepEvent:
		return fmt.Sprintf("%s[step]%s %s (%d nested)", colorBlue, colorReset, ev.Name, len(ev.Events))
	case *loom.SubtaskEvent:
		status := colorGreen + "ok" + colorReset
		if ev.Error != "" {
			status = colorRed + ev.Error + colorReset
		}
		return fmt.Sprintf("%s[subtask]%s %s %s (%d nested)", colorBlue, colorReset, ev.Name, status, len(ev.Events))
	case *loom.InfoEvent:
		return fmt.Sprintf("%s[info]%s %v", colorBlue, colorReset, ev.Payload)
	case *loom.LoggerEvent:
		return fmt.Sprintf("%s[log]%s %s %s", colorBlue, colorReset, ev.Level, ev.Message)
	default:
		return fmt.Sprintf("%s[%s]%s", colorBlue, e.Kind(), colorReset)
	}
}

func printTree(events []loom.Event, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, e := range events {
		fmt.Println(indent + summarize(e))
		switch ev := e.(type) {
		case *loom.StepEvent:
			printTree(ev.Events, depth+1)
		case *loom.SubtaskEvent:
			printTree(ev.Events, depth+1)
		case *loom.ToolEvent:
			printTree(ev.Events, depth+1)
		case *loom.StoreEvent:
			if ev.Diff != "" {
				fmt.Print(colorDim + indentLines(ev.Diff, indent+"  ") + colorReset)
			}
		}
	}
}

func indentLines(s, indent string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, line := range lines {
		lines[i] = indent + line
	}
	return strings.Join(lines, "\n") + "\n"
}
