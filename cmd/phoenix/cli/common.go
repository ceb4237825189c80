package cli

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/deepnoodle-ai/phoenix/checkpoint"
	"github.com/deepnoodle-ai/phoenix/config"
	"github.com/deepnoodle-ai/phoenix/plan"
)

// newStore opens the checkpoint store selected by the configuration.
func newStore(conf *config.Config) (checkpoint.Store, error) {
	switch conf.Store.Type {
	case "memory":
		return checkpoint.NewMemoryStore(), nil
	case "file":
		return checkpoint.NewFileStore(conf.Store.Path)
	case "sqlite":
		return checkpoint.NewSQLiteStore(conf.Store.Path, checkpoint.DefaultSQLiteStoreOptions())
	default:
		return nil, fmt.Errorf("unknown store type %q", conf.Store.Type)
	}
}

// shellDispatcher executes a step's tool reference as a shell command. The
// command's combined output becomes the result text; a non-zero exit is a
// step failure, not a dispatch error, so the router sees the output.
type shellDispatcher struct{}

func (d *shellDispatcher) Execute(ctx context.Context, step *plan.Step, attempt int) (*plan.StepResult, error) {
	command := step.ToolRef
	if command == "" {
		return nil, fmt.Errorf("step %s has no tool reference to execute", step.ID)
	}
	out, err := exec.CommandContext(ctx, "sh", "-c", command).CombinedOutput()
	text := strings.TrimSpace(string(out))
	if err != nil {
		if text == "" {
			text = err.Error()
		}
		return &plan.StepResult{StepID: step.ID, Success: false, Result: text}, nil
	}
	return &plan.StepResult{StepID: step.ID, Success: true, Result: text}, nil
}
