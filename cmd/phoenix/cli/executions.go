package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/deepnoodle-ai/phoenix/checkpoint"
	"github.com/deepnoodle-ai/phoenix/run"
	"github.com/spf13/cobra"
)

func getSupervisor() (*checkpoint.Supervisor, checkpoint.Store, error) {
	conf, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	store, err := newStore(conf)
	if err != nil {
		return nil, nil, fmt.Errorf("error opening checkpoint store: %w", err)
	}
	supervisor, err := checkpoint.NewSupervisor(checkpoint.SupervisorOptions{
		Store:  store,
		Logger: getLogger(conf),
	})
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return supervisor, store, nil
}

func listCheckpoints(ctx context.Context) error {
	supervisor, store, err := getSupervisor()
	if err != nil {
		return err
	}
	defer store.Close()

	sessions, err := supervisor.ListSnapshots(ctx)
	if err != nil {
		return fmt.Errorf("error listing snapshots: %w", err)
	}
	if len(sessions) == 0 {
		fmt.Println("No checkpointed runs found.")
		return nil
	}

	headerStyle.Printf("%s %s %s %s\n",
		padCell("SESSION ID", 38), padCell("GOAL", 30),
		padCell("COMPLETED", 10), padCell("SAVED", 20))
	fmt.Println(mutedStyle.Sprint(strings.Repeat("-", 100)))

	for _, sessionID := range sessions {
		blob, err := supervisor.LoadSnapshot(ctx, sessionID)
		if err != nil || blob == nil {
			fmt.Printf("%s %s\n", padCell(sessionID, 38), mutedStyle.Sprint("(unreadable)"))
			continue
		}
		state, err := run.DecodeRunState(blob)
		if err != nil {
			fmt.Printf("%s %s\n", padCell(sessionID, 38), mutedStyle.Sprint("(corrupt)"))
			continue
		}
		completed := 0
		for _, r := range state.Results {
			if r.Success {
				completed++
			}
		}
		goal := state.Goal
		if len(goal) > 30 {
			goal = goal[:27] + "..."
		}
		fmt.Printf("%s %s %s %s\n",
			padCell(sessionID, 38),
			padCell(goal, 30),
			padCell(fmt.Sprintf("%d steps", completed), 10),
			padCell(state.SavedAt.Format(time.RFC3339), 20))
	}
	return nil
}

func showCheckpoint(ctx context.Context, sessionID string) error {
	supervisor, store, err := getSupervisor()
	if err != nil {
		return err
	}
	defer store.Close()

	blob, err := supervisor.LoadSnapshot(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("error loading snapshot: %w", err)
	}
	if blob == nil {
		return fmt.Errorf("no snapshot found for session %s", sessionID)
	}
	state, err := run.DecodeRunState(blob)
	if err != nil {
		return err
	}

	headerStyle.Printf("Session %s\n", state.SessionID)
	fmt.Printf("Goal:  %s\n", state.Goal)
	fmt.Printf("Saved: %s\n", state.SavedAt.Format(time.RFC3339))
	fmt.Println()
	for _, r := range state.Results {
		mark := outputStyle.Sprint(checkmark)
		if !r.Success {
			mark = errorStyle.Sprint(xmark)
		}
		fmt.Printf("  %s %s %s\n", mark, stepStyle.Sprintf("[%s]", r.StepID), r.Result)
	}
	if len(state.Recoveries) > 0 {
		fmt.Println()
		headerStyle.Println("Recovery attempts")
		for _, attempt := range state.Recoveries {
			status := outputStyle.Sprint("succeeded")
			if !attempt.Success {
				status = errorStyle.Sprint("failed")
			}
			fmt.Printf("  %s %s %s (%s, depth %d)\n",
				bullet, stepStyle.Sprintf("[%s]", attempt.StepID),
				status, attempt.Method, attempt.Depth)
		}
	}
	return nil
}

func deleteCheckpoint(ctx context.Context, sessionID string) error {
	supervisor, store, err := getSupervisor()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := supervisor.DeleteSnapshot(ctx, sessionID); err != nil {
		return fmt.Errorf("error deleting snapshot: %w", err)
	}
	fmt.Printf("Deleted snapshot for session %s\n", sessionID)
	return nil
}

var executionsCmd = &cobra.Command{
	Use:   "executions",
	Short: "Inspect checkpointed runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listCheckpoints(cmd.Context())
	},
}

var executionsShowCmd = &cobra.Command{
	Use:   "show [session id]",
	Short: "Show a checkpointed run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return showCheckpoint(cmd.Context(), args[0])
	},
}

var executionsDeleteCmd = &cobra.Command{
	Use:   "delete [session id]",
	Short: "Delete a checkpointed run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return deleteCheckpoint(cmd.Context(), args[0])
	},
}

func init() {
	executionsCmd.AddCommand(executionsShowCmd)
	executionsCmd.AddCommand(executionsDeleteCmd)
	rootCmd.AddCommand(executionsCmd)
}
