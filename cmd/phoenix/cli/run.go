package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/deepnoodle-ai/phoenix/checkpoint"
	"github.com/deepnoodle-ai/phoenix/config"
	"github.com/deepnoodle-ai/phoenix/plan"
	"github.com/deepnoodle-ai/phoenix/run"
	"github.com/spf13/cobra"
)

func runPlan(ctx context.Context, conf *config.Config, planPath, sessionID string) error {
	logger := getLogger(conf)

	store, err := newStore(conf)
	if err != nil {
		return fmt.Errorf("error opening checkpoint store: %w", err)
	}
	defer store.Close()

	supervisor, err := checkpoint.NewSupervisor(checkpoint.SupervisorOptions{
		Store:  store,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	router, err := run.NewRouter(conf.Patterns)
	if err != nil {
		return fmt.Errorf("invalid routing patterns: %w", err)
	}

	opts := run.Options{
		SessionID:            sessionID,
		Dispatcher:           &shellDispatcher{},
		Router:               router,
		Supervisor:           supervisor,
		Logger:               logger,
		Formatter:            &runFormatter{},
		MaxRecursiveDepth:    conf.MaxRecursiveDepth,
		StepRetryLimit:       conf.StepRetryLimit,
		DispatchTimeout:      conf.DispatchTimeout(),
		RecursionBackoffBase: conf.RecursionBackoffBase(),
	}

	// A pending restart marker takes precedence over the plan file: the
	// interrupted run resumes exactly where it left off.
	resumption, err := supervisor.CheckResume(ctx)
	if err != nil {
		return fmt.Errorf("error checking for pending restart: %w", err)
	}
	if resumption != nil {
		state, err := run.DecodeRunState(resumption.Snapshot)
		if err != nil {
			return fmt.Errorf("error decoding run snapshot: %w", err)
		}
		headerStyle.Printf("Resuming session %s (%s)\n", resumption.SessionID, resumption.Reason)
		opts.Resume = state
		opts.Plan = state.Plan
	} else {
		p, err := plan.ParseFile(planPath)
		if err != nil {
			return fmt.Errorf("error loading plan: %w", err)
		}
		opts.Plan = p
	}

	execution, err := run.NewExecution(opts)
	if err != nil {
		return err
	}

	result, err := execution.Run(ctx)
	if err != nil {
		if errors.Is(err, run.ErrRestartRequested) {
			warningStyle.Printf("Run checkpointed for restart (session %s)\n", result.SessionID)
			os.Exit(checkpoint.RestartExitCode)
		}
		return err
	}

	switch result.Status {
	case run.StatusChat:
		fmt.Println(mutedStyle.Sprint("Plan has no steps; nothing to execute."))
	case run.StatusCompleted:
		outputStyle.Printf("%s Run completed (%d steps, %s)\n",
			checkmark, len(result.Results), result.Duration.Round(time.Millisecond))
	}
	return nil
}

var runCmd = &cobra.Command{
	Use:   "run [plan file]",
	Short: "Execute a task plan",
	Long:  "Execute a task plan, resuming a checkpointed run if one is pending",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := loadConfig()
		if err != nil {
			return err
		}
		sessionID, err := cmd.Flags().GetString("session")
		if err != nil {
			return err
		}
		return runPlan(cmd.Context(), conf, args[0], sessionID)
	},
}

func init() {
	runCmd.Flags().String("session", "", "Session ID for the run (defaults to a new UUID)")
	rootCmd.AddCommand(runCmd)
}
