package cli

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/deepnoodle-ai/phoenix/checkpoint"
	"github.com/deepnoodle-ai/phoenix/config"
	"github.com/deepnoodle-ai/phoenix/slogger"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

// supervise relaunches the run command as a child process for as long as
// it exits with the restart code. Restart, in other words, is handled
// outside the restarting process: the child checkpoints and exits, the
// supervisor brings up a fresh one, and the fresh one resumes from the
// snapshot.
func supervise(conf *config.Config, planPath string, maxRestarts int) error {
	logger := getLogger(conf)

	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("error locating executable: %w", err)
	}

	// Watch the store directory so checkpoint writes show up in the
	// supervisor's log as they happen.
	if conf.Store.Type == "file" {
		watcher, err := watchStoreDir(conf.Store.Path, logger)
		if err != nil {
			logger.Warn("store watch unavailable", "error", err)
		} else {
			defer watcher.Close()
		}
	}

	childArgs := []string{"run", planPath,
		"--store", conf.Store.Type,
		"--log-level", conf.LogLevel,
	}
	if conf.Store.Path != "" {
		childArgs = append(childArgs, "--store-path", conf.Store.Path)
	}
	if configPath != "" {
		childArgs = append(childArgs, "--config", configPath)
	}

	for restarts := 0; ; restarts++ {
		if restarts > 0 {
			headerStyle.Printf("Relaunching run (restart %d of %d)\n", restarts, maxRestarts)
		}
		cmd := exec.Command(self, childArgs...)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		cmd.Stdin = os.Stdin

		err := cmd.Run()
		if err == nil {
			return nil
		}
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return fmt.Errorf("error launching child process: %w", err)
		}
		if exitErr.ExitCode() != checkpoint.RestartExitCode {
			return fmt.Errorf("run exited with code %d", exitErr.ExitCode())
		}
		if restarts >= maxRestarts {
			return fmt.Errorf("giving up after %d restarts", restarts)
		}
		logger.Info("child requested restart", "restarts", restarts+1)
	}
}

func watchStoreDir(dir string, logger slogger.Logger) (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		watcher.Close()
		return nil, err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Write) {
					switch {
					case strings.Contains(event.Name, "restart-pending"):
						logger.Info("restart marker written", "path", event.Name)
					case strings.Contains(event.Name, checkpoint.SnapshotKeyPrefix):
						logger.Info("checkpoint written", "path", event.Name)
					}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("store watch error", "error", err)
			}
		}
	}()
	return watcher, nil
}

var superviseCmd = &cobra.Command{
	Use:   "supervise [plan file]",
	Short: "Run a plan under a restarting supervisor",
	Long: "Run a plan as a child process and relaunch it whenever it exits with\n" +
		"the restart code, so checkpointed runs resume in a fresh process",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := loadConfig()
		if err != nil {
			return err
		}
		if conf.Store.Type == "memory" {
			return fmt.Errorf("supervise requires a durable store (file or sqlite); a memory store cannot outlive the child process")
		}
		maxRestarts, err := cmd.Flags().GetInt("max-restarts")
		if err != nil {
			return err
		}
		return supervise(conf, args[0], maxRestarts)
	},
}

func init() {
	superviseCmd.Flags().Int("max-restarts", 10, "Maximum restarts before giving up")
	rootCmd.AddCommand(superviseCmd)
}
