package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/deepnoodle-ai/phoenix/retry"
	"github.com/deepnoodle-ai/phoenix/slogger"
)

// RestartExitCode is the distinguished process exit code that tells an
// external supervisor "restart me". The process never replaces its own
// image; it saves state, exits with this code, and the supervisor
// relaunches it with the same arguments.
const RestartExitCode = 86

const markerKey = "restart-pending"

// SnapshotKeyPrefix prefixes the store key of every run snapshot.
const SnapshotKeyPrefix = "snapshot-"

// Marker is the restart-pending record. Exactly one exists globally; its
// presence at boot means the previous process exited for a restart and the
// run it names must be resumed before any new work is accepted.
type Marker struct {
	Reason    string `json:"reason"`
	Timestamp string `json:"timestamp"`
	SessionID string `json:"session_id"`
}

// Resumption is returned by CheckResume when a restart marker was found.
// Snapshot holds the serialized run state saved by SaveAndMarkRestart.
type Resumption struct {
	SessionID string
	Reason    string
	Snapshot  []byte
}

// RestartFunc requests process replacement. The default implementation
// does nothing, leaving the caller to exit with RestartExitCode.
type RestartFunc func()

// Supervisor implements the checkpoint/restart protocol over a durable
// Store.
type Supervisor struct {
	store   Store
	logger  slogger.Logger
	restart RestartFunc
}

// SupervisorOptions configures a Supervisor.
type SupervisorOptions struct {
	Store   Store
	Logger  slogger.Logger
	Restart RestartFunc
}

// NewSupervisor creates a new checkpoint supervisor.
func NewSupervisor(opts SupervisorOptions) (*Supervisor, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if opts.Logger == nil {
		opts.Logger = slogger.DefaultLogger
	}
	return &Supervisor{
		store:   opts.Store,
		logger:  opts.Logger,
		restart: opts.Restart,
	}, nil
}

// SnapshotKey returns the store key for a session's run snapshot.
func SnapshotKey(sessionID string) string {
	return SnapshotKeyPrefix + sessionID
}

// SaveAndMarkRestart serializes the snapshot to the durable store keyed by
// session ID, writes the restart-pending marker, and requests process
// replacement. Store writes are retried a bounded number of times; the
// marker is written only after the snapshot is durable, so a marker always
// points at a readable snapshot.
func (s *Supervisor) SaveAndMarkRestart(ctx context.Context, sessionID string, snapshot any, reason string) error {
	blob, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := retry.Do(ctx, retry.MaxAttempts, retry.BaseWait, func() error {
		return s.store.Put(ctx, SnapshotKey(sessionID), blob)
	}); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}

	marker := Marker{
		Reason:    reason,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		SessionID: sessionID,
	}
	markerBlob, err := json.Marshal(marker)
	if err != nil {
		return fmt.Errorf("failed to marshal restart marker: %w", err)
	}
	if err := retry.Do(ctx, retry.MaxAttempts, retry.BaseWait, func() error {
		return s.store.Put(ctx, markerKey, markerBlob)
	}); err != nil {
		return fmt.Errorf("failed to save restart marker: %w", err)
	}

	s.logger.Info("restart pending",
		"session_id", sessionID,
		"reason", reason)

	if s.restart != nil {
		s.restart()
	}
	return nil
}

// CheckResume looks for a restart-pending marker. If present it loads the
// named snapshot, deletes the marker exactly once, and returns the
// resumption record. It returns (nil, nil) when no restart is pending.
func (s *Supervisor) CheckResume(ctx context.Context) (*Resumption, error) {
	markerBlob, err := s.store.Get(ctx, markerKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read restart marker: %w", err)
	}
	if markerBlob == nil {
		return nil, nil
	}

	var marker Marker
	if err := json.Unmarshal(markerBlob, &marker); err != nil {
		return nil, fmt.Errorf("failed to decode restart marker: %w", err)
	}

	snapshot, err := s.store.Get(ctx, SnapshotKey(marker.SessionID))
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	if snapshot == nil {
		// A marker without a snapshot is unrecoverable state; clear it so
		// the process does not loop on boot.
		if err := s.store.Delete(ctx, markerKey); err != nil {
			return nil, fmt.Errorf("failed to clear orphaned marker: %w", err)
		}
		return nil, fmt.Errorf("restart marker references missing snapshot for session %s", marker.SessionID)
	}

	if err := s.store.Delete(ctx, markerKey); err != nil {
		return nil, fmt.Errorf("failed to delete restart marker: %w", err)
	}

	s.logger.Info("resuming from checkpoint",
		"session_id", marker.SessionID,
		"reason", marker.Reason)

	return &Resumption{
		SessionID: marker.SessionID,
		Reason:    marker.Reason,
		Snapshot:  snapshot,
	}, nil
}

// LoadSnapshot reads a stored snapshot without consuming it. Returns
// (nil, nil) when no snapshot exists for the session.
func (s *Supervisor) LoadSnapshot(ctx context.Context, sessionID string) ([]byte, error) {
	return s.store.Get(ctx, SnapshotKey(sessionID))
}

// DeleteSnapshot removes a consumed snapshot after the resumed run
// completes.
func (s *Supervisor) DeleteSnapshot(ctx context.Context, sessionID string) error {
	return s.store.Delete(ctx, SnapshotKey(sessionID))
}

// ListSnapshots returns the session IDs of all stored snapshots.
func (s *Supervisor) ListSnapshots(ctx context.Context) ([]string, error) {
	keys, err := s.store.List(ctx, SnapshotKeyPrefix)
	if err != nil {
		return nil, err
	}
	sessions := make([]string, 0, len(keys))
	for _, key := range keys {
		sessions = append(sessions, key[len(SnapshotKeyPrefix):])
	}
	return sessions, nil
}
