package checkpoint

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeState struct {
	SessionID string `json:"session_id"`
	Progress  int    `json:"progress"`
}

func newTestSupervisor(t *testing.T) (*Supervisor, Store) {
	t.Helper()
	store := NewMemoryStore()
	supervisor, err := NewSupervisor(SupervisorOptions{Store: store})
	require.NoError(t, err)
	return supervisor, store
}

func TestSaveAndMarkRestart(t *testing.T) {
	ctx := context.Background()
	supervisor, store := newTestSupervisor(t)

	restartRequested := false
	supervisor.restart = func() { restartRequested = true }

	state := fakeState{SessionID: "s1", Progress: 3}
	require.NoError(t, supervisor.SaveAndMarkRestart(ctx, "s1", state, "state corruption in step 4"))
	assert.True(t, restartRequested)

	// Snapshot and marker are both durable.
	snapshot, err := store.Get(ctx, SnapshotKey("s1"))
	require.NoError(t, err)
	require.NotNil(t, snapshot)

	var decoded fakeState
	require.NoError(t, json.Unmarshal(snapshot, &decoded))
	assert.Equal(t, 3, decoded.Progress)

	marker, err := store.Get(ctx, "restart-pending")
	require.NoError(t, err)
	require.NotNil(t, marker)
}

func TestCheckResumeConsumesMarkerOnce(t *testing.T) {
	ctx := context.Background()
	supervisor, _ := newTestSupervisor(t)

	require.NoError(t, supervisor.SaveAndMarkRestart(ctx, "s1", fakeState{SessionID: "s1"}, "fatal"))

	resumption, err := supervisor.CheckResume(ctx)
	require.NoError(t, err)
	require.NotNil(t, resumption)
	assert.Equal(t, "s1", resumption.SessionID)
	assert.Equal(t, "fatal", resumption.Reason)
	assert.NotEmpty(t, resumption.Snapshot)

	// Second boot check: nothing pending.
	resumption, err = supervisor.CheckResume(ctx)
	require.NoError(t, err)
	assert.Nil(t, resumption)
}

func TestCheckResumeNothingPending(t *testing.T) {
	supervisor, _ := newTestSupervisor(t)
	resumption, err := supervisor.CheckResume(context.Background())
	require.NoError(t, err)
	assert.Nil(t, resumption)
}

func TestCheckResumeOrphanedMarker(t *testing.T) {
	ctx := context.Background()
	supervisor, store := newTestSupervisor(t)

	// A marker pointing at a snapshot that does not exist.
	marker, err := json.Marshal(Marker{SessionID: "ghost", Reason: "fatal"})
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, "restart-pending", marker))

	_, err = supervisor.CheckResume(ctx)
	require.Error(t, err)

	// The orphaned marker is cleared so boot does not loop on it.
	resumption, err := supervisor.CheckResume(ctx)
	require.NoError(t, err)
	assert.Nil(t, resumption)
}

func TestSnapshotLifecycle(t *testing.T) {
	ctx := context.Background()
	supervisor, _ := newTestSupervisor(t)

	require.NoError(t, supervisor.SaveAndMarkRestart(ctx, "s1", fakeState{SessionID: "s1"}, "fatal"))
	require.NoError(t, supervisor.SaveAndMarkRestart(ctx, "s2", fakeState{SessionID: "s2"}, "fatal"))

	sessions, err := supervisor.ListSnapshots(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2"}, sessions)

	blob, err := supervisor.LoadSnapshot(ctx, "s1")
	require.NoError(t, err)
	assert.NotNil(t, blob)

	require.NoError(t, supervisor.DeleteSnapshot(ctx, "s1"))
	sessions, err = supervisor.ListSnapshots(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"s2"}, sessions)

	blob, err = supervisor.LoadSnapshot(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, blob)
}
