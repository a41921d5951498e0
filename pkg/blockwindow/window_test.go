package blockwindow

import (
	"context"
	"testing"
	"time"

	"github.com/ava-labs/backrunner/pkg/snapshot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestWindow_Classify(t *testing.T) {
	t.Parallel()

	w := NewWindow()
	assert.Equal(t, NewBlock, w.Classify(7, 0))
	assert.Equal(t, NewBlockGap, w.Classify(7, 2))

	require.NoError(t, w.Publish(7, 3, snapshot.Empty(7)))

	tests := []struct {
		name  string
		block uint64
		index uint64
		want  Outcome
	}{
		{name: "next index", block: 7, index: 4, want: Applied},
		{name: "same index", block: 7, index: 3, want: Duplicate},
		{name: "older index", block: 7, index: 0, want: Duplicate},
		{name: "skipped index", block: 7, index: 6, want: Gap},
		{name: "newer block", block: 8, index: 0, want: NewBlock},
		{name: "newer block mid-sequence", block: 8, index: 1, want: NewBlockGap},
		{name: "older block", block: 6, index: 9, want: Stale},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, w.Classify(tt.block, tt.index))
		})
	}
}

func TestWindow_PublishRejectsOlderBlock(t *testing.T) {
	t.Parallel()

	w := NewWindow()
	require.NoError(t, w.Publish(7, 0, snapshot.Empty(7)))
	err := w.Publish(6, 0, snapshot.Empty(6))
	require.Error(t, err)
	require.Contains(t, err.Error(), "moved backwards")

	block, index, ok := w.Position()
	require.True(t, ok)
	assert.Equal(t, uint64(7), block)
	assert.Equal(t, uint64(0), index)
}

func TestOutcome_String(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "applied", Applied.String())
	assert.Equal(t, "new_block_gap", NewBlockGap.String())
	assert.Equal(t, "outcome(42)", Outcome(42).String())
}

func TestStartStallWatchdog_WarnsWhenStalled(t *testing.T) {
	t.Parallel()

	w := NewWindow()
	require.NoError(t, w.Publish(3, 1, snapshot.Empty(3)))

	core, recorded := observer.New(zap.WarnLevel)
	log := zap.New(core).Sugar()

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	go StartStallWatchdog(ctx, log, w, 5*time.Millisecond, time.Nanosecond)

	require.Eventually(t, func() bool {
		return recorded.FilterMessage("window stalled").Len() > 0
	}, time.Second, 5*time.Millisecond)
}

func TestStartStallWatchdog_QuietWhileProgressing(t *testing.T) {
	t.Parallel()

	w := NewWindow()
	require.NoError(t, w.Publish(3, 1, snapshot.Empty(3)))

	core, recorded := observer.New(zap.WarnLevel)
	log := zap.New(core).Sugar()

	ctx, cancel := context.WithTimeout(t.Context(), 30*time.Millisecond)
	defer cancel()

	StartStallWatchdog(ctx, log, w, 5*time.Millisecond, time.Hour)
	assert.Zero(t, recorded.Len())
}

func TestWindow_Ready(t *testing.T) {
	t.Parallel()

	w := NewWindow()
	require.ErrorContains(t, w.Ready(time.Hour), "no updates applied yet")

	require.NoError(t, w.Publish(9, 0, snapshot.Empty(9)))
	require.NoError(t, w.Ready(time.Hour))

	time.Sleep(5 * time.Millisecond)
	err := w.Ready(time.Millisecond)
	require.Error(t, err)
	assert.ErrorContains(t, err, "window stalled")
	assert.ErrorContains(t, err, "at block 9")
}
