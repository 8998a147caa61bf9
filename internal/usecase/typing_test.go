package usecase

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type typingRecorder struct {
	mu      sync.Mutex
	changes []bool
}

func (r *typingRecorder) record(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, v)
}

func (r *typingRecorder) snapshot() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]bool, len(r.changes))
	copy(out, r.changes)
	return out
}

func TestTypingAutoClearsAfterTimeout(t *testing.T) {
	rec := &typingRecorder{}
	state := NewTypingState(40*time.Millisecond, rec.record)

	state.Set(true)
	assert.True(t, state.Active())

	require.Eventually(t, func() bool { return !state.Active() }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []bool{true, false}, rec.snapshot())
}

func TestTypingRefreshExtendsTimeout(t *testing.T) {
	state := NewTypingState(60*time.Millisecond, nil)

	state.Set(true)
	time.Sleep(35 * time.Millisecond)
	state.Set(true)
	time.Sleep(35 * time.Millisecond)

	// 70ms after the first signal but only 35ms after the refresh.
	assert.True(t, state.Active())

	require.Eventually(t, func() bool { return !state.Active() }, time.Second, 5*time.Millisecond)
}

func TestTypingExplicitFalseClearsImmediately(t *testing.T) {
	rec := &typingRecorder{}
	state := NewTypingState(time.Minute, rec.record)

	state.Set(true)
	state.Set(false)

	assert.False(t, state.Active())
	assert.Equal(t, []bool{true, false}, rec.snapshot())
}

func TestTypingDuplicateSignalsFireNoExtraCallbacks(t *testing.T) {
	rec := &typingRecorder{}
	state := NewTypingState(time.Minute, rec.record)

	state.Set(true)
	state.Set(true)
	state.Set(true)

	assert.Equal(t, []bool{true}, rec.snapshot())
}

func TestTypingStopSilencesCallbacks(t *testing.T) {
	rec := &typingRecorder{}
	state := NewTypingState(30*time.Millisecond, rec.record)

	state.Set(true)
	state.Stop()
	assert.False(t, state.Active())

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, []bool{true}, rec.snapshot(), "no expiry callback after Stop")

	state.Set(true)
	assert.False(t, state.Active(), "a stopped state ignores further signals")
}
