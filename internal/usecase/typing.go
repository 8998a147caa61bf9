package usecase

import (
	"sync"
	"time"
)

// TypingState is the ephemeral per-conversation "other side is typing" flag.
// A true signal arms a self-clearing timeout; silence resolves it to false
// without requiring an explicit typing_indicator(false).
type TypingState struct {
	mu       sync.Mutex
	active   bool
	stopped  bool
	timeout  time.Duration
	timer    *time.Timer
	onChange func(bool)
}

func NewTypingState(timeout time.Duration, onChange func(bool)) *TypingState {
	return &TypingState{
		timeout:  timeout,
		onChange: onChange,
	}
}

func (t *TypingState) Set(isTyping bool) {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}

	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}

	changed := t.active != isTyping
	t.active = isTyping

	if isTyping {
		t.timer = time.AfterFunc(t.timeout, t.expire)
	}
	t.mu.Unlock()

	if changed && t.onChange != nil {
		t.onChange(isTyping)
	}
}

func (t *TypingState) expire() {
	t.mu.Lock()
	if t.stopped || !t.active {
		t.mu.Unlock()
		return
	}
	t.active = false
	t.timer = nil
	t.mu.Unlock()

	if t.onChange != nil {
		t.onChange(false)
	}
}

func (t *TypingState) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// Stop cancels the timer and freezes the state; part of the session teardown
// contract, no callback fires afterwards.
func (t *TypingState) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopped = true
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.active = false
}
