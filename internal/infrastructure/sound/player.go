package sound

import "trusttrade/pkg/logger"

// Player is the injected notification-sound capability. The engine depends on
// this interface rather than a global audio handle so tests and headless
// callers can substitute a no-op.
type Player interface {
	Play()
}

// NopPlayer ignores every cue.
type NopPlayer struct{}

func (NopPlayer) Play() {}

// LogPlayer stands in for a real audio backend during development.
type LogPlayer struct{}

func (LogPlayer) Play() {
	logger.Debug("notification sound cue")
}
