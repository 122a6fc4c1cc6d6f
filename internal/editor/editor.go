// Package editor delivers text into the frontmost application at the
// current cursor position.
package editor

import (
	"errors"
	"strings"
	"time"

	"github.com/go-vgo/robotgo"
)

// ErrNoTarget indicates there was no frontmost window to paste into.
var ErrNoTarget = errors.New("no frontmost window to paste into")

// Config holds editor configuration
type Config struct {
	PasteDelay   time.Duration // Wait after writing the clipboard before pasting
	RestoreDelay time.Duration // Wait after pasting before restoring the clipboard
}

// DefaultConfig returns the default editor configuration
func DefaultConfig() Config {
	return Config{
		PasteDelay:   10 * time.Millisecond,
		RestoreDelay: 500 * time.Millisecond,
	}
}

// Manager inserts text at the cursor of the frontmost application via
// the clipboard: save, write, paste (Cmd+V), restore. Pasting replaces
// any active selection, which is exactly the insertion semantics the
// pipeline needs.
type Manager struct {
	pasteDelay   time.Duration
	restoreDelay time.Duration
}

// NewManager creates a new editor manager
func NewManager(config Config) *Manager {
	return &Manager{
		pasteDelay:   config.PasteDelay,
		restoreDelay: config.RestoreDelay,
	}
}

// HasActiveTarget reports whether there is a frontmost window that can
// receive a paste
func (m *Manager) HasActiveTarget() bool {
	return strings.TrimSpace(robotgo.GetTitle()) != ""
}

// InsertAtCursor pastes text at the cursor of the frontmost
// application, restoring the previous clipboard content afterwards
func (m *Manager) InsertAtCursor(text string) error {
	if !m.HasActiveTarget() {
		return ErrNoTarget
	}

	// Best-effort save of the current clipboard; restoration is skipped
	// if we can't read it
	saved, readErr := robotgo.ReadAll()

	robotgo.WriteAll(text)
	time.Sleep(m.pasteDelay)

	robotgo.KeyTap("v", "cmd")

	time.Sleep(m.restoreDelay)
	if readErr == nil {
		robotgo.WriteAll(saved)
	}

	return nil
}
