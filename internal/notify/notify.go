// Package notify delivers one-way user notifications.
package notify

import (
	"fmt"
	"os/exec"
	"strings"
)

// Notifier is the one-way notification sink: fire-and-forget, no
// acknowledgement.
type Notifier interface {
	Notify(message string)
}

// Manager sends notifications through the macOS notification center
type Manager struct {
	appName string
	run     func(script string) error
}

// NewManager creates a new notification manager
func NewManager(appName string) *Manager {
	return &Manager{
		appName: appName,
		run:     runOSAScript,
	}
}

// Notify sends a notification to the user. Delivery failures are
// swallowed; there is nothing useful to do about a lost toast.
func (m *Manager) Notify(message string) {
	_ = m.run(buildScript(m.appName, message))
}

// buildScript builds the AppleScript display notification command
func buildScript(title, message string) string {
	return fmt.Sprintf(`display notification "%s" with title "%s"`,
		escape(message), escape(title))
}

// escape neutralizes characters that would break out of the
// AppleScript string literal
func escape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return s
}

func runOSAScript(script string) error {
	return exec.Command("osascript", "-e", script).Run()
}
