// Package permissions checks the macOS privacy permissions KoeNote
// needs: microphone access for capture and accessibility for the
// synthetic paste keystroke.
package permissions

/*
#cgo CFLAGS: -x objective-c -fmodules
#cgo LDFLAGS: -framework AVFoundation -framework ApplicationServices

#import <AVFoundation/AVFoundation.h>
#import <ApplicationServices/ApplicationServices.h>

int check_microphone_permission() {
    AVAuthorizationStatus status = [AVCaptureDevice authorizationStatusForMediaType:AVMediaTypeAudio];
    return (int)status;
}

int check_accessibility_permission() {
    Boolean isAccessibilityEnabled = AXIsProcessTrusted();
    return isAccessibilityEnabled ? 1 : 0;
}
*/
import "C"

import (
	"os/exec"
	"strings"
)

// Status represents the state of a system permission. The values
// mirror AVAuthorizationStatus.
type Status int

const (
	// StatusNotDetermined means the user has not been asked yet
	StatusNotDetermined Status = 0
	// StatusRestricted means the permission is blocked by device policy
	StatusRestricted Status = 1
	// StatusDenied means the user explicitly denied the permission
	StatusDenied Status = 2
	// StatusAuthorized means the user granted the permission
	StatusAuthorized Status = 3
)

// String returns the status name
func (s Status) String() string {
	switch s {
	case StatusNotDetermined:
		return "NotDetermined"
	case StatusRestricted:
		return "Restricted"
	case StatusDenied:
		return "Denied"
	case StatusAuthorized:
		return "Authorized"
	default:
		return "Unknown"
	}
}

// Checker queries macOS for the permissions the app depends on
type Checker struct{}

// NewChecker creates a new permission checker
func NewChecker() *Checker {
	return &Checker{}
}

// Microphone returns the microphone capture permission status
func (c *Checker) Microphone() Status {
	return Status(C.check_microphone_permission())
}

// Accessibility returns the accessibility permission status. The API
// only answers trusted or not, so there is no NotDetermined here.
func (c *Checker) Accessibility() Status {
	if C.check_accessibility_permission() == 1 {
		return StatusAuthorized
	}
	return StatusDenied
}

// MicrophoneAuthorized returns whether microphone access is granted
func (c *Checker) MicrophoneAuthorized() bool {
	return c.Microphone() == StatusAuthorized
}

// AccessibilityAuthorized returns whether accessibility is granted
func (c *Checker) AccessibilityAuthorized() bool {
	return c.Accessibility() == StatusAuthorized
}

// Missing lists the permissions that still need to be granted
func (c *Checker) Missing() []string {
	var missing []string
	if !c.MicrophoneAuthorized() {
		missing = append(missing, "Microphone")
	}
	if !c.AccessibilityAuthorized() {
		missing = append(missing, "Accessibility")
	}
	return missing
}

// AllGranted returns whether every required permission is in place
func (c *Checker) AllGranted() bool {
	return len(c.Missing()) == 0
}

// MissingMessage returns a user-facing summary of ungranted
// permissions, or "" when everything is in place
func (c *Checker) MissingMessage() string {
	missing := c.Missing()
	if len(missing) == 0 {
		return ""
	}
	return "KoeNote needs these permissions: " + strings.Join(missing, ", ")
}

// OpenMicrophoneSettings opens System Settings at the microphone
// privacy pane
func (c *Checker) OpenMicrophoneSettings() error {
	url := "x-apple.systempreferences:com.apple.preference.security?Privacy_Microphone"
	return exec.Command("open", url).Run()
}

// OpenAccessibilitySettings opens System Settings at the accessibility
// privacy pane
func (c *Checker) OpenAccessibilitySettings() error {
	url := "x-apple.systempreferences:com.apple.preference.security?Privacy_Accessibility"
	return exec.Command("open", url).Run()
}
