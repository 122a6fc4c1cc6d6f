package hotkey

import (
	"strings"

	"golang.design/x/hotkey"
)

// Conflict names a well-known macOS shortcut that a candidate binding
// would collide with.
type Conflict struct {
	Name        string
	Description string
	Binding     Binding
}

var knownConflicts = []Conflict{
	{
		Name:        "Spotlight",
		Description: "macOS Spotlight search",
		Binding: Binding{
			Modifiers: []hotkey.Modifier{hotkey.ModCmd},
			Key:       hotkey.KeySpace,
		},
	},
	{
		Name:        "Launcher apps",
		Description: "Alfred and Raycast default shortcut",
		Binding: Binding{
			Modifiers: []hotkey.Modifier{hotkey.ModCmd},
			Key:       hotkey.KeySpace,
		},
	},
	{
		Name:        "Input source switch",
		Description: "Keyboard input source switch",
		Binding: Binding{
			Modifiers: []hotkey.Modifier{hotkey.ModCtrl},
			Key:       hotkey.KeySpace,
		},
	},
	{
		Name:        "Force Quit",
		Description: "macOS Force Quit dialog",
		Binding: Binding{
			Modifiers: []hotkey.Modifier{hotkey.ModCmd, hotkey.ModOption},
			Key:       hotkey.KeyEscape,
		},
	},
}

// CheckConflicts reports the known system shortcuts the candidate
// binding collides with. An empty result means the binding is safe to
// register.
func CheckConflicts(candidate Binding) []Conflict {
	var conflicts []Conflict
	for _, known := range knownConflicts {
		if sameBinding(candidate, known.Binding) {
			conflicts = append(conflicts, known)
		}
	}
	return conflicts
}

// sameBinding compares two bindings ignoring modifier order
func sameBinding(a, b Binding) bool {
	if a.Key != b.Key || len(a.Modifiers) != len(b.Modifiers) {
		return false
	}

	set := make(map[hotkey.Modifier]bool, len(b.Modifiers))
	for _, mod := range b.Modifiers {
		set[mod] = true
	}
	for _, mod := range a.Modifiers {
		if !set[mod] {
			return false
		}
	}
	return true
}

// Format returns the binding rendered with macOS modifier symbols,
// e.g. "⌃⌥Space".
func (b Binding) Format() string {
	result := ""
	for _, mod := range b.Modifiers {
		switch mod {
		case hotkey.ModCtrl:
			result += "⌃"
		case hotkey.ModShift:
			result += "⇧"
		case hotkey.ModOption:
			result += "⌥"
		case hotkey.ModCmd:
			result += "⌘"
		}
	}
	return result + keyName(b.Key)
}

// keyName is the reverse of the parse table, restricted to the keys
// the settings UI offers.
func keyName(key hotkey.Key) string {
	special := map[hotkey.Key]string{
		hotkey.KeySpace:  "Space",
		hotkey.KeyEscape: "Esc",
		hotkey.KeyReturn: "Return",
		hotkey.KeyTab:    "Tab",
		hotkey.KeyDelete: "Delete",
	}
	if name, ok := special[key]; ok {
		return name
	}

	for name, code := range keyNames {
		if code == key && len(name) == 1 {
			return strings.ToUpper(name)
		}
	}
	return "Unknown"
}
