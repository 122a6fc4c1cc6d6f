// Package hotkey registers the global record toggle shortcut.
package hotkey

import (
	"fmt"
	"strings"
	"sync"

	"golang.design/x/hotkey"
)

// Event is emitted once per press of the registered shortcut. The
// consumer decides what a press means (start or stop) from its own
// state, so there is no pressed/released distinction here.
type Event struct{}

// Binding is a shortcut combination ready for system registration.
type Binding struct {
	Modifiers []hotkey.Modifier
	Key       hotkey.Key
}

// DefaultBinding returns the built-in shortcut, Ctrl+Option+Space.
func DefaultBinding() Binding {
	return Binding{
		Modifiers: []hotkey.Modifier{hotkey.ModCtrl, hotkey.ModOption},
		Key:       hotkey.KeySpace,
	}
}

// Manager manages global hotkey registration and events
type Manager struct {
	hk        *hotkey.Hotkey
	binding   Binding
	eventChan chan Event
	stopChan  chan struct{}
	wg        sync.WaitGroup
	mu        sync.Mutex
	running   bool
}

// New creates a hotkey manager with the default binding
func New() *Manager {
	return &Manager{
		binding:   DefaultBinding(),
		eventChan: make(chan Event, 10),
		stopChan:  make(chan struct{}),
	}
}

// Register registers the binding with the system and starts
// delivering press events
func (m *Manager) Register(binding Binding) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("hotkey is already running, call Close() first")
	}

	m.binding = binding

	// Recreate channels (they may have been closed by a previous Close())
	m.stopChan = make(chan struct{})
	m.eventChan = make(chan Event, 10)

	hk := hotkey.New(binding.Modifiers, binding.Key)
	if err := hk.Register(); err != nil {
		return fmt.Errorf("failed to register hotkey: %w", err)
	}

	m.hk = hk
	m.running = true

	m.wg.Add(1)
	go m.listen()

	return nil
}

// RegisterDefault registers the built-in Ctrl+Option+Space binding
func (m *Manager) RegisterDefault() error {
	return m.Register(DefaultBinding())
}

// listen forwards key-down events. Key-up events are drained and
// dropped; a toggle shortcut only cares about presses.
func (m *Manager) listen() {
	defer m.wg.Done()

	for {
		select {
		case <-m.hk.Keydown():
			m.eventChan <- Event{}

		case <-m.hk.Keyup():

		case <-m.stopChan:
			return
		}
	}
}

// Events returns the channel press events are delivered on
func (m *Manager) Events() <-chan Event {
	return m.eventChan
}

// Close unregisters the hotkey and stops listening
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}

	var unregisterErr error

	close(m.stopChan)
	m.wg.Wait()

	// Keep going on error; the cleanup below must run regardless so a
	// failed Unregister does not wedge the next Register
	if m.hk != nil {
		if err := m.hk.Unregister(); err != nil {
			unregisterErr = fmt.Errorf("failed to unregister hotkey: %w", err)
		}
	}

	if m.eventChan != nil {
		close(m.eventChan)
		m.eventChan = nil
	}

	m.running = false

	return unregisterErr
}

// IsRunning returns whether the hotkey is currently registered and running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Binding returns a copy of the currently registered binding
func (m *Manager) Binding() Binding {
	m.mu.Lock()
	defer m.mu.Unlock()

	bindingCopy := m.binding
	if m.binding.Modifiers != nil {
		bindingCopy.Modifiers = make([]hotkey.Modifier, len(m.binding.Modifiers))
		copy(bindingCopy.Modifiers, m.binding.Modifiers)
	}
	return bindingCopy
}

// ParseBinding converts modifier flags and a key name into a Binding.
// Key names are the ones the settings UI offers: single letters and
// digits plus Space, Esc, Return, Tab and Delete.
func ParseBinding(ctrl, shift, alt, cmd bool, keyName string) (Binding, error) {
	var mods []hotkey.Modifier
	if ctrl {
		mods = append(mods, hotkey.ModCtrl)
	}
	if shift {
		mods = append(mods, hotkey.ModShift)
	}
	if alt {
		mods = append(mods, hotkey.ModOption)
	}
	if cmd {
		mods = append(mods, hotkey.ModCmd)
	}
	if len(mods) == 0 {
		return Binding{}, fmt.Errorf("hotkey needs at least one modifier")
	}

	key, err := parseKey(keyName)
	if err != nil {
		return Binding{}, err
	}

	return Binding{Modifiers: mods, Key: key}, nil
}

// keyNames maps settings-UI key names to key codes. Explicit entries
// because the macOS virtual key codes behind hotkey.Key are not
// contiguous, so no arithmetic shortcut works.
var keyNames = map[string]hotkey.Key{
	"space": hotkey.KeySpace, "esc": hotkey.KeyEscape, "escape": hotkey.KeyEscape,
	"return": hotkey.KeyReturn, "enter": hotkey.KeyReturn,
	"tab": hotkey.KeyTab, "delete": hotkey.KeyDelete,
	"a": hotkey.KeyA, "b": hotkey.KeyB, "c": hotkey.KeyC, "d": hotkey.KeyD,
	"e": hotkey.KeyE, "f": hotkey.KeyF, "g": hotkey.KeyG, "h": hotkey.KeyH,
	"i": hotkey.KeyI, "j": hotkey.KeyJ, "k": hotkey.KeyK, "l": hotkey.KeyL,
	"m": hotkey.KeyM, "n": hotkey.KeyN, "o": hotkey.KeyO, "p": hotkey.KeyP,
	"q": hotkey.KeyQ, "r": hotkey.KeyR, "s": hotkey.KeyS, "t": hotkey.KeyT,
	"u": hotkey.KeyU, "v": hotkey.KeyV, "w": hotkey.KeyW, "x": hotkey.KeyX,
	"y": hotkey.KeyY, "z": hotkey.KeyZ,
	"0": hotkey.Key0, "1": hotkey.Key1, "2": hotkey.Key2, "3": hotkey.Key3,
	"4": hotkey.Key4, "5": hotkey.Key5, "6": hotkey.Key6, "7": hotkey.Key7,
	"8": hotkey.Key8, "9": hotkey.Key9,
}

func parseKey(name string) (hotkey.Key, error) {
	// macOS IMEs sometimes deliver a non-breaking space for the space key
	if name == " " {
		name = "Space"
	}
	normalized := strings.ToLower(strings.TrimSpace(name))
	if key, ok := keyNames[normalized]; ok {
		return key, nil
	}
	return 0, fmt.Errorf("unknown hotkey key: %q", name)
}
