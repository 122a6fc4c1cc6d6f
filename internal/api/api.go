// Package api serves the settings REST endpoints behind the local
// settings page.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/tkanda-dev/KoeNote/internal/audio"
	"github.com/tkanda-dev/KoeNote/internal/config"
	"github.com/tkanda-dev/KoeNote/internal/hotkey"
)

// PermissionSource answers whether the system permissions the app
// needs are granted. Satisfied by permissions.Checker.
type PermissionSource interface {
	MicrophoneAuthorized() bool
	AccessibilityAuthorized() bool
}

// Handler manages API endpoints
type Handler struct {
	config          *config.Config
	configPath      string
	audioDriver     audio.Driver
	permissions     PermissionSource
	onHotkeyChanged func() error // Reloads the hotkey in the running app
}

// New creates a new API handler. configPath is where PUT /api/settings
// persists the configuration.
func New(cfg *config.Config, configPath string, onHotkeyChanged func() error) *Handler {
	return &Handler{
		config:          cfg,
		configPath:      configPath,
		onHotkeyChanged: onHotkeyChanged,
	}
}

// SetAudioDriver sets the audio driver used to enumerate devices.
// Called once the driver is initialized in main.
func (h *Handler) SetAudioDriver(driver audio.Driver) {
	h.audioDriver = driver
}

// SetPermissions sets the permission source backing /api/permissions
func (h *Handler) SetPermissions(perms PermissionSource) {
	h.permissions = perms
}

// RegisterRoutes registers all API routes on the given mux
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/settings", h.handleSettings)
	mux.HandleFunc("/api/hotkey/validate", h.handleHotkeyValidate)
	mux.HandleFunc("/api/hotkey/register", h.handleHotkeyRegister)
	mux.HandleFunc("/api/devices", h.handleDevices)
	mux.HandleFunc("/api/permissions", h.handlePermissions)
}

// handleSettings handles GET and PUT /api/settings
func (h *Handler) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.getSettings(w, r)
	case http.MethodPut:
		h.putSettings(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// getSettings returns the current configuration
func (h *Handler) getSettings(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.config)
}

// putSettings updates the configuration and persists it
func (h *Handler) putSettings(w http.ResponseWriter, r *http.Request) {
	var updates map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.config.Update(updates); err != nil {
		http.Error(w, fmt.Sprintf("Failed to update config: %v", err), http.StatusBadRequest)
		return
	}

	if err := h.config.Save(h.configPath); err != nil {
		http.Error(w, fmt.Sprintf("Failed to save config: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "success",
	})
}

// handleHotkeyValidate handles POST /api/hotkey/validate
func (h *Handler) handleHotkeyValidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var request config.HotkeyConfig
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	binding, err := hotkey.ParseBinding(request.Ctrl, request.Shift, request.Alt, request.Cmd, request.Key)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"valid":   false,
			"message": err.Error(),
		})
		return
	}

	conflictNames := []string{}
	for _, c := range hotkey.CheckConflicts(binding) {
		conflictNames = append(conflictNames, c.Name)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"valid":     true,
		"display":   binding.Format(),
		"conflicts": conflictNames,
	})
}

// handleHotkeyRegister handles POST /api/hotkey/register
func (h *Handler) handleHotkeyRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var request config.HotkeyConfig
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	// Reject combinations the hotkey layer cannot register
	if _, err := hotkey.ParseBinding(request.Ctrl, request.Shift, request.Alt, request.Cmd, request.Key); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.config.SetHotkey(request)

	if err := h.config.Save(h.configPath); err != nil {
		http.Error(w, fmt.Sprintf("Failed to save config: %v", err), http.StatusInternalServerError)
		return
	}

	// Reload the hotkey in the running application
	if h.onHotkeyChanged != nil {
		if err := h.onHotkeyChanged(); err != nil {
			// Config is already saved, so report partial success
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{
				"status":  "partial",
				"message": fmt.Sprintf("Hotkey saved but reload failed: %v. Please restart the application.", err),
			})
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "success",
		"message": "Hotkey registered and applied successfully",
	})
}

// Device represents an audio input device
type Device struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	IsDefault bool   `json:"is_default"`
	IsCurrent bool   `json:"is_current"`
}

// handleDevices handles GET /api/devices
func (h *Handler) handleDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	devices := h.listDevices()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"devices": devices,
	})
}

// listDevices enumerates input devices through the driver, falling
// back to a placeholder entry so the settings page always has
// something to show
func (h *Handler) listDevices() []Device {
	currentID := h.config.GetAudioDeviceID()

	driver := h.audioDriver
	if driver == nil {
		// Driver not wired yet (for example before the microphone
		// permission is granted); enumerate with a throwaway one
		temp, err := audio.NewPortAudioDriver()
		if err != nil {
			return []Device{{ID: -1, Name: "System Default", IsDefault: true, IsCurrent: currentID == -1}}
		}
		defer temp.Close()
		driver = temp
	}

	audioDevices, err := driver.ListDevices()
	if err != nil {
		return []Device{{ID: -1, Name: "System Default", IsDefault: true, IsCurrent: currentID == -1}}
	}

	devices := make([]Device, 0, len(audioDevices))
	for _, dev := range audioDevices {
		devices = append(devices, Device{
			ID:        dev.ID,
			Name:      dev.Name,
			IsDefault: dev.IsDefault,
			IsCurrent: dev.ID == currentID,
		})
	}
	return devices
}

// Permission represents a system permission status
type Permission struct {
	Granted bool `json:"granted"`
}

// handlePermissions handles GET /api/permissions
func (h *Handler) handlePermissions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]Permission{
		"microphone":    {Granted: false},
		"accessibility": {Granted: false},
	}
	if h.permissions != nil {
		response["microphone"] = Permission{Granted: h.permissions.MicrophoneAuthorized()}
		response["accessibility"] = Permission{Granted: h.permissions.AccessibilityAuthorized()}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}
