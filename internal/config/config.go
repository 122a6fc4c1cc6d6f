package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/tkanda-dev/KoeNote/internal/recording"
)

// Config holds application configuration
type Config struct {
	APIKey          string       `json:"api_key"`
	TranscribeModel string       `json:"transcribe_model"`
	NoteModel       string       `json:"note_model"`
	NotePrompt      string       `json:"note_prompt"`
	Hotkey          HotkeyConfig `json:"hotkey"`
	AudioDeviceID   int          `json:"audio_device_id"`
	MaxRecordTime   int          `json:"max_record_time"` // seconds
	mu              sync.RWMutex
}

// HotkeyConfig holds hotkey configuration
type HotkeyConfig struct {
	Ctrl  bool   `json:"ctrl"`
	Shift bool   `json:"shift"`
	Alt   bool   `json:"alt"`
	Cmd   bool   `json:"cmd"`
	Key   string `json:"key"` // e.g., "Space"
}

// defaultNotePrompt is the built-in note composition instruction used
// until the user writes their own.
const defaultNotePrompt = "You turn raw voice transcripts into concise, well-structured notes. " +
	"Start with a short title line, then bullet points. Keep the speaker's language and wording " +
	"where possible and do not invent content that is not in the transcript."

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		TranscribeModel: "whisper-1",
		NoteModel:       "gpt-4o-mini",
		NotePrompt:      defaultNotePrompt,
		Hotkey: HotkeyConfig{
			Ctrl: true,
			Alt:  true,
			Key:  "Space",
		},
		AudioDeviceID: -1, // -1 means use system default device
		MaxRecordTime: 60, // 60 seconds
	}
}

// Load loads configuration from the specified path
func Load(path string) (*Config, error) {
	// If file doesn't exist, return default config
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Backfill anything an older or hand-edited file left out
	if config.Hotkey.Key == "" {
		config.Hotkey.Key = "Space"
	}
	if config.TranscribeModel == "" {
		config.TranscribeModel = "whisper-1"
	}
	if config.NoteModel == "" {
		config.NoteModel = "gpt-4o-mini"
	}
	if config.NotePrompt == "" {
		config.NotePrompt = defaultNotePrompt
	}
	if config.MaxRecordTime == 0 {
		config.MaxRecordTime = 60
	}

	return &config, nil
}

// Save saves configuration to the specified path
func (c *Config) Save(path string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Pipeline returns the settings snapshot one pipeline attempt runs
// with. The session reads this at the start of every stop-and-process
// cycle, so edits apply from the next recording on.
func (c *Config) Pipeline() recording.PipelineSettings {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return recording.PipelineSettings{
		APIKey:          c.APIKey,
		TranscribeModel: c.TranscribeModel,
		NoteModel:       c.NoteModel,
		NotePrompt:      c.NotePrompt,
	}
}

// Update updates configuration fields
func (c *Config) Update(updates map[string]interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, value := range updates {
		switch key {
		case "api_key":
			if v, ok := value.(string); ok {
				c.APIKey = v
			}
		case "transcribe_model":
			if v, ok := value.(string); ok {
				if v == "" {
					return fmt.Errorf("transcribe_model cannot be empty")
				}
				c.TranscribeModel = v
			}
		case "note_model":
			if v, ok := value.(string); ok {
				if v == "" {
					return fmt.Errorf("note_model cannot be empty")
				}
				c.NoteModel = v
			}
		case "note_prompt":
			if v, ok := value.(string); ok {
				c.NotePrompt = v
			}
		case "audio_device_id":
			if v, ok := value.(float64); ok {
				c.AudioDeviceID = int(v)
			}
		case "max_record_time":
			if v, ok := value.(float64); ok {
				if v <= 0 || v > 300 {
					return fmt.Errorf("invalid max_record_time: %v (must be between 1 and 300 seconds)", v)
				}
				c.MaxRecordTime = int(v)
			}
		case "hotkey":
			if v, ok := value.(map[string]interface{}); ok {
				if ctrl, ok := v["ctrl"].(bool); ok {
					c.Hotkey.Ctrl = ctrl
				}
				if shift, ok := v["shift"].(bool); ok {
					c.Hotkey.Shift = shift
				}
				if alt, ok := v["alt"].(bool); ok {
					c.Hotkey.Alt = alt
				}
				if cmd, ok := v["cmd"].(bool); ok {
					c.Hotkey.Cmd = cmd
				}
				if key, ok := v["key"].(string); ok {
					c.Hotkey.Key = key
				}
			}
		}
	}

	return nil
}

// Validate validates all configuration fields
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.TranscribeModel == "" {
		return fmt.Errorf("transcribe_model cannot be empty")
	}

	if c.NoteModel == "" {
		return fmt.Errorf("note_model cannot be empty")
	}

	if c.MaxRecordTime <= 0 || c.MaxRecordTime > 300 {
		return fmt.Errorf("invalid max_record_time: %d (must be between 1 and 300 seconds)", c.MaxRecordTime)
	}

	// API key may be empty here; the pipeline reports it to the user
	// the first time they actually try to record

	return nil
}

// GetHotkey returns a copy of the hotkey configuration
func (c *Config) GetHotkey() HotkeyConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Hotkey
}

// SetHotkey replaces the hotkey configuration
func (c *Config) SetHotkey(hk HotkeyConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Hotkey = hk
}

// GetAudioDeviceID returns the configured audio input device ID
func (c *Config) GetAudioDeviceID() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.AudioDeviceID
}

// GetMaxRecordTime returns the auto-stop limit in seconds
func (c *Config) GetMaxRecordTime() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.MaxRecordTime
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, "Library", "Application Support", "KoeNote", "config.json")
}
