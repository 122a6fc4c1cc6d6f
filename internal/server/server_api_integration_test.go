package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/tkanda-dev/KoeNote/internal/api"
	"github.com/tkanda-dev/KoeNote/internal/config"
)

// TestServerAPIIntegration wires the API handler onto the server the
// same way main does: register routes on Mux() before Start.
func TestServerAPIIntegration(t *testing.T) {
	serverConfig := DefaultConfig()
	serverConfig.Port = 0
	server := New(serverConfig)

	appConfig := config.DefaultConfig()
	configPath := filepath.Join(t.TempDir(), "config.json")
	apiHandler := api.New(appConfig, configPath, nil)
	apiHandler.RegisterRoutes(server.Mux())

	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	defer server.Stop()

	time.Sleep(100 * time.Millisecond)

	url := server.URL() + "/api/settings"
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("Failed to make request to API: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var settings config.Config
	if err := json.NewDecoder(resp.Body).Decode(&settings); err != nil {
		t.Errorf("Failed to decode settings response: %v", err)
	}
	if settings.TranscribeModel != "whisper-1" {
		t.Errorf("Expected default transcribe model, got '%s'", settings.TranscribeModel)
	}

	// PUT travels through the same stack and lands in the config
	updates := map[string]interface{}{
		"note_model": "gpt-5-mini",
	}
	bodyBytes, _ := json.Marshal(updates)
	putReq, err := http.NewRequest(http.MethodPut, url, bytes.NewReader(bodyBytes))
	if err != nil {
		t.Fatalf("Failed to create PUT request: %v", err)
	}
	putReq.Header.Set("Content-Type", "application/json")

	resp2, err := http.DefaultClient.Do(putReq)
	if err != nil {
		t.Fatalf("Failed to execute PUT request: %v", err)
	}
	defer resp2.Body.Close()

	if resp2.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200 for PUT, got %d", resp2.StatusCode)
	}
	if appConfig.NoteModel != "gpt-5-mini" {
		t.Errorf("Expected NoteModel update to apply, got '%s'", appConfig.NoteModel)
	}
}
