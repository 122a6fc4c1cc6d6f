package recording

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tkanda-dev/KoeNote/internal/audio"
)

// fakeDriver implements audio.Driver for tests. Chunks passed to Emit
// are delivered immediately; chunks queued in flushOnStop are delivered
// during Stop, mimicking the real driver's final flush.
type fakeDriver struct {
	mu          sync.Mutex
	onChunk     audio.ChunkFunc
	startErr    error
	stopErr     error
	contentType string
	flushOnStop [][]byte
	starts      int
	stops       int
	recording   bool
}

func (d *fakeDriver) ListDevices() ([]audio.Device, error) { return nil, nil }
func (d *fakeDriver) Initialize(audio.Config) error        { return nil }

func (d *fakeDriver) Start(onChunk audio.ChunkFunc) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.startErr != nil {
		return d.startErr
	}
	d.onChunk = onChunk
	d.recording = true
	d.starts++
	return nil
}

func (d *fakeDriver) Emit(chunk []byte) {
	d.mu.Lock()
	onChunk := d.onChunk
	d.mu.Unlock()
	if onChunk != nil {
		onChunk(chunk)
	}
}

func (d *fakeDriver) Stop() error {
	d.mu.Lock()
	onChunk := d.onChunk
	flush := d.flushOnStop
	d.recording = false
	d.stops++
	d.mu.Unlock()
	for _, chunk := range flush {
		if onChunk != nil {
			onChunk(chunk)
		}
	}
	return d.stopErr
}

func (d *fakeDriver) ContentType() string { return d.contentType }

func (d *fakeDriver) IsRecording() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.recording
}

func (d *fakeDriver) Close() error { return nil }

type fakeSettings struct {
	mu    sync.Mutex
	cfg   PipelineSettings
	reads int
}

func (f *fakeSettings) Pipeline() PipelineSettings {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	return f.cfg
}

func (f *fakeSettings) set(cfg PipelineSettings) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cfg = cfg
}

type fakeTranscriber struct {
	mu             sync.Mutex
	text           string
	err            error
	calls          int
	gotData        []byte
	gotContentType string
	gotModel       string
	block          chan struct{}
}

func (f *fakeTranscriber) Transcribe(_ context.Context, data []byte, contentType, model, _ string) (string, error) {
	f.mu.Lock()
	f.calls++
	f.gotData = data
	f.gotContentType = contentType
	f.gotModel = model
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	return f.text, f.err
}

type fakeComposer struct {
	mu             sync.Mutex
	note           string
	err            error
	calls          int
	gotTranscript  string
	gotInstruction string
	gotModel       string
}

func (f *fakeComposer) Compose(_ context.Context, transcript, instruction, model, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.gotTranscript = transcript
	f.gotInstruction = instruction
	f.gotModel = model
	return f.note, f.err
}

type fakeEditor struct {
	mu        sync.Mutex
	hasTarget bool
	err       error
	inserted  []string
}

func (f *fakeEditor) HasActiveTarget() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hasTarget
}

func (f *fakeEditor) InsertAtCursor(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.inserted = append(f.inserted, text)
	return nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (f *fakeNotifier) Notify(message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, message)
}

func (f *fakeNotifier) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.messages) == 0 {
		return ""
	}
	return f.messages[len(f.messages)-1]
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

type harness struct {
	driver      *fakeDriver
	settings    *fakeSettings
	transcriber *fakeTranscriber
	composer    *fakeComposer
	editor      *fakeEditor
	notifier    *fakeNotifier
	session     *Session
}

func newHarness() *harness {
	h := &harness{
		driver: &fakeDriver{contentType: "audio/wav"},
		settings: &fakeSettings{cfg: PipelineSettings{
			APIKey:          "sk-test",
			TranscribeModel: "whisper-1",
			NoteModel:       "gpt-4o-mini",
			NotePrompt:      "Turn the transcript into a note.",
		}},
		transcriber: &fakeTranscriber{text: "hello world"},
		composer:    &fakeComposer{note: "A note"},
		editor:      &fakeEditor{hasTarget: true},
		notifier:    &fakeNotifier{},
	}
	h.session = New(h.driver, h.settings, h.transcriber, h.composer,
		h.editor, h.notifier, nopLogger{}, Config{})
	return h
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state    State
		expected string
	}{
		{Idle, "Idle"},
		{Recording, "Recording"},
		{Processing, "Processing"},
		{State(99), "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if result := tt.state.String(); result != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, result)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.MaxDuration != 60*time.Second {
		t.Errorf("Expected MaxDuration 60s, got %v", config.MaxDuration)
	}
}

func TestToggleStartsRecording(t *testing.T) {
	h := newHarness()

	h.session.Toggle()

	if h.session.State() != Recording {
		t.Errorf("Expected state Recording, got %v", h.session.State())
	}
	if h.driver.starts != 1 {
		t.Errorf("Expected 1 driver start, got %d", h.driver.starts)
	}
	if h.notifier.last() != "Recording started" {
		t.Errorf("Expected recording notice, got %q", h.notifier.last())
	}
}

func TestToggleStartFailureStaysIdle(t *testing.T) {
	h := newHarness()
	h.driver.startErr = errors.New("no input device")

	h.session.Toggle()

	if h.session.State() != Idle {
		t.Errorf("Expected state Idle after start failure, got %v", h.session.State())
	}
	if !strings.Contains(h.notifier.last(), "No audio capture device available") {
		t.Errorf("Expected capture device notice, got %q", h.notifier.last())
	}
	if !strings.Contains(h.notifier.last(), "no input device") {
		t.Errorf("Expected notice to carry the driver error, got %q", h.notifier.last())
	}
}

func TestFullCycle(t *testing.T) {
	h := newHarness()

	h.session.Toggle()
	h.driver.Emit([]byte("aaa"))
	h.driver.Emit([]byte("bbb"))
	h.session.Toggle()
	h.session.Wait()

	if h.session.State() != Idle {
		t.Errorf("Expected state Idle after settle, got %v", h.session.State())
	}
	if h.driver.stops != 1 {
		t.Errorf("Expected 1 driver stop, got %d", h.driver.stops)
	}
	if !bytes.Equal(h.transcriber.gotData, []byte("aaabbb")) {
		t.Errorf("Expected chunks concatenated in order, got %q", h.transcriber.gotData)
	}
	if h.transcriber.gotContentType != "audio/wav" {
		t.Errorf("Expected content type audio/wav, got %q", h.transcriber.gotContentType)
	}
	if h.composer.gotTranscript != "hello world" {
		t.Errorf("Expected composer to receive the transcript, got %q", h.composer.gotTranscript)
	}
	if len(h.editor.inserted) != 1 {
		t.Fatalf("Expected 1 insertion, got %d", len(h.editor.inserted))
	}
	if h.editor.inserted[0] != "A note\n" {
		t.Errorf("Expected note with one trailing newline, got %q", h.editor.inserted[0])
	}
	if h.notifier.last() != "Note inserted at cursor" {
		t.Errorf("Expected success notice, got %q", h.notifier.last())
	}
}

func TestChunksFlushedDuringStopAreKept(t *testing.T) {
	h := newHarness()
	h.driver.flushOnStop = [][]byte{[]byte("final")}

	h.session.Toggle()
	h.driver.Emit([]byte("live-"))
	h.session.Toggle()
	h.session.Wait()

	if !bytes.Equal(h.transcriber.gotData, []byte("live-final")) {
		t.Errorf("Expected stop flush appended after live chunks, got %q", h.transcriber.gotData)
	}
}

func TestToggleWhileProcessingIsNoOp(t *testing.T) {
	h := newHarness()
	h.transcriber.block = make(chan struct{})

	h.session.Toggle()
	h.session.Toggle()

	if h.session.State() != Processing {
		t.Fatalf("Expected state Processing, got %v", h.session.State())
	}

	// A toggle while processing must not start a second attempt
	h.session.Toggle()

	if h.notifier.last() != "Still processing the previous recording" {
		t.Errorf("Expected still-processing notice, got %q", h.notifier.last())
	}
	if h.driver.starts != 1 {
		t.Errorf("Expected no second driver start, got %d", h.driver.starts)
	}

	close(h.transcriber.block)
	h.session.Wait()

	if h.transcriber.calls != 1 {
		t.Errorf("Expected exactly one pipeline attempt, got %d", h.transcriber.calls)
	}
	if h.session.State() != Idle {
		t.Errorf("Expected state Idle after settle, got %v", h.session.State())
	}
}

func TestStopIfRecording(t *testing.T) {
	h := newHarness()

	// No-op in Idle
	h.session.StopIfRecording()
	if h.driver.stops != 0 {
		t.Errorf("Expected no driver stop in Idle, got %d", h.driver.stops)
	}
	if h.session.State() != Idle {
		t.Errorf("Expected state Idle, got %v", h.session.State())
	}

	// Forces the stop transition while Recording
	h.transcriber.block = make(chan struct{})
	h.session.Toggle()
	h.session.StopIfRecording()

	if h.session.State() != Processing {
		t.Errorf("Expected state Processing, got %v", h.session.State())
	}

	// No-op while Processing
	h.session.StopIfRecording()
	if h.driver.stops != 1 {
		t.Errorf("Expected exactly one driver stop, got %d", h.driver.stops)
	}

	close(h.transcriber.block)
	h.session.Wait()

	if h.transcriber.calls != 1 {
		t.Errorf("Expected exactly one pipeline attempt, got %d", h.transcriber.calls)
	}
}

func TestTranscriptionFailureSettlesIdle(t *testing.T) {
	h := newHarness()
	h.transcriber.err = errors.New("API error 500: upstream exploded")
	h.transcriber.text = ""

	h.session.Toggle()
	h.session.Toggle()
	h.session.Wait()

	if h.session.State() != Idle {
		t.Errorf("Expected state Idle after failure, got %v", h.session.State())
	}
	if h.composer.calls != 0 {
		t.Errorf("Expected Stage B to be skipped after Stage A failure, got %d calls", h.composer.calls)
	}
	if !strings.Contains(h.notifier.last(), "upstream exploded") {
		t.Errorf("Expected notice to carry the failure detail, got %q", h.notifier.last())
	}
}

func TestCompositionFailureSettlesIdle(t *testing.T) {
	h := newHarness()
	h.composer.err = errors.New("API error 429: rate limited")
	h.composer.note = ""

	h.session.Toggle()
	h.session.Toggle()
	h.session.Wait()

	if h.session.State() != Idle {
		t.Errorf("Expected state Idle after failure, got %v", h.session.State())
	}
	if len(h.editor.inserted) != 0 {
		t.Errorf("Expected no insertion after Stage B failure, got %d", len(h.editor.inserted))
	}
	if !strings.Contains(h.notifier.last(), "rate limited") {
		t.Errorf("Expected notice to carry the failure detail, got %q", h.notifier.last())
	}
}

func TestNoActiveTarget(t *testing.T) {
	h := newHarness()
	h.editor.hasTarget = false

	h.session.Toggle()
	h.session.Toggle()
	h.session.Wait()

	if len(h.editor.inserted) != 0 {
		t.Errorf("Expected no insertion without a target, got %d", len(h.editor.inserted))
	}
	if h.notifier.last() != ErrNoActiveTarget.Error() {
		t.Errorf("Expected no-target notice, got %q", h.notifier.last())
	}
	if h.session.State() != Idle {
		t.Errorf("Expected state Idle, got %v", h.session.State())
	}
}

func TestMissingConfiguration(t *testing.T) {
	tests := []struct {
		name string
		cfg  PipelineSettings
		want error
	}{
		{
			name: "missing API key",
			cfg:  PipelineSettings{TranscribeModel: "whisper-1", NoteModel: "gpt-4o-mini"},
			want: ErrMissingAPIKey,
		},
		{
			name: "missing transcription model",
			cfg:  PipelineSettings{APIKey: "sk-test", NoteModel: "gpt-4o-mini"},
			want: ErrMissingTranscribeModel,
		},
		{
			name: "missing note model",
			cfg:  PipelineSettings{APIKey: "sk-test", TranscribeModel: "whisper-1"},
			want: ErrMissingNoteModel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			h.settings.set(tt.cfg)

			h.session.Toggle()
			h.session.Toggle()
			h.session.Wait()

			if h.transcriber.calls != 0 {
				t.Errorf("Expected no remote call, got %d", h.transcriber.calls)
			}
			if h.notifier.last() != tt.want.Error() {
				t.Errorf("Expected notice %q, got %q", tt.want.Error(), h.notifier.last())
			}
			if h.session.State() != Idle {
				t.Errorf("Expected state Idle, got %v", h.session.State())
			}
		})
	}
}

func TestContentTypeFallback(t *testing.T) {
	h := newHarness()
	h.driver.contentType = ""

	h.session.Toggle()
	h.session.Toggle()
	h.session.Wait()

	if h.transcriber.gotContentType != "audio/webm" {
		t.Errorf("Expected fallback content type audio/webm, got %q", h.transcriber.gotContentType)
	}
}

func TestTrailingNewlineAlwaysAppended(t *testing.T) {
	h := newHarness()
	h.composer.note = "Title\n- point"

	h.session.Toggle()
	h.session.Toggle()
	h.session.Wait()

	if len(h.editor.inserted) != 1 {
		t.Fatalf("Expected 1 insertion, got %d", len(h.editor.inserted))
	}
	if h.editor.inserted[0] != "Title\n- point\n" {
		t.Errorf("Expected exactly one appended newline, got %q", h.editor.inserted[0])
	}
}

func TestZeroChunksStillRunsStageA(t *testing.T) {
	h := newHarness()
	h.transcriber.err = errors.New("API error 400: audio too short")
	h.transcriber.text = ""

	h.session.Toggle()
	h.session.Toggle()
	h.session.Wait()

	if h.transcriber.calls != 1 {
		t.Fatalf("Expected Stage A to run with an empty payload, got %d calls", h.transcriber.calls)
	}
	if len(h.transcriber.gotData) != 0 {
		t.Errorf("Expected empty payload, got %d bytes", len(h.transcriber.gotData))
	}
	if h.session.State() != Idle {
		t.Errorf("Expected state Idle, got %v", h.session.State())
	}
}

func TestSettingsReadPerCycle(t *testing.T) {
	h := newHarness()

	h.session.Toggle()
	h.session.Toggle()
	h.session.Wait()

	if h.transcriber.gotModel != "whisper-1" {
		t.Errorf("Expected whisper-1 on first cycle, got %q", h.transcriber.gotModel)
	}

	// Settings edited between recordings take effect immediately
	h.settings.set(PipelineSettings{
		APIKey:          "sk-test",
		TranscribeModel: "whisper-2",
		NoteModel:       "gpt-4o",
		NotePrompt:      "Different prompt.",
	})

	h.session.Toggle()
	h.session.Toggle()
	h.session.Wait()

	if h.transcriber.gotModel != "whisper-2" {
		t.Errorf("Expected whisper-2 on second cycle, got %q", h.transcriber.gotModel)
	}
	if h.composer.gotModel != "gpt-4o" {
		t.Errorf("Expected gpt-4o on second cycle, got %q", h.composer.gotModel)
	}
	if h.settings.reads != 2 {
		t.Errorf("Expected one settings read per cycle, got %d", h.settings.reads)
	}
}

func TestBufferClearedBetweenCycles(t *testing.T) {
	h := newHarness()

	h.session.Toggle()
	h.driver.Emit([]byte("first"))
	h.session.Toggle()
	h.session.Wait()

	h.session.Toggle()
	h.driver.Emit([]byte("second"))
	h.session.Toggle()
	h.session.Wait()

	if !bytes.Equal(h.transcriber.gotData, []byte("second")) {
		t.Errorf("Expected only the second recording's audio, got %q", h.transcriber.gotData)
	}
}

func TestStateChangeObserver(t *testing.T) {
	h := newHarness()

	var mu sync.Mutex
	var seen []State
	h.session.OnStateChange(func(s State) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})

	h.session.Toggle()
	h.session.Toggle()
	h.session.Wait()

	mu.Lock()
	defer mu.Unlock()
	want := []State{Recording, Processing, Idle}
	if len(seen) != len(want) {
		t.Fatalf("Expected %d transitions, got %d (%v)", len(want), len(seen), seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("Transition %d: expected %v, got %v", i, want[i], seen[i])
		}
	}
}

func TestDriverStopErrorStillRunsAttempt(t *testing.T) {
	h := newHarness()
	h.driver.stopErr = errors.New("stream already gone")

	h.session.Toggle()
	h.session.Toggle()
	h.session.Wait()

	if h.transcriber.calls != 1 {
		t.Errorf("Expected attempt to run despite stop error, got %d calls", h.transcriber.calls)
	}
	if h.session.State() != Idle {
		t.Errorf("Expected state Idle, got %v", h.session.State())
	}
}

func TestMaxDurationAutoStop(t *testing.T) {
	h := newHarness()
	h.session.maxDuration = 20 * time.Millisecond

	h.session.Toggle()

	deadline := time.Now().Add(2 * time.Second)
	for h.session.State() != Idle && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	h.session.Wait()

	if h.session.State() != Idle {
		t.Fatalf("Expected auto-stop to settle back to Idle, got %v", h.session.State())
	}
	if h.driver.stops != 1 {
		t.Errorf("Expected 1 driver stop from auto-stop, got %d", h.driver.stops)
	}
	if h.transcriber.calls != 1 {
		t.Errorf("Expected 1 pipeline attempt from auto-stop, got %d", h.transcriber.calls)
	}
}
