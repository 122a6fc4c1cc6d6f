package recording

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tkanda-dev/KoeNote/internal/audio"
)

// State represents the current recording state
type State int

const (
	// Idle means not recording
	Idle State = iota
	// Recording means currently capturing audio
	Recording
	// Processing means a pipeline attempt is in flight
	Processing
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Recording:
		return "Recording"
	case Processing:
		return "Processing"
	default:
		return "Unknown"
	}
}

// defaultContentType is assumed when the capture driver cannot tell
// what it produced. Fixed, not configurable.
const defaultContentType = "audio/webm"

// Payload is the finalized audio produced by one recording: the
// captured chunks concatenated in arrival order plus their declared
// content type. Exactly one payload exists per pipeline attempt.
type Payload struct {
	Data        []byte
	ContentType string
}

// PipelineSettings is the settings snapshot a pipeline attempt runs
// with. It is re-read from the settings source at the start of every
// stop-and-process cycle so that edits take effect on the next attempt.
type PipelineSettings struct {
	APIKey          string
	TranscribeModel string
	NoteModel       string
	NotePrompt      string
}

// SettingsSource provides pipeline settings. Implementations must be
// safe for concurrent reads; the session never writes through it.
type SettingsSource interface {
	Pipeline() PipelineSettings
}

// Transcriber converts a finalized audio payload to text
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, contentType, model, apiKey string) (string, error)
}

// Composer turns a transcript into note text
type Composer interface {
	Compose(ctx context.Context, transcript, instruction, model, apiKey string) (string, error)
}

// Editor is the host document surface notes are delivered to
type Editor interface {
	HasActiveTarget() bool
	InsertAtCursor(text string) error
}

// Notifier delivers one-way user messages
type Notifier interface {
	Notify(message string)
}

// Logger is the subset of the file logger the session uses
type Logger interface {
	Debug(format string, v ...interface{})
	Info(format string, v ...interface{})
	Warn(format string, v ...interface{})
	Error(format string, v ...interface{})
}

// Config holds session configuration
type Config struct {
	MaxDuration time.Duration
}

// DefaultConfig returns the default session configuration
func DefaultConfig() Config {
	return Config{
		MaxDuration: 60 * time.Second,
	}
}

// Session owns the recording state machine and the two-stage pipeline.
// All state mutations are serialized through one mutex; the observable
// states are Idle -> Recording -> Processing -> Idle, repeatedly. At
// most one chunk buffer and one live capture stream exist at any time,
// and at most one pipeline attempt is in flight.
type Session struct {
	driver      audio.Driver
	settings    SettingsSource
	transcriber Transcriber
	composer    Composer
	editor      Editor
	notifier    Notifier
	log         Logger
	maxDuration time.Duration

	mu        sync.Mutex
	state     State
	capturing bool
	chunks    [][]byte
	stopTimer *time.Timer
	observers []func(State)
	wg        sync.WaitGroup
}

// New creates a new recording session
func New(driver audio.Driver, settings SettingsSource, transcriber Transcriber,
	composer Composer, editor Editor, notifier Notifier, log Logger, config Config) *Session {
	return &Session{
		driver:      driver,
		settings:    settings,
		transcriber: transcriber,
		composer:    composer,
		editor:      editor,
		notifier:    notifier,
		log:         log,
		maxDuration: config.MaxDuration,
		state:       Idle,
	}
}

// OnStateChange registers an observer called synchronously on every
// state transition, including the settle back to Idle
func (s *Session) OnStateChange(fn func(State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// State returns the current recording state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Toggle drives the state machine: Idle starts a recording, Recording
// stops it and launches the pipeline attempt, Processing is a no-op
// apart from a user notice
func (s *Session) Toggle() {
	s.mu.Lock()

	switch s.state {
	case Idle:
		s.startLocked()
	case Recording:
		s.finishRecordingLocked()
	case Processing:
		s.mu.Unlock()
		s.log.Info("toggle ignored: previous attempt still processing")
		s.notifier.Notify("Still processing the previous recording")
	}
}

// StopIfRecording forces the Recording -> Processing transition when a
// recording is active. It is a no-op in Idle and Processing, so it can
// never launch a second pipeline attempt nor interrupt one in flight.
// Used on teardown and by the auto-stop timer.
func (s *Session) StopIfRecording() {
	s.mu.Lock()

	if s.state != Recording {
		s.mu.Unlock()
		return
	}
	s.finishRecordingLocked()
}

// Wait blocks until any in-flight pipeline attempt has settled
func (s *Session) Wait() {
	s.wg.Wait()
}

// startLocked handles Idle -> Recording. Called with the mutex held;
// releases it before returning.
func (s *Session) startLocked() {
	// A new recording discards anything left over from an earlier one
	s.chunks = nil
	s.capturing = true

	if err := s.driver.Start(s.appendChunk); err != nil {
		s.capturing = false
		s.mu.Unlock()
		s.log.Error("failed to acquire capture device: %v", err)
		s.notifier.Notify(fmt.Sprintf("No audio capture device available: %v", err))
		return
	}

	s.state = Recording
	if s.maxDuration > 0 {
		s.stopTimer = time.AfterFunc(s.maxDuration, s.StopIfRecording)
	}
	s.mu.Unlock()

	s.emitState(Recording)
	s.log.Info("recording started")
	s.notifier.Notify("Recording started")
}

// finishRecordingLocked handles Recording -> Processing. Called with
// the mutex held; releases it before returning. The driver stop and
// the final chunk flush happen outside the lock because the flush
// re-enters appendChunk.
func (s *Session) finishRecordingLocked() {
	if s.stopTimer != nil {
		s.stopTimer.Stop()
		s.stopTimer = nil
	}
	s.state = Processing
	s.mu.Unlock()

	s.emitState(Processing)

	stopErr := s.driver.Stop()

	s.mu.Lock()
	s.capturing = false
	payload := s.finalizeLocked()
	attemptID := uuid.NewString()
	s.wg.Add(1)
	s.mu.Unlock()

	if stopErr != nil {
		// The attempt still runs with whatever was flushed; an empty
		// payload fails at Stage A rather than here
		s.log.Error("failed to release capture stream: %v", stopErr)
	}
	s.log.Info("attempt %s: recording stopped, %d bytes captured", attemptID, len(payload.Data))

	go s.process(attemptID, payload)
}

// appendChunk buffers captured audio in event-arrival order. Chunks
// are accepted from driver start until the stop flush has completed.
func (s *Session) appendChunk(chunk []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.capturing {
		return
	}
	buf := make([]byte, len(chunk))
	copy(buf, chunk)
	s.chunks = append(s.chunks, buf)
}

// finalizeLocked concatenates the buffered chunks into one payload and
// clears the buffer. Called with the mutex held.
func (s *Session) finalizeLocked() Payload {
	size := 0
	for _, c := range s.chunks {
		size += len(c)
	}
	data := make([]byte, 0, size)
	for _, c := range s.chunks {
		data = append(data, c...)
	}
	s.chunks = nil

	contentType := s.driver.ContentType()
	if contentType == "" {
		contentType = defaultContentType
	}

	return Payload{Data: data, ContentType: contentType}
}

// process runs one pipeline attempt and settles the machine back to
// Idle. The settle is deferred so it happens identically on success,
// failure and panic: state Idle, buffer empty, observers told.
func (s *Session) process(attemptID string, payload Payload) {
	defer s.wg.Done()

	var err error
	defer func() {
		s.mu.Lock()
		s.chunks = nil
		s.state = Idle
		s.mu.Unlock()
		s.emitState(Idle)

		if err != nil {
			s.log.Error("attempt %s failed: %v", attemptID, err)
			s.notifier.Notify(err.Error())
		} else {
			s.log.Info("attempt %s: note inserted", attemptID)
			s.notifier.Notify("Note inserted at cursor")
		}
	}()

	err = s.attempt(attemptID, payload)
}

// attempt is one full Stage A + Stage B + delivery run. There are no
// retries and no mid-attempt cancellation; the first failure aborts
// the whole attempt.
func (s *Session) attempt(attemptID string, payload Payload) error {
	ctx := context.Background()

	// Settings are read once per cycle, never cached across cycles
	cfg := s.settings.Pipeline()
	if cfg.APIKey == "" {
		return ErrMissingAPIKey
	}
	if cfg.TranscribeModel == "" {
		return ErrMissingTranscribeModel
	}
	if cfg.NoteModel == "" {
		return ErrMissingNoteModel
	}

	transcript, err := s.transcriber.Transcribe(ctx, payload.Data, payload.ContentType, cfg.TranscribeModel, cfg.APIKey)
	if err != nil {
		return fmt.Errorf("transcription failed: %w", err)
	}
	s.log.Debug("attempt %s: transcript %d chars", attemptID, len(transcript))

	note, err := s.composer.Compose(ctx, transcript, cfg.NotePrompt, cfg.NoteModel, cfg.APIKey)
	if err != nil {
		return fmt.Errorf("note composition failed: %w", err)
	}
	s.log.Debug("attempt %s: note %d chars", attemptID, len(note))

	if !s.editor.HasActiveTarget() {
		return ErrNoActiveTarget
	}
	if err := s.editor.InsertAtCursor(note + "\n"); err != nil {
		return fmt.Errorf("failed to insert note: %w", err)
	}

	return nil
}

// emitState calls the registered observers outside the mutex so they
// may call back into the session
func (s *Session) emitState(state State) {
	s.mu.Lock()
	observers := make([]func(State), len(s.observers))
	copy(observers, s.observers)
	s.mu.Unlock()

	for _, fn := range observers {
		fn(state)
	}
}
