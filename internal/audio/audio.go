package audio

// Device represents an audio input device
type Device struct {
	ID        int
	Name      string
	IsDefault bool
}

// LatencyMode defines the latency priority
type LatencyMode int

const (
	// LowLatency prioritizes low latency (real-time)
	LowLatency LatencyMode = iota
	// HighStability prioritizes stability (larger buffer)
	HighStability
)

// Config holds audio configuration
type Config struct {
	DeviceID   int
	SampleRate int
	Channels   int
	Latency    LatencyMode
}

// DefaultConfig returns the default audio configuration
// Sample rate: 16kHz (recommended for speech-to-text)
// Channels: 1 (mono)
// Latency: HighStability
func DefaultConfig() Config {
	return Config{
		DeviceID:   -1, // -1 means use default device
		SampleRate: 16000,
		Channels:   1,
		Latency:    HighStability,
	}
}

// ChunkFunc receives captured audio chunks in event-arrival order.
// Chunks are only delivered between Start and the return of Stop.
type ChunkFunc func(chunk []byte)

// Driver is the interface for audio capture hardware.
// At most one capture stream is live per driver. Start acquires the
// stream; Stop releases it and flushes any remaining audio through the
// chunk callback before returning, so the caller sees a complete,
// ordered sequence of chunks once Stop has returned.
type Driver interface {
	// ListDevices returns a list of available audio input devices
	ListDevices() ([]Device, error)

	// Initialize initializes the driver with the given configuration
	Initialize(config Config) error

	// Start acquires the hardware stream and begins delivering chunks
	Start(onChunk ChunkFunc) error

	// Stop releases the hardware stream and flushes buffered audio
	Stop() error

	// ContentType returns the MIME type of the audio the driver
	// delivers, or "" if the driver cannot tell
	ContentType() string

	// IsRecording returns whether a capture stream is currently live
	IsRecording() bool

	// Close releases all resources
	Close() error
}
