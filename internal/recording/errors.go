package recording

import "errors"

// ErrMissingAPIKey indicates no API credential is configured.
var ErrMissingAPIKey = errors.New("API key is not configured")

// ErrMissingTranscribeModel indicates no transcription model is configured.
var ErrMissingTranscribeModel = errors.New("transcription model is not configured")

// ErrMissingNoteModel indicates no note composition model is configured.
var ErrMissingNoteModel = errors.New("note model is not configured")

// ErrNoActiveTarget indicates there is nowhere to insert the note.
var ErrNoActiveTarget = errors.New("no active editable target to insert the note into")
