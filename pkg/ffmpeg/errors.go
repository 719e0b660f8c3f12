package ffmpeg

import (
	"errors"
	"fmt"
)

// Common errors
var (
	ErrFFmpegNotFound    = errors.New("ffmpeg binary not found")
	ErrFFprobeNotFound   = errors.New("ffprobe binary not found")
	ErrInvalidAudioFile  = errors.New("invalid or unsupported audio file")
	ErrProcessingTimeout = errors.New("audio processing timeout")
	ErrTempFileCreation  = errors.New("failed to create temporary file")
)

// Operations reported in ProcessingError
const (
	OpConvert  = "wav_conversion"
	OpProbe    = "metadata_extraction"
	OpParse    = "metadata_parsing"
	OpValidate = "metadata_validation"
)

// ProcessingError wraps a failed ffmpeg or ffprobe run on one voice clip
type ProcessingError struct {
	Operation string // one of the Op constants
	File      string // clip path
	Err       error
	Stderr    string // tool output, kept for the session error log
}

func (e *ProcessingError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("ffmpeg %s failed for %s: %v (stderr: %s)", e.Operation, e.File, e.Err, e.Stderr)
	}
	return fmt.Sprintf("ffmpeg %s failed for %s: %v", e.Operation, e.File, e.Err)
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// NewProcessingError creates a new ProcessingError
func NewProcessingError(operation, file string, err error, stderr string) *ProcessingError {
	return &ProcessingError{
		Operation: operation,
		File:      file,
		Err:       err,
		Stderr:    stderr,
	}
}
