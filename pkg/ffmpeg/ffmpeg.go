package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// FFmpeg wraps ffmpeg and ffprobe functionality
type FFmpeg struct {
	ffmpegPath  string
	ffprobePath string
	timeout     time.Duration
}

// New creates a new FFmpeg instance
func New(ffmpegPath, ffprobePath string, timeout time.Duration) *FFmpeg {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFmpeg{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		timeout:     timeout,
	}
}

// ValidateBinaries checks if ffmpeg and ffprobe are available
func (f *FFmpeg) ValidateBinaries() error {
	if _, err := exec.LookPath(f.ffmpegPath); err != nil {
		return fmt.Errorf("%w: %s", ErrFFmpegNotFound, f.ffmpegPath)
	}

	if _, err := exec.LookPath(f.ffprobePath); err != nil {
		return fmt.Errorf("%w: %s", ErrFFprobeNotFound, f.ffprobePath)
	}

	return nil
}

// ConvertToWAV resamples input into the 16 kHz mono PCM WAV whisper.cpp expects
func (f *FFmpeg) ConvertToWAV(ctx context.Context, input, output string, options ConversionOptions) error {
	if _, err := os.Stat(input); err != nil {
		return NewProcessingError(OpConvert, input, err, "")
	}
	if err := os.MkdirAll(filepath.Dir(output), 0755); err != nil {
		return NewProcessingError(OpConvert, input, ErrTempFileCreation, err.Error())
	}

	if options.SampleRate <= 0 {
		options.SampleRate = DefaultConversionOptions().SampleRate
	}
	if options.Channels <= 0 {
		options.Channels = DefaultConversionOptions().Channels
	}

	ctx, cancel := f.withTimeout(ctx)
	defer cancel()

	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "error",
		"-i", input,
		"-ar", fmt.Sprintf("%d", options.SampleRate),
		"-ac", fmt.Sprintf("%d", options.Channels),
		"-c:a", "pcm_s16le",
		"-y", // Overwrite output
		output,
	}

	cmd := exec.CommandContext(ctx, f.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return NewProcessingError(OpConvert, input, ErrProcessingTimeout, stderr.String())
		}
		return NewProcessingError(OpConvert, input, err, stderr.String())
	}

	return nil
}

// Duration returns the length of an audio file in seconds
func (f *FFmpeg) Duration(ctx context.Context, filePath string) (float64, error) {
	metadata, err := f.GetMetadata(ctx, filePath)
	if err != nil {
		return 0, err
	}
	return metadata.Duration, nil
}

func (f *FFmpeg) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if f.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, f.timeout)
}
