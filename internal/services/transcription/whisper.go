package transcription

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/killallgit/voxlog/pkg/command"
	"github.com/killallgit/voxlog/pkg/ffmpeg"
)

// AudioConverter produces the WAV input whisper.cpp reads
type AudioConverter interface {
	ConvertToWAV(ctx context.Context, input, output string, options ffmpeg.ConversionOptions) error
}

// WhisperConfig configures the whisper.cpp CLI backend
type WhisperConfig struct {
	BinaryPath string
	ModelPath  string
	Language   string
	Threads    int
	Timeout    time.Duration
	TempDir    string
}

// WhisperBackend transcribes clips with the whisper.cpp command line tool
type WhisperBackend struct {
	cfg       WhisperConfig
	converter AudioConverter
	runner    command.Runner
}

// NewWhisperBackend resolves the whisper binary and returns a backend
func NewWhisperBackend(cfg WhisperConfig, converter AudioConverter, runner command.Runner) *WhisperBackend {
	if cfg.BinaryPath == "" {
		// Default to whisper-cli (homebrew) or the main binary of a whisper.cpp build
		cfg.BinaryPath = "whisper-cli"
		if _, err := exec.LookPath(cfg.BinaryPath); err != nil {
			cfg.BinaryPath = "main"
		}
	}
	if cfg.Language == "" {
		cfg.Language = "auto"
	}
	if cfg.Threads <= 0 {
		cfg.Threads = 4
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	if runner == nil {
		runner = command.ExecRunner{}
	}

	return &WhisperBackend{
		cfg:       cfg,
		converter: converter,
		runner:    runner,
	}
}

// IsReady reports whether the binary and model are both present
func (w *WhisperBackend) IsReady() bool {
	if _, err := exec.LookPath(w.cfg.BinaryPath); err != nil {
		return false
	}
	info, err := os.Stat(w.cfg.ModelPath)
	return err == nil && !info.IsDir()
}

// Transcribe converts the clip to WAV and runs whisper.cpp on it
func (w *WhisperBackend) Transcribe(ctx context.Context, audioPath string) (*Result, error) {
	if w.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.cfg.Timeout)
		defer cancel()
	}

	workDir, err := os.MkdirTemp(w.cfg.TempDir, "whisper_*")
	if err != nil {
		return nil, fmt.Errorf("creating work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	wavPath := filepath.Join(workDir, "input.wav")
	if err := w.converter.ConvertToWAV(ctx, audioPath, wavPath, ffmpeg.DefaultConversionOptions()); err != nil {
		return &Result{Success: false, Error: fmt.Sprintf("audio conversion failed: %v", err)}, nil
	}

	outBase := filepath.Join(workDir, "transcript")
	args := []string{
		"-m", w.cfg.ModelPath,
		"-f", wavPath,
		"-l", w.cfg.Language,
		"-t", strconv.Itoa(w.cfg.Threads),
		"-otxt", // output as text
		"-of", outBase,
		"-nt", // no timestamps
		"-np", // no progress prints
	}

	res, runErr := w.runner.Run(ctx, w.cfg.BinaryPath, args...)
	if runErr != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("whisper interrupted: %w", ctx.Err())
		}
		log.Printf("[ERROR] Whisper command failed (exit %d): %v", res.ExitCode, runErr)
		return &Result{
			Success: false,
			Error:   fmt.Sprintf("whisper exited with code %d: %s", res.ExitCode, command.Tail(res.Stderr, 300)),
		}, nil
	}

	text := res.Stdout
	if data, err := os.ReadFile(outBase + ".txt"); err == nil {
		text = string(data)
	}

	return &Result{Success: true, Text: cleanTranscript(text)}, nil
}

// cleanTranscript joins whisper's segment lines into paragraphs of plain text
func cleanTranscript(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || line == "[BLANK_AUDIO]" {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, " ")
}
