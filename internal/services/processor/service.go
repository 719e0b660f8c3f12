package processor

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/killallgit/voxlog/internal/models"
	"github.com/killallgit/voxlog/internal/services/sessions"
	"github.com/killallgit/voxlog/pkg/command"
	apperrors "github.com/killallgit/voxlog/pkg/errors"
)

const (
	// ConsolidatedFilename is the pipeline input written into the session directory
	ConsolidatedFilename = "consolidated_transcript.txt"
	// OutputDirname is where the pipeline writes its artifacts inside the session directory
	OutputDirname = "output"
)

// Service bridges transcribed sessions into the external narrative pipeline
type Service interface {
	ConsolidateTranscripts(ctx context.Context, session *models.Session) (string, error)
	Process(ctx context.Context, session *models.Session, provider string) (string, error)
	ListOutputs(session *models.Session) ([]string, error)
	DefaultProvider() string
}

// Config configures the pipeline invocation
type Config struct {
	PipelineCommand string
	DefaultProvider string
	Timeout         time.Duration
}

type service struct {
	layout sessions.Layout
	cfg    Config
	runner command.Runner
}

// NewService creates a new processor
func NewService(layout sessions.Layout, cfg Config, runner command.Runner) Service {
	if runner == nil {
		runner = command.ExecRunner{}
	}
	return &service{
		layout: layout,
		cfg:    cfg,
		runner: runner,
	}
}

func (s *service) DefaultProvider() string {
	return s.cfg.DefaultProvider
}

// ConsolidateTranscripts writes every successful transcript, in sequence order, into one file
func (s *service) ConsolidateTranscripts(ctx context.Context, session *models.Session) (string, error) {
	entries := append([]models.AudioEntry(nil), session.AudioEntries...)
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Sequence < entries[j].Sequence
	})

	var b strings.Builder
	fmt.Fprintf(&b, "Session: %s\n", session.ID)
	if session.IntelligibleName != "" {
		fmt.Fprintf(&b, "Name: %s\n", session.IntelligibleName)
	}
	fmt.Fprintf(&b, "Created: %s\n", session.CreatedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Audio files: %d\n", len(entries))

	for _, entry := range entries {
		if entry.TranscriptFilename == "" {
			continue
		}
		data, err := os.ReadFile(s.layout.TranscriptPath(session.ID, entry.TranscriptFilename))
		if err != nil {
			return "", apperrors.StorageError("read transcript", err).
				WithDetail("session_id", session.ID).
				WithDetail("sequence", entry.Sequence)
		}

		fmt.Fprintf(&b, "\n--- Audio %03d (%s) ---\n", entry.Sequence, entry.ReceivedAt.UTC().Format(time.RFC3339))
		b.WriteString(strings.TrimSpace(string(data)))
		b.WriteString("\n")
	}

	path := filepath.Join(s.layout.SessionDir(session.ID), ConsolidatedFilename)
	if err := sessions.WriteTextFile(path, b.String()); err != nil {
		return "", err
	}

	log.Printf("[DEBUG] Consolidated transcripts for session %s into %s", session.ID, path)
	return path, nil
}

// Process consolidates the session and runs the pipeline on it. Session state is left to
// the caller.
func (s *service) Process(ctx context.Context, session *models.Session, provider string) (string, error) {
	if session.State != models.SessionStateTranscribed {
		return "", apperrors.ProcessingError(fmt.Sprintf("session %s is %s, not TRANSCRIBED", session.ID, session.State), nil).
			WithDetail("session_id", session.ID)
	}
	if succeeded, _, _ := session.TranscriptionCounts(); succeeded == 0 {
		return "", apperrors.ProcessingError("session has no successful transcripts", nil).
			WithDetail("session_id", session.ID)
	}
	if s.cfg.PipelineCommand == "" {
		return "", apperrors.ProcessingError("no pipeline command configured", nil)
	}
	if provider == "" {
		provider = s.cfg.DefaultProvider
	}

	input, err := s.ConsolidateTranscripts(ctx, session)
	if err != nil {
		return "", err
	}

	outputDir := filepath.Join(s.layout.SessionDir(session.ID), OutputDirname)
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", apperrors.StorageError("mkdir", err).WithDetail("path", outputDir)
	}

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	args := []string{"--input", input, "--output", outputDir}
	if provider != "" {
		args = append(args, "--provider", provider)
	}

	log.Printf("[INFO] Running pipeline for session %s (provider %s)", session.ID, provider)
	started := time.Now()
	res, runErr := s.runner.Run(ctx, s.cfg.PipelineCommand, args...)
	if runErr != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", apperrors.ProcessingError(fmt.Sprintf("pipeline timed out after %s", s.cfg.Timeout), runErr).
				WithDetail("session_id", session.ID)
		}
		return "", apperrors.ProcessingError(fmt.Sprintf("pipeline exited with code %d", res.ExitCode), runErr).
			WithDetail("session_id", session.ID).
			WithDetail("exit_code", res.ExitCode).
			WithDetail("stderr", command.Tail(res.Stderr, 500))
	}

	log.Printf("[INFO] Pipeline finished for session %s in %s", session.ID, time.Since(started).Round(time.Millisecond))
	return outputDir, nil
}

// ListOutputs returns the pipeline's files relative to the output directory, sorted
func (s *service) ListOutputs(session *models.Session) ([]string, error) {
	root := filepath.Join(s.layout.SessionDir(session.ID), OutputDirname)
	if session.ProcessingOutput != "" {
		root = session.ProcessingOutput
	}

	outputs := []string{}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		outputs = append(outputs, rel)
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, apperrors.StorageError("list outputs", err).WithDetail("session_id", session.ID)
	}

	sort.Strings(outputs)
	return outputs, nil
}

// OutputPath resolves a relative output name back to a path
func OutputPath(layout sessions.Layout, session *models.Session, rel string) string {
	root := filepath.Join(layout.SessionDir(session.ID), OutputDirname)
	if session.ProcessingOutput != "" {
		root = session.ProcessingOutput
	}
	return filepath.Join(root, rel)
}
