package channel

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"beacon/internal/logging"
)

// FileAudioStore writes synthesized clips into a directory served by the
// HTTP layer, so voice providers can fetch them by URL during the call.
type FileAudioStore struct {
	dir     string
	baseURL string
	logger  logging.Logger
}

// NewFileAudioStore creates the store. baseURL is the public prefix the
// directory is served under (e.g. https://host/audio).
func NewFileAudioStore(dir, baseURL string, logger logging.Logger) (*FileAudioStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audio dir: %w", err)
	}
	return &FileAudioStore{
		dir:     dir,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logging.OrNop(logger),
	}, nil
}

// Dir returns the directory clips are written to.
func (s *FileAudioStore) Dir() string { return s.dir }

func (s *FileAudioStore) Publish(_ context.Context, audio []byte, contentType string) (string, error) {
	name := uuid.NewString() + extensionFor(contentType)
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, audio, 0o644); err != nil {
		return "", fmt.Errorf("write audio clip: %w", err)
	}
	s.logger.Debug("published %d audio bytes as %s", len(audio), name)
	return s.baseURL + "/" + name, nil
}

func extensionFor(contentType string) string {
	switch {
	case strings.Contains(contentType, "wav"):
		return ".wav"
	case strings.Contains(contentType, "ogg"):
		return ".ogg"
	default:
		return ".mp3"
	}
}
