// Package asset loads and draws vehicle models. FileService is a headless
// implementation: it validates model files on an afero filesystem and records
// draw calls instead of rasterizing them.
package asset

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/towsim/pushback/pkg/core"
)

var (
	// ErrNotFound is returned when a model file is missing or empty.
	ErrNotFound = errors.New("asset not found")
	// ErrUnknownHandle is returned for handles that were never loaded or already unloaded.
	ErrUnknownHandle = errors.New("unknown asset handle")
)

// Handle identifies a loaded asset.
type Handle uint64

// Service is the visual asset service consumed by vehicles.
type Service interface {
	Load(path string) (Handle, error)
	Unload(h Handle) error
	Draw(h Handle, pose core.RenderPose) error
}

type loaded struct {
	path     string
	size     int64
	draws    int
	lastPose core.RenderPose
}

// FileService resolves asset paths against Root on Fs.
type FileService struct {
	fs     afero.Fs
	root   string
	logger *slog.Logger

	next   Handle
	assets map[Handle]*loaded
}

// NewFileService creates a FileService. A nil logger uses slog.Default().
func NewFileService(fs afero.Fs, root string, logger *slog.Logger) *FileService {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileService{
		fs:     fs,
		root:   root,
		logger: logger,
		assets: make(map[Handle]*loaded),
	}
}

// Load implements Service.
func (s *FileService) Load(path string) (Handle, error) {
	full := filepath.Join(s.root, path)
	info, err := s.fs.Stat(full)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrNotFound, full, err)
	}
	if info.IsDir() || info.Size() == 0 {
		return 0, fmt.Errorf("%w: %s is not a model file", ErrNotFound, full)
	}

	s.next++
	s.assets[s.next] = &loaded{path: full, size: info.Size()}
	s.logger.Debug("Loaded asset", "path", full, "handle", s.next, "bytes", info.Size())
	return s.next, nil
}

// Unload implements Service.
func (s *FileService) Unload(h Handle) error {
	a, ok := s.assets[h]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownHandle, h)
	}
	delete(s.assets, h)
	s.logger.Debug("Unloaded asset", "path", a.path, "handle", h, "draws", a.draws)
	return nil
}

// Draw implements Service.
func (s *FileService) Draw(h Handle, pose core.RenderPose) error {
	a, ok := s.assets[h]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownHandle, h)
	}
	a.draws++
	a.lastPose = pose
	return nil
}

// Loaded returns the number of currently loaded assets.
func (s *FileService) Loaded() int {
	return len(s.assets)
}

// Draws returns how many times h was drawn and the last pose it was drawn at.
func (s *FileService) Draws(h Handle) (int, core.RenderPose, bool) {
	a, ok := s.assets[h]
	if !ok {
		return 0, core.RenderPose{}, false
	}
	return a.draws, a.lastPose, true
}
