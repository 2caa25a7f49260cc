package projection

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"spacecore/pkg/domain"
)

// Derived artifact file names, regenerated in full after every mutation.
const (
	MinimalFileName  = "spaces_optimized.json"
	TimelineFileName = "spaces_timeline.json"
)

// Writer regenerates the derived view files inside a directory. The files
// are projections of the canonical store and carry no state of their own;
// a failed write leaves the previous artifact in place and is reported to
// the caller, who treats it as non-fatal.
type Writer struct {
	dir    string
	logger *zap.Logger
}

// NewWriter returns a Writer rooted at dir. A nil logger is replaced with a
// no-op logger.
func NewWriter(dir string, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{dir: dir, logger: logger}
}

// Regenerate rewrites both derived artifacts from the given spaces. Failures
// are logged and the first one returned; callers must not treat a failure as
// invalidating the canonical mutation that triggered the regeneration.
func (w *Writer) Regenerate(spaces []domain.Space) error {
	var firstErr error
	if err := w.writeArtifact(MinimalFileName, ExportMinimal(spaces)); err != nil {
		w.logger.Warn("minimal view regeneration failed",
			zap.String("file", MinimalFileName), zap.Error(err))
		firstErr = err
	}
	if err := w.writeArtifact(TimelineFileName, ExportTimeline(spaces)); err != nil {
		w.logger.Warn("timeline regeneration failed",
			zap.String("file", TimelineFileName), zap.Error(err))
		if firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// writeArtifact marshals payload and replaces the named file atomically via
// a temp file in the same directory.
func (w *Writer) writeArtifact(name string, payload any) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	tmp, err := os.CreateTemp(w.dir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(w.dir, name)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", name, err)
	}
	return nil
}
