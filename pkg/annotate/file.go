package annotate

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dropstage/dropstage/pkg/errors"
	"github.com/dropstage/dropstage/pkg/scene"
)

// ============================================================================
// FILE WRITER
// ============================================================================

// FileWriter persists annotation and metadata records as pretty-printed JSON
// under <dir>/annotations.
type FileWriter struct {
	dir string
}

// NewFileWriter creates a writer rooted at the given output directory. The
// annotations subdirectory is created on first write.
func NewFileWriter(dir string) (*FileWriter, error) {
	if dir == "" {
		return nil, errors.New(errors.ErrCodeConfiguration, "annotation output directory is empty")
	}
	return &FileWriter{dir: filepath.Join(dir, "annotations")}, nil
}

// AnnotationPath returns the path the annotation record for a frame/sensor
// pair is written to.
func (w *FileWriter) AnnotationPath(frame int, sensor string) string {
	return filepath.Join(w.dir, fmt.Sprintf("%010d-%s.json", frame, sensor))
}

// MetadataPath returns the path the metadata record is written to.
func (w *FileWriter) MetadataPath(frame int, sensor string) string {
	return filepath.Join(w.dir, fmt.Sprintf("%010d-%s-meta.json", frame, sensor))
}

// WriteAnnotations builds and writes the per-frame annotation record.
func (w *FileWriter) WriteAnnotations(_ context.Context, s *scene.Scene, opts Options) error {
	return w.writeJSON(w.AnnotationPath(opts.Frame, opts.Sensor), Build(s, opts))
}

// WriteMetadata builds and writes the per-frame metadata record.
func (w *FileWriter) WriteMetadata(_ context.Context, s *scene.Scene, opts Options) error {
	return w.writeJSON(w.MetadataPath(opts.Frame, opts.Sensor), BuildMetadata(s, opts))
}

func (w *FileWriter) writeJSON(path string, v any) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "failed to create annotation directory")
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "failed to encode annotation record")
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "failed to write %s", path)
	}
	return nil
}

// Ensure FileWriter implements Writer.
var _ Writer = (*FileWriter)(nil)
