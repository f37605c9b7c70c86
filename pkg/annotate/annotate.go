// Package annotate writes per-frame annotation and metadata records for
// rendered scenes. The render orchestrator hands over the final object list
// (with rendered flags resolved) once per frame; writers persist it as JSON
// files or Mongo documents.
package annotate

import (
	"context"
	"time"

	"github.com/dropstage/dropstage/pkg/scene"
)

// ObjectRecord is the annotation payload for one placed object.
type ObjectRecord struct {
	Instance    int        `json:"instance" bson:"instance"`
	Name        string     `json:"name" bson:"name"`
	Source      string     `json:"source,omitempty" bson:"source,omitempty"`
	Pose        scene.Pose `json:"pose" bson:"pose"`
	Rendered    bool       `json:"rendered" bson:"rendered"`
	SoloMaskID  string     `json:"solo_mask_id,omitempty" bson:"solo_mask_id,omitempty"`
	Obstruction float64    `json:"obstruction,omitempty" bson:"obstruction,omitempty"`
}

// Annotation is the per-frame annotation record.
type Annotation struct {
	RunID     string         `json:"run_id" bson:"run_id"`
	Frame     int            `json:"frame" bson:"frame"`
	Sensor    string         `json:"sensor" bson:"sensor"`
	Image     string         `json:"image" bson:"image"`
	Mask      string         `json:"mask" bson:"mask"`
	Objects   []ObjectRecord `json:"objects" bson:"objects"`
	CreatedAt time.Time      `json:"created_at" bson:"created_at"`
}

// Metadata is the per-frame capture metadata record.
type Metadata struct {
	RunID       string    `json:"run_id" bson:"run_id"`
	SceneID     string    `json:"scene_id" bson:"scene_id"`
	Frame       int       `json:"frame" bson:"frame"`
	Sensor      string    `json:"sensor" bson:"sensor"`
	Resolution  [2]int    `json:"resolution" bson:"resolution"`
	Seed        int64     `json:"seed" bson:"seed"`
	ObjectCount int       `json:"object_count" bson:"object_count"`
	Rendered    int       `json:"rendered" bson:"rendered"`
	CreatedAt   time.Time `json:"created_at" bson:"created_at"`
}

// Options carries the identifying context for one frame's records.
type Options struct {
	RunID  string
	Frame  int
	Sensor string
	Seed   int64

	// Image and Mask are the canonical composite and combined-mask paths.
	Image string
	Mask  string

	// Obstruction includes obstruction metrics in the object records.
	Obstruction bool
}

// Writer persists annotation and metadata records. The format is owned by
// the writer; the orchestrator only guarantees rendered flags and poses are
// final when these are called.
type Writer interface {
	WriteAnnotations(ctx context.Context, s *scene.Scene, opts Options) error
	WriteMetadata(ctx context.Context, s *scene.Scene, opts Options) error
}

// Build assembles the annotation record for a scene. Shared by all writers.
func Build(s *scene.Scene, opts Options) Annotation {
	anno := Annotation{
		RunID:     opts.RunID,
		Frame:     opts.Frame,
		Sensor:    opts.Sensor,
		Image:     opts.Image,
		Mask:      opts.Mask,
		CreatedAt: time.Now().UTC(),
	}
	for _, o := range s.Objects {
		if o.Background {
			continue
		}
		rec := ObjectRecord{
			Instance:   o.Instance,
			Name:       o.Name,
			Source:     o.Source,
			Pose:       o.Pose,
			Rendered:   o.Rendered,
			SoloMaskID: o.SoloMaskID,
		}
		if opts.Obstruction {
			rec.Obstruction = o.Obstruction
		}
		anno.Objects = append(anno.Objects, rec)
	}
	return anno
}

// BuildMetadata assembles the metadata record for a scene.
func BuildMetadata(s *scene.Scene, opts Options) Metadata {
	return Metadata{
		RunID:       opts.RunID,
		SceneID:     s.ID.String(),
		Frame:       opts.Frame,
		Sensor:      opts.Sensor,
		Resolution:  [2]int{s.ResolutionX, s.ResolutionY},
		Seed:        opts.Seed,
		ObjectCount: len(s.InterestObjects()),
		Rendered:    len(s.RenderedObjects()),
		CreatedAt:   time.Now().UTC(),
	}
}

// NullWriter discards all records. Used when annotation output is disabled.
type NullWriter struct{}

// WriteAnnotations does nothing.
func (NullWriter) WriteAnnotations(context.Context, *scene.Scene, Options) error { return nil }

// WriteMetadata does nothing.
func (NullWriter) WriteMetadata(context.Context, *scene.Scene, Options) error { return nil }

// Ensure NullWriter implements Writer.
var _ Writer = NullWriter{}
