package observability

import (
	"context"
	"testing"
	"time"
)

type recordingGraphHooks struct {
	NoopGraphHooks
	starts []string
}

func (h *recordingGraphHooks) OnNodeStart(_ context.Context, name, _ string) {
	h.starts = append(h.starts, name)
}

func TestDefaultsAreNoop(t *testing.T) {
	Reset()

	// Must not panic
	Graph().OnRunStart(context.Background(), "run", 3)
	Graph().OnNodeComplete(context.Background(), "n", "t", time.Second, nil)
	Render().OnPassStart(context.Background(), "composite", 5)
	Render().OnObjectMask(context.Background(), 1)
	Cache().OnCacheHit(context.Background(), "pool")
}

func TestSetAndReset(t *testing.T) {
	defer Reset()

	h := &recordingGraphHooks{}
	SetGraphHooks(h)

	Graph().OnNodeStart(context.Background(), "Placement1", "RandomPlacement")
	if len(h.starts) != 1 || h.starts[0] != "Placement1" {
		t.Errorf("hook not invoked: %v", h.starts)
	}

	Reset()
	Graph().OnNodeStart(context.Background(), "ignored", "x")
	if len(h.starts) != 1 {
		t.Error("hook invoked after Reset")
	}
}

func TestSetNilKeepsCurrent(t *testing.T) {
	defer Reset()

	h := &recordingGraphHooks{}
	SetGraphHooks(h)
	SetGraphHooks(nil)

	Graph().OnNodeStart(context.Background(), "n", "t")
	if len(h.starts) != 1 {
		t.Error("nil registration should keep the previous hooks")
	}
}
