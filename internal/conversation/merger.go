// Package conversation annotates runtime conversation batches and keeps the
// append-only session history.
package conversation

import (
	"context"
	"image"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/HOSH19/BurpSuite-CUA/api/schemas"
)

// Merger decorates runtime batches with element markers and retrieval tags.
type Merger struct {
	logger      *zap.Logger
	concurrency int
}

// NewMerger creates a Merger compositing at most concurrency screenshots at
// once. A non-positive value uses GOMAXPROCS.
func NewMerger(logger *zap.Logger, concurrency int) *Merger {
	if concurrency <= 0 {
		concurrency = runtime.GOMAXPROCS(0)
	}
	return &Merger{logger: logger.Named("merger"), concurrency: concurrency}
}

// Merge returns deep copies of entries in the same order. Entries whose
// actions can be drawn onto prev's screenshot receive an element marker,
// and every entry is tagged with items when there are any. Marker failures
// are logged and leave the marker unset. Cancelling ctx stops further
// compositing but Merge still returns every entry.
func (m *Merger) Merge(ctx context.Context, prev *schemas.ConversationEntry, entries []schemas.ConversationEntry, items []schemas.RetrievedItem) []schemas.ConversationEntry {
	out := make([]schemas.ConversationEntry, len(entries))
	for i := range entries {
		out[i] = entries[i].Clone()
		if len(items) > 0 {
			out[i].RetrievedItems = append([]schemas.RetrievedItem(nil), items...)
		}
	}

	if prev == nil || prev.Screenshot == "" {
		return out
	}
	eligible := make([]int, 0, len(out))
	for i := range out {
		if out[i].ScreenshotContext.HasSize() && len(out[i].ParsedActions) > 0 {
			eligible = append(eligible, i)
		}
	}
	if len(eligible) == 0 {
		return out
	}

	base, err := decodeScreenshot(prev.Screenshot)
	if err != nil {
		m.logger.Debug("Skipping element markers, previous screenshot is unreadable", zap.Error(err))
		return out
	}

	m.composite(ctx, base, out, eligible)
	return out
}

// composite fills the marker slot of each eligible entry. Each goroutine
// owns exactly one index of out.
func (m *Merger) composite(ctx context.Context, base image.Image, out []schemas.ConversationEntry, eligible []int) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)

	for _, idx := range eligible {
		i := idx
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			marked, err := markActions(base, out[i].ParsedActions)
			if err != nil {
				m.logger.Debug("Element marker not drawn",
					zap.Int("entry_index", i),
					zap.Error(err))
				return nil
			}
			if gctx.Err() != nil {
				return nil
			}
			out[i].ElementMarkerScreenshot = marked
			return nil
		})
	}
	_ = g.Wait()
}
