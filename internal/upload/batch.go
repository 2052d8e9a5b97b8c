package upload

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Item is one script to upload.
type Item struct {
	Name    string
	Content string
}

// BatchResult aggregates one router's uploads.
type BatchResult struct {
	Router   string
	Uploaded int
	Failed   int
	Results  []Result
	// Canceled is set when ctx ended before every item was attempted.
	Canceled bool
}

// Batch uploads items in order. Cancellation is checked between items only.
func (c *Coordinator) Batch(ctx context.Context, items []Item) BatchResult {
	out := BatchResult{Router: c.cfg.Router, Results: make([]Result, 0, len(items))}
	for _, item := range items {
		if ctx.Err() != nil {
			out.Canceled = true
			c.logger.Warn().Int("remaining", len(items)-len(out.Results)).Msg("batch canceled")
			break
		}
		res := c.Upload(ctx, item.Name, item.Content)
		out.Results = append(out.Results, res)
		if res.OK {
			out.Uploaded++
		} else {
			out.Failed++
		}
	}
	c.logger.Info().Int("uploaded", out.Uploaded).Int("failed", out.Failed).Msg("batch finished")
	return out
}

// BatchAll runs Batch on every coordinator concurrently, at most limit at a
// time. Results keep the coordinator order.
func BatchAll(ctx context.Context, coords []*Coordinator, items []Item, limit int) []BatchResult {
	out := make([]BatchResult, len(coords))
	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, coord := range coords {
		i, coord := i, coord
		g.Go(func() error {
			out[i] = coord.Batch(ctx, items)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Totals sums uploaded and failed counts across batches.
func Totals(batches []BatchResult) (uploaded, failed int) {
	for _, b := range batches {
		uploaded += b.Uploaded
		failed += b.Failed
	}
	return uploaded, failed
}
