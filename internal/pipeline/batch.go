package pipeline

import (
	"context"
	"sync"
)

// ItemResult is the outcome of one item of a batch.
type ItemResult struct {
	FileID int64  `json:"file_id"`
	OK     bool   `json:"ok"`
	Kind   string `json:"kind,omitempty"`
	Error  string `json:"error,omitempty"`
	err    error
}

// Err returns the item's error, if any.
func (r ItemResult) Err() error {
	return r.err
}

// BatchResult collects per-item outcomes in input order.
type BatchResult struct {
	Items     []ItemResult `json:"items"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
}

func newItem(id int64, err error) ItemResult {
	item := ItemResult{FileID: id, OK: err == nil, err: err}
	if err != nil {
		item.Kind = KindOf(err).String()
		item.Error = err.Error()
	}
	return item
}

func (b *BatchResult) tally() {
	for _, item := range b.Items {
		if item.OK {
			b.Succeeded++
		} else {
			b.Failed++
		}
	}
}

// BatchDelete deletes each file in turn. A failure never stops the rest.
func (p *Pipeline) BatchDelete(ctx context.Context, ids []int64) *BatchResult {
	result := &BatchResult{Items: make([]ItemResult, len(ids))}
	for i, id := range ids {
		_, err := p.DeleteFile(ctx, id)
		result.Items[i] = newItem(id, err)
	}
	result.tally()
	return result
}

// BatchVectorize vectorizes files concurrently on the background pool and
// waits for all of them.
func (p *Pipeline) BatchVectorize(ctx context.Context, ids []int64) *BatchResult {
	result := &BatchResult{Items: make([]ItemResult, len(ids))}

	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		err := p.submit(func() {
			defer wg.Done()
			_, err := p.VectorizeExisting(ctx, id)
			result.Items[i] = newItem(id, err)
		})
		if err != nil {
			wg.Done()
			result.Items[i] = newItem(id, err)
		}
	}
	wg.Wait()

	result.tally()
	return result
}
