package submission

import (
	"context"
	"errors"
	"fmt"

	"github.com/ava-labs/backrunner/pkg/types"
)

// Sink accepts a search result for delivery.
type Sink interface {
	Submit(ctx context.Context, result *types.SearchResult) error
}

// Fanout submits every result to all of its sinks and joins their errors.
type Fanout []Sink

// Submit tries every sink even when an earlier one fails.
func (f Fanout) Submit(ctx context.Context, result *types.SearchResult) error {
	var errs []error
	for i, s := range f {
		if err := s.Submit(ctx, result); err != nil {
			errs = append(errs, fmt.Errorf("sink %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// headers are attached to every published result.
func headers(result *types.SearchResult) map[string]string {
	return map[string]string{
		"content-type": "application/json",
		"config-id":    result.ConfigID,
		"block-number": fmt.Sprintf("%d", result.BlockNumber),
		"result-id":    result.ID,
	}
}
