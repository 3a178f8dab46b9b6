package sink

import (
	"context"

	"go.uber.org/multierr"

	"agent-crawler/models"
)

// Sink is anything a batch can be written to.
type Sink interface {
	Append(ctx context.Context, batch models.Batch) error
	Close() error
}

// Multi writes every batch to each sink in order and stops at the first
// failure.
type Multi []Sink

func (m Multi) Append(ctx context.Context, batch models.Batch) error {
	for _, s := range m {
		if err := s.Append(ctx, batch); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every sink and reports all failures.
func (m Multi) Close() error {
	var err error
	for _, s := range m {
		err = multierr.Append(err, s.Close())
	}
	return err
}
