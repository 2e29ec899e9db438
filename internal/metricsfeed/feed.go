package metricsfeed

import (
	"context"
	"errors"
)

// ErrUnavailable means the feed has no value for the requested metric this
// cycle. Callers must skip the pattern, never treat it as zero.
var ErrUnavailable = errors.New("metric unavailable")

// Feed supplies current metric values for detection cycles.
type Feed interface {
	// GetMetric returns the latest value for a metric key on a host, or
	// ErrUnavailable when the feed cannot answer.
	GetMetric(ctx context.Context, key, host string) (float64, error)
}

// Composite tries each feed in order and returns the first answer.
type Composite struct {
	feeds []Feed
}

// NewComposite builds a feed that falls through the given feeds in order.
func NewComposite(feeds ...Feed) *Composite {
	return &Composite{feeds: feeds}
}

func (c *Composite) GetMetric(ctx context.Context, key, host string) (float64, error) {
	for _, f := range c.feeds {
		value, err := f.GetMetric(ctx, key, host)
		if err == nil {
			return value, nil
		}
		if !errors.Is(err, ErrUnavailable) {
			return 0, err
		}
	}
	return 0, ErrUnavailable
}
