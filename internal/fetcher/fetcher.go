package fetcher

import (
	"context"
	"errors"

	"weather-ready/internal/weather"
)

// ErrFeed marks failures of the remote observation feed: unreachable host,
// non-200 status, or a payload that cannot be decoded.
var ErrFeed = errors.New("observation feed error")

// Feed retrieves raw hourly observations for a location. dayOffset is the
// target day relative to today; negative values reach into the past.
type Feed interface {
	Fetch(ctx context.Context, loc weather.Location, dayOffset int) (weather.Series, error)
}

// StaticFeed serves a fixed series regardless of the request.
type StaticFeed struct {
	Series weather.Series
	Err    error
}

// Fetch returns the configured series relabelled for loc.
func (s *StaticFeed) Fetch(ctx context.Context, loc weather.Location, dayOffset int) (weather.Series, error) {
	if s.Err != nil {
		return weather.Series{}, s.Err
	}
	out := s.Series
	out.Location = loc.Name
	out.Observations = append([]weather.Observation(nil), s.Series.Observations...)
	return out, nil
}

var _ Feed = (*StaticFeed)(nil)
