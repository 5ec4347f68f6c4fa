package adapter

import (
	"context"

	"github.com/contact-ranker/internal/types"
	"golang.org/x/time/rate"
)

// PacedEmailSource wraps an EmailSource with a token-bucket limiter so backfill
// runs for many users do not exceed the upstream API quota.
type PacedEmailSource struct {
	inner   EmailSource
	limiter *rate.Limiter
}

// NewPacedEmailSource creates a pacing wrapper around an email source
func NewPacedEmailSource(inner EmailSource, rps float64, burst int) *PacedEmailSource {
	return &PacedEmailSource{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// FetchEmail waits for quota before delegating to the wrapped source
func (s *PacedEmailSource) FetchEmail(ctx context.Context, userID string, window types.Window) ([]EmailRecord, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return s.inner.FetchEmail(ctx, userID, window)
}

// PacedCalendarSource wraps a CalendarSource with a token-bucket limiter
type PacedCalendarSource struct {
	inner   CalendarSource
	limiter *rate.Limiter
}

// NewPacedCalendarSource creates a pacing wrapper around a calendar source
func NewPacedCalendarSource(inner CalendarSource, rps float64, burst int) *PacedCalendarSource {
	return &PacedCalendarSource{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// FetchEvents waits for quota before delegating to the wrapped source
func (s *PacedCalendarSource) FetchEvents(ctx context.Context, userID string, window types.Window) ([]EventRecord, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return s.inner.FetchEvents(ctx, userID, window)
}
