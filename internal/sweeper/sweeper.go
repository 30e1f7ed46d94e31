package sweeper

import (
	"context"
	"time"

	"github.com/auctionfold/fund-reservations/internal/observability"
)

// Expirer is the slice of the Reservation Manager the sweeper drives.
// CleanupExpired is idempotent, so overlapping sweeps (or sweepers on
// several replicas) are safe.
type Expirer interface {
	CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error)
}

type Sweeper struct {
	expirer Expirer
	batch   int
	logger  observability.Logger
}

func NewSweeper(expirer Expirer, batch int, logger observability.Logger) *Sweeper {
	return &Sweeper{expirer: expirer, batch: batch, logger: logger}
}

func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.WithField("interval", interval.String()).Info("expiry sweeper started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("expiry sweeper stopped")
			return
		case now := <-ticker.C:
			s.Sweep(ctx, now.UTC())
		}
	}
}

// Sweep runs one pass with bounded retries. A transient store failure backs
// off and tries again; whatever was already expired stays expired.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) int {
	start := time.Now()
	defer func() {
		observability.SweepDuration.Observe(time.Since(start).Seconds())
	}()

	maxRetries := 3
	for i := 0; i < maxRetries; i++ {
		cleaned, err := s.expirer.CleanupExpired(ctx, now, s.batch)
		if err == nil {
			if cleaned > 0 {
				s.logger.WithField("cleaned", cleaned).Info("expired reservations released")
			}
			return cleaned
		}

		s.logger.WithError(err).Warn("sweep attempt failed")
		backoff := time.Duration(1<<i) * time.Second
		select {
		case <-ctx.Done():
			return 0
		case <-time.After(backoff):
		}
	}
	s.logger.Error("sweep failed after retries")
	return 0
}
