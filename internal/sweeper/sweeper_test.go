package sweeper_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/auctionfold/fund-reservations/internal/observability"
	"github.com/auctionfold/fund-reservations/internal/sweeper"
)

type stubExpirer struct {
	results []int
	errs    []error
	calls   int
	limits  []int
}

func (s *stubExpirer) CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	i := s.calls
	s.calls++
	s.limits = append(s.limits, limit)
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	var cleaned int
	if i < len(s.results) {
		cleaned = s.results[i]
	}
	return cleaned, err
}

func TestSweep(t *testing.T) {
	exp := &stubExpirer{results: []int{3}}
	s := sweeper.NewSweeper(exp, 100, observability.NewLogger())

	cleaned := s.Sweep(context.Background(), time.Now().UTC())
	assert.Equal(t, 3, cleaned)
	assert.Equal(t, 1, exp.calls)
	assert.Equal(t, []int{100}, exp.limits)
}

func TestSweepRetriesTransientFailure(t *testing.T) {
	exp := &stubExpirer{
		errs:    []error{assert.AnError, nil},
		results: []int{0, 2},
	}
	s := sweeper.NewSweeper(exp, 100, observability.NewLogger())

	cleaned := s.Sweep(context.Background(), time.Now().UTC())
	assert.Equal(t, 2, cleaned)
	assert.Equal(t, 2, exp.calls)
}

func TestSweepGivesUpAfterRetries(t *testing.T) {
	exp := &stubExpirer{errs: []error{assert.AnError, assert.AnError, assert.AnError}}
	s := sweeper.NewSweeper(exp, 100, observability.NewLogger())

	cleaned := s.Sweep(context.Background(), time.Now().UTC())
	assert.Zero(t, cleaned)
	assert.Equal(t, 3, exp.calls)
}

func TestSweepStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	exp := &stubExpirer{errs: []error{assert.AnError}}
	s := sweeper.NewSweeper(exp, 100, observability.NewLogger())

	cleaned := s.Sweep(ctx, time.Now().UTC())
	assert.Zero(t, cleaned)
	assert.Equal(t, 1, exp.calls)
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	exp := &stubExpirer{}
	s := sweeper.NewSweeper(exp, 100, observability.NewLogger())

	done := make(chan struct{})
	go func() {
		s.Run(ctx, 10*time.Millisecond)
		close(done)
	}()

	time.Sleep(35 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
	assert.GreaterOrEqual(t, exp.calls, 1)
}
