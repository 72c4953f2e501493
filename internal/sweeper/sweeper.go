// Package sweeper periodically completes confirmed bookings whose session
// has ended.
package sweeper

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Completer completes due bookings in batches.
type Completer interface {
	CompleteDue(ctx context.Context, limit int) (int, error)
}

// Config holds sweeper settings.
type Config struct {
	Interval  time.Duration
	BatchSize int
	// MaxBatches bounds the work of one tick.
	MaxBatches int
}

// Sweeper runs the completion loop.
type Sweeper struct {
	cfg       Config
	completer Completer
	logger    zerolog.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

// New creates a sweeper.
func New(cfg Config, completer Completer, logger *zerolog.Logger) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.MaxBatches <= 0 {
		cfg.MaxBatches = 10
	}
	return &Sweeper{
		cfg:       cfg,
		completer: completer,
		logger:    logger.With().Str("component", "sweeper").Logger(),
		stopCh:    make(chan struct{}),
	}
}

// Start runs until ctx is done or Stop is called.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info().Dur("interval", s.cfg.Interval).Msg("Sweeper started")

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Sweeper stopped by context")
			return
		case <-s.stopCh:
			s.logger.Info().Msg("Sweeper stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// Stop stops the loop.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		s.running = false
		close(s.stopCh)
	}
}

// RunOnce completes due bookings until a batch comes back short, and
// returns the total completed.
func (s *Sweeper) RunOnce(ctx context.Context) int {
	total := 0
	for i := 0; i < s.cfg.MaxBatches; i++ {
		n, err := s.completer.CompleteDue(ctx, s.cfg.BatchSize)
		total += n
		if err != nil {
			s.logger.Error().Err(err).Msg("Complete due bookings")
			break
		}
		if n < s.cfg.BatchSize {
			break
		}
	}
	if total > 0 {
		s.logger.Info().Int("completed", total).Msg("Completed ended bookings")
	}
	return total
}
