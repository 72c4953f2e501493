package schedule

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"slotbook/internal/db"
	"slotbook/internal/lock"
	"slotbook/internal/metrics"
	"slotbook/internal/model"
)

// Store persists weekly templates.
type Store interface {
	GetService(ctx context.Context, id int64) (*model.Service, error)
	GetSchedule(ctx context.Context, serviceID int64) (*model.WeeklyAvailability, error)
	ReplaceSchedule(ctx context.Context, av *model.WeeklyAvailability, expectedVersion int64) (*model.WeeklyAvailability, error)
}

// Invalidator drops cached availability of a service.
type Invalidator interface {
	Invalidate(ctx context.Context, serviceID int64)
}

// Service saves and reads weekly templates.
type Service struct {
	store  Store
	guard  *lock.ServiceGuard
	cache  Invalidator
	logger zerolog.Logger
}

// NewService creates a schedule service. guard must be the one shared with
// the booking allocator.
func NewService(store Store, guard *lock.ServiceGuard, cache Invalidator, logger *zerolog.Logger) *Service {
	return &Service{
		store:  store,
		guard:  guard,
		cache:  cache,
		logger: logger.With().Str("component", "schedule").Logger(),
	}
}

// SaveSchedule validates av and replaces the stored template of serviceID.
// av.Version, when non-zero, is the version the caller last read.
// On any error the stored template is unchanged.
func (s *Service) SaveSchedule(ctx context.Context, serviceID, actorID int64, av model.WeeklyAvailability) (*model.WeeklyAvailability, error) {
	svc, err := s.store.GetService(ctx, serviceID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrServiceNotFound
		}
		return nil, fmt.Errorf("get service: %w", err)
	}
	if svc.OwnerID != actorID {
		return nil, ErrForbidden
	}

	av.ServiceID = serviceID
	expected := av.Version

	normalized, err := Normalize(av)
	if err != nil {
		metrics.IncScheduleSaved("invalid")
		return nil, err
	}

	// Allocations validate against the stored template; hold them off while
	// it is being replaced.
	unlock := s.guard.Lock(serviceID)
	defer unlock()

	saved, err := s.store.ReplaceSchedule(ctx, &normalized, expected)
	if err != nil {
		if errors.Is(err, db.ErrConcurrentModification) {
			metrics.IncScheduleSaved("conflict")
			return nil, ErrVersionConflict
		}
		metrics.IncScheduleSaved("error")
		return nil, fmt.Errorf("replace schedule: %w", err)
	}

	s.cache.Invalidate(ctx, serviceID)
	metrics.IncScheduleSaved("ok")

	s.logger.Info().
		Int64("service_id", serviceID).
		Int64("actor_id", actorID).
		Int64("version", saved.Version).
		Msg("Schedule saved")

	return saved, nil
}

// GetSchedule returns the stored template of serviceID.
func (s *Service) GetSchedule(ctx context.Context, serviceID int64) (*model.WeeklyAvailability, error) {
	av, err := s.store.GetSchedule(ctx, serviceID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get schedule: %w", err)
	}
	return av, nil
}
