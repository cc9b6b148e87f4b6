package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"hospital-queue/internal/core/domain"
)

// MaxAllocateAttempts bounds the compare-and-swap retry loop
const MaxAllocateAttempts = 5

// TokenAllocator issues sequential per-department token numbers.
// It is the only writer of a department's current_queue_count.
type TokenAllocator struct {
	store QueueStore
	log   zerolog.Logger
}

// NewTokenAllocator creates a new token allocator
func NewTokenAllocator(store QueueStore, log zerolog.Logger) *TokenAllocator {
	return &TokenAllocator{
		store: store,
		log:   log.With().Str("component", "allocator").Logger(),
	}
}

// AllocateToken reserves the next token for a department.
func (a *TokenAllocator) AllocateToken(ctx context.Context, departmentID uint) (int, error) {
	return a.allocate(ctx, a.store, departmentID)
}

func (a *TokenAllocator) allocate(ctx context.Context, store QueueStore, departmentID uint) (int, error) {
	for attempt := 1; attempt <= MaxAllocateAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		dept, err := store.GetDepartment(ctx, departmentID)
		if err != nil {
			return 0, err
		}
		if !dept.IsActive {
			return 0, domain.Validationf("department %d is not active", departmentID)
		}
		if dept.AtCapacity() {
			return 0, domain.Validationf("department %d is at capacity (%d)", departmentID, dept.DailyCapacity)
		}

		next, err := store.IncrementQueueCount(ctx, departmentID, dept.CurrentQueueCount)
		if err == nil {
			return next, nil
		}
		if !errors.Is(err, domain.ErrConflict) {
			return 0, err
		}

		a.log.Debug().
			Uint("department_id", departmentID).
			Int("attempt", attempt).
			Msg("token allocation lost a race, retrying")
	}

	return 0, fmt.Errorf("%w: department %d token allocation failed after %d attempts",
		domain.ErrConflict, departmentID, MaxAllocateAttempts)
}
