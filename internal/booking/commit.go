package booking

import (
	"context"
	"errors"

	"github.com/pety02/hotelreservation/internal/logger"
)

const (
	storeHotels       = "hotels"
	storeRooms        = "rooms"
	storeReservations = "reservations"
	storeUsers        = "users"
	storeCards        = "debitCards"
)

// step writes one store. undo restores what apply replaced.
type step struct {
	store string
	apply func(ctx context.Context) error
	undo  func(ctx context.Context) error
}

// compensation reverses a write made to store before the commit started.
type compensation struct {
	store string
	run   func(ctx context.Context) error
}

// mergeStep merges updated into repo. Its undo merges previous back and removes the ids
// of records the step created.
func mergeStep[T any](store string, repo Repository[T], updated, previous []T, created []int) step {
	return step{
		store: store,
		apply: func(ctx context.Context) error {
			return repo.MergeAndSave(ctx, updated) //nolint:wrapcheck
		},
		undo: func(ctx context.Context) error {
			if len(previous) > 0 {
				if err := repo.MergeAndSave(ctx, previous); err != nil {
					return err //nolint:wrapcheck
				}
			}

			if len(created) > 0 {
				return repo.Remove(ctx, created...) //nolint:wrapcheck
			}

			return nil
		},
	}
}

// commit applies steps in order. When one fails, the applied steps are undone in reverse
// order and compensate runs last. A failure that could be undone is a PersistenceError,
// one that could not is an InconsistencyError naming the stores left to repair.
func (m *Manager) commit(
	ctx context.Context,
	l *logger.Logger,
	operation string,
	steps []step,
	compensate *compensation,
) error {
	applied := make([]step, 0, len(steps))

	for _, s := range steps {
		if err := s.apply(ctx); err != nil {
			l.LogErrorf("Could not persist %s during %s: %v", s.store, operation, err.Error())

			return m.rollback(ctx, l, operation, applied, s.store, err, compensate)
		}

		applied = append(applied, s)
	}

	return nil
}

func (m *Manager) rollback(
	ctx context.Context,
	l *logger.Logger,
	operation string,
	applied []step,
	failed string,
	cause error,
	compensate *compensation,
) error {
	ctx = context.WithoutCancel(ctx)

	var (
		rollbackErr error
		dirty       []string
	)

	for i := len(applied) - 1; i >= 0; i-- {
		if err := applied[i].undo(ctx); err != nil {
			l.LogErrorf("Could not undo %s write during %s: %v", applied[i].store, operation, err.Error())

			rollbackErr = errors.Join(rollbackErr, err)
			dirty = append(dirty, applied[i].store)
		}
	}

	if compensate != nil {
		if err := compensate.run(ctx); err != nil {
			l.LogErrorf("Could not compensate %s during %s: %v", compensate.store, operation, err.Error())

			rollbackErr = errors.Join(rollbackErr, err)
			dirty = append(dirty, compensate.store)
		}
	}

	if rollbackErr != nil {
		inconsistencyErr := &InconsistencyError{
			Operation: operation,
			Written:   dirty,
			Failed:    failed,
			Err:       errors.Join(cause, rollbackErr),
		}

		l.LogErrorf("Stores need repair: %v", inconsistencyErr.Error())

		return inconsistencyErr
	}

	l.LogInfo("Operation %s has been rolled back after error", operation)

	return &PersistenceError{Store: failed, Err: cause}
}
