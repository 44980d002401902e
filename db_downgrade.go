package db_migrator

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Downgrade отменяет все учтенные миграции с версией строго больше target в порядке убывания версий.
// Пустой target отменяет все миграции.
//
// Перед выполнением проверяется, что каждую миграцию можно откатить: необратимые миграции возвращают
// ErrNotReversible, частично примененные миграции с явными операциями отката - ErrIncomplete,
// незарегистрированные - ErrUnknownVersion. При ошибке во время отката выполнение прекращается,
// а запись учета отражает выполненные операции отката.
func (m *MigrationManager) Downgrade(ctx context.Context, target string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.logger.WithField("target", target).Info("Preparing downgrade execution")

	release, err := m.acquireLock(ctx)
	if err != nil {
		return err
	}
	defer release()

	records, err := m.loadRecords(ctx)
	if err != nil {
		return err
	}

	planner := downgradePlanner{
		registry: m.registry,
		records:  records,
	}
	plan, err := planner.MakePlan(target)
	if err != nil {
		return err
	}

	for !plan.IsEmpty() {
		if err = m.executeDowngrade(ctx, plan.PopFirst()); err != nil {
			return err
		}
	}

	m.logger.Info("Downgrade completed")
	return nil
}

func (m *MigrationManager) executeDowngrade(ctx context.Context, planned plannedMigration) error {
	migration := planned.migration
	logger := m.logger.WithFields(logrus.Fields{
		"version":   migration.Version,
		"direction": DirectionDown,
		"state":     planned.record.State,
	})

	logger.Infof("Downgrading migration: %s", migration.Description)

	for step := planned.from; step < len(planned.operations); step++ {
		op := planned.operations[step]

		err := ctx.Err()
		if err == nil {
			err = m.inTransaction(ctx, func(store StoreAdapter, tracker Tracker) error {
				if err := applyOperation(ctx, store, op); err != nil {
					return err
				}
				return tracker.MarkReverting(context.WithoutCancel(ctx), migration.Version, step+1)
			})
		}

		if err != nil {
			logger.WithError(err).WithField("step", step).Errorf("Error occurred on downgrade: %s", op)
			return &MigrationError{Version: migration.Version, Direction: DirectionDown, Step: step, Err: err}
		}

		logger.WithField("step", step).Debugf("Applied %s", op)
	}

	if err := m.target.MarkReverted(ctx, migration.Version); err != nil {
		return &MigrationError{Version: migration.Version, Direction: DirectionDown, Step: len(planned.operations), Err: err}
	}

	logger.Info("Downgrade complete")
	return nil
}
