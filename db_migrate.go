package db_migrator

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Migrate выполняет невыполненные миграции в порядке возрастания версий. Перед чтением списка
// невыполненных миграций берется блокировка хранилища и создается таблица учета.
// Каждая операция и запись о ней в таблице учета выполняются в одной транзакции, если хранилище это поддерживает.
//
// При ошибке выполнение прекращается, миграция помечается как failed с количеством выполненных операций,
// а ошибка возвращается как *MigrationError. Следующий вызов Migrate продолжит миграцию с упавшей операции.
func (m *MigrationManager) Migrate(ctx context.Context) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.logger.Info("Preparing migrations execution")

	release, err := m.acquireLock(ctx)
	if err != nil {
		return err
	}
	defer release()

	records, err := m.loadRecords(ctx)
	if err != nil {
		return err
	}

	for version := range records {
		if _, ok := m.registry.Lookup(version); !ok {
			m.logger.WithField("version", version).Warn("applied migration is not registered, skipping")
		}
	}

	planner := migratePlanner{
		registry: m.registry,
		records:  records,
	}
	plan, err := planner.MakePlan()
	if err != nil {
		return err
	}

	if plan.IsEmpty() {
		m.logger.Info("No pending migrations, current schema is up to date")
		return nil
	}

	m.logger.WithField("count", plan.Len()).Info("Executing pending migrations")

	for !plan.IsEmpty() {
		if err = m.executeMigration(ctx, plan.PopFirst()); err != nil {
			return err
		}
	}

	m.logger.Info("Migrations completed, current schema is up to date")
	return nil
}

func (m *MigrationManager) executeMigration(ctx context.Context, planned plannedMigration) error {
	migration := planned.migration
	logger := m.logger.WithFields(logrus.Fields{
		"version":   migration.Version,
		"direction": DirectionUp,
	})

	if planned.from > 0 {
		logger.WithField("step", planned.from).Warn("Resuming partially applied migration")
	}
	logger.Infof("Executing migration: %s", migration.Description)

	for step := planned.from; step < len(planned.operations); step++ {
		op := planned.operations[step]

		err := ctx.Err()
		if err == nil {
			err = m.inTransaction(ctx, func(store StoreAdapter, tracker Tracker) error {
				if err := applyOperation(ctx, store, op); err != nil {
					return err
				}
				return tracker.MarkProgress(context.WithoutCancel(ctx), migration.Descriptor, step+1)
			})
		}

		if err != nil {
			logger.WithError(err).WithField("step", step).Errorf("Error occurred on migrate: %s", op)
			return m.failMigration(ctx, migration, step, err)
		}

		logger.WithField("step", step).Debugf("Applied %s", op)
	}

	if err := m.target.MarkApplied(ctx, migration.Descriptor, len(planned.operations)); err != nil {
		return &MigrationError{Version: migration.Version, Direction: DirectionUp, Step: len(planned.operations), Err: err}
	}

	logger.Info("Migration complete")
	return nil
}

// failMigration помечает миграцию как failed. Запись делается даже при отмененном контексте,
// чтобы учет отражал выполненные операции.
func (m *MigrationManager) failMigration(ctx context.Context, migration *Migration, step int, cause error) error {
	migrationErr := &MigrationError{Version: migration.Version, Direction: DirectionUp, Step: step, Err: cause}

	if err := m.target.MarkFailed(context.WithoutCancel(ctx), migration.Descriptor, step, cause); err != nil {
		m.logger.WithError(err).WithField("version", migration.Version).Error("Failed to record migration failure")
	}

	return migrationErr
}
