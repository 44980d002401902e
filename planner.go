package db_migrator

import (
	"container/list"
	"fmt"
	"sort"
)

type plannedMigration struct {
	migration  *Migration
	record     *AppliedRecord
	operations []Operation
	// from - индекс первой операции, которую нужно выполнить
	from int
}

type migrationsPlan struct {
	migrationsToRun *list.List
}

func newMigrationsPlan() migrationsPlan {
	return migrationsPlan{
		migrationsToRun: list.New(),
	}
}

func (p migrationsPlan) IsEmpty() bool {
	return p.migrationsToRun.Len() == 0
}

func (p migrationsPlan) Len() int {
	return p.migrationsToRun.Len()
}

func (p migrationsPlan) PopFirst() plannedMigration {
	first := p.migrationsToRun.Front()
	p.migrationsToRun.Remove(first)
	return first.Value.(plannedMigration)
}

type migratePlanner struct {
	registry *Registry
	records  map[string]AppliedRecord
}

// MakePlan планирует невыполненные миграции в порядке возрастания версий.
// Миграции, прерванные ошибкой, продолжаются с первой невыполненной операции.
func (p *migratePlanner) MakePlan() (migrationsPlan, error) {
	plan := newMigrationsPlan()

	for _, migration := range p.registry.Pending(appliedFilter(p.records)) {
		item := plannedMigration{
			migration:  migration,
			operations: migration.Up,
		}

		if record, ok := p.records[migration.Version]; ok {
			from, err := resumeStep(migration, record)
			if err != nil {
				return plan, &MigrationError{Version: migration.Version, Direction: DirectionUp, Step: record.Step, Err: err}
			}
			item.record = &record
			item.from = from
		}

		plan.migrationsToRun.PushBack(item)
	}

	return plan, nil
}

func resumeStep(migration *Migration, record AppliedRecord) (int, error) {
	switch record.State {
	case StateReverting:
		if !migration.AutoReversing {
			return 0, fmt.Errorf("%w: revert was interrupted, finish the downgrade first", ErrIncomplete)
		}
		// откат автоматически обратимой миграции отменяет последние примененные операции Up
		return record.Step - record.Reverted, nil
	default:
		if record.Step > len(migration.Up) {
			return 0, fmt.Errorf("%w: recorded step %d exceeds %d operations", ErrInvalidMigration, record.Step, len(migration.Up))
		}
		return record.Step, nil
	}
}

type downgradePlanner struct {
	registry *Registry
	records  map[string]AppliedRecord
}

// MakePlan планирует откат всех учтенных миграций с версией строго больше target в порядке убывания версий.
func (p *downgradePlanner) MakePlan(target string) (migrationsPlan, error) {
	plan := newMigrationsPlan()

	versions := make([]string, 0, len(p.records))
	for version := range p.records {
		if version > target {
			versions = append(versions, version)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(versions)))

	for _, version := range versions {
		record := p.records[version]

		migration, ok := p.registry.Lookup(version)
		if !ok {
			return plan, &MigrationError{Version: version, Direction: DirectionDown, Err: ErrUnknownVersion}
		}

		operations, err := migration.downOperations(record.Step)
		if err != nil {
			return plan, &MigrationError{Version: version, Direction: DirectionDown, Err: err}
		}

		from := 0
		if record.State == StateReverting {
			from = record.Reverted
		}

		plan.migrationsToRun.PushBack(plannedMigration{
			migration:  migration,
			record:     &record,
			operations: operations,
			from:       from,
		})
	}

	return plan, nil
}
