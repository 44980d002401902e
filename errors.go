package db_migrator

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateVersion    = errors.New("migration version already registered")
	ErrNotReversible       = errors.New("operation is not reversible")
	ErrConstraintViolation = errors.New("schema constraint violation")
	ErrLockContention      = errors.New("migration lock is held by another process")
	ErrInvalidOperation    = errors.New("invalid schema operation")
	ErrInvalidMigration    = errors.New("invalid migration definition")
	ErrIncomplete          = errors.New("migration is partially applied and cannot be reverted")
	ErrUnknownVersion      = errors.New("tracked migration version is not registered")

	ErrHasForthcomingMigrations = errors.New("found not completed forthcoming migrations, consider migrating")
	ErrHasFailedMigrations      = errors.New("found failed migrations, consider fixing your Db")
)

// SchemaError оборачивает ошибку хранилища, возникшую при выполнении операции.
type SchemaError struct {
	Op  Operation
	Err error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema change %q failed: %v", e.Op, e.Err)
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}

type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// MigrationError привязывает ошибку выполнения к версии миграции.
// Step - номер операции (с нуля), на которой произошла ошибка.
type MigrationError struct {
	Version   string
	Direction Direction
	Step      int
	Err       error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("migration %s (%s, step %d): %v", e.Version, e.Direction, e.Step, e.Err)
}

func (e *MigrationError) Unwrap() error {
	return e.Err
}
