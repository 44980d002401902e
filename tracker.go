package db_migrator

import (
	"context"
	"time"
)

type State string

const (
	StatePending   State = "pending"
	StateApplying  State = "applying"
	StateApplied   State = "applied"
	StateFailed    State = "failed"
	StateReverting State = "reverting"
	// StateMissing - миграция учтена в хранилище, но не зарегистрирована.
	StateMissing State = "missing"
)

// AppliedRecord - запись учета миграции в целевом хранилище.
type AppliedRecord struct {
	Descriptor

	State     State
	Step      int
	Reverted  int
	Error     string
	AppliedAt time.Time
	UpdatedAt time.Time
}

// Tracker ведет учет примененных миграций. Хранилище учета должно находиться рядом со схемой,
// чтобы состояние учета и схемы не расходилось после сбоя.
type Tracker interface {
	// EnsureSchema создает таблицу учета, если ее еще нет.
	EnsureSchema(ctx context.Context) error
	Records(ctx context.Context) ([]AppliedRecord, error)
	Has(ctx context.Context, version string) (bool, error)

	MarkProgress(ctx context.Context, descriptor Descriptor, step int) error
	MarkApplied(ctx context.Context, descriptor Descriptor, step int) error
	MarkFailed(ctx context.Context, descriptor Descriptor, step int, cause error) error
	MarkReverting(ctx context.Context, version string, reverted int) error
	MarkReverted(ctx context.Context, version string) error
}

// Locker предоставляет эксклюзивную рекомендательную блокировку целевого хранилища.
// Если блокировка занята, Acquire возвращает ErrLockContention.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// Target - целевое хранилище: исполнение операций, учет миграций и блокировка.
type Target interface {
	StoreAdapter
	Tracker
	Locker
}

// Transactor реализуется хранилищами, которые умеют выполнять операцию и запись учета в одной транзакции.
type Transactor interface {
	InTransaction(ctx context.Context, fn func(store StoreAdapter, tracker Tracker) error) error
}
