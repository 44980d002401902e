package db_migrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

const (
	DefaultLockKey     = "db_migrator"
	DefaultLockRetries = 5
)

// NewMigrationsManager создает экземпляр управляющего миграциями (выступает в качестве фасада).
// target - целевое хранилище, в котором выполняются операции и ведется учет миграций.
func NewMigrationsManager(target Target, opts ...ManagerOption) (*MigrationManager, error) {
	if target == nil {
		return nil, errors.New("migration target is nil")
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.ErrorLevel)

	manager := MigrationManager{
		target:             target,
		registry:           NewRegistry(),
		logger:             logger,
		logLevel:           logrus.ErrorLevel,
		lockKey:            DefaultLockKey,
		lockRetries:        DefaultLockRetries,
		lockBackoffInitial: 100 * time.Millisecond,
		lockBackoffMax:     5 * time.Second,
	}

	for _, opt := range opts {
		opt(&manager)
	}

	if manager.registry == nil {
		return nil, errors.New("migration registry is nil")
	}

	return &manager, nil
}

type MigrationManager struct {
	target   Target
	registry *Registry

	logger   logrus.FieldLogger
	logLevel logrus.Level

	lockKey            string
	lockRetries        uint64
	lockBackoffInitial time.Duration
	lockBackoffMax     time.Duration

	mutex sync.Mutex
}

// Register сохраняет миграции в реестр. Ошибка регистрации означает некорректный набор миграций,
// продолжать работу с ним нельзя.
func (m *MigrationManager) Register(migrations ...*Migration) error {
	return m.registry.Register(migrations...)
}

func (m *MigrationManager) Registry() *Registry {
	return m.registry
}

type MigrationStatus struct {
	Descriptor

	State     State
	Step      int
	Total     int
	AppliedAt time.Time
	Error     string
}

// Status возвращает состояние каждой зарегистрированной или учтенной в хранилище миграции
// в порядке возрастания версий.
func (m *MigrationManager) Status(ctx context.Context) ([]MigrationStatus, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	records, err := m.loadRecords(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]MigrationStatus, 0, m.registry.Len()+len(records))
	for _, migration := range m.registry.AllOrderedByVersion() {
		status := MigrationStatus{
			Descriptor: migration.Descriptor,
			State:      StatePending,
			Total:      len(migration.Up),
		}
		if record, ok := records[migration.Version]; ok {
			status.State = record.State
			status.Step = record.Step
			status.AppliedAt = record.AppliedAt
			status.Error = record.Error
		}
		result = append(result, status)
	}

	for version, record := range records {
		if _, ok := m.registry.Lookup(version); ok {
			continue
		}
		result = append(result, MigrationStatus{
			Descriptor: record.Descriptor,
			State:      StateMissing,
			Step:       record.Step,
			AppliedAt:  record.AppliedAt,
			Error:      record.Error,
		})
	}

	sortStatuses(result)
	return result, nil
}

// Pending возвращает миграции, которые будут выполнены при следующем вызове Migrate.
func (m *MigrationManager) Pending(ctx context.Context) ([]Descriptor, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	records, err := m.loadRecords(ctx)
	if err != nil {
		return nil, err
	}

	pending := m.registry.Pending(appliedFilter(records))
	result := make([]Descriptor, 0, len(pending))
	for _, migration := range pending {
		result = append(result, migration.Descriptor)
	}
	return result, nil
}

// CheckFulfillment проверяет корректность установки всех миграций: что нет миграций, завершившихся ошибкой,
// и что все зарегистрированные миграции выполнены.
func (m *MigrationManager) CheckFulfillment(ctx context.Context) (reasonErr error, ok bool, err error) {
	statuses, err := m.Status(ctx)
	if err != nil {
		return nil, false, err
	}

	for i := range statuses {
		if statuses[i].State == StateFailed {
			return ErrHasFailedMigrations, false, nil
		}
	}

	for i := range statuses {
		if statuses[i].State != StateApplied && statuses[i].State != StateMissing {
			return ErrHasForthcomingMigrations, false, nil
		}
	}

	return nil, true, nil
}

func (m *MigrationManager) loadRecords(ctx context.Context) (map[string]AppliedRecord, error) {
	if err := m.target.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure migrations table: %w", err)
	}

	records, err := m.target.Records(ctx)
	if err != nil {
		return nil, fmt.Errorf("read applied migrations: %w", err)
	}

	result := make(map[string]AppliedRecord, len(records))
	for _, record := range records {
		result[record.Version] = record
	}
	return result, nil
}

// acquireLock берет блокировку целевого хранилища, повторяя попытки при ErrLockContention
// с экспоненциальной задержкой.
func (m *MigrationManager) acquireLock(ctx context.Context) (func(), error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = m.lockBackoffInitial
	policy.MaxInterval = m.lockBackoffMax
	policy.MaxElapsedTime = 0

	var release func()
	operation := func() error {
		r, err := m.target.Acquire(ctx, m.lockKey)
		if err != nil {
			if errors.Is(err, ErrLockContention) {
				return err
			}
			return backoff.Permanent(err)
		}
		release = r
		return nil
	}

	notify := func(err error, wait time.Duration) {
		m.logger.WithField("lock", m.lockKey).Warnf("migration lock is busy, retrying in %s", wait)
	}

	err := backoff.RetryNotify(
		operation,
		backoff.WithContext(backoff.WithMaxRetries(policy, m.lockRetries), ctx),
		notify,
	)
	if err != nil {
		return nil, fmt.Errorf("acquire migration lock %q: %w", m.lockKey, err)
	}

	return release, nil
}

// inTransaction выполняет fn в транзакции хранилища, если оно их поддерживает.
func (m *MigrationManager) inTransaction(ctx context.Context, fn func(store StoreAdapter, tracker Tracker) error) error {
	if transactor, ok := m.target.(Transactor); ok {
		return transactor.InTransaction(ctx, fn)
	}
	return fn(m.target, m.target)
}

func appliedFilter(records map[string]AppliedRecord) func(version string) bool {
	return func(version string) bool {
		record, ok := records[version]
		return ok && record.State == StateApplied
	}
}

func sortStatuses(statuses []MigrationStatus) {
	sort.SliceStable(statuses, func(i, j int) bool {
		return statuses[i].Version < statuses[j].Version
	})
}
