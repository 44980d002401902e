package db_migrator

import (
	"fmt"
	"sort"
	"sync"

	"github.com/hashicorp/go-multierror"
)

// Registry хранит зарегистрированные миграции. Заполняется при старте, после чего используется только на чтение.
type Registry struct {
	mutex      sync.RWMutex
	migrations map[string]*Migration
	ordered    []*Migration
}

func NewRegistry() *Registry {
	return &Registry{
		migrations: make(map[string]*Migration),
	}
}

// Register проверяет и сохраняет миграции. Ошибки всех миграций пакета возвращаются вместе;
// при любой ошибке ни одна миграция пакета не сохраняется.
func (r *Registry) Register(migrations ...*Migration) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	var result *multierror.Error
	batch := make(map[string]struct{}, len(migrations))

	for i, m := range migrations {
		if m == nil {
			result = multierror.Append(result, fmt.Errorf("%w: migration %d is nil", ErrInvalidMigration, i))
			continue
		}
		if err := m.prepare(); err != nil {
			result = multierror.Append(result, err)
			continue
		}

		_, registered := r.migrations[m.Version]
		_, inBatch := batch[m.Version]
		if registered || inBatch {
			result = multierror.Append(result, fmt.Errorf("%w: %s", ErrDuplicateVersion, m.Version))
			continue
		}
		batch[m.Version] = struct{}{}
	}

	if err := result.ErrorOrNil(); err != nil {
		return err
	}

	for _, m := range migrations {
		r.migrations[m.Version] = m
		r.ordered = append(r.ordered, m)
	}
	sort.SliceStable(r.ordered, func(i, j int) bool {
		return r.ordered[i].Version < r.ordered[j].Version
	})

	return nil
}

// MustRegister паникует при ошибке регистрации: процесс не должен продолжать работу с некорректным реестром.
func (r *Registry) MustRegister(migrations ...*Migration) {
	if err := r.Register(migrations...); err != nil {
		panic(err)
	}
}

func (r *Registry) Lookup(version string) (*Migration, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	m, ok := r.migrations[version]
	return m, ok
}

func (r *Registry) Len() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return len(r.ordered)
}

// AllOrderedByVersion возвращает миграции в порядке возрастания версий.
func (r *Registry) AllOrderedByVersion() []*Migration {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	result := make([]*Migration, len(r.ordered))
	copy(result, r.ordered)
	return result
}

// Pending возвращает миграции, которых нет в applied, в порядке возрастания версий.
func (r *Registry) Pending(applied func(version string) bool) []*Migration {
	all := r.AllOrderedByVersion()

	pending := make([]*Migration, 0, len(all))
	for _, m := range all {
		if applied(m.Version) {
			continue
		}
		pending = append(pending, m)
	}
	return pending
}
