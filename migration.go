package db_migrator

import (
	"fmt"
)

type ChangeType string

const (
	ChangeCreate ChangeType = "create"
	ChangeUpdate ChangeType = "update"
)

func (t ChangeType) valid() bool {
	return t == ChangeCreate || t == ChangeUpdate
}

// Descriptor - неизменяемое описание миграции. Версии сравниваются лексикографически.
type Descriptor struct {
	Version     string
	Description string
	ChangeType  ChangeType
}

func (d Descriptor) String() string {
	return fmt.Sprintf("%s (%s: %s)", d.Version, d.ChangeType, d.Description)
}

// Migration - упорядоченный набор операций с описанием.
// Если AutoReversing выставлен, операции отката выводятся из Up, и Down должен быть пустым.
// Миграция без Down и без AutoReversing считается необратимой.
type Migration struct {
	Descriptor

	Up   []Operation
	Down []Operation

	AutoReversing bool

	inverted []Operation
}

// NewMigration создает автоматически откатываемую миграцию и сразу проверяет обратимость операций.
func NewMigration(descriptor Descriptor, up ...Operation) (*Migration, error) {
	m := &Migration{
		Descriptor:    descriptor,
		Up:            up,
		AutoReversing: true,
	}
	if err := m.prepare(); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate проверяет определение миграции. Для AutoReversing миграций проверяется,
// что каждая операция из Up обратима.
func (m *Migration) Validate() error {
	_, err := m.derive()
	return err
}

func (m *Migration) prepare() error {
	inverted, err := m.derive()
	if err != nil {
		return err
	}
	m.inverted = inverted
	return nil
}

func (m *Migration) derive() ([]Operation, error) {
	if m.Version == "" {
		return nil, fmt.Errorf("%w: empty version", ErrInvalidMigration)
	}
	if !m.ChangeType.valid() {
		return nil, fmt.Errorf("%w: %s: unknown change type %q", ErrInvalidMigration, m.Version, m.ChangeType)
	}
	if len(m.Up) == 0 {
		return nil, fmt.Errorf("%w: %s: no up operations", ErrInvalidMigration, m.Version)
	}
	if m.AutoReversing && len(m.Down) > 0 {
		return nil, fmt.Errorf("%w: %s: auto-reversing migration declares down operations", ErrInvalidMigration, m.Version)
	}

	for i, op := range m.Up {
		if op == nil {
			return nil, fmt.Errorf("%w: %s: up operation %d is nil", ErrInvalidMigration, m.Version, i)
		}
		if err := op.Validate(); err != nil {
			return nil, fmt.Errorf("%s: up operation %d: %w", m.Version, i, err)
		}
	}
	for i, op := range m.Down {
		if op == nil {
			return nil, fmt.Errorf("%w: %s: down operation %d is nil", ErrInvalidMigration, m.Version, i)
		}
		if err := op.Validate(); err != nil {
			return nil, fmt.Errorf("%s: down operation %d: %w", m.Version, i, err)
		}
	}

	if !m.AutoReversing {
		return nil, nil
	}

	inverted := make([]Operation, len(m.Up))
	for i, op := range m.Up {
		inverse, err := Invert(op)
		if err != nil {
			return nil, fmt.Errorf("%s: up operation %d: %w", m.Version, i, err)
		}
		inverted[i] = inverse
	}
	return inverted, nil
}

// Reversible сообщает, можно ли откатить полностью примененную миграцию.
func (m *Migration) Reversible() bool {
	return m.AutoReversing || len(m.Down) > 0
}

// downOperations возвращает операции отката в порядке выполнения для миграции,
// у которой применено applied операций Up.
func (m *Migration) downOperations(applied int) ([]Operation, error) {
	if applied == 0 {
		return nil, nil
	}

	var source []Operation
	switch {
	case m.AutoReversing:
		source = m.inverted[:applied]
	case len(m.Down) == 0:
		return nil, fmt.Errorf("%w: migration %s has no down operations", ErrNotReversible, m.Version)
	case applied < len(m.Up):
		return nil, fmt.Errorf("%w: %s (%d of %d operations applied)", ErrIncomplete, m.Version, applied, len(m.Up))
	default:
		source = m.Down
	}

	ops := make([]Operation, 0, len(source))
	for i := len(source) - 1; i >= 0; i-- {
		ops = append(ops, source[i])
	}
	return ops, nil
}
