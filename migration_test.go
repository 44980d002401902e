package db_migrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMigrationRejectsIrreversibleOperations(t *testing.T) {
	_, err := NewMigration(
		Descriptor{Version: "2024-03-01:drop_email", ChangeType: ChangeUpdate},
		addNickname(),
		DropColumn{TableName: "Customer", ColumnName: "Email"},
	)
	assert.ErrorIs(t, err, ErrNotReversible)
}

func TestMigrationValidate(t *testing.T) {
	tests := []struct {
		name      string
		migration Migration
	}{
		{"empty version", Migration{Descriptor: Descriptor{ChangeType: ChangeCreate}, Up: []Operation{createCustomer()}}},
		{"unknown change type", Migration{Descriptor: Descriptor{Version: "1", ChangeType: "delete"}, Up: []Operation{createCustomer()}}},
		{"no up operations", Migration{Descriptor: Descriptor{Version: "1", ChangeType: ChangeCreate}}},
		{"auto-reversing with down", Migration{
			Descriptor:    Descriptor{Version: "1", ChangeType: ChangeCreate},
			Up:            []Operation{createCustomer()},
			Down:          []Operation{DropTable{TableName: "Customer"}},
			AutoReversing: true,
		}},
		{"nil operation", Migration{Descriptor: Descriptor{Version: "1", ChangeType: ChangeCreate}, Up: []Operation{nil}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.migration.Validate(), ErrInvalidMigration)
		})
	}
}

func TestDownOperationsAutoReversing(t *testing.T) {
	rename := RenameColumn{TableName: "Customer", From: "Username", To: "Login"}
	m := mustMigration(t, "2024-01-01:create_customer", createCustomer(), addNickname(), rename)

	down, err := m.downOperations(3)
	require.NoError(t, err)
	require.Len(t, down, 3)
	assert.Equal(t, RenameColumn{TableName: "Customer", From: "Login", To: "Username"}, down[0])
	assert.Equal(t, KindDropColumn, down[1].Kind())
	assert.Equal(t, KindDropTable, down[2].Kind())

	// частично примененная миграция откатывает только примененные операции
	down, err = m.downOperations(1)
	require.NoError(t, err)
	require.Len(t, down, 1)
	assert.Equal(t, KindDropTable, down[0].Kind())

	down, err = m.downOperations(0)
	require.NoError(t, err)
	assert.Empty(t, down)
}

func TestDownOperationsExplicit(t *testing.T) {
	m := &Migration{
		Descriptor: Descriptor{Version: "2024-03-01:swap_email", ChangeType: ChangeUpdate},
		Up: []Operation{
			DropColumn{TableName: "Customer", ColumnName: "Email"},
			addNickname(),
		},
		Down: []Operation{
			AddColumn{TableName: "Customer", Column: Column{Name: "Email", Type: "VARCHAR(1000)", Nullable: true}},
			DropColumn{TableName: "Customer", ColumnName: "NickName"},
		},
	}
	require.NoError(t, NewRegistry().Register(m))
	assert.True(t, m.Reversible())

	down, err := m.downOperations(2)
	require.NoError(t, err)
	require.Len(t, down, 2)
	assert.Equal(t, KindDropColumn, down[0].Kind())
	assert.Equal(t, KindAddColumn, down[1].Kind())

	_, err = m.downOperations(1)
	assert.ErrorIs(t, err, ErrIncomplete)
}

func TestDownOperationsIrreversible(t *testing.T) {
	m := &Migration{
		Descriptor: Descriptor{Version: "2024-03-01:drop_email", ChangeType: ChangeUpdate},
		Up:         []Operation{DropColumn{TableName: "Customer", ColumnName: "Email"}},
	}
	require.NoError(t, NewRegistry().Register(m))
	assert.False(t, m.Reversible())

	_, err := m.downOperations(1)
	assert.ErrorIs(t, err, ErrNotReversible)
}
