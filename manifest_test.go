package db_migrator

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const customerManifest = `
migrations:
  - version: "2024/04/18 15:46:55:1687541"
    description: "Update: Customer Table"
    change_type: update
    auto_reversing: true
    up:
      - add_column:
          table: Customer
          column: {name: NickName, type: VARCHAR(200), nullable: true}

  - version: "2024/01/01 00:00:00:0000000"
    description: "Create: Customer Table"
    change_type: create
    auto_reversing: true
    up:
      - create_table:
          table: Customer
          columns:
            - {name: Id, type: INTEGER, primary_key: true}
            - {name: Username, type: VARCHAR(1000), nullable: true}
            - {name: Email, type: VARCHAR(1000), nullable: true}

  - version: "2024/05/01 00:00:00:0000000"
    description: "Update: drop customer email"
    up:
      - drop_column: {table: Customer, column: Email}
    down:
      - add_column:
          table: Customer
          column: {name: Email, type: VARCHAR(1000), nullable: true}
`

func TestLoadManifest(t *testing.T) {
	migrations, err := LoadManifest(strings.NewReader(customerManifest))
	require.NoError(t, err)
	require.Len(t, migrations, 3)

	nickname := migrations[0]
	assert.Equal(t, "2024/04/18 15:46:55:1687541", nickname.Version)
	assert.Equal(t, ChangeUpdate, nickname.ChangeType)
	assert.True(t, nickname.AutoReversing)
	assert.Equal(t, []Operation{addNickname()}, nickname.Up)

	create := migrations[1]
	assert.Equal(t, ChangeCreate, create.ChangeType)
	require.Len(t, create.Up, 1)
	table, ok := create.Up[0].(CreateTable)
	require.True(t, ok)
	assert.Equal(t, createCustomer(), table)

	dropEmail := migrations[2]
	assert.Equal(t, ChangeUpdate, dropEmail.ChangeType)
	assert.False(t, dropEmail.AutoReversing)
	assert.Equal(t, []Operation{DropColumn{TableName: "Customer", ColumnName: "Email"}}, dropEmail.Up)
	require.Len(t, dropEmail.Down, 1)
	assert.Equal(t, KindAddColumn, dropEmail.Down[0].Kind())

	registry := NewRegistry()
	require.NoError(t, registry.Register(migrations...))
	assert.Equal(t, "2024/01/01 00:00:00:0000000", registry.AllOrderedByVersion()[0].Version)
}

func TestLoadManifestRejectsAmbiguousOperation(t *testing.T) {
	_, err := LoadManifest(strings.NewReader(`
migrations:
  - version: "1"
    up:
      - drop_table: {table: Customer}
        drop_column: {table: Customer, column: Email}
`))
	assert.ErrorIs(t, err, ErrInvalidOperation)

	_, err = LoadManifest(strings.NewReader(`
migrations:
  - version: "1"
    up:
      - truncate_table: {table: Customer}
`))
	assert.Error(t, err)
}

func TestLoadManifestAutoReversingDropFailsAtRegistration(t *testing.T) {
	migrations, err := LoadManifest(strings.NewReader(`
migrations:
  - version: "1"
    auto_reversing: true
    up:
      - drop_table: {table: Customer}
`))
	require.NoError(t, err)

	assert.ErrorIs(t, NewRegistry().Register(migrations...), ErrNotReversible)
}

func TestLoadManifestFileAndMigrate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "migrations.yaml")
	require.NoError(t, os.WriteFile(path, []byte(customerManifest), 0o600))

	migrations, err := LoadManifestFile(path)
	require.NoError(t, err)

	ctx := context.Background()
	db := newTestDB(t)
	manager := newTestManager(t, NewGormStore(db))
	require.NoError(t, manager.Register(migrations...))

	require.NoError(t, manager.Migrate(ctx))
	assert.True(t, db.Migrator().HasColumn("Customer", "NickName"))
	assert.False(t, db.Migrator().HasColumn("Customer", "Email"))

	require.NoError(t, manager.Downgrade(ctx, "2024/04/18 15:46:55:1687541"))
	assert.True(t, db.Migrator().HasColumn("Customer", "Email"))
	assert.True(t, db.Migrator().HasColumn("Customer", "NickName"))
}
