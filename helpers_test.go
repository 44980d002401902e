package db_migrator

import (
	"context"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func newTestManager(t *testing.T, target Target, opts ...ManagerOption) *MigrationManager {
	t.Helper()

	testLogger := logrus.New()
	testLogger.SetLevel(logrus.DebugLevel)
	testLogger.SetOutput(testWriter{t: t})

	manager, err := NewMigrationsManager(target, append([]ManagerOption{WithLogger(testLogger)}, opts...)...)
	require.NoError(t, err)
	return manager
}

type testWriter struct {
	t *testing.T
}

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

// schemaSnapshot возвращает таблицы и их столбцы, кроме таблицы учета миграций.
func schemaSnapshot(t *testing.T, db *gorm.DB) map[string][]string {
	t.Helper()

	tables, err := db.Migrator().GetTables()
	require.NoError(t, err)

	snapshot := make(map[string][]string)
	for _, table := range tables {
		if table == "schema_migrations" {
			continue
		}

		columnTypes, err := db.Migrator().ColumnTypes(table)
		require.NoError(t, err)

		columns := make([]string, 0, len(columnTypes))
		for _, column := range columnTypes {
			columns = append(columns, column.Name())
		}
		sort.Strings(columns)
		snapshot[table] = columns
	}
	return snapshot
}

func mustMigration(t *testing.T, version string, up ...Operation) *Migration {
	t.Helper()

	m, err := NewMigration(Descriptor{Version: version, Description: version, ChangeType: ChangeUpdate}, up...)
	require.NoError(t, err)
	return m
}

func createCustomer() CreateTable {
	return CreateTable{
		TableName: "Customer",
		Columns: []Column{
			{Name: "Id", Type: "INTEGER", PrimaryKey: true},
			{Name: "Username", Type: "VARCHAR(1000)", Nullable: true},
			{Name: "Email", Type: "VARCHAR(1000)", Nullable: true},
		},
	}
}

func addNickname() AddColumn {
	return AddColumn{
		TableName: "Customer",
		Column:    Column{Name: "NickName", Type: "VARCHAR(200)", Nullable: true},
	}
}

// memoryTarget - Target без транзакций, запоминающий выполненные операции.
type memoryTarget struct {
	mutex   sync.Mutex
	lock    sync.Mutex
	ops     []Operation
	fail    map[string]error
	records map[string]AppliedRecord
}

func newMemoryTarget() *memoryTarget {
	return &memoryTarget{
		fail:    make(map[string]error),
		records: make(map[string]AppliedRecord),
	}
}

func (m *memoryTarget) ExecuteSchemaChange(_ context.Context, op Operation) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if err, ok := m.fail[op.String()]; ok {
		return err
	}
	m.ops = append(m.ops, op)
	return nil
}

func (m *memoryTarget) executed() []string {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	result := make([]string, 0, len(m.ops))
	for _, op := range m.ops {
		result = append(result, op.String())
	}
	return result
}

func (m *memoryTarget) EnsureSchema(context.Context) error { return nil }

func (m *memoryTarget) Records(context.Context) ([]AppliedRecord, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	result := make([]AppliedRecord, 0, len(m.records))
	for _, record := range m.records {
		result = append(result, record)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Version < result[j].Version })
	return result, nil
}

func (m *memoryTarget) Has(_ context.Context, version string) (bool, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	record, ok := m.records[version]
	return ok && record.State == StateApplied, nil
}

func (m *memoryTarget) save(descriptor Descriptor, state State, step int, message string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.records[descriptor.Version] = AppliedRecord{Descriptor: descriptor, State: state, Step: step, Error: message}
	return nil
}

func (m *memoryTarget) MarkProgress(_ context.Context, descriptor Descriptor, step int) error {
	return m.save(descriptor, StateApplying, step, "")
}

func (m *memoryTarget) MarkApplied(_ context.Context, descriptor Descriptor, step int) error {
	return m.save(descriptor, StateApplied, step, "")
}

func (m *memoryTarget) MarkFailed(_ context.Context, descriptor Descriptor, step int, cause error) error {
	return m.save(descriptor, StateFailed, step, cause.Error())
}

func (m *memoryTarget) MarkReverting(_ context.Context, version string, reverted int) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	record := m.records[version]
	record.State = StateReverting
	record.Reverted = reverted
	m.records[version] = record
	return nil
}

func (m *memoryTarget) MarkReverted(_ context.Context, version string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	delete(m.records, version)
	return nil
}

func (m *memoryTarget) Acquire(context.Context, string) (func(), error) {
	if !m.lock.TryLock() {
		return nil, ErrLockContention
	}
	return m.lock.Unlock, nil
}
