package db_migrator

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"

	"github.com/1RohitKumawat/MultiVendorSolution/internal/models"
	"github.com/1RohitKumawat/MultiVendorSolution/internal/repository"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore реализует Target поверх gorm. Таблица учета миграций хранится в той же базе, что и схема.
type GormStore struct {
	db    *gorm.DB
	table string
	inTx  bool

	// используется для диалектов без рекомендательных блокировок (sqlite)
	mutex *sync.Mutex
}

type StoreOption func(*GormStore)

func WithTrackerTable(name string) StoreOption {
	return func(s *GormStore) {
		s.table = name
	}
}

func NewGormStore(db *gorm.DB, opts ...StoreOption) *GormStore {
	store := GormStore{
		db:    db,
		table: models.DefaultTableName,
		mutex: &sync.Mutex{},
	}

	for _, opt := range opts {
		opt(&store)
	}

	return &store
}

func (s *GormStore) withTx(tx *gorm.DB) *GormStore {
	return &GormStore{db: tx, table: s.table, inTx: true, mutex: s.mutex}
}

func (s *GormStore) InTransaction(ctx context.Context, fn func(store StoreAdapter, tracker Tracker) error) error {
	if s.inTx {
		return fn(s, s)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txStore := s.withTx(tx)
		return fn(txStore, txStore)
	})
}

func (s *GormStore) ExecuteSchemaChange(ctx context.Context, op Operation) error {
	if s.inTx {
		return executeSchemaChange(s.db.WithContext(ctx), op)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return executeSchemaChange(tx, op)
	})
}

func executeSchemaChange(tx *gorm.DB, op Operation) error {
	switch o := op.(type) {
	case AddColumn:
		if err := checkAddColumn(tx, o); err != nil {
			return err
		}
		return tx.Exec(
			"ALTER TABLE ? ADD COLUMN ? ?",
			clause.Table{Name: o.TableName}, clause.Column{Name: o.Column.Name}, columnDefinition(o.Column),
		).Error

	case DropColumn:
		return tx.Exec(
			"ALTER TABLE ? DROP COLUMN ?",
			clause.Table{Name: o.TableName}, clause.Column{Name: o.ColumnName},
		).Error

	case RenameColumn:
		return tx.Exec(
			"ALTER TABLE ? RENAME COLUMN ? TO ?",
			clause.Table{Name: o.TableName}, clause.Column{Name: o.From}, clause.Column{Name: o.To},
		).Error

	case CreateTable:
		sql, values := createTableStatement(o)
		return tx.Exec(sql, values...).Error

	case DropTable:
		return tx.Exec("DROP TABLE ?", clause.Table{Name: o.TableName}).Error

	default:
		return fmt.Errorf("%w: unsupported operation %T", ErrInvalidOperation, op)
	}
}

// checkAddColumn не дает добавить NOT NULL столбец без значения по умолчанию в непустую таблицу.
func checkAddColumn(tx *gorm.DB, op AddColumn) error {
	if op.Column.Nullable || op.Column.Default != "" {
		return nil
	}

	var count int64
	if err := tx.Table(op.TableName).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf(
			"%w: column %s.%s is NOT NULL without default and table is not empty",
			ErrConstraintViolation, op.TableName, op.Column.Name,
		)
	}
	return nil
}

func columnDefinition(column Column) clause.Expr {
	var sql strings.Builder
	sql.WriteString(column.Type)
	if !column.Nullable {
		sql.WriteString(" NOT NULL")
	}
	if column.Default != "" {
		sql.WriteString(" DEFAULT ")
		sql.WriteString(column.Default)
	}
	return clause.Expr{SQL: sql.String()}
}

func createTableStatement(op CreateTable) (string, []interface{}) {
	values := []interface{}{clause.Table{Name: op.TableName}}
	definitions := make([]string, 0, len(op.Columns)+1)
	primaryKeys := make([]interface{}, 0)

	for _, column := range op.Columns {
		definitions = append(definitions, "? ?")
		values = append(values, clause.Column{Name: column.Name}, columnDefinition(column))
		if column.PrimaryKey {
			primaryKeys = append(primaryKeys, clause.Column{Name: column.Name})
		}
	}

	if len(primaryKeys) > 0 {
		definitions = append(definitions, "PRIMARY KEY ?")
		values = append(values, primaryKeys)
	}

	return "CREATE TABLE ? (" + strings.Join(definitions, ", ") + ")", values
}

func (s *GormStore) EnsureSchema(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	if repository.HasAppliedTable(db, s.table) {
		return nil
	}
	return repository.CreateAppliedTable(db, s.table)
}

func (s *GormStore) Records(ctx context.Context) ([]AppliedRecord, error) {
	rows, err := repository.GetAppliedSorted(s.db.WithContext(ctx), s.table, repository.OrderASC)
	if err != nil {
		return nil, err
	}

	records := make([]AppliedRecord, 0, len(rows))
	for i := range rows {
		records = append(records, recordFromModel(rows[i]))
	}
	return records, nil
}

func (s *GormStore) Has(ctx context.Context, version string) (bool, error) {
	row, err := repository.GetApplied(s.db.WithContext(ctx), s.table, version)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return row.State == models.StateApplied, nil
}

func (s *GormStore) MarkProgress(ctx context.Context, descriptor Descriptor, step int) error {
	return s.saveState(ctx, descriptor, models.StateApplying, step, "")
}

func (s *GormStore) MarkApplied(ctx context.Context, descriptor Descriptor, step int) error {
	return s.saveState(ctx, descriptor, models.StateApplied, step, "")
}

func (s *GormStore) MarkFailed(ctx context.Context, descriptor Descriptor, step int, cause error) error {
	message := ""
	if cause != nil {
		message = cause.Error()
	}
	return s.saveState(ctx, descriptor, models.StateFailure, step, message)
}

func (s *GormStore) MarkReverting(ctx context.Context, version string, reverted int) error {
	return repository.UpdateReverted(s.db.WithContext(ctx), s.table, version, reverted)
}

func (s *GormStore) MarkReverted(ctx context.Context, version string) error {
	return repository.DeleteApplied(s.db.WithContext(ctx), s.table, version)
}

func (s *GormStore) saveState(ctx context.Context, descriptor Descriptor, state models.MigrationState, step int, message string) error {
	return repository.SaveState(s.db.WithContext(ctx), s.table, repository.SaveStateRequest{
		Version:     descriptor.Version,
		Description: descriptor.Description,
		ChangeType:  string(descriptor.ChangeType),
		State:       state,
		Step:        step,
		Error:       message,
	})
}

// Acquire берет pg_try_advisory_lock на выделенном соединении для postgres и мьютекс процесса для остальных диалектов.
func (s *GormStore) Acquire(ctx context.Context, key string) (func(), error) {
	if s.db.Dialector.Name() != "postgres" {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !s.mutex.TryLock() {
			return nil, ErrLockContention
		}
		return s.mutex.Unlock, nil
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return nil, err
	}

	// advisory lock привязан к сессии, поэтому блокировка и разблокировка идут через одно соединение
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return nil, err
	}

	lockID := hashLockKey(key)

	var locked bool
	if err = conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", lockID).Scan(&locked); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("pg_try_advisory_lock(%d): %w", lockID, err)
	}
	if !locked {
		_ = conn.Close()
		return nil, ErrLockContention
	}

	release := func() {
		_, _ = conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", lockID)
		_ = conn.Close()
	}
	return release, nil
}

func hashLockKey(key string) int64 {
	h := fnv.New64a()
	// fnv always writes with no error
	_, _ = h.Write([]byte(key))
	return int64(h.Sum64() & 0x7FFFFFFFFFFFFFFF)
}

func recordFromModel(row models.AppliedModel) AppliedRecord {
	state := StateApplied
	switch row.State {
	case models.StateApplying:
		state = StateApplying
	case models.StateFailure:
		state = StateFailed
	case models.StateReverting:
		state = StateReverting
	}

	return AppliedRecord{
		Descriptor: Descriptor{
			Version:     row.Version,
			Description: row.Description,
			ChangeType:  ChangeType(row.ChangeType),
		},
		State:     state,
		Step:      row.Step,
		Reverted:  row.Reverted,
		Error:     row.Error,
		AppliedAt: row.AppliedOn.Time,
		UpdatedAt: row.UpdatedOn.Time,
	}
}
