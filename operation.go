package db_migrator

import (
	"context"
	"errors"
	"fmt"
)

type OperationKind string

const (
	KindAddColumn    OperationKind = "add_column"
	KindDropColumn   OperationKind = "drop_column"
	KindRenameColumn OperationKind = "rename_column"
	KindCreateTable  OperationKind = "create_table"
	KindDropTable    OperationKind = "drop_table"
)

// Column описывает столбец таблицы. Type передается в хранилище как есть (например, "VARCHAR(200)").
type Column struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Nullable   bool   `yaml:"nullable"`
	Default    string `yaml:"default"`
	PrimaryKey bool   `yaml:"primary_key"`
}

func (c Column) validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: column name is empty", ErrInvalidOperation)
	}
	if c.Type == "" {
		return fmt.Errorf("%w: column %s has no type", ErrInvalidOperation, c.Name)
	}
	return nil
}

// Operation - единичное изменение схемы, описанное данными.
// Реализации: AddColumn, DropColumn, RenameColumn, CreateTable, DropTable.
type Operation interface {
	Kind() OperationKind
	Table() string
	Validate() error
	String() string
}

type AddColumn struct {
	TableName string
	Column    Column
}

type DropColumn struct {
	TableName  string
	ColumnName string
	// Preserved хранит определение удаляемого столбца, без него операция необратима.
	Preserved *Column
}

type RenameColumn struct {
	TableName string
	From      string
	To        string
}

type CreateTable struct {
	TableName string
	Columns   []Column
}

type DropTable struct {
	TableName string
	Preserved []Column
}

func (o AddColumn) Kind() OperationKind    { return KindAddColumn }
func (o DropColumn) Kind() OperationKind   { return KindDropColumn }
func (o RenameColumn) Kind() OperationKind { return KindRenameColumn }
func (o CreateTable) Kind() OperationKind  { return KindCreateTable }
func (o DropTable) Kind() OperationKind    { return KindDropTable }

func (o AddColumn) Table() string    { return o.TableName }
func (o DropColumn) Table() string   { return o.TableName }
func (o RenameColumn) Table() string { return o.TableName }
func (o CreateTable) Table() string  { return o.TableName }
func (o DropTable) Table() string    { return o.TableName }

func (o AddColumn) String() string {
	return fmt.Sprintf("add column %s.%s %s", o.TableName, o.Column.Name, o.Column.Type)
}

func (o DropColumn) String() string {
	return fmt.Sprintf("drop column %s.%s", o.TableName, o.ColumnName)
}

func (o RenameColumn) String() string {
	return fmt.Sprintf("rename column %s.%s to %s", o.TableName, o.From, o.To)
}

func (o CreateTable) String() string {
	return fmt.Sprintf("create table %s (%d columns)", o.TableName, len(o.Columns))
}

func (o DropTable) String() string {
	return fmt.Sprintf("drop table %s", o.TableName)
}

func (o AddColumn) Validate() error {
	if o.TableName == "" {
		return fmt.Errorf("%w: %s: table name is empty", ErrInvalidOperation, o.Kind())
	}
	return o.Column.validate()
}

func (o DropColumn) Validate() error {
	if o.TableName == "" || o.ColumnName == "" {
		return fmt.Errorf("%w: %s: table and column names are required", ErrInvalidOperation, o.Kind())
	}
	if o.Preserved != nil {
		if err := o.Preserved.validate(); err != nil {
			return err
		}
		if o.Preserved.Name != o.ColumnName {
			return fmt.Errorf("%w: preserved column %s does not match %s", ErrInvalidOperation, o.Preserved.Name, o.ColumnName)
		}
	}
	return nil
}

func (o RenameColumn) Validate() error {
	if o.TableName == "" || o.From == "" || o.To == "" {
		return fmt.Errorf("%w: %s: table, from and to are required", ErrInvalidOperation, o.Kind())
	}
	if o.From == o.To {
		return fmt.Errorf("%w: %s: column %s renamed to itself", ErrInvalidOperation, o.Kind(), o.From)
	}
	return nil
}

func (o CreateTable) Validate() error {
	if o.TableName == "" {
		return fmt.Errorf("%w: %s: table name is empty", ErrInvalidOperation, o.Kind())
	}
	return validateColumns(o.TableName, o.Columns)
}

func (o DropTable) Validate() error {
	if o.TableName == "" {
		return fmt.Errorf("%w: %s: table name is empty", ErrInvalidOperation, o.Kind())
	}
	if o.Preserved != nil {
		return validateColumns(o.TableName, o.Preserved)
	}
	return nil
}

func validateColumns(table string, columns []Column) error {
	if len(columns) == 0 {
		return fmt.Errorf("%w: table %s has no columns", ErrInvalidOperation, table)
	}
	seen := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		if err := c.validate(); err != nil {
			return err
		}
		if _, ok := seen[c.Name]; ok {
			return fmt.Errorf("%w: table %s declares column %s twice", ErrInvalidOperation, table, c.Name)
		}
		seen[c.Name] = struct{}{}
	}
	return nil
}

// Invert возвращает обратную операцию.
// Для DropColumn и DropTable без сохраненного определения возвращает ErrNotReversible.
func Invert(op Operation) (Operation, error) {
	switch o := op.(type) {
	case AddColumn:
		column := o.Column
		return DropColumn{TableName: o.TableName, ColumnName: column.Name, Preserved: &column}, nil
	case DropColumn:
		if o.Preserved == nil {
			return nil, fmt.Errorf("%w: %s", ErrNotReversible, o)
		}
		return AddColumn{TableName: o.TableName, Column: *o.Preserved}, nil
	case RenameColumn:
		return RenameColumn{TableName: o.TableName, From: o.To, To: o.From}, nil
	case CreateTable:
		columns := make([]Column, len(o.Columns))
		copy(columns, o.Columns)
		return DropTable{TableName: o.TableName, Preserved: columns}, nil
	case DropTable:
		if o.Preserved == nil {
			return nil, fmt.Errorf("%w: %s", ErrNotReversible, o)
		}
		columns := make([]Column, len(o.Preserved))
		copy(columns, o.Preserved)
		return CreateTable{TableName: o.TableName, Columns: columns}, nil
	default:
		return nil, fmt.Errorf("%w: unknown operation %T", ErrInvalidOperation, op)
	}
}

// StoreAdapter исполняет одно изменение схемы. Если хранилище поддерживает транзакции,
// каждый вызов должен быть транзакционным.
type StoreAdapter interface {
	ExecuteSchemaChange(ctx context.Context, op Operation) error
}

func applyOperation(ctx context.Context, store StoreAdapter, op Operation) error {
	if err := op.Validate(); err != nil {
		return err
	}

	err := store.ExecuteSchemaChange(ctx, op)
	if err == nil {
		return nil
	}

	var schemaErr *SchemaError
	if errors.As(err, &schemaErr) ||
		errors.Is(err, ErrConstraintViolation) ||
		errors.Is(err, ErrInvalidOperation) {
		return err
	}
	return &SchemaError{Op: op, Err: err}
}
