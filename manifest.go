package db_migrator

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Manifest - файл с описанием миграций. Операции задаются данными, по одному ключу на элемент списка.
//
//	migrations:
//	  - version: "2024-04-18:add_nickname"
//	    description: "Update: Customer Table"
//	    change_type: update
//	    auto_reversing: true
//	    up:
//	      - add_column: {table: Customer, column: {name: NickName, type: VARCHAR(200), nullable: true}}
type Manifest struct {
	Migrations []ManifestMigration `yaml:"migrations"`
}

type ManifestMigration struct {
	Version       string              `yaml:"version"`
	Description   string              `yaml:"description"`
	ChangeType    ChangeType          `yaml:"change_type"`
	AutoReversing bool                `yaml:"auto_reversing"`
	Up            []ManifestOperation `yaml:"up"`
	Down          []ManifestOperation `yaml:"down"`
}

type ManifestOperation struct {
	AddColumn *struct {
		Table  string `yaml:"table"`
		Column Column `yaml:"column"`
	} `yaml:"add_column"`
	DropColumn *struct {
		Table     string  `yaml:"table"`
		Column    string  `yaml:"column"`
		Preserved *Column `yaml:"preserved"`
	} `yaml:"drop_column"`
	RenameColumn *struct {
		Table string `yaml:"table"`
		From  string `yaml:"from"`
		To    string `yaml:"to"`
	} `yaml:"rename_column"`
	CreateTable *struct {
		Table   string   `yaml:"table"`
		Columns []Column `yaml:"columns"`
	} `yaml:"create_table"`
	DropTable *struct {
		Table     string   `yaml:"table"`
		Preserved []Column `yaml:"preserved"`
	} `yaml:"drop_table"`
}

func (o ManifestOperation) operation() (Operation, error) {
	var result []Operation

	if o.AddColumn != nil {
		result = append(result, AddColumn{TableName: o.AddColumn.Table, Column: o.AddColumn.Column})
	}
	if o.DropColumn != nil {
		result = append(result, DropColumn{TableName: o.DropColumn.Table, ColumnName: o.DropColumn.Column, Preserved: o.DropColumn.Preserved})
	}
	if o.RenameColumn != nil {
		result = append(result, RenameColumn{TableName: o.RenameColumn.Table, From: o.RenameColumn.From, To: o.RenameColumn.To})
	}
	if o.CreateTable != nil {
		result = append(result, CreateTable{TableName: o.CreateTable.Table, Columns: o.CreateTable.Columns})
	}
	if o.DropTable != nil {
		result = append(result, DropTable{TableName: o.DropTable.Table, Preserved: o.DropTable.Preserved})
	}

	if len(result) != 1 {
		return nil, fmt.Errorf("%w: manifest operation must declare exactly one kind, got %d", ErrInvalidOperation, len(result))
	}
	return result[0], nil
}

// LoadManifest читает миграции из YAML. Миграции не регистрируются и не проверяются на обратимость,
// это делает Registry.
func LoadManifest(reader io.Reader) ([]*Migration, error) {
	var manifest Manifest

	decoder := yaml.NewDecoder(reader)
	decoder.KnownFields(true)
	if err := decoder.Decode(&manifest); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}

	migrations := make([]*Migration, 0, len(manifest.Migrations))
	for _, item := range manifest.Migrations {
		up, err := manifestOperations(item.Up)
		if err != nil {
			return nil, fmt.Errorf("migration %s: up: %w", item.Version, err)
		}
		down, err := manifestOperations(item.Down)
		if err != nil {
			return nil, fmt.Errorf("migration %s: down: %w", item.Version, err)
		}

		changeType := item.ChangeType
		if changeType == "" {
			changeType = ChangeUpdate
		}

		migrations = append(migrations, &Migration{
			Descriptor: Descriptor{
				Version:     item.Version,
				Description: item.Description,
				ChangeType:  changeType,
			},
			Up:            up,
			Down:          down,
			AutoReversing: item.AutoReversing,
		})
	}

	return migrations, nil
}

func LoadManifestFile(path string) ([]*Migration, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return LoadManifest(file)
}

func manifestOperations(items []ManifestOperation) ([]Operation, error) {
	if len(items) == 0 {
		return nil, nil
	}

	operations := make([]Operation, 0, len(items))
	for i, item := range items {
		op, err := item.operation()
		if err != nil {
			return nil, fmt.Errorf("operation %d: %w", i, err)
		}
		operations = append(operations, op)
	}
	return operations, nil
}
