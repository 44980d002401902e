package models

type MigrationState string

const (
	StateApplying  MigrationState = "applying"
	StateApplied   MigrationState = "applied"
	StateFailure   MigrationState = "failure"
	StateReverting MigrationState = "reverting"
)

// AppliedModel - строка таблицы учета примененных миграций.
// Step - количество примененных операций Up, Reverted - количество выполненных операций отката.
type AppliedModel struct {
	Version     string `gorm:"primaryKey;size:255"`
	Description string
	ChangeType  string         `gorm:"size:16"`
	State       MigrationState `gorm:"size:16;not null"`
	Step        int
	Reverted    int
	Error       string
	AppliedOn   CustomTime `gorm:"type:timestamp"`
	UpdatedOn   CustomTime `gorm:"type:timestamp"`
}

const DefaultTableName = "schema_migrations"

func (v AppliedModel) TableName() string {
	return DefaultTableName
}
