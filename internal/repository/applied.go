package repository

import (
	"errors"
	"time"

	"github.com/1RohitKumawat/MultiVendorSolution/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrNotFound = errors.New("record not found")

type Order string

const (
	OrderASC  Order = "ASC"
	OrderDESC Order = "DESC"
)

func HasAppliedTable(db *gorm.DB, table string) bool {
	return db.Migrator().HasTable(table)
}

func CreateAppliedTable(db *gorm.DB, table string) error {
	return db.Table(table).Migrator().CreateTable(&models.AppliedModel{})
}

func GetAppliedSorted(db *gorm.DB, table string, order Order) ([]models.AppliedModel, error) {
	var rows []models.AppliedModel

	err := db.Table(table).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "version"}, Desc: order == OrderDESC}).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	return rows, nil
}

func GetApplied(db *gorm.DB, table string, version string) (models.AppliedModel, error) {
	var row models.AppliedModel

	res := db.Table(table).Where("version = ?", version).Limit(1).Find(&row)
	if res.Error != nil {
		return models.AppliedModel{}, res.Error
	}

	if res.RowsAffected == 0 {
		return models.AppliedModel{}, ErrNotFound
	}

	return row, nil
}

type SaveStateRequest struct {
	Version     string
	Description string
	ChangeType  string
	State       models.MigrationState
	Step        int
	Reverted    int
	Error       string
}

// SaveState создает или обновляет запись о миграции. Время первого применения не перезаписывается.
func SaveState(db *gorm.DB, table string, request SaveStateRequest) error {
	now := models.NewCustomTime(time.Now())

	row := models.AppliedModel{
		Version:     request.Version,
		Description: request.Description,
		ChangeType:  request.ChangeType,
		State:       request.State,
		Step:        request.Step,
		Reverted:    request.Reverted,
		Error:       request.Error,
		AppliedOn:   now,
		UpdatedOn:   now,
	}

	return db.Table(table).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "version"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"description", "change_type", "state", "step", "reverted", "error", "updated_on",
		}),
	}).Create(&row).Error
}

// UpdateReverted обновляет прогресс отката уже сохраненной миграции.
func UpdateReverted(db *gorm.DB, table string, version string, reverted int) error {
	res := db.Table(table).Where("version = ?", version).Updates(map[string]interface{}{
		"state":      models.StateReverting,
		"reverted":   reverted,
		"updated_on": models.NewCustomTime(time.Now()),
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func DeleteApplied(db *gorm.DB, table string, version string) error {
	return db.Table(table).Where("version = ?", version).Delete(&models.AppliedModel{}).Error
}
