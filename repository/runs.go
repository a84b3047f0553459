package repository

import (
	"time"

	"gorm.io/gorm"

	"paper-birthdays/models"
)

// Runs is the append-only fetch ledger. Records are never updated or
// deleted; the daily job reads it to skip work already done and to decide
// its exit code.
type Runs struct {
	DB *gorm.DB
}

// NewRuns creates a run-ledger repository.
func NewRuns(db *gorm.DB) *Runs {
	return &Runs{DB: db}
}

// Record appends one audit entry.
func (r *Runs) Record(fetchDate time.Time, fetchType, category string, papersFetched int, status, errMsg string) error {
	rec := models.FetchRecord{
		FetchDate:     dateOnly(fetchDate),
		FetchType:     fetchType,
		Category:      category,
		PapersFetched: papersFetched,
		Status:        status,
		ErrorMessage:  errMsg,
	}
	return r.DB.Create(&rec).Error
}

// HasSucceeded reports whether a successful run is already recorded for the
// (date, category) key.
func (r *Runs) HasSucceeded(fetchDate time.Time, category string) (bool, error) {
	var count int64
	err := r.DB.Model(&models.FetchRecord{}).
		Where("fetch_date = ? AND category = ? AND status = ?",
			dateOnly(fetchDate), category, models.StatusSuccess).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
