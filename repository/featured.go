package repository

import (
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"paper-birthdays/models"
)

// Featured stores the ranked daily shortlists. The unique index on
// (feature_date, category, paper_id) is what makes reruns idempotent; the
// write path treats a conflict as "already done".
type Featured struct {
	DB *gorm.DB
}

// NewFeatured creates a featured-paper repository.
func NewFeatured(db *gorm.DB) *Featured {
	return &Featured{DB: db}
}

// HistoryItem pairs a shortlist entry with its paper for the read API.
type HistoryItem struct {
	Entry models.FeaturedPaper
	Paper models.Paper
}

// Shortlist returns the full ranked set for a (date, category) key, rank
// ascending. Empty slice means no selection has been made.
func (r *Featured) Shortlist(featureDate time.Time, category string) ([]models.FeaturedPaper, error) {
	var entries []models.FeaturedPaper
	err := r.DB.
		Where("feature_date = ? AND category = ?", dateOnly(featureDate), category).
		Order("rank_in_day asc").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Chosen returns the entry picked to represent the day, with its paper
// loaded, or (nil, nil) when no selection exists.
func (r *Featured) Chosen(featureDate time.Time, category string) (*HistoryItem, error) {
	var entry models.FeaturedPaper
	err := r.DB.
		Where("feature_date = ? AND category = ? AND chosen", dateOnly(featureDate), category).
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var paper models.Paper
	if err := r.DB.First(&paper, entry.PaperID).Error; err != nil {
		return nil, err
	}
	return &HistoryItem{Entry: entry, Paper: paper}, nil
}

// ReplaceShortlist writes the whole shortlist for a key in one transaction:
// the existing group is removed and the new ranks inserted, so readers see
// either the old complete set or the new one, never a partial write. A
// unique-constraint conflict from a concurrent run is reported as
// (false, nil); the other run's set stands.
func (r *Featured) ReplaceShortlist(featureDate time.Time, category string, entries []models.FeaturedPaper) (bool, error) {
	day := dateOnly(featureDate)
	err := r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Where("feature_date = ? AND category = ?", day, category).
			Delete(&models.FeaturedPaper{}).Error; err != nil {
			return err
		}
		for i := range entries {
			entries[i].FeatureDate = day
			entries[i].Category = category
		}
		if len(entries) == 0 {
			return nil
		}
		return tx.Create(&entries).Error
	})
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// History returns past selections (chosen entries only), newest feature date
// first, with the total count for pagination.
func (r *Featured) History(page, limit int, category string) ([]HistoryItem, int64, error) {
	query := r.DB.Model(&models.FeaturedPaper{}).Where("chosen")
	if category != "" {
		query = query.Where("category = ?", category)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var entries []models.FeaturedPaper
	err := query.
		Order("feature_date desc").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, 0, err
	}

	items := make([]HistoryItem, 0, len(entries))
	for _, e := range entries {
		var paper models.Paper
		if err := r.DB.First(&paper, e.PaperID).Error; err != nil {
			return nil, 0, err
		}
		items = append(items, HistoryItem{Entry: e, Paper: paper})
	}
	return items, total, nil
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// Postgres unique_violation; gorm does not always translate it.
	return strings.Contains(err.Error(), "23505") ||
		strings.Contains(err.Error(), "duplicate key")
}
