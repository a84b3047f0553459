package models

import "time"

// FeaturedPaper is one ranked entry of a day's shortlist. The whole shortlist
// for a (feature date, category) pair is written atomically; exactly one entry
// of a non-empty shortlist carries the Chosen flag.
type FeaturedPaper struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	// FeatureDate is the calendar date being celebrated, not the run date.
	FeatureDate time.Time `json:"feature_date" gorm:"type:date;uniqueIndex:idx_featured_day_paper;index"`

	// Category is the arXiv category filter; empty means cross-category.
	Category string `json:"category" gorm:"uniqueIndex:idx_featured_day_paper;index;default:''"`

	PaperID uint  `json:"paper_id" gorm:"uniqueIndex:idx_featured_day_paper;not null"`
	Paper   Paper `json:"-" gorm:"foreignKey:PaperID"`

	// Rank is 1..N, dense, 1 = most cited.
	Rank int `json:"rank" gorm:"column:rank_in_day;not null"`

	// Chosen marks the entry picked to represent the day. Stored at selection
	// time because the pick is random and must not be recomputed.
	Chosen bool `json:"chosen" gorm:"default:false"`
}
