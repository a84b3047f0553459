package models

import "time"

// Run kinds recorded in the fetch ledger.
const (
	FetchTypeDaily    = "daily"
	FetchTypeCategory = "category"
	FetchTypeAdhoc    = "adhoc"
)

// Run outcomes.
const (
	StatusSuccess = "success"
	StatusPartial = "partial"
	StatusFailed  = "failed"
)

// FetchRecord is one append-only audit entry per pipeline invocation for one
// category. Records are never mutated or deleted.
type FetchRecord struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	FetchDate     time.Time `json:"fetch_date" gorm:"type:date;index"`
	FetchType     string    `json:"fetch_type" gorm:"not null"`
	Category      string    `json:"category" gorm:"index;default:''"`
	PapersFetched int       `json:"papers_fetched"`
	Status        string    `json:"status" gorm:"not null"`
	ErrorMessage  string    `json:"error_message,omitempty" gorm:"type:text"`
}
