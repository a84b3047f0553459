package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Author is one entry of a paper's ordered author list.
type Author struct {
	Name string `json:"name"`
}

// AuthorList is stored as a JSONB column.
type AuthorList []Author

func (a AuthorList) Value() (driver.Value, error) {
	return json.Marshal(a)
}

func (a *AuthorList) Scan(value interface{}) error {
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, a)
	case string:
		return json.Unmarshal([]byte(v), a)
	case nil:
		*a = nil
		return nil
	default:
		return fmt.Errorf("unsupported type for AuthorList: %T", value)
	}
}

// StringList is stored as a JSONB column.
type StringList []string

func (s StringList) Value() (driver.Value, error) {
	return json.Marshal(s)
}

func (s *StringList) Scan(value interface{}) error {
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	case nil:
		*s = nil
		return nil
	default:
		return fmt.Errorf("unsupported type for StringList: %T", value)
	}
}

// Paper represents one academic work and its metadata. Papers are keyed by
// their arXiv identifier, created on first sighting and never deleted;
// citation count and updated date are refreshed on later sightings.
type Paper struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ArxivID         string     `json:"arxiv_id" gorm:"column:arxiv_id;uniqueIndex;not null"`
	Title           string     `json:"title" gorm:"type:text;not null"`
	Abstract        string     `json:"abstract" gorm:"type:text"`
	Authors         AuthorList `json:"authors" gorm:"type:jsonb"`
	Categories      StringList `json:"categories" gorm:"type:jsonb"`
	PrimaryCategory string     `json:"primary_category" gorm:"index"`

	SubmittedDate time.Time  `json:"submitted_date" gorm:"type:date;index"`
	UpdatedDate   *time.Time `json:"updated_date,omitempty" gorm:"type:date"`

	PDFURL      string `json:"pdf_url" gorm:"type:text"`
	AbstractURL string `json:"abstract_url" gorm:"type:text"`

	CitationCount     int     `json:"citation_count" gorm:"index;default:0"`
	SemanticScholarID *string `json:"semantic_scholar_id,omitempty"`
}
