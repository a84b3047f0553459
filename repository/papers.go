// Package repository contains the GORM-backed stores for papers, daily
// featured shortlists and the fetch ledger.
package repository

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"paper-birthdays/models"
)

// Papers is the permanent archive of every paper ever observed. Rows are
// keyed by arXiv ID and never deleted.
type Papers struct {
	DB *gorm.DB
}

// NewPapers creates a paper repository.
func NewPapers(db *gorm.DB) *Papers {
	return &Papers{DB: db}
}

// Upsert inserts the paper or, when the arXiv ID already exists, refreshes
// its mutable fields. Creation metadata is preserved. Safe to call twice with
// identical data.
func (r *Papers) Upsert(paper *models.Paper) (*models.Paper, error) {
	err := r.DB.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "arxiv_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"citation_count", "semantic_scholar_id", "updated_date", "updated_at",
		}),
	}).Create(paper).Error
	if err != nil {
		return nil, err
	}

	// The conflict path does not backfill the primary key; read the stored
	// row so callers always get the canonical ID.
	var stored models.Paper
	if err := r.DB.Where("arxiv_id = ?", paper.ArxivID).First(&stored).Error; err != nil {
		return nil, err
	}
	return &stored, nil
}

// ByArxivID returns the paper or (nil, nil) when absent.
func (r *Papers) ByArxivID(arxivID string) (*models.Paper, error) {
	var paper models.Paper
	err := r.DB.Where("arxiv_id = ?", arxivID).First(&paper).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &paper, nil
}

// ByIDs returns papers keyed by primary key.
func (r *Papers) ByIDs(ids []uint) (map[uint]*models.Paper, error) {
	result := make(map[uint]*models.Paper, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	var papers []*models.Paper
	if err := r.DB.Where("id IN ?", ids).Find(&papers).Error; err != nil {
		return nil, err
	}
	for _, p := range papers {
		result[p.ID] = p
	}
	return result, nil
}

// ByArxivIDs returns the stored papers for the given identifiers; missing
// identifiers are simply absent from the result.
func (r *Papers) ByArxivIDs(arxivIDs []string) ([]*models.Paper, error) {
	if len(arxivIDs) == 0 {
		return nil, nil
	}
	var papers []*models.Paper
	if err := r.DB.Where("arxiv_id IN ?", arxivIDs).Find(&papers).Error; err != nil {
		return nil, err
	}
	return papers, nil
}
