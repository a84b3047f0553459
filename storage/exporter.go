package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"paper-birthdays/repository"
)

// SnapshotExporter reads a persisted shortlist and uploads it as a snapshot.
type SnapshotExporter struct {
	Client   *s3.Client
	Bucket   string
	Featured *repository.Featured
	Papers   *repository.Papers
}

// ExportShortlist uploads the stored shortlist for the (date, category) key.
func (x *SnapshotExporter) ExportShortlist(ctx context.Context, featureDate time.Time, category string) error {
	entries, err := x.Featured.Shortlist(featureDate, category)
	if err != nil {
		return fmt.Errorf("loading shortlist: %w", err)
	}
	if len(entries) == 0 {
		return nil
	}

	ids := make([]uint, len(entries))
	for i, e := range entries {
		ids[i] = e.PaperID
	}
	papers, err := x.Papers.ByIDs(ids)
	if err != nil {
		return fmt.Errorf("loading shortlist papers: %w", err)
	}

	return UploadSnapshot(ctx, x.Client, x.Bucket, featureDate, category, entries, papers)
}
