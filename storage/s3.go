// Package storage exports daily shortlist snapshots to S3-compatible object
// storage. Snapshots are an optional archive; failures never affect the
// pipeline outcome.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"paper-birthdays/config"
	"paper-birthdays/models"
)

// NewS3Client creates an S3 client for the configured endpoint.
func NewS3Client(cfg *config.Config) (*s3.Client, error) {
	resolver := aws.EndpointResolverWithOptionsFunc(
		func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{
				URL:               cfg.S3URL,
				SigningRegion:     cfg.S3Region,
				HostnameImmutable: true,
			}, nil
		},
	)

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3Key, cfg.S3Secret, "")),
		awsconfig.WithEndpointResolverWithOptions(resolver),
	)
	if err != nil {
		return nil, err
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
	}), nil
}

// Snapshot is the exported form of one day's shortlist.
type Snapshot struct {
	FeatureDate string          `json:"feature_date"`
	Category    string          `json:"category"`
	CreatedAt   time.Time       `json:"created_at"`
	Papers      []SnapshotPaper `json:"papers"`
}

// SnapshotPaper is one ranked entry in a snapshot.
type SnapshotPaper struct {
	Rank          int    `json:"rank"`
	Chosen        bool   `json:"chosen"`
	ArxivID       string `json:"arxiv_id"`
	Title         string `json:"title"`
	CitationCount int    `json:"citation_count"`
}

// UploadSnapshot writes the shortlist for a (date, category) key to
// snapshots/YYYY-MM-DD/<category>.json.
func UploadSnapshot(ctx context.Context, client *s3.Client, bucket string,
	featureDate time.Time, category string, entries []models.FeaturedPaper, papers map[uint]*models.Paper) error {

	snap := Snapshot{
		FeatureDate: featureDate.Format("2006-01-02"),
		Category:    category,
		CreatedAt:   time.Now().UTC(),
	}
	for _, e := range entries {
		sp := SnapshotPaper{Rank: e.Rank, Chosen: e.Chosen}
		if p, ok := papers[e.PaperID]; ok {
			sp.ArxivID = p.ArxivID
			sp.Title = p.Title
			sp.CitationCount = p.CitationCount
		}
		snap.Papers = append(snap.Papers, sp)
	}

	body, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}

	name := category
	if name == "" {
		name = "all"
	}
	key := fmt.Sprintf("snapshots/%s/%s.json", snap.FeatureDate, name)

	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("uploading snapshot %s: %w", key, err)
	}
	return nil
}
