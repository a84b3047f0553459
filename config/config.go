package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration parameters read from environment variables.
type Config struct {
	DBHost     string `envconfig:"DB_HOST" required:"true"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" required:"true"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" default:"paper_birthdays"`

	HTTPPort string `envconfig:"HTTP_PORT" default:"4242"`

	ArxivBaseURL     string        `envconfig:"ARXIV_BASE_URL" default:"https://export.arxiv.org/api/query"`
	ArxivMinInterval time.Duration `envconfig:"ARXIV_MIN_INTERVAL" default:"3s"`
	ArxivTimeout     time.Duration `envconfig:"ARXIV_TIMEOUT" default:"10s"`
	ArxivPageSize    int           `envconfig:"ARXIV_PAGE_SIZE" default:"1000"`

	SemanticScholarBaseURL     string        `envconfig:"SEMANTIC_SCHOLAR_BASE_URL" default:"https://api.semanticscholar.org/graph/v1"`
	SemanticScholarAPIKey      string        `envconfig:"SEMANTIC_SCHOLAR_API_KEY"`
	SemanticScholarMinInterval time.Duration `envconfig:"SEMANTIC_SCHOLAR_MIN_INTERVAL" default:"1s"`
	SemanticScholarTimeout     time.Duration `envconfig:"SEMANTIC_SCHOLAR_TIMEOUT" default:"10s"`
	SemanticScholarBatchSize   int           `envconfig:"SEMANTIC_SCHOLAR_BATCH_SIZE" default:"500"`

	RetryMaxAttempts   int           `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`
	RetryBaseDelay     time.Duration `envconfig:"RETRY_BASE_DELAY" default:"1s"`
	RetryMaxDelay      time.Duration `envconfig:"RETRY_MAX_DELAY" default:"30s"`
	RetryJitterPercent int           `envconfig:"RETRY_JITTER_PERCENT" default:"25"`

	YearsBack      int           `envconfig:"YEARS_BACK" default:"10"`
	ShortlistSize  int           `envconfig:"SHORTLIST_SIZE" default:"10"`
	CacheTTL       time.Duration `envconfig:"CACHE_TTL" default:"24h"`
	CategoryBudget time.Duration `envconfig:"CATEGORY_BUDGET" default:"15m"`

	CronSchedule string `envconfig:"CRON_SCHEDULE" default:"0 6 * * *"`

	// Comma-separated list; the empty entry means "all categories".
	Categories string `envconfig:"CATEGORIES" default:",cs.AI,cs.LG,cs.CL,cs.CV,math.GT,physics.gen-ph,q-bio.GN,econ.EM,stat.ML"`

	// Optional S3 snapshot export of each day's shortlist.
	SnapshotsEnabled bool   `envconfig:"SNAPSHOTS_ENABLED" default:"false"`
	S3Key            string `envconfig:"S3_KEY"`
	S3Secret         string `envconfig:"S3_SECRET"`
	S3URL            string `envconfig:"S3_URL"`
	S3Region         string `envconfig:"S3_REGION" default:"us-east-1"`
	S3Bucket         string `envconfig:"S3_BUCKET"`
}

// DSN returns the Data Source Name for the PostgreSQL connection.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

// CategoryList splits the configured category string. An empty entry is kept
// and stands for the cross-category ("all") selection.
func (c *Config) CategoryList() []string {
	parts := strings.Split(c.Categories, ",")
	cats := make([]string, 0, len(parts))
	for _, p := range parts {
		cats = append(cats, strings.TrimSpace(p))
	}
	return cats
}

// Load reads the configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()
	var c Config
	err := envconfig.Process("", &c)
	return &c, err
}
