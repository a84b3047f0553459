package main

import (
	"context"
	"log"
	"net/http"
	"paper-birthdays/config"
	"paper-birthdays/models"
	"paper-birthdays/providers/arxiv"
	"paper-birthdays/providers/semanticscholar"
	"paper-birthdays/repository"
	"paper-birthdays/services"
	"regexp"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	selectionsCounter prometheus.Counter
	batchFailCounter  prometheus.Counter
)

func init() {
	selectionsCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "daily_selections_total",
			Help: "Total number of daily paper selections completed.",
		},
	)
	batchFailCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "daily_batch_failures_total",
			Help: "Total number of categories that failed in scheduled batches.",
		},
	)
	prometheus.MustRegister(selectionsCounter, batchFailCounter)
}

// arXiv category identifiers look like "cs.AI" or "math-ph".
var categoryPattern = regexp.MustCompile(`^[a-z-]+(\.[A-Za-z-]+)?$`)

func main() {
	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Config load error", zap.Error(err))
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		logging.Fatal("Failed to connect to database", zap.Error(err))
	}
	logging.Info("Successfully connected to database.")

	logging.Info("Running database auto-migration...")
	db.AutoMigrate(&models.Paper{}, &models.FeaturedPaper{}, &models.FetchRecord{})

	papers := repository.NewPapers(db)
	featured := repository.NewFeatured(db)
	runs := repository.NewRuns(db)

	source := arxiv.NewFetcher(cfg, logging)
	enricher := semanticscholar.NewFetcher(cfg, logging)
	engine := services.NewSelectionEngine(cfg, logging, source, enricher, papers, featured, runs)

	router := gin.Default()
	router.Use(gin.Recovery())
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	setupPaperRoutes(router, engine, featured, logging)
	setupHealthRoutes(router, db)

	cronScheduler := cron.New()
	cronScheduler.AddFunc(cfg.CronSchedule, func() {
		logging.Info("Running scheduled selection batch...")
		batch := &services.BatchRunner{
			Engine: engine,
			Runs:   runs,
			Logger: logging,
			Budget: cfg.CategoryBudget,
			Pause:  2 * time.Second,
		}
		ok, failed := batch.Run(context.Background(), time.Now().UTC(), cfg.CategoryList())
		logging.Info("Scheduled batch completed",
			zap.Int("succeeded", ok), zap.Int("failed", failed))
		selectionsCounter.Add(float64(ok))
		batchFailCounter.Add(float64(failed))
	})
	cronScheduler.Start()

	logging.Info("Starting server", zap.String("port", cfg.HTTPPort))
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		logging.Fatal("Failed to run server", zap.Error(err))
	}
}

// paperJSON is the API shape of a paper.
type paperJSON struct {
	ID              uint            `json:"id"`
	ArxivID         string          `json:"arxivId"`
	Title           string          `json:"title"`
	Abstract        string          `json:"abstract"`
	Authors         []models.Author `json:"authors"`
	Categories      []string        `json:"categories"`
	PrimaryCategory string          `json:"primaryCategory"`
	SubmittedDate   string          `json:"submittedDate"`
	CitationCount   int             `json:"citationCount"`
	PDFURL          string          `json:"pdfUrl"`
	AbstractURL     string          `json:"abstractUrl"`
}

func toPaperJSON(p *models.Paper) paperJSON {
	authors := []models.Author(p.Authors)
	if authors == nil {
		authors = []models.Author{}
	}
	cats := []string(p.Categories)
	if cats == nil {
		cats = []string{}
	}
	return paperJSON{
		ID:              p.ID,
		ArxivID:         p.ArxivID,
		Title:           p.Title,
		Abstract:        p.Abstract,
		Authors:         authors,
		Categories:      cats,
		PrimaryCategory: p.PrimaryCategory,
		SubmittedDate:   p.SubmittedDate.Format("2006-01-02"),
		CitationCount:   p.CitationCount,
		PDFURL:          p.PDFURL,
		AbstractURL:     p.AbstractURL,
	}
}

func setupPaperRoutes(router *gin.Engine, engine *services.SelectionEngine, featured *repository.Featured, log *zap.Logger) {
	rg := router.Group("/api/paper")

	serveToday := func(c *gin.Context, category string) {
		today := time.Now().UTC()
		item, err := engine.SelectDailyPaper(c.Request.Context(), today, category)
		if err != nil {
			log.Error("Daily selection failed", zap.String("category", category), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "selection failed"})
			return
		}
		if item == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no paper available for this date"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"paper":        toPaperJSON(&item.Paper),
			"featuredDate": item.Entry.FeatureDate.Format("2006-01-02"),
		})
	}

	rg.GET("/today", func(c *gin.Context) {
		serveToday(c, "")
	})

	rg.GET("/category/:category", func(c *gin.Context) {
		category := c.Param("category")
		if !categoryPattern.MatchString(category) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid category"})
			return
		}
		serveToday(c, category)
	})

	rg.GET("/history", func(c *gin.Context) {
		page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
		if err != nil || page < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid page"})
			return
		}
		limit, err := strconv.Atoi(c.DefaultQuery("limit", "10"))
		if err != nil || limit < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		if limit > 50 {
			limit = 50
		}
		category := c.Query("category")
		if category != "" && !categoryPattern.MatchString(category) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid category"})
			return
		}

		items, total, err := featured.History(page, limit, category)
		if err != nil {
			log.Error("History query failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}

		papers := make([]gin.H, 0, len(items))
		for i := range items {
			papers = append(papers, gin.H{
				"featuredDate": items[i].Entry.FeatureDate.Format("2006-01-02"),
				"category":     items[i].Entry.Category,
				"paper":        toPaperJSON(&items[i].Paper),
			})
		}
		c.JSON(http.StatusOK, gin.H{
			"papers":  papers,
			"page":    page,
			"limit":   limit,
			"total":   total,
			"hasNext": int64(page*limit) < total,
		})
	})
}

func setupHealthRoutes(router *gin.Engine, db *gorm.DB) {
	router.GET("/health", func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.Ping()
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "database": "down"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "database": "up"})
	})
}
