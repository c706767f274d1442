package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/serabi/poiscout/internal/config"
	"github.com/serabi/poiscout/internal/engine/crawler"
	"github.com/serabi/poiscout/internal/engine/storage"
	"github.com/serabi/poiscout/internal/export"
	"github.com/serabi/poiscout/internal/model"
	"github.com/serabi/poiscout/internal/tui"
)

func runCrawl(args []string) error {
	var req model.CrawlRequest
	var attributesStr, outputDir string

	fs := flag.NewFlagSet("crawl", flag.ExitOnError)
	fs.StringVar(&outputDir, "output", "", "Output directory for project files (required)")
	fs.StringVar(&req.Keywords, "keywords", "", "Search keywords (required)")
	fs.StringVar(&req.Location, "location", "", "Location name, e.g. \"Taipei City\" (required)")
	fs.StringVar(&attributesStr, "attributes", "", "Comma-separated place attributes (default: session or built-in set)")
	fs.IntVar(&req.MaxPages, "max-pages", 10, "Max pages per grid cell (1-20)")
	fs.IntVar(&req.MaxResults, "max-results", 0, "Stop after this many unique places (0 = no cap)")
	fs.StringVar(&req.LanguageCode, "lang", "en", "Result language code")
	fs.StringVar(&req.RegionCode, "region", "", "Region bias code, e.g. \"tw\"")
	fs.StringVar(&req.IncludedType, "type", "", "Restrict to one place type, e.g. \"restaurant\"")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: poiscout crawl [flags]\n\nFlags:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  poiscout crawl -keywords \"coffee shop\" -location \"Taipei City\" -output ./projects\n")
		fmt.Fprintf(os.Stderr, "  poiscout crawl -keywords ramen -location Osaka -max-results 200 -output ./projects\n")
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	// Validation
	if req.Keywords == "" {
		return fmt.Errorf("-keywords is required")
	}
	if req.Location == "" {
		return fmt.Errorf("-location is required")
	}
	if outputDir == "" {
		return fmt.Errorf("-output is required")
	}
	apiKey := config.APIKey()
	if apiKey == "" {
		return fmt.Errorf("API key not found: set GOOGLE_PLACES_API_KEY or put {\"api_key\": \"...\"} in config.json")
	}

	if attributesStr != "" {
		for _, a := range strings.Split(attributesStr, ",") {
			if a = strings.TrimSpace(a); a != "" {
				req.Attributes = append(req.Attributes, a)
			}
		}
	} else {
		req.Attributes = config.LoadSession(config.SessionPath()).Attributes
	}

	// Create output directory
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}

	// Generate timestamped filenames
	ts := time.Now().Format("20060102_150405")
	baseName := fmt.Sprintf("poiscout_%s", ts)
	dbPath := filepath.Join(outputDir, baseName+".db")
	csvPath := filepath.Join(outputDir, baseName+".csv")
	logPath := filepath.Join(outputDir, baseName+".log")

	// Setup log file
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("opening log: %w", err)
	}
	defer logFile.Close()
	logger := log.New(logFile, "", log.LstdFlags)
	logger.Printf("=== Session start: keywords=%q location=%q max_pages=%d max_results=%d lang=%s region=%s type=%s ===",
		req.Keywords, req.Location, req.ClampedMaxPages(), req.MaxResults,
		req.LanguageCode, req.RegionCode, req.IncludedType)

	fmt.Fprintf(os.Stderr, "Log: %s\n", logPath)

	// Open storage
	store, err := storage.NewStore(dbPath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer store.Close()

	runID, err := store.BeginRun(req.Keywords, req.Location)
	if err != nil {
		return fmt.Errorf("registering run: %w", err)
	}

	// Run crawl; progress lines go straight to stderr.
	startTime := time.Now()
	engine := crawler.NewEngine(apiKey, logger)
	sink := crawler.SinkFuncs{
		OnStatus: func(status, message string, count int) {
			fmt.Fprintf(os.Stderr, "[%s] %s\n", status, message)
		},
		OnLog: func(line string) {
			fmt.Fprintf(os.Stderr, "[log] %s\n", line)
		},
	}
	result := engine.Run(context.Background(), req, sink)

	if result.Status == model.StatusError {
		store.FinishRun(runID, result.Status, 0, 0, "")
		if len(result.Errors) > 0 {
			return fmt.Errorf("crawl failed: %s", result.Errors[len(result.Errors)-1])
		}
		return fmt.Errorf("crawl failed")
	}

	stored, err := store.InsertBatch(runID, result.Places)
	if err != nil {
		return fmt.Errorf("storing places: %w", err)
	}
	if err := store.InsertCells(runID, result.Cells); err != nil {
		return fmt.Errorf("storing cells: %w", err)
	}
	if err := store.FinishRun(runID, result.Status, len(result.Places), len(result.Cells), result.BoundaryGeoJSON()); err != nil {
		return fmt.Errorf("finishing run: %w", err)
	}

	if len(result.Places) > 0 {
		if err := export.ToFile(csvPath, result.Places); err != nil {
			return fmt.Errorf("exporting csv: %w", err)
		}
	}

	duration := time.Since(startTime).Truncate(time.Second)
	logger.Printf("Done: status=%s places=%d stored=%d cells=%d errors=%d",
		result.Status, len(result.Places), stored, len(result.Cells), len(result.Errors))

	// Print final summary
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "══════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  POIScout Complete\n")
	fmt.Fprintf(os.Stderr, "══════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Keywords:   %s\n", req.Keywords)
	fmt.Fprintf(os.Stderr, "  Location:   %s\n", req.Location)
	fmt.Fprintf(os.Stderr, "  Status:     %s\n", result.Status)
	fmt.Fprintf(os.Stderr, "  Places:     %d (unique)\n", len(result.Places))
	fmt.Fprintf(os.Stderr, "  Cells:      %d\n", len(result.Cells))
	fmt.Fprintf(os.Stderr, "  Errors:     %d\n", len(result.Errors))
	fmt.Fprintf(os.Stderr, "  Duration:   %s\n", duration)
	fmt.Fprintf(os.Stderr, "  Database:   %s\n", dbPath)
	if len(result.Places) > 0 {
		fmt.Fprintf(os.Stderr, "  CSV:        %s\n", csvPath)
	}
	fmt.Fprintf(os.Stderr, "  Log:        %s\n", logPath)
	fmt.Fprintf(os.Stderr, "══════════════════════════════\n")

	tui.SaveRecent(dbPath)

	return nil
}
