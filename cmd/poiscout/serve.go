package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/serabi/poiscout/internal/api"
	"github.com/serabi/poiscout/internal/config"
	"github.com/serabi/poiscout/internal/engine/crawler"
)

func runServe(args []string) error {
	var addr, outputDir string

	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	fs.StringVar(&addr, "addr", "127.0.0.1:5001", "Listen address")
	fs.StringVar(&outputDir, "output", "./output", "Directory for exported files")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: poiscout serve [flags]\n\nFlags:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  poiscout serve\n")
		fmt.Fprintf(os.Stderr, "  poiscout serve -addr :8080 -output ./exports\n")
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	apiKey := config.APIKey()
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "warning: API key not found; crawl requests will fail until "+
			"GOOGLE_PLACES_API_KEY is set or config.json provides api_key")
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}

	logger := log.New(os.Stderr, "", log.LstdFlags)
	engine := crawler.NewEngine(apiKey, logger)
	server := api.NewServer(engine, outputDir, config.SessionPath(), logger)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	fmt.Fprintf(os.Stderr, "Listening on http://%s\n", addr)
	return httpServer.ListenAndServe()
}
