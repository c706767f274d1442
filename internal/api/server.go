// Package api exposes the HTTP control surface: start a crawl, poll its
// progress, manage the saved session, and download output files.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/serabi/poiscout/internal/config"
	"github.com/serabi/poiscout/internal/engine/crawler"
	"github.com/serabi/poiscout/internal/export"
	"github.com/serabi/poiscout/internal/model"
)

// CrawlRunner runs one crawl to completion.
type CrawlRunner interface {
	Run(ctx context.Context, req model.CrawlRequest, sink crawler.ProgressSink) model.CrawlResult
}

// Server wires handlers onto an HTTP mux. One crawl runs at a time; a second
// start request gets 409 until the first finishes.
type Server struct {
	runner      CrawlRunner
	state       *State
	outputDir   string
	sessionPath string
	logger      *log.Logger
	mux         *http.ServeMux
}

func NewServer(runner CrawlRunner, outputDir, sessionPath string, logger *log.Logger) *Server {
	s := &Server{
		runner:      runner,
		state:       &State{},
		outputDir:   outputDir,
		sessionPath: sessionPath,
		logger:      logger,
		mux:         http.NewServeMux(),
	}
	s.routes()
	return s
}

// ServeHTTP satisfies the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/crawl", s.handleCrawl)
	s.mux.HandleFunc("/api/status", s.handleStatus)
	s.mux.HandleFunc("/api/session", s.handleSession)
	s.mux.HandleFunc("/output/", s.handleOutput)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

// crawlPayload is the start-crawl request body. Field names match the
// persisted session file.
type crawlPayload struct {
	Keywords     string   `json:"keywords"`
	Location     string   `json:"location"`
	Attributes   []string `json:"attributes"`
	MaxPages     int      `json:"max_pages"`
	MaxResults   int      `json:"max_results"`
	LanguageCode string   `json:"language_code"`
	RegionCode   string   `json:"region_code"`
	PrimaryTypes []string `json:"primary_types"`
}

func (s *Server) handleCrawl(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var p crawlPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid json payload: %v", err))
		return
	}
	p.Keywords = strings.TrimSpace(p.Keywords)
	p.Location = strings.TrimSpace(p.Location)
	if p.Keywords == "" || p.Location == "" {
		writeError(w, http.StatusBadRequest, "keywords and location are required")
		return
	}
	if p.MaxPages == 0 {
		p.MaxPages = 10
	}

	if !s.state.TryStart() {
		writeError(w, http.StatusConflict, "crawl already in progress")
		return
	}

	// Remember the form for the next visit.
	if err := config.SaveSession(s.sessionPath, config.Session{
		Keywords:     p.Keywords,
		Location:     p.Location,
		MaxPages:     p.MaxPages,
		MaxResults:   p.MaxResults,
		LanguageCode: p.LanguageCode,
		RegionCode:   p.RegionCode,
		PrimaryTypes: p.PrimaryTypes,
		Attributes:   p.Attributes,
	}); err != nil {
		s.logger.Printf("SESSION save failed: %v", err)
	}

	req := model.CrawlRequest{
		Keywords:     p.Keywords,
		Location:     p.Location,
		Attributes:   p.Attributes,
		MaxPages:     p.MaxPages,
		MaxResults:   p.MaxResults,
		LanguageCode: p.LanguageCode,
		RegionCode:   p.RegionCode,
	}
	if len(p.PrimaryTypes) > 0 {
		req.IncludedType = p.PrimaryTypes[0]
	}

	s.logger.Printf("API crawl start keywords=%q location=%q", p.Keywords, p.Location)
	go s.runCrawl(req)

	writeJSON(w, http.StatusAccepted, map[string]any{"ok": true})
}

// runCrawl is the background worker: run the engine, export the results,
// publish the final state.
func (s *Server) runCrawl(req model.CrawlRequest) {
	result := s.runner.Run(context.Background(), req, s.state)

	switch {
	case result.Status == model.StatusError:
		msg := "Crawl failed."
		if len(result.Errors) > 0 {
			msg = result.Errors[len(result.Errors)-1]
		}
		s.state.Finish("Error", msg, "")

	case len(result.Places) == 0:
		msg := "No places to export."
		if len(result.Errors) > 0 {
			msg += " " + result.Errors[0]
		}
		s.state.Finish("Done (no results)", msg, "")

	default:
		name := fmt.Sprintf("poi_results_%s.csv", time.Now().Format("20060102_1504"))
		path := filepath.Join(s.outputDir, name)
		if err := export.ToFile(path, result.Places); err != nil {
			s.logger.Printf("EXPORT failed: %v", err)
			s.state.Finish("Error", fmt.Sprintf("Export failed: %v", err), "")
			return
		}
		s.state.Finish("Done", fmt.Sprintf("Exported %d places.", len(result.Places)), name)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, s.state.Snapshot())
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, config.LoadSession(s.sessionPath))
	case http.MethodPost:
		var sess config.Session
		if err := json.NewDecoder(r.Body).Decode(&sess); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid json payload: %v", err))
			return
		}
		if err := config.SaveSession(s.sessionPath, sess); err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("saving session: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

// handleOutput serves exported files. CSVs download as attachments.
func (s *Server) handleOutput(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/output/")
	if name == "" || name == "." || name == ".." || name != filepath.Base(name) {
		http.NotFound(w, r)
		return
	}
	if strings.HasSuffix(name, ".csv") {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	}
	http.ServeFile(w, r, filepath.Join(s.outputDir, name))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"ok": false, "error": msg})
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
}
