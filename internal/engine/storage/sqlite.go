package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/serabi/poiscout/internal/model"
)

// Run is one crawl's metadata row. Boundary holds the search polygon as
// GeoJSON when one was used.
type Run struct {
	ID         string
	Keywords   string
	Location   string
	Status     string
	PlaceCount int
	CellCount  int
	Boundary   string
	CreatedAt  time.Time
}

type Store struct {
	db *sql.DB
	mu sync.Mutex
}

func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening db: %w", err)
	}

	// Optimize for write throughput
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=-64000",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}

	if err := createSchema(db); err != nil {
		return nil, err
	}

	return &Store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS crawls (
		id TEXT PRIMARY KEY,
		keywords TEXT NOT NULL,
		location TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'running',
		place_count INTEGER NOT NULL DEFAULT 0,
		cell_count INTEGER NOT NULL DEFAULT 0,
		boundary TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE TABLE IF NOT EXISTS cells (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		crawl_id TEXT NOT NULL REFERENCES crawls(id),
		sw_lat REAL NOT NULL,
		sw_lng REAL NOT NULL,
		ne_lat REAL NOT NULL,
		ne_lng REAL NOT NULL,
		depth INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_cells_crawl ON cells(crawl_id);
	CREATE TABLE IF NOT EXISTS places (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		crawl_id TEXT NOT NULL REFERENCES crawls(id),
		place_id TEXT NOT NULL,
		name TEXT,
		lat REAL,
		lng REAL,
		attributes TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(crawl_id, place_id)
	);
	CREATE INDEX IF NOT EXISTS idx_places_crawl ON places(crawl_id);
	CREATE INDEX IF NOT EXISTS idx_places_coords ON places(lat, lng);
	`
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// BeginRun registers a new crawl row and returns its generated ID.
func (s *Store) BeginRun(keywords, location string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	_, err := s.db.Exec(
		`INSERT INTO crawls (id, keywords, location) VALUES (?, ?, ?)`,
		id, keywords, location,
	)
	if err != nil {
		return "", fmt.Errorf("inserting crawl: %w", err)
	}
	return id, nil
}

// FinishRun records the crawl's final status, counters and boundary GeoJSON.
func (s *Store) FinishRun(runID string, status model.CrawlStatus, placeCount, cellCount int, boundaryGeoJSON string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`UPDATE crawls SET status = ?, place_count = ?, cell_count = ?, boundary = ? WHERE id = ?`,
		string(status), placeCount, cellCount, boundaryGeoJSON, runID,
	)
	if err != nil {
		return fmt.Errorf("finishing crawl: %w", err)
	}
	return nil
}

// InsertCells writes the searched grid cells for one run. Unbounded sentinel
// cells carry no rectangle and are skipped.
func (s *Store) InsertCells(runID string, cells []model.GridCell) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning tx: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO cells (crawl_id, sw_lat, sw_lng, ne_lat, ne_lng, depth)
		VALUES (?,?,?,?,?,?)
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("preparing stmt: %w", err)
	}
	defer stmt.Close()

	for _, c := range cells {
		if c.Unbounded() {
			continue
		}
		b := c.Bounds
		if _, err := stmt.Exec(runID, b.SW.Lat, b.SW.Lng, b.NE.Lat, b.NE.Lng, c.Depth); err != nil {
			tx.Rollback()
			return fmt.Errorf("inserting cell: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing tx: %w", err)
	}
	return nil
}

// LoadCells returns a run's searched cells in search order. An empty runID
// loads every cell in the database.
func (s *Store) LoadCells(runID string) ([]model.GridCell, error) {
	query := `SELECT sw_lat, sw_lng, ne_lat, ne_lng, depth FROM cells`
	args := []any{}
	if runID != "" {
		query += ` WHERE crawl_id = ?`
		args = append(args, runID)
	}
	query += ` ORDER BY id`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying cells: %w", err)
	}
	defer rows.Close()

	var out []model.GridCell
	for rows.Next() {
		var b model.BoundingBox
		var depth int
		if err := rows.Scan(&b.SW.Lat, &b.SW.Lng, &b.NE.Lat, &b.NE.Lng, &depth); err != nil {
			continue
		}
		bb := b
		out = append(out, model.GridCell{Bounds: &bb, Depth: depth})
	}
	return out, rows.Err()
}

// InsertBatch writes places for a run in one transaction. Duplicate place IDs
// within the run are ignored. Returns the number of rows actually inserted.
func (s *Store) InsertBatch(runID string, poi []model.Place) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning tx: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO places
		(crawl_id, place_id, name, lat, lng, attributes)
		VALUES (?,?,?,?,?,?)
	`)
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("preparing stmt: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, p := range poi {
		id := p.Identity()
		if id == "" {
			continue
		}
		var lat, lng any
		if p.Location != nil {
			lat, lng = p.Location.Lat, p.Location.Lng
		}
		attrs, err := json.Marshal(p.Attributes)
		if err != nil {
			continue
		}
		res, err := stmt.Exec(runID, id, p.DisplayName, lat, lng, string(attrs))
		if err != nil {
			continue
		}
		n, _ := res.RowsAffected()
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing tx: %w", err)
	}

	return inserted, nil
}

// LoadPlaces returns a run's places in insertion order. An empty runID loads
// every place in the database.
func (s *Store) LoadPlaces(runID string) ([]model.Place, error) {
	query := `SELECT place_id, name, lat, lng, attributes FROM places`
	args := []any{}
	if runID != "" {
		query += ` WHERE crawl_id = ?`
		args = append(args, runID)
	}
	query += ` ORDER BY id`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying places: %w", err)
	}
	defer rows.Close()

	var out []model.Place
	for rows.Next() {
		var p model.Place
		var name sql.NullString
		var lat, lng sql.NullFloat64
		var attrs sql.NullString
		if err := rows.Scan(&p.ID, &name, &lat, &lng, &attrs); err != nil {
			continue
		}
		p.DisplayName = name.String
		if lat.Valid && lng.Valid {
			p.Location = &model.GeoPoint{Lat: lat.Float64, Lng: lng.Float64}
		}
		if attrs.Valid && attrs.String != "" && attrs.String != "null" {
			if err := json.Unmarshal([]byte(attrs.String), &p.Attributes); err != nil {
				p.Attributes = nil
			}
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Runs lists crawl rows, newest first.
func (s *Store) Runs() ([]Run, error) {
	rows, err := s.db.Query(`
		SELECT id, keywords, location, status, place_count, cell_count, boundary, created_at
		FROM crawls ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying crawls: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Keywords, &r.Location, &r.Status,
			&r.PlaceCount, &r.CellCount, &r.Boundary, &r.CreatedAt); err != nil {
			continue
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) Count() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM places").Scan(&count)
	return count, err
}

func (s *Store) Close() error {
	return s.db.Close()
}
