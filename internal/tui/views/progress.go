package views

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/serabi/poiscout/internal/config"
	"github.com/serabi/poiscout/internal/engine/crawler"
	"github.com/serabi/poiscout/internal/engine/storage"
	"github.com/serabi/poiscout/internal/export"
	"github.com/serabi/poiscout/internal/model"
	"github.com/serabi/poiscout/internal/tui/styles"
)

// crawlState receives engine progress from the worker goroutine. Lives behind
// a pointer so it survives bubbletea's value copies.
type crawlState struct {
	mu      sync.Mutex
	status  string
	message string
	count   int
	errors  []string
}

// Status implements the engine's progress sink.
func (s *crawlState) Status(status, message string, count int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
	s.message = message
	s.count = count
}

// Log implements the engine's progress sink.
func (s *crawlState) Log(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, line)
}

func (s *crawlState) snapshot() (status, message string, count int, errs []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	errs = make([]string, len(s.errors))
	copy(errs, s.errors)
	return s.status, s.message, s.count, errs
}

// ProgressModel shows one crawl from start to finish. The crawl itself is not
// cancellable; quitting the program abandons it.
type ProgressModel struct {
	req       model.CrawlRequest
	progress  progress.Model
	spinner   spinner.Model
	startTime time.Time
	done      bool
	confirmQuit bool
	err       error
	result    model.CrawlResult
	dbPath    string
	csvPath   string
	logPath   string
	width     int
	height    int
	shared    *crawlState
}

// Messages
type progressTickMsg time.Time

type crawlCompleteMsg struct {
	Err     error
	Result  model.CrawlResult
	CSVPath string
}

func NewProgressModel(msg StartCrawlMsg) ProgressModel {
	p := progress.New(
		progress.WithDefaultGradient(),
		progress.WithWidth(50),
	)
	sp := spinner.New(spinner.WithSpinner(spinner.Dot))
	sp.Style = lipgloss.NewStyle().Foreground(styles.Secondary)

	m := ProgressModel{
		req:       msg.Request,
		progress:  p,
		spinner:   sp,
		startTime: time.Now(),
		shared:    &crawlState{},
	}

	// Setup output paths
	ts := time.Now().Format("20060102_150405")
	baseName := fmt.Sprintf("poiscout_%s", ts)
	outDir := msg.Output
	os.MkdirAll(outDir, 0755)
	m.dbPath = filepath.Join(outDir, baseName+".db")
	m.csvPath = filepath.Join(outDir, baseName+".csv")
	m.logPath = filepath.Join(outDir, baseName+".log")

	return m
}

func (m ProgressModel) Init() tea.Cmd {
	return tea.Batch(
		m.startCrawl(),
		m.spinner.Tick,
		tickCmd(),
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(300*time.Millisecond, func(t time.Time) tea.Msg {
		return progressTickMsg(t)
	})
}

func (m ProgressModel) startCrawl() tea.Cmd {
	shared := m.shared
	req := m.req
	dbPath, csvPath, logPath := m.dbPath, m.csvPath, m.logPath

	return func() tea.Msg {
		logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return crawlCompleteMsg{Err: err}
		}
		defer logFile.Close()
		logger := log.New(logFile, "", log.LstdFlags)

		store, err := storage.NewStore(dbPath)
		if err != nil {
			return crawlCompleteMsg{Err: err}
		}
		defer store.Close()

		runID, err := store.BeginRun(req.Keywords, req.Location)
		if err != nil {
			return crawlCompleteMsg{Err: err}
		}

		engine := crawler.NewEngine(config.APIKey(), logger)
		result := engine.Run(context.Background(), req, shared)

		store.FinishRun(runID, result.Status, len(result.Places), len(result.Cells), result.BoundaryGeoJSON())
		if result.Status == model.StatusError {
			return crawlCompleteMsg{Result: result}
		}

		if _, err := store.InsertBatch(runID, result.Places); err != nil {
			return crawlCompleteMsg{Err: err, Result: result}
		}
		if err := store.InsertCells(runID, result.Cells); err != nil {
			return crawlCompleteMsg{Err: err, Result: result}
		}
		if len(result.Places) > 0 {
			if err := export.ToFile(csvPath, result.Places); err != nil {
				return crawlCompleteMsg{Err: err, Result: result}
			}
			return crawlCompleteMsg{Result: result, CSVPath: csvPath}
		}
		return crawlCompleteMsg{Result: result}
	}
}

func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "esc":
			if m.done {
				return m, func() tea.Msg {
					return NavigateToExplorer{DBPath: m.dbPath}
				}
			}
			if m.confirmQuit {
				// Second esc: abandon the crawl and quit
				return m, tea.Quit
			}
			// First esc: show confirmation
			m.confirmQuit = true
			return m, nil
		case "enter":
			if m.done {
				return m, func() tea.Msg {
					return NavigateToExplorer{DBPath: m.dbPath}
				}
			}
			if m.confirmQuit {
				m.confirmQuit = false
				return m, nil
			}
		}
		// Any other key cancels the confirmation
		if m.confirmQuit {
			m.confirmQuit = false
		}
	case progressTickMsg:
		if m.done {
			return m, nil
		}
		return m, tickCmd()
	case crawlCompleteMsg:
		m.done = true
		m.err = msg.Err
		m.result = msg.Result
		m.csvPath = msg.CSVPath
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	var pModel tea.Model
	pModel, cmd = m.progress.Update(msg)
	m.progress = pModel.(progress.Model)
	return m, cmd
}

func (m ProgressModel) View() string {
	var b strings.Builder

	b.WriteString(styles.Title.Render(fmt.Sprintf("Crawling: %q in %s", m.req.Keywords, m.req.Location)))
	b.WriteString("\n\n")

	status, message, count, errs := m.shared.snapshot()

	// Stats
	statsBox := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(styles.Muted).
		Padding(0, 1).
		Width(60).
		Render(m.renderStats(status, message, count))
	b.WriteString(statsBox)
	b.WriteString("\n\n")

	// Progress: a bar when a result cap gives a horizon, a spinner otherwise.
	if !m.done {
		if m.req.MaxResults > 0 {
			pct := float64(count) / float64(m.req.MaxResults)
			if pct > 1 {
				pct = 1
			}
			b.WriteString(m.progress.ViewAs(pct))
		} else {
			b.WriteString(m.spinner.View() + " searching...")
		}
		b.WriteString("\n\n")
	}

	// Recent error lines
	if len(errs) > 0 {
		show := errs
		if len(show) > 3 {
			show = show[len(show)-3:]
		}
		for _, e := range show {
			b.WriteString(lipgloss.NewStyle().Foreground(styles.Warning).Render("! " + e))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	// Status line
	if m.done {
		switch {
		case m.err != nil:
			b.WriteString(styles.ErrorText.Render(fmt.Sprintf("Error: %v", m.err)))
		case m.result.Status == model.StatusError:
			b.WriteString(styles.ErrorText.Render("Crawl failed: " + lastLine(m.result.Errors)))
		case m.result.Status == model.StatusEmpty:
			b.WriteString(lipgloss.NewStyle().Foreground(styles.Warning).Bold(true).
				Render("No places found"))
			if diag := lastLine(m.result.Errors); diag != "" {
				b.WriteString("\n")
				b.WriteString(lipgloss.NewStyle().Foreground(styles.Muted).Render(diag))
			}
		default:
			b.WriteString(lipgloss.NewStyle().Foreground(styles.Success).Bold(true).
				Render(fmt.Sprintf("Complete! %d places from %d cells", len(m.result.Places), len(m.result.Cells))))
			b.WriteString("\n")
			b.WriteString(lipgloss.NewStyle().Foreground(styles.Muted).
				Render(fmt.Sprintf("Database: %s", m.dbPath)))
			if m.csvPath != "" {
				b.WriteString("\n")
				b.WriteString(lipgloss.NewStyle().Foreground(styles.Muted).
					Render(fmt.Sprintf("CSV:      %s", m.csvPath)))
			}
		}
		b.WriteString("\n\n")
		b.WriteString(styles.StatusBar.Render("enter explore results • esc back"))
	} else if m.confirmQuit {
		b.WriteString(styles.ErrorText.Render("Press ESC again to abandon the crawl and quit"))
		b.WriteString("\n")
		b.WriteString(styles.StatusBar.Render("esc confirm quit • any key continue"))
	} else {
		b.WriteString(styles.StatusBar.Render("crawl runs to completion • ctrl+c quit"))
	}

	return b.String()
}

func (m ProgressModel) renderStats(status, message string, count int) string {
	var sb strings.Builder
	elapsed := time.Since(m.startTime).Truncate(time.Second)

	statLabel := lipgloss.NewStyle().Foreground(styles.Muted).Width(10)
	statVal := lipgloss.NewStyle().Foreground(styles.Text).Bold(true)

	row := func(label string, value string) {
		sb.WriteString(statLabel.Render(label))
		sb.WriteString(statVal.Render(value))
		sb.WriteString("\n")
	}

	if status == "" {
		status = "starting"
	}
	row("Status:", status)
	if message != "" {
		row("Step:", message)
	}
	row("Places:", fmt.Sprintf("%d", count))
	row("Elapsed:", elapsed.String())

	return sb.String()
}

func lastLine(errs []string) string {
	if len(errs) == 0 {
		return ""
	}
	return errs[len(errs)-1]
}

// NavigateToExplorer signals transition to explorer view.
type NavigateToExplorer struct {
	DBPath string
}
