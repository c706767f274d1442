package views

import (
	"encoding/json"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/serabi/poiscout/internal/engine/storage"
	"github.com/serabi/poiscout/internal/export"
	"github.com/serabi/poiscout/internal/model"
	"github.com/serabi/poiscout/internal/tui/components"
	"github.com/serabi/poiscout/internal/tui/styles"
)

type focusArea int

const (
	focusTable focusArea = iota
	focusFilter
	focusCard
	focusJSON
	focusMap
)

// ExplorerModel displays crawled places with table, detail and map panels.
type ExplorerModel struct {
	dbPath   string
	places   []model.Place
	filtered []model.Place
	table    table.Model
	filter   textinput.Model
	mapView  components.MapView
	focus    focusArea
	selected int
	width    int
	height   int
	err      error
	total    int
	exportMsg string

	// Scroll state for detail panels
	cardScrollY int
	cardLines   []string // cached rendered card lines
	jsonScrollY int
	jsonScrollX int
	jsonLines   []string // cached raw JSON lines
	jsonRaw     string   // full JSON for clipboard copy
}

type dbLoadedMsg struct {
	Places []model.Place
	Cells  []model.GridCell
	Border []components.Point
	Err    error
}

func NewExplorerModel(dbPath string) ExplorerModel {
	filter := textinput.New()
	filter.Placeholder = "Type to filter..."
	filter.CharLimit = 50

	return ExplorerModel{
		dbPath:   dbPath,
		filter:   filter,
		mapView:  components.NewMapView(40, 10),
		selected: -1,
	}
}

func (m ExplorerModel) Init() tea.Cmd {
	dbPath := m.dbPath
	return func() tea.Msg {
		store, err := storage.NewStore(dbPath)
		if err != nil {
			return dbLoadedMsg{Err: err}
		}
		defer store.Close()

		places, err := store.LoadPlaces("")
		if err != nil {
			return dbLoadedMsg{Err: err}
		}

		// Latest run supplies the map overlays.
		var cells []model.GridCell
		var border []components.Point
		if runs, err := store.Runs(); err == nil && len(runs) > 0 {
			latest := runs[0]
			cells, _ = store.LoadCells(latest.ID)
			border = boundaryRing(latest.Boundary)
		}
		return dbLoadedMsg{Places: places, Cells: cells, Border: border}
	}
}

// boundaryRing extracts the largest exterior ring from stored GeoJSON.
func boundaryRing(raw string) []components.Point {
	if raw == "" {
		return nil
	}
	g, err := geojson.UnmarshalGeometry([]byte(raw))
	if err != nil {
		return nil
	}

	var ring orb.Ring
	switch geom := g.Geometry().(type) {
	case orb.Polygon:
		if len(geom) > 0 {
			ring = geom[0]
		}
	case orb.MultiPolygon:
		for _, poly := range geom {
			if len(poly) > 0 && len(poly[0]) > len(ring) {
				ring = poly[0]
			}
		}
	}

	points := make([]components.Point, len(ring))
	for i, p := range ring {
		points[i] = components.Point{Lat: p.Lat(), Lng: p.Lon()}
	}
	return points
}

func (m ExplorerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateLayout()
	case tea.KeyMsg:
		key := msg.String()

		// Global keys
		if key == "ctrl+c" {
			return m, tea.Quit
		}

		switch m.focus {
		case focusTable:
			switch key {
			case "esc", "q":
				return m, func() tea.Msg { return NavigateToHome{} }
			case "/", "tab":
				m.focus = focusFilter
				m.filter.Focus()
				return m, textinput.Blink
			case "1":
				m.focus = focusCard
				m.table.SetStyles(m.unfocusedTableStyles())
				return m, nil
			case "2":
				m.focus = focusJSON
				m.table.SetStyles(m.unfocusedTableStyles())
				return m, nil
			case "3":
				m.focus = focusMap
				m.table.SetStyles(m.unfocusedTableStyles())
				return m, nil
			case "e":
				m.exportCSV()
				return m, nil
			}

		case focusFilter:
			switch key {
			case "esc", "enter", "tab":
				m.focus = focusTable
				m.filter.Blur()
				return m, nil
			}

		case focusCard:
			ph := m.panelHeight()
			maxScroll := len(m.cardLines) - ph
			if maxScroll < 0 {
				maxScroll = 0
			}
			switch key {
			case "esc":
				m.focus = focusTable
				m.table.SetStyles(m.focusedTableStyles())
				return m, nil
			case "up", "k":
				if m.cardScrollY > 0 {
					m.cardScrollY--
				}
				return m, nil
			case "down", "j":
				if m.cardScrollY < maxScroll {
					m.cardScrollY++
				}
				return m, nil
			}

		case focusJSON:
			ph := m.panelHeight()
			maxScroll := len(m.jsonLines) - ph
			if maxScroll < 0 {
				maxScroll = 0
			}
			switch key {
			case "esc":
				m.focus = focusTable
				m.table.SetStyles(m.focusedTableStyles())
				return m, nil
			case "up", "k":
				if m.jsonScrollY > 0 {
					m.jsonScrollY--
				}
				return m, nil
			case "down", "j":
				if m.jsonScrollY < maxScroll {
					m.jsonScrollY++
				}
				return m, nil
			case "left", "h":
				if m.jsonScrollX > 0 {
					m.jsonScrollX -= 4
					if m.jsonScrollX < 0 {
						m.jsonScrollX = 0
					}
				}
				return m, nil
			case "right", "l":
				m.jsonScrollX += 4
				return m, nil
			case "c":
				m.copyToClipboard()
				return m, nil
			}

		case focusMap:
			switch key {
			case "esc":
				m.focus = focusTable
				m.table.SetStyles(m.focusedTableStyles())
				return m, nil
			case "+", "=":
				m.mapView.ZoomIn()
				return m, nil
			case "-":
				m.mapView.ZoomOut()
				return m, nil
			case "0":
				m.mapView.ZoomReset()
				return m, nil
			case "up", "k":
				m.mapView.Pan(1, 0)
				return m, nil
			case "down", "j":
				m.mapView.Pan(-1, 0)
				return m, nil
			case "left", "h":
				m.mapView.Pan(0, -1)
				return m, nil
			case "right", "l":
				m.mapView.Pan(0, 1)
				return m, nil
			}
		}

	case dbLoadedMsg:
		if msg.Err != nil {
			m.err = msg.Err
			return m, nil
		}
		m.places = msg.Places
		m.filtered = msg.Places
		m.total = len(m.places)
		m.buildTable(m.places)

		m.mapView.SetBorder(msg.Border)
		cells := make([]components.Rect, 0, len(msg.Cells))
		for _, c := range msg.Cells {
			cells = append(cells, components.Rect{
				SWLat: c.Bounds.SW.Lat, SWLng: c.Bounds.SW.Lng,
				NELat: c.Bounds.NE.Lat, NELng: c.Bounds.NE.Lng,
			})
		}
		m.mapView.SetCells(cells)
		m.setMapPoints()

		m.updateLayout()
		if len(m.filtered) > 0 {
			m.selected = 0
			m.cacheDetailContent()
		}
		return m, nil
	}

	// Route input to focused area
	var cmd tea.Cmd
	switch m.focus {
	case focusTable:
		m.table, cmd = m.table.Update(msg)
		cursor := m.table.Cursor()
		if cursor != m.selected && cursor < len(m.filtered) {
			m.selected = cursor
			m.cardScrollY = 0
			m.jsonScrollY = 0
			m.jsonScrollX = 0
			m.cacheDetailContent()
		}
	case focusFilter:
		m.filter, cmd = m.filter.Update(msg)
		m.applyFilter()
	}

	return m, cmd
}

func (m *ExplorerModel) setMapPoints() {
	points := make([]components.Point, 0, len(m.filtered))
	for _, p := range m.filtered {
		if p.Location != nil {
			points = append(points, components.Point{Lat: p.Location.Lat, Lng: p.Location.Lng})
		}
	}
	m.mapView.SetPoints(points)
}

func (m *ExplorerModel) cacheDetailContent() {
	if m.selected < 0 || m.selected >= len(m.filtered) {
		m.cardLines = nil
		m.jsonLines = nil
		m.jsonRaw = ""
		return
	}

	// Cache card content as plain lines
	p := m.filtered[m.selected]
	m.cardLines = buildCardLines(p)

	// Cache JSON
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		m.jsonLines = []string{"JSON error"}
		m.jsonRaw = ""
		return
	}
	m.jsonRaw = string(data)
	m.jsonLines = strings.Split(m.jsonRaw, "\n")
}

// Attribute accessors over the raw search-API payload.

func attrString(p model.Place, key string) string {
	if s, ok := p.Attributes[key].(string); ok {
		return s
	}
	return ""
}

func attrFloat(p model.Place, key string) float64 {
	if f, ok := p.Attributes[key].(float64); ok {
		return f
	}
	return 0
}

func attrList(p model.Place, key string) string {
	list, ok := p.Attributes[key].([]any)
	if !ok {
		return ""
	}
	parts := make([]string, 0, len(list))
	for _, v := range list {
		if s, ok := v.(string); ok {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}

func buildCardLines(p model.Place) []string {
	var lines []string

	name := p.DisplayName
	if name == "" {
		name = p.Identity()
	}
	lines = append(lines, name)

	if rating := attrFloat(p, "rating"); rating > 0 {
		r := fmt.Sprintf("%.1f", rating)
		if count := attrFloat(p, "userRatingCount"); count > 0 {
			r += fmt.Sprintf(" (%.0f ratings)", count)
		}
		lines = append(lines, r)
	}

	if types := attrList(p, "types"); types != "" {
		lines = append(lines, types)
	}

	lines = append(lines, "")

	addRow := func(label, value string) {
		if value != "" {
			lines = append(lines, fmt.Sprintf("%-10s %s", label, value))
		}
	}

	addRow("Address:", attrString(p, "formattedAddress"))
	addRow("Phone:", attrString(p, "nationalPhoneNumber"))
	addRow("Website:", attrString(p, "websiteUri"))
	addRow("Maps:", attrString(p, "googleMapsUri"))
	addRow("Status:", attrString(p, "businessStatus"))
	if p.Location != nil {
		addRow("Coords:", fmt.Sprintf("%.6f, %.6f", p.Location.Lat, p.Location.Lng))
	}
	addRow("PlaceID:", p.Identity())

	if hours, ok := p.Attributes["regularOpeningHours"].(map[string]any); ok {
		if wd, ok := hours["weekdayDescriptions"].([]any); ok && len(wd) > 0 {
			lines = append(lines, "", "Hours:")
			for _, d := range wd {
				if s, ok := d.(string); ok {
					lines = append(lines, "  "+s)
				}
			}
		}
	}

	return lines
}

func (m *ExplorerModel) buildTable(places []model.Place) {
	nameW := 28
	addrW := 34
	typeW := 18
	ratingW := 6
	phoneW := 16
	if m.width > 120 {
		extra := m.width - 120
		nameW += extra * 3 / 10
		addrW += extra * 3 / 10
		typeW += extra * 2 / 10
		phoneW += extra * 2 / 10
	}

	columns := []table.Column{
		{Title: "Name", Width: nameW},
		{Title: "Address", Width: addrW},
		{Title: "Type", Width: typeW},
		{Title: "Rating", Width: ratingW},
		{Title: "Phone", Width: phoneW},
	}

	rows := make([]table.Row, len(places))
	for i, p := range places {
		rating := ""
		if r := attrFloat(p, "rating"); r > 0 {
			rating = fmt.Sprintf("%.1f", r)
		}
		rows[i] = table.Row{
			truncate(p.DisplayName, nameW),
			truncate(attrString(p, "formattedAddress"), addrW),
			truncate(attrString(p, "primaryType"), typeW),
			rating,
			attrString(p, "nationalPhoneNumber"),
		}
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithFocused(true),
		table.WithHeight(10),
	)
	t.SetStyles(m.focusedTableStyles())
	m.table = t
}

func (m ExplorerModel) focusedTableStyles() table.Styles {
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(styles.Muted).
		BorderBottom(true).
		Bold(true).
		Foreground(styles.Secondary)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(styles.Primary).
		Bold(true)
	return s
}

func (m ExplorerModel) unfocusedTableStyles() table.Styles {
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(styles.Muted).
		BorderBottom(true).
		Bold(true).
		Foreground(styles.Muted)
	s.Selected = s.Selected.
		Foreground(styles.Text).
		Background(lipgloss.Color("#333333")).
		Bold(false)
	return s
}

func (m ExplorerModel) panelHeight() int {
	h := m.height/2 - 6
	if h < 6 {
		h = 6
	}
	return h
}

func (m *ExplorerModel) updateLayout() {
	if m.width <= 0 {
		return
	}
	tableH := m.height/2 - 4
	if tableH < 5 {
		tableH = 5
	}
	m.table.SetHeight(tableH)
	m.buildTable(m.filtered)
}

// normalize removes accents/diacritics and lowercases text for fuzzy matching.
func normalize(s string) string {
	t := transform.Chain(norm.NFD, transform.RemoveFunc(func(r rune) bool {
		return unicode.Is(unicode.Mn, r)
	}), norm.NFC)
	result, _, _ := transform.String(t, strings.ToLower(s))
	return result
}

func (m *ExplorerModel) applyFilter() {
	raw := strings.TrimSpace(m.filter.Value())
	if raw == "" {
		m.filtered = m.places
		m.buildTable(m.filtered)
		m.setMapPoints()
		if len(m.filtered) > 0 {
			m.selected = 0
			m.cacheDetailContent()
		}
		return
	}

	words := strings.Fields(normalize(raw))
	m.filtered = nil
	for _, p := range m.places {
		haystack := normalize(strings.Join([]string{
			p.DisplayName,
			attrString(p, "formattedAddress"),
			attrString(p, "primaryType"),
			attrList(p, "types"),
		}, " "))
		match := true
		for _, w := range words {
			if !strings.Contains(haystack, w) {
				match = false
				break
			}
		}
		if match {
			m.filtered = append(m.filtered, p)
		}
	}
	m.buildTable(m.filtered)
	m.setMapPoints()
	if len(m.filtered) > 0 {
		m.selected = 0
	} else {
		m.selected = -1
	}
	m.cacheDetailContent()
}

func (m ExplorerModel) View() string {
	if m.err != nil {
		return styles.ErrorText.Render(fmt.Sprintf("Error loading DB: %v", m.err))
	}

	var b strings.Builder

	b.WriteString(styles.Title.Render(fmt.Sprintf("Explorer: %d places", m.total)))
	if len(m.filtered) != m.total {
		b.WriteString(lipgloss.NewStyle().Foreground(styles.Muted).
			Render(fmt.Sprintf(" (showing %d)", len(m.filtered))))
	}
	b.WriteString("\n\n")

	// Filter
	filterStyle := lipgloss.NewStyle().Foreground(styles.Muted)
	if m.focus == focusFilter {
		filterStyle = lipgloss.NewStyle().Foreground(styles.Primary)
	}
	b.WriteString(filterStyle.Render("Filter: "))
	b.WriteString(m.filter.View())
	b.WriteString("\n")

	// Table
	b.WriteString(m.table.View())
	b.WriteString("\n\n")

	// Detail panels
	detailW := m.width - 2
	if detailW < 60 {
		detailW = 60
	}
	panelH := m.panelHeight()

	cardOuterW := detailW * 3 / 10
	jsonOuterW := detailW * 3 / 10
	mapOuterW := detailW - cardOuterW - jsonOuterW - 2

	cardBox := m.renderPanel("[1] Details", m.viewCardPanel(cardOuterW-4, panelH),
		cardOuterW, panelH, m.focus == focusCard)
	jsonBox := m.renderPanel("[2] JSON", m.viewJSONPanel(jsonOuterW-4, panelH),
		jsonOuterW, panelH, m.focus == focusJSON)
	mapBox := m.renderPanel("[3] Map", m.viewMapPanel(mapOuterW-4, panelH),
		mapOuterW, panelH, m.focus == focusMap)

	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, cardBox, " ", jsonBox, " ", mapBox))
	b.WriteString("\n\n")

	// Export message
	if m.exportMsg != "" {
		b.WriteString(lipgloss.NewStyle().Foreground(styles.Success).Render(m.exportMsg))
		b.WriteString("\n")
	}

	// Status bar changes by focus
	var statusText string
	switch m.focus {
	case focusTable:
		statusText = "↑↓ navigate • 1 details • 2 json • 3 map • / filter • e export • esc back"
	case focusFilter:
		statusText = "type to filter • esc back"
	case focusCard:
		statusText = "↑↓ scroll • esc back to table"
	case focusJSON:
		statusText = "↑↓ scroll • ←→ pan • c copy json • esc back to table"
	case focusMap:
		statusText = "+/- zoom • arrows pan • 0 reset • esc back to table"
	}
	b.WriteString(styles.StatusBar.Render(statusText))

	return b.String()
}

func (m ExplorerModel) renderPanel(label, content string, outerW, panelH int, focused bool) string {
	borderColor := styles.Muted
	if focused {
		borderColor = styles.Primary
	}
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(borderColor).
		Padding(0, 1).
		Width(outerW - 2).
		Height(panelH).
		Render(content)
	title := lipgloss.NewStyle().Bold(true).Foreground(borderColor).Render(label)
	return title + "\n" + box
}

func (m ExplorerModel) viewCardPanel(w, h int) string {
	if m.selected < 0 || m.selected >= len(m.filtered) || len(m.cardLines) == 0 {
		return lipgloss.NewStyle().Foreground(styles.Muted).Italic(true).
			Render("Select a place\nto view details")
	}

	lines := m.cardLines

	// Clamp scroll
	scrollY := m.cardScrollY
	if scrollY > len(lines)-h {
		scrollY = len(lines) - h
	}
	if scrollY < 0 {
		scrollY = 0
	}

	// Window
	end := scrollY + h
	if end > len(lines) {
		end = len(lines)
	}
	visible := lines[scrollY:end]

	var sb strings.Builder
	label := lipgloss.NewStyle().Foreground(styles.Muted)
	valStyle := lipgloss.NewStyle().Foreground(styles.Text)

	for i, line := range visible {
		// First line (name) is bold
		if scrollY+i == 0 {
			sb.WriteString(lipgloss.NewStyle().Bold(true).Foreground(styles.Text).
				Render(truncate(line, w)))
		} else if scrollY+i == 1 && strings.Contains(line, "rating") {
			// Rating line
			sb.WriteString(lipgloss.NewStyle().Foreground(styles.Warning).
				Render(truncate(line, w)))
		} else if strings.HasPrefix(line, "Website:") || strings.HasPrefix(line, "Maps:") {
			parts := strings.SplitN(line, " ", 2)
			lbl := parts[0]
			val := ""
			if len(parts) > 1 {
				val = strings.TrimSpace(parts[1])
			}
			sb.WriteString(label.Render(fmt.Sprintf("%-10s ", lbl)))
			sb.WriteString(lipgloss.NewStyle().Foreground(styles.Primary).
				Render(truncate(val, w-11)))
		} else {
			sb.WriteString(valStyle.Render(truncate(line, w)))
		}
		if i < len(visible)-1 {
			sb.WriteString("\n")
		}
	}

	// Scroll indicators
	if scrollY > 0 {
		sb.WriteString("\n")
		sb.WriteString(label.Render("  ▲ more above"))
	}
	if end < len(lines) {
		sb.WriteString("\n")
		sb.WriteString(label.Render("  ▼ more below"))
	}

	return sb.String()
}

func (m ExplorerModel) viewJSONPanel(w, h int) string {
	if m.selected < 0 || m.selected >= len(m.filtered) || len(m.jsonLines) == 0 {
		return lipgloss.NewStyle().Foreground(styles.Muted).Italic(true).
			Render("Select a place\nto view JSON")
	}

	lines := m.jsonLines
	jsonStyle := lipgloss.NewStyle().Foreground(styles.Muted)
	keyStyle := lipgloss.NewStyle().Foreground(styles.Secondary)
	strStyle := lipgloss.NewStyle().Foreground(styles.Success)

	// Clamp scroll
	scrollY := m.jsonScrollY
	if scrollY > len(lines)-h {
		scrollY = len(lines) - h
	}
	if scrollY < 0 {
		scrollY = 0
	}

	end := scrollY + h
	if end > len(lines) {
		end = len(lines)
	}
	visible := lines[scrollY:end]

	var sb strings.Builder
	for i, line := range visible {
		// Apply horizontal scroll
		display := line
		if m.jsonScrollX > 0 {
			if m.jsonScrollX < len(display) {
				display = display[m.jsonScrollX:]
			} else {
				display = ""
			}
		}
		if len(display) > w {
			display = display[:w-1] + "…"
		}

		// Simple JSON syntax coloring
		trimmed := strings.TrimSpace(display)
		if strings.HasPrefix(trimmed, "\"") && strings.Contains(trimmed, "\":") {
			// Key line: color the key part
			colonIdx := strings.Index(display, "\":")
			if colonIdx > 0 {
				keyPart := display[:colonIdx+1]
				valPart := display[colonIdx+1:]
				sb.WriteString(keyStyle.Render(keyPart))
				sb.WriteString(strStyle.Render(valPart))
			} else {
				sb.WriteString(jsonStyle.Render(display))
			}
		} else {
			sb.WriteString(jsonStyle.Render(display))
		}

		if i < len(visible)-1 {
			sb.WriteString("\n")
		}
	}

	// Scroll indicators
	if scrollY > 0 || end < len(lines) {
		sb.WriteString("\n")
		indicator := fmt.Sprintf("  [%d/%d]", scrollY+1, len(lines))
		if m.jsonScrollX > 0 {
			indicator += fmt.Sprintf(" ←%d", m.jsonScrollX)
		}
		sb.WriteString(lipgloss.NewStyle().Foreground(styles.Muted).Render(indicator))
	}

	return sb.String()
}

func (m ExplorerModel) viewMapPanel(w, h int) string {
	mv := m.mapView
	mv.SetSize(w, h)
	return mv.View()
}

func (m *ExplorerModel) copyToClipboard() {
	if m.jsonRaw == "" {
		return
	}
	cmd := exec.Command("pbcopy")
	cmd.Stdin = strings.NewReader(m.jsonRaw)
	if err := cmd.Run(); err != nil {
		m.exportMsg = fmt.Sprintf("Copy failed: %v", err)
		return
	}
	m.exportMsg = "JSON copied to clipboard"
}

func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}

func (m *ExplorerModel) exportCSV() {
	dir := filepath.Dir(m.dbPath)
	base := strings.TrimSuffix(filepath.Base(m.dbPath), ".db")
	csvPath := filepath.Join(dir, base+".csv")

	data := m.filtered
	if len(data) == 0 {
		data = m.places
	}

	if err := export.ToFile(csvPath, data); err != nil {
		m.exportMsg = fmt.Sprintf("Export error: %v", err)
		return
	}
	m.exportMsg = fmt.Sprintf("Exported %d rows to %s", len(data), csvPath)
}
