package views

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/serabi/poiscout/internal/config"
	"github.com/serabi/poiscout/internal/model"
	"github.com/serabi/poiscout/internal/tui/styles"
)

// Field indices for the crawl form.
const (
	fieldKeywords = iota
	fieldLocation
	fieldAttributes
	fieldMaxPages
	fieldMaxResults
	fieldLanguage
	fieldRegion
	fieldType
	fieldOutput
	fieldCount
)

type SearchModel struct {
	inputs  []textinput.Model
	focused int
	err     string
}

func NewSearchModel() SearchModel {
	sess := config.LoadSession(config.SessionPath())

	inputs := make([]textinput.Model, fieldCount)
	inputs[fieldKeywords] = newInput("coffee shop", sess.Keywords, 60)
	inputs[fieldLocation] = newInput("Taipei City", sess.Location, 40)
	inputs[fieldAttributes] = newInput("id, displayName, ...", strings.Join(sess.Attributes, ", "), 60)
	inputs[fieldMaxPages] = newInput("10", strconv.Itoa(sess.MaxPages), 5)
	maxResults := ""
	if sess.MaxResults > 0 {
		maxResults = strconv.Itoa(sess.MaxResults)
	}
	inputs[fieldMaxResults] = newInput("no cap", maxResults, 8)
	inputs[fieldLanguage] = newInput("en", sess.LanguageCode, 8)
	inputs[fieldRegion] = newInput("optional: tw, jp, ...", sess.RegionCode, 8)
	placeType := ""
	if len(sess.PrimaryTypes) > 0 {
		placeType = sess.PrimaryTypes[0]
	}
	inputs[fieldType] = newInput("optional: restaurant, cafe, ...", placeType, 30)
	inputs[fieldOutput] = newInput("./projects", "", 50)

	inputs[fieldKeywords].Focus()

	return SearchModel{inputs: inputs}
}

func newInput(placeholder, value string, width int) textinput.Model {
	ti := textinput.New()
	ti.Placeholder = placeholder
	ti.CharLimit = 200
	if width > 0 {
		ti.Width = width
	}
	if value != "" {
		ti.SetValue(value)
	}
	return ti
}

func (m SearchModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m SearchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "esc":
			return m, func() tea.Msg { return NavigateToHome{} }

		case "up", "shift+tab":
			m.err = ""
			return m, m.focusPrev()

		case "down", "tab":
			m.err = ""
			return m, m.focusNext()

		case "enter":
			if cmd := m.submit(); cmd != nil {
				return m, cmd
			}
		}
	}

	var cmd tea.Cmd
	m.inputs[m.focused], cmd = m.inputs[m.focused].Update(msg)
	return m, cmd
}

func (m *SearchModel) focusNext() tea.Cmd {
	m.inputs[m.focused].Blur()
	m.focused++
	if m.focused >= fieldCount {
		m.focused = 0
	}
	m.inputs[m.focused].Focus()
	return textinput.Blink
}

func (m *SearchModel) focusPrev() tea.Cmd {
	m.inputs[m.focused].Blur()
	m.focused--
	if m.focused < 0 {
		m.focused = fieldCount - 1
	}
	m.inputs[m.focused].Focus()
	return textinput.Blink
}

func (m *SearchModel) submit() tea.Cmd {
	keywords := strings.TrimSpace(m.inputs[fieldKeywords].Value())
	if keywords == "" {
		m.err = "Keywords are required"
		return nil
	}
	location := strings.TrimSpace(m.inputs[fieldLocation].Value())
	if location == "" {
		m.err = "Location is required"
		return nil
	}
	output := strings.TrimSpace(m.inputs[fieldOutput].Value())
	if output == "" {
		output = "./projects"
	}

	maxPages := 10
	if s := strings.TrimSpace(m.inputs[fieldMaxPages].Value()); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > 20 {
			m.err = "Max pages must be between 1 and 20"
			return nil
		}
		maxPages = n
	}

	maxResults := 0
	if s := strings.TrimSpace(m.inputs[fieldMaxResults].Value()); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			m.err = "Max results must be a positive number"
			return nil
		}
		maxResults = n
	}

	var attributes []string
	for _, a := range strings.Split(m.inputs[fieldAttributes].Value(), ",") {
		if a = strings.TrimSpace(a); a != "" {
			attributes = append(attributes, a)
		}
	}

	language := strings.TrimSpace(m.inputs[fieldLanguage].Value())
	region := strings.TrimSpace(m.inputs[fieldRegion].Value())
	placeType := strings.TrimSpace(m.inputs[fieldType].Value())

	req := model.CrawlRequest{
		Keywords:     keywords,
		Location:     location,
		Attributes:   attributes,
		MaxPages:     maxPages,
		MaxResults:   maxResults,
		LanguageCode: language,
		RegionCode:   region,
		IncludedType: placeType,
	}

	// Remember the form for the next run.
	sess := config.Session{
		Keywords:     keywords,
		Location:     location,
		MaxPages:     maxPages,
		MaxResults:   maxResults,
		LanguageCode: language,
		RegionCode:   region,
		Attributes:   attributes,
	}
	if placeType != "" {
		sess.PrimaryTypes = []string{placeType}
	}
	config.SaveSession(config.SessionPath(), sess)

	return func() tea.Msg {
		return StartCrawlMsg{Request: req, Output: output}
	}
}

func (m SearchModel) View() string {
	var b strings.Builder

	b.WriteString(styles.Title.Render("New Crawl") + "\n\n")

	b.WriteString(m.renderField("Keywords:", fieldKeywords))
	b.WriteString(m.renderField("Location:", fieldLocation))
	b.WriteString(m.renderField("Attributes:", fieldAttributes))
	if m.focused == fieldAttributes {
		hint := lipgloss.NewStyle().Foreground(styles.Muted).Italic(true).
			Render("  comma-separated place fields returned per POI")
		b.WriteString(hint + "\n")
	}

	b.WriteString("\n")
	b.WriteString(m.renderField("Max pages:", fieldMaxPages))
	if m.focused == fieldMaxPages {
		hint := lipgloss.NewStyle().Foreground(styles.Muted).Italic(true).
			Render("  1-20 pages per grid cell (20 results each)")
		b.WriteString(hint + "\n")
	}
	b.WriteString(m.renderField("Max results:", fieldMaxResults))
	b.WriteString(m.renderField("Language:", fieldLanguage))
	b.WriteString(m.renderField("Region:", fieldRegion))
	b.WriteString(m.renderField("Type:", fieldType))
	b.WriteString(m.renderField("Output:", fieldOutput))

	if m.err != "" {
		b.WriteString("\n")
		b.WriteString(styles.ErrorText.Render("  " + m.err))
	}

	b.WriteString("\n\n")
	b.WriteString(styles.StatusBar.Render("enter start • tab next • esc back"))

	return styles.Border.Render(b.String())
}

func (m SearchModel) renderField(label string, idx int) string {
	l := styles.Label.Render(label)
	v := m.inputs[idx].View()
	return fmt.Sprintf("%s %s\n", l, v)
}

// Messages
type NavigateToHome struct{}

// StartCrawlMsg carries the validated form to the progress view.
type StartCrawlMsg struct {
	Request model.CrawlRequest
	Output  string
}
