// Package export flattens crawled places into CSV files.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/serabi/poiscout/internal/model"
)

// optionalColumns are attribute keys exported verbatim after the fixed
// columns. Lists are comma-joined; localized-text objects collapse to their
// text field.
var optionalColumns = []string{
	"businessStatus",
	"rating",
	"userRatingCount",
	"nationalPhoneNumber",
	"internationalPhoneNumber",
	"websiteUri",
	"googleMapsUri",
	"primaryType",
	"priceLevel",
	"types",
}

// hoursColumns hold opening-hours objects, flattened to their weekday lines.
var hoursColumns = []string{"currentOpeningHours", "regularOpeningHours"}

// Header is the full CSV column list in output order.
func Header() []string {
	h := []string{"place_id", "name", "lat", "lng", "address"}
	h = append(h, optionalColumns...)
	h = append(h, hoursColumns...)
	return h
}

// WriteCSV writes a header plus one row per place.
func WriteCSV(w io.Writer, places []model.Place) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header()); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for _, p := range places {
		if err := cw.Write(Row(p)); err != nil {
			return fmt.Errorf("writing row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ToFile writes places to a CSV file, creating parent directories.
func ToFile(path string, places []model.Place) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating output: %w", err)
	}
	defer f.Close()
	return WriteCSV(f, places)
}

// Row flattens one place into Header order.
func Row(p model.Place) []string {
	row := []string{p.Identity(), displayName(p)}

	if p.Location != nil {
		row = append(row, formatFloat(p.Location.Lat), formatFloat(p.Location.Lng))
	} else {
		row = append(row, "", "")
	}
	row = append(row, stringAttr(p, "formattedAddress"))

	for _, key := range optionalColumns {
		row = append(row, formatValue(p.Attributes[key]))
	}
	for _, key := range hoursColumns {
		row = append(row, formatHours(p.Attributes[key]))
	}
	return row
}

func displayName(p model.Place) string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	if dn, ok := p.Attributes["displayName"].(map[string]any); ok {
		if text, ok := dn["text"].(string); ok {
			return text
		}
	}
	return ""
}

func stringAttr(p model.Place, key string) string {
	if s, ok := p.Attributes[key].(string); ok {
		return s
	}
	return ""
}

func formatValue(val any) string {
	switch v := val.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return formatFloat(v)
	case []any:
		parts := make([]string, len(v))
		for i, x := range v {
			parts[i] = formatValue(x)
		}
		return strings.Join(parts, ",")
	case map[string]any:
		if text, ok := v["text"].(string); ok {
			return text
		}
		return fmt.Sprint(v)
	default:
		return fmt.Sprint(v)
	}
}

func formatHours(val any) string {
	obj, ok := val.(map[string]any)
	if !ok {
		return formatValue(val)
	}
	wd, ok := obj["weekdayDescriptions"].([]any)
	if !ok {
		return fmt.Sprint(obj)
	}
	parts := make([]string, len(wd))
	for i, d := range wd {
		parts[i] = formatValue(d)
	}
	return strings.Join(parts, " | ")
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
