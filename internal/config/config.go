// Package config handles the API key lookup and the persisted crawl session.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

const apiKeyEnv = "GOOGLE_PLACES_API_KEY"

// Session holds the last crawl form values so the next run starts from them.
type Session struct {
	Keywords     string   `json:"keywords"`
	Location     string   `json:"location"`
	MaxPages     int      `json:"max_pages"`
	MaxResults   int      `json:"max_results"` // 0 = no cap
	LanguageCode string   `json:"language_code"`
	RegionCode   string   `json:"region_code"`
	PrimaryTypes []string `json:"primary_types"`
	Attributes   []string `json:"attributes"`
}

// DefaultSession returns the starting form values, including the default
// attribute selection sent as the search field mask.
func DefaultSession() Session {
	return Session{
		MaxPages:     10,
		LanguageCode: "en",
		Attributes: []string{
			"id",
			"displayName",
			"formattedAddress",
			"location",
			"types",
			"businessStatus",
			"rating",
			"userRatingCount",
			"nationalPhoneNumber",
			"websiteUri",
			"googleMapsUri",
		},
	}
}

// SessionPath is the persisted session location under the user config dir.
func SessionPath() string {
	cfg, _ := os.UserConfigDir()
	return filepath.Join(cfg, "poiscout", "session.json")
}

// LoadSession reads the session file, filling missing keys from defaults.
// A missing or unreadable file yields the defaults.
func LoadSession(path string) Session {
	s := DefaultSession()
	data, err := os.ReadFile(path)
	if err != nil {
		return s
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return DefaultSession()
	}
	if len(s.Attributes) == 0 {
		s.Attributes = DefaultSession().Attributes
	}
	return s
}

// SaveSession persists the session, creating the parent directory.
func SaveSession(path string, s Session) error {
	if s.LanguageCode == "" {
		s.LanguageCode = "en"
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// APIKey resolves the Places API key: the environment variable first, then
// an "api_key" (or "API_KEY") entry in ./config.json. Empty means not set.
func APIKey() string {
	if key := strings.TrimSpace(os.Getenv(apiKeyEnv)); key != "" {
		return key
	}
	data, err := os.ReadFile("config.json")
	if err != nil {
		return ""
	}
	// Tolerate a UTF-8 BOM from editors that add one.
	data = []byte(strings.TrimPrefix(string(data), "\uFEFF"))

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return ""
	}
	for _, k := range []string{"api_key", "API_KEY"} {
		var key string
		if v, ok := raw[k]; ok && json.Unmarshal(v, &key) == nil {
			if key = strings.TrimSpace(key); key != "" {
				return key
			}
		}
	}
	return ""
}
