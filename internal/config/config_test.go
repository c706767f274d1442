package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadSessionDefaultsWhenMissing(t *testing.T) {
	s := LoadSession(filepath.Join(t.TempDir(), "nope.json"))
	if s.MaxPages != 10 || s.LanguageCode != "en" {
		t.Errorf("defaults = %+v", s)
	}
	if len(s.Attributes) == 0 || s.Attributes[0] != "id" {
		t.Errorf("attributes = %v", s.Attributes)
	}
}

func TestSessionRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "session.json")

	in := Session{
		Keywords:     "ramen",
		Location:     "Osaka",
		MaxPages:     5,
		MaxResults:   100,
		RegionCode:   "jp",
		PrimaryTypes: []string{"restaurant"},
		Attributes:   []string{"id", "displayName"},
	}
	if err := SaveSession(path, in); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	out := LoadSession(path)
	if out.Keywords != "ramen" || out.Location != "Osaka" || out.MaxPages != 5 {
		t.Errorf("loaded = %+v", out)
	}
	if out.MaxResults != 100 || out.RegionCode != "jp" {
		t.Errorf("loaded = %+v", out)
	}
	// Empty language falls back to en on save.
	if out.LanguageCode != "en" {
		t.Errorf("language = %q", out.LanguageCode)
	}
	if len(out.Attributes) != 2 || out.Attributes[1] != "displayName" {
		t.Errorf("attributes = %v", out.Attributes)
	}
}

func TestLoadSessionKeepsDefaultsForMissingKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	if err := os.WriteFile(path, []byte(`{"keywords":"tea house"}`), 0644); err != nil {
		t.Fatal(err)
	}

	s := LoadSession(path)
	if s.Keywords != "tea house" {
		t.Errorf("keywords = %q", s.Keywords)
	}
	if s.MaxPages != 10 || len(s.Attributes) == 0 {
		t.Errorf("missing keys not defaulted: %+v", s)
	}
}

func TestAPIKeyFromEnv(t *testing.T) {
	t.Setenv(apiKeyEnv, "  env-key \n")
	if got := APIKey(); got != "env-key" {
		t.Errorf("APIKey() = %q", got)
	}
}

func TestAPIKeyFromConfigFile(t *testing.T) {
	t.Setenv(apiKeyEnv, "")
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(`{"api_key": "file-key"}`), 0644); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)

	if got := APIKey(); got != "file-key" {
		t.Errorf("APIKey() = %q", got)
	}
}

func TestAPIKeyMissing(t *testing.T) {
	t.Setenv(apiKeyEnv, "")
	t.Chdir(t.TempDir())
	if got := APIKey(); got != "" {
		t.Errorf("APIKey() = %q, want empty", got)
	}
}
