package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeSettings(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "feed.yml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadSettings(t *testing.T) {
	path := writeSettings(t, `
feed_root: /srv/feeds
artifact_dir: /srv/artifacts
batch_size: 250
service_gap_days: 7
domains:
  - { key: routes, file: routes.txt }
  - { key: stops, file: stops.txt }
`)

	s, err := LoadSettings(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.FeedRoot != "/srv/feeds" || s.ArtifactDir != "/srv/artifacts" {
		t.Errorf("unexpected paths: %+v", s)
	}
	if s.BatchSize != 250 || s.ServiceGapDays != 7 {
		t.Errorf("explicit thresholds should win over defaults: %+v", s)
	}
	if got := s.FileForDomain("stops"); got != "stops.txt" {
		t.Errorf("unexpected file for stops: %q", got)
	}
	if got := s.FileForDomain("shapes"); got != "" {
		t.Errorf("unconfigured domain should have no file, got %q", got)
	}
}

func TestLoadSettingsDefaults(t *testing.T) {
	path := writeSettings(t, `
feed_root: /srv/feeds
artifact_dir: /srv/artifacts
domains:
  - { key: routes, file: routes.txt }
`)

	s, err := LoadSettings(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.BatchSize != 1000 {
		t.Errorf("expected default batch size 1000, got %d", s.BatchSize)
	}
	if s.ServiceGapDays != 5 {
		t.Errorf("expected default gap of 5 days, got %d", s.ServiceGapDays)
	}
}

func TestLoadSettingsExpandsEnv(t *testing.T) {
	t.Setenv("FEEDS_BASE", "/data/vta")
	path := writeSettings(t, `
feed_root: ${FEEDS_BASE}/feeds
artifact_dir: ${FEEDS_BASE}/artifacts
domains:
  - { key: routes, file: routes.txt }
`)

	s, err := LoadSettings(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.FeedRoot != "/data/vta/feeds" {
		t.Errorf("expected env expansion, got %q", s.FeedRoot)
	}
}

func TestLoadSettingsRejectsMissingDomains(t *testing.T) {
	path := writeSettings(t, `
feed_root: /srv/feeds
artifact_dir: /srv/artifacts
`)

	if _, err := LoadSettings(path); err == nil {
		t.Error("settings without domains should not validate")
	}
}

func TestLoadSettingsRejectsBadURL(t *testing.T) {
	path := writeSettings(t, `
feed_root: /srv/feeds
artifact_dir: /srv/artifacts
feed_url: not a url
domains:
  - { key: routes, file: routes.txt }
`)

	if _, err := LoadSettings(path); err == nil {
		t.Error("a malformed feed_url should not validate")
	}
}

func TestLoadSettingsMissingFile(t *testing.T) {
	if _, err := LoadSettings(filepath.Join(t.TempDir(), "absent.yml")); err == nil {
		t.Error("a missing settings file should error")
	}
}
