package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadConfiguration_NoFile(t *testing.T) {
	cfg, err := LoadConfiguration("")
	if err != nil {
		t.Fatalf("LoadConfiguration() with empty path error = %v", err)
	}
	if cfg == nil {
		t.Fatal("LoadConfiguration() returned nil config")
	}
	if cfg.Version != 1 {
		t.Errorf("Default config version = %d, want 1", cfg.Version)
	}
	if cfg.Document.Ordering != OrderingByNumber {
		t.Errorf("Default ordering = %v, want %v", cfg.Document.Ordering, OrderingByNumber)
	}
	if !cfg.Document.Pages.TitlePage {
		t.Error("Default config should enable title page")
	}
}

func TestLoadConfiguration_WithFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")

	configContent := `version: 1
document:
  fix_zip: true
  ordering: by-navigation-links
  pages:
    title_page: false
    statistics_page: true
    acknowledgment: "Thanks to everyone"
settings:
  - name: openai
    model: gpt-4o
    api_key: sk-something
logging:
  console:
    level: none
  file:
    level: none
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfiguration(configPath)
	if err != nil {
		t.Fatalf("LoadConfiguration() error = %v", err)
	}
	if !cfg.Document.FixZip {
		t.Error("fix_zip not picked up from file")
	}
	if cfg.Document.Ordering != OrderingByNavigation {
		t.Errorf("ordering = %v, want %v", cfg.Document.Ordering, OrderingByNavigation)
	}
	if !cfg.Document.Pages.StatisticsPage || cfg.Document.Pages.TitlePage {
		t.Errorf("pages overrides lost: %+v", cfg.Document.Pages)
	}
	if len(cfg.Settings) != 1 || cfg.Settings[0].APIKey.Value() != "sk-something" {
		t.Errorf("settings snapshot not loaded: %+v", cfg.Settings)
	}
}

func TestLoadConfiguration_RejectsUnknownFields(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("version: 1\nnonsense: true\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadConfiguration(configPath); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestDumpMasksSecrets(t *testing.T) {
	cfg, err := LoadConfiguration("")
	if err != nil {
		t.Fatalf("LoadConfiguration: %v", err)
	}
	cfg.Settings = []ProviderSettings{{Name: "openai", APIKey: "sk-very-secret"}}

	data, err := Dump(cfg)
	if err != nil {
		t.Fatalf("Dump: %v", err)
	}
	if strings.Contains(string(data), "sk-very-secret") {
		t.Error("secret leaked into config dump")
	}
	if !strings.Contains(string(data), SecretStringValue) {
		t.Error("masked placeholder missing from dump")
	}
}

func TestParseOrderingStrategy(t *testing.T) {
	tests := []struct {
		input   string
		want    OrderingStrategy
		wantErr bool
	}{
		{"by-number", OrderingByNumber, false},
		{"by-navigation-links", OrderingByNavigation, false},
		{"alphabetical", OrderingByNumber, true},
		{"", OrderingByNumber, true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseOrderingStrategy(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}
