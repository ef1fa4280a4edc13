package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"

	yaml "gopkg.in/yaml.v3"

	"github.com/rupor-github/gencfg"
)

//go:embed config.yaml.tmpl
var ConfigTmpl []byte

type (
	// PagesConfig controls optional generated pages.
	PagesConfig struct {
		TitlePage      bool   `yaml:"title_page"`
		StatisticsPage bool   `yaml:"statistics_page"`
		Acknowledgment string `yaml:"acknowledgment,omitempty"`
		Description    string `yaml:"description,omitempty"`
		Footer         string `yaml:"footer,omitempty"`
	}

	// AssetsConfig controls how cached binary assets are handled.
	AssetsConfig struct {
		CachePath        string `yaml:"cache_path,omitempty" sanitize:"path_clean" validate:"omitempty,filepath"`
		NormalizeFormats bool   `yaml:"normalize_formats"`
		RasterizeSVG     bool   `yaml:"rasterize_svg"`
	}

	// ProviderSettings is a settings snapshot entry, used purely for the
	// statistics page. Keys never appear in generated output.
	ProviderSettings struct {
		Name        string       `yaml:"name" validate:"required"`
		Model       string       `yaml:"model,omitempty"`
		APIKey      SecretString `yaml:"api_key,omitempty"`
		Temperature float64      `yaml:"temperature,omitempty" validate:"gte=0"`
	}

	// DocumentConfig describes the produced book container.
	DocumentConfig struct {
		FixZip                bool             `yaml:"fix_zip"`
		Ordering              OrderingStrategy `yaml:"ordering"`
		FileNameTransliterate bool             `yaml:"file_name_transliterate"`
		Language              string           `yaml:"language,omitempty"`
		Pages                 PagesConfig      `yaml:"pages"`
		Assets                AssetsConfig     `yaml:"assets"`
	}

	Config struct {
		Version   int                `yaml:"version" validate:"eq=1"`
		Document  DocumentConfig     `yaml:"document"`
		Settings  []ProviderSettings `yaml:"settings,omitempty"`
		Logging   LoggingConfig      `yaml:"logging"`
		Reporting ReporterConfig     `yaml:"reporting"`
	}
)

func unmarshalConfig(data []byte, cfg *Config, process bool) (*Config, error) {
	// We want to use only fields we defined so we cannot use yaml.Unmarshal
	// directly here
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration data: %w", err)
	}
	if process {
		// sanitize and validate what has been loaded
		if err := gencfg.Sanitize(cfg); err != nil {
			return nil, err
		}
		if err := gencfg.Validate(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// LoadConfiguration reads the configuration from the file at the given path,
// superimposes its values on top of expanded configuration template to provide
// sane defaults and performs validation.
func LoadConfiguration(path string, options ...func(*gencfg.ProcessingOptions)) (*Config, error) {
	haveFile := len(path) > 0

	data, err := gencfg.Process(ConfigTmpl, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration template: %w", err)
	}
	cfg, err := unmarshalConfig(data, &Config{}, !haveFile)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration template: %w", err)
	}
	if !haveFile {
		return cfg, nil
	}

	// overwrite cfg values with values from the file
	data, err = os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err = unmarshalConfig(data, cfg, haveFile)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration file: %w", err)
	}
	return cfg, nil
}

// Prepare expands the embedded configuration template into default
// configuration data.
func Prepare(options ...func(*gencfg.ProcessingOptions)) ([]byte, error) {
	return gencfg.Process(ConfigTmpl, options...)
}

// Dump serializes processed configuration for the debug report. Secrets are
// masked by SecretString marshaling.
func Dump(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(*cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config to yaml: %v", err)
	}
	return data, nil
}
