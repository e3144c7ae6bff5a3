package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Settings is the feed-side configuration: which files make up a feed
// epoch, where the epoch directories live, and the render thresholds.
// It is a YAML file so operators can adjust it without a rebuild.
type Settings struct {
	// FeedRoot holds one subdirectory per epoch generation:
	// current_previous, current, upcoming, upcoming_next.
	FeedRoot string `yaml:"feed_root" validate:"required"`

	// ArtifactDir holds rendered schedule artifacts, one subdirectory
	// per epoch.
	ArtifactDir string `yaml:"artifact_dir" validate:"required"`

	// FeedURL, when set, is polled for new feed archives.
	FeedURL string `yaml:"feed_url" validate:"omitempty,url"`

	// BatchSize caps records per import batch.
	BatchSize int `yaml:"batch_size" validate:"omitempty,min=1,max=1000"`

	// ServiceGapDays is the interval above which a service window must
	// cover the rendered date to stay in view.
	ServiceGapDays int `yaml:"service_gap_days" validate:"omitempty,min=1"`

	// Domains maps import domain keys to their extract file names.
	Domains []DomainSetting `yaml:"domains" validate:"required,min=1,dive"`
}

// DomainSetting binds one import domain to its extract file.
type DomainSetting struct {
	Key  string `yaml:"key" validate:"required"`
	File string `yaml:"file" validate:"required"`
}

// LoadSettings reads, env-expands and validates the feed settings file.
func LoadSettings(path string) (*Settings, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading settings %s: %w", path, err)
	}

	var s Settings
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), &s); err != nil {
		return nil, fmt.Errorf("parsing settings %s: %w", path, err)
	}

	s.applyDefaults()

	if err := validator.New().Struct(&s); err != nil {
		return nil, fmt.Errorf("validating settings %s: %w", path, err)
	}

	return &s, nil
}

func (s *Settings) applyDefaults() {
	if s.BatchSize == 0 {
		s.BatchSize = 1000
	}
	if s.ServiceGapDays == 0 {
		s.ServiceGapDays = 5
	}
}

// FileForDomain returns the extract file configured for a domain key,
// or "" when the domain is not part of the feed.
func (s *Settings) FileForDomain(key string) string {
	for _, d := range s.Domains {
		if d.Key == key {
			return d.File
		}
	}
	return ""
}
