package optimizer

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/sanonone/kektorplan/pkg/budget"
	"github.com/sanonone/kektorplan/pkg/query"
	"github.com/sanonone/kektorplan/pkg/stats"
)

// ImportanceConfig tunes entity importance scoring.
type ImportanceConfig struct {
	InboundWeight  float64 `yaml:"inbound_weight" validate:"gte=0"`
	OutboundWeight float64 `yaml:"outbound_weight" validate:"gte=0"`
	// Normalization is the weighted connection count that maps to 1.0.
	Normalization float64 `yaml:"normalization" validate:"gt=0"`
}

// ExecutionConfig tunes ExecuteQuery.
type ExecutionConfig struct {
	// ScoreSeeds attaches importance scores to seed results.
	ScoreSeeds bool `yaml:"score_seeds"`
	// SeedConcurrency bounds concurrent importance lookups per execution.
	SeedConcurrency int `yaml:"seed_concurrency" validate:"gte=1,lte=256"`
}

// Config is the complete optimizer configuration.
type Config struct {
	Rewrite    query.RewriteConfig `yaml:"rewrite"`
	Budget     budget.Config       `yaml:"budget"`
	Stats      stats.Config        `yaml:"stats"`
	Importance ImportanceConfig    `yaml:"importance"`
	Execution  ExecutionConfig     `yaml:"execution"`
}

// DefaultConfig returns a working configuration.
func DefaultConfig() Config {
	return Config{
		Rewrite: query.DefaultRewriteConfig(),
		Budget:  budget.DefaultConfig(),
		Stats:   stats.DefaultConfig(),
		Importance: ImportanceConfig{
			InboundWeight:  0.4,
			OutboundWeight: 0.6,
			Normalization:  25,
		},
		Execution: ExecutionConfig{
			ScoreSeeds:      true,
			SeedConcurrency: 8,
		},
	}
}

var validate = validator.New()

// Validate checks every section against its bounds.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid optimizer config: %s fails %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("invalid optimizer config: %w", err)
	}
	return nil
}

// LoadConfig reads a YAML file over DefaultConfig using strict parsing, so
// unknown keys are rejected, then validates the result. An empty path
// returns the defaults.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	file, err := os.Open(path)
	if err != nil {
		return DefaultConfig(), fmt.Errorf("failed to open optimizer config: %w", err)
	}
	defer file.Close()

	return ParseConfig(file)
}

// ParseConfig is LoadConfig for an already open reader.
func ParseConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()

	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)

	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return DefaultConfig(), fmt.Errorf("YAML syntax error in optimizer config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return DefaultConfig(), err
	}
	return cfg, nil
}
