// Package config loads the scoring configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"sigs.k8s.io/yaml"

	"github.com/l7mp/dscore/pkg/director"
	"github.com/l7mp/dscore/pkg/network"
	"github.com/l7mp/dscore/pkg/score"
)

// Config is the scoring configuration.
type Config struct {
	// ScoreKind is the score representation: int, long or decimal.
	ScoreKind string `json:"scoreKind,omitempty"`
	// ScoreLevels is the number of score levels, hardest first.
	ScoreLevels int `json:"scoreLevels,omitempty"`
	// MatchTracking keeps the individual matches for explanations.
	MatchTracking bool `json:"matchTracking,omitempty"`
	// AssertMode is none or incremental.
	AssertMode string `json:"assertMode,omitempty"`
	// Weights override constraint weights by constraint id, as score strings like "-1hard/0soft".
	Weights map[string]string `json:"weights,omitempty"`
	// Verbosity is the log level.
	Verbosity int `json:"verbosity,omitempty"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		ScoreKind:   score.Int.String(),
		ScoreLevels: 2,
		AssertMode:  director.AssertNone.String(),
		Weights:     map[string]string{},
	}
}

// Load reads a configuration file. Unset fields keep their defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(b)
}

// Parse parses a YAML configuration and validates it.
func Parse(b []byte) (*Config, error) {
	c := Default()
	if err := yaml.UnmarshalStrict(b, c); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Kind returns the score kind.
func (c *Config) Kind() (score.Kind, error) { return score.ParseKind(c.ScoreKind) }

// Validate checks every field and reports all problems at once.
func (c *Config) Validate() error {
	var errs []error
	kind, err := c.Kind()
	if err != nil {
		errs = append(errs, err)
	}
	if c.ScoreLevels < 1 {
		errs = append(errs, fmt.Errorf("scoreLevels must be positive, got %d", c.ScoreLevels))
	}
	if _, err := director.ParseAssertMode(c.AssertMode); err != nil {
		errs = append(errs, err)
	}
	if c.Verbosity < 0 {
		errs = append(errs, fmt.Errorf("verbosity must not be negative, got %d", c.Verbosity))
	}
	if err == nil {
		for _, id := range c.weightIDs() {
			w, err := score.Parse(kind, c.Weights[id])
			if err != nil {
				errs = append(errs, fmt.Errorf("weight of %s: %w", id, err))
				continue
			}
			if w.Levels() != c.ScoreLevels {
				errs = append(errs, fmt.Errorf("weight of %s has %d levels, expected %d", id,
					w.Levels(), c.ScoreLevels))
			}
		}
	}
	return errors.Join(errs...)
}

func (c *Config) weightIDs() []string {
	ids := make([]string, 0, len(c.Weights))
	for id := range c.Weights {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// WeightOverrides parses the weight overrides.
func (c *Config) WeightOverrides() (map[string]score.Score, error) {
	kind, err := c.Kind()
	if err != nil {
		return nil, err
	}
	ret := make(map[string]score.Score, len(c.Weights))
	for id, s := range c.Weights {
		w, err := score.Parse(kind, s)
		if err != nil {
			return nil, fmt.Errorf("weight of %s: %w", id, err)
		}
		ret[id] = w
	}
	return ret, nil
}

// BuilderOptions returns the network builder options the configuration implies.
func (c *Config) BuilderOptions() ([]network.Option, error) {
	kind, err := c.Kind()
	if err != nil {
		return nil, err
	}
	weights, err := c.WeightOverrides()
	if err != nil {
		return nil, err
	}
	return []network.Option{
		network.WithScoreKind(kind, c.ScoreLevels),
		network.WithWeightOverrides(weights),
	}, nil
}

// DirectorOptions returns the director options the configuration implies.
func (c *Config) DirectorOptions() (director.Options, error) {
	mode, err := director.ParseAssertMode(c.AssertMode)
	if err != nil {
		return director.Options{}, err
	}
	return director.Options{MatchTracking: c.MatchTracking, AssertMode: mode}, nil
}
