package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Veraticus/nourish/internal/common"
	"github.com/Veraticus/nourish/internal/features"
	"github.com/Veraticus/nourish/internal/training"
)

// DefaultAddr is the listen address when neither server.addr nor PORT is set.
const DefaultAddr = ":8000"

// Settings is the resolved application configuration.
type Settings struct {
	Server     ServerSettings
	Database   DatabaseSettings
	Artifacts  string
	HeightUnit features.HeightUnit
	Training   training.Options
}

// ServerSettings configures the HTTP listener.
type ServerSettings struct {
	Addr            string
	CORSOrigins     []string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseSettings configures the prediction history store.
type DatabaseSettings struct {
	Path    string
	Enabled bool
}

// SetDefaults registers default values for every key Load reads.
func SetDefaults(v *viper.Viper) {
	opts := training.DefaultOptions()

	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("database.enabled", true)
	v.SetDefault("features.height_unit", string(features.Feet))
	v.SetDefault("training.trees", opts.Trees)
	v.SetDefault("training.max_depth", opts.MaxDepth)
	v.SetDefault("training.min_samples_leaf", opts.MinSamplesLeaf)
	v.SetDefault("training.test_split", opts.TestSplit)
	v.SetDefault("training.seed", opts.Seed)
}

// Load resolves settings from v. Precedence for the listen address is
// server.addr, then the PORT environment variable, then DefaultAddr. Paths
// have ~ and environment variables expanded.
func Load(v *viper.Viper) (*Settings, error) {
	s := &Settings{
		Server: ServerSettings{
			Addr:            strings.TrimSpace(v.GetString("server.addr")),
			CORSOrigins:     cleanList(v.GetStringSlice("server.cors_origins")),
			ReadTimeout:     v.GetDuration("server.read_timeout"),
			WriteTimeout:    v.GetDuration("server.write_timeout"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
		},
		Database: DatabaseSettings{
			Path:    ExpandPath(v.GetString("database.path")),
			Enabled: v.GetBool("database.enabled"),
		},
		Artifacts: ExpandPath(v.GetString("artifacts.dir")),
	}

	if s.Server.Addr == "" {
		if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
			s.Server.Addr = ":" + port
		} else {
			s.Server.Addr = DefaultAddr
		}
	}
	if s.Database.Path == "" {
		s.Database.Path = DefaultDatabasePath()
	}
	if s.Artifacts == "" {
		s.Artifacts = DefaultArtifactsDir()
	}

	unit, err := features.ParseHeightUnit(v.GetString("features.height_unit"))
	if err != nil {
		return nil, fmt.Errorf("%w: features.height_unit: %w", common.ErrInvalidConfig, err)
	}
	s.HeightUnit = unit

	s.Training = training.Options{
		OneHot:         cleanList(v.GetStringSlice("training.one_hot")),
		Trees:          v.GetInt("training.trees"),
		MaxDepth:       v.GetInt("training.max_depth"),
		MinSamplesLeaf: v.GetInt("training.min_samples_leaf"),
		Workers:        v.GetInt("training.workers"),
		TestSplit:      v.GetFloat64("training.test_split"),
		Seed:           v.GetInt64("training.seed"),
		HeightUnit:     unit,
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Settings) validate() error {
	switch {
	case s.Training.Trees < 1:
		return fmt.Errorf("%w: training.trees must be positive", common.ErrInvalidConfig)
	case s.Training.MaxDepth < 0:
		return fmt.Errorf("%w: training.max_depth cannot be negative", common.ErrInvalidConfig)
	case s.Training.MinSamplesLeaf < 1:
		return fmt.Errorf("%w: training.min_samples_leaf must be positive", common.ErrInvalidConfig)
	case s.Training.TestSplit < 0 || s.Training.TestSplit >= 1:
		return fmt.Errorf("%w: training.test_split must be in [0, 1)", common.ErrInvalidConfig)
	case s.Server.ReadTimeout < 0 || s.Server.WriteTimeout < 0:
		return fmt.Errorf("%w: server timeouts cannot be negative", common.ErrInvalidConfig)
	}
	for i, name := range s.Training.OneHot {
		canonical, _, ok := features.Canonical(name)
		if !ok || features.KindOf(canonical) != features.KindCategorical {
			return fmt.Errorf("%w: training.one_hot: %q is not a categorical column", common.ErrInvalidConfig, name)
		}
		s.Training.OneHot[i] = canonical
	}
	return nil
}

// cleanList trims entries and splits comma-separated values, which is how
// list settings arrive from environment variables.
func cleanList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
