package config

import (
	"fmt"
	"time"
)

// MachineLearningConfig configures the embedding service and duplicate detection.
type MachineLearningConfig struct {
	Enabled            bool                     `mapstructure:"enabled"`
	URL                string                   `mapstructure:"url"`
	Timeout            time.Duration            `mapstructure:"timeout"`
	Clip               ClipConfig               `mapstructure:"clip"`
	DuplicateDetection DuplicateDetectionConfig `mapstructure:"duplicate_detection"`
}

type ClipConfig struct {
	ModelName string `mapstructure:"model_name"`
}

type DuplicateDetectionConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// MaxDistance is the cosine distance under which two assets count as duplicates.
	MaxDistance float64 `mapstructure:"max_distance"`
}

// Validate returns an error describing the first invalid field.
func (c *MachineLearningConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.URL == "" {
		return fmt.Errorf("machine_learning: url is required when enabled")
	}
	if c.Clip.ModelName == "" {
		return fmt.Errorf("machine_learning: clip.model_name is required when enabled")
	}
	if d := c.DuplicateDetection.MaxDistance; d <= 0 || d > 2 {
		return fmt.Errorf("machine_learning: duplicate_detection.max_distance must be in (0, 2], got %v", d)
	}
	return nil
}

// SystemConfig is the read-only snapshot consulted by background jobs.
type SystemConfig struct {
	MachineLearning MachineLearningConfig
}

// SystemConfig returns a copy of the job-facing settings.
func (c *Config) SystemConfig() SystemConfig {
	return SystemConfig{MachineLearning: c.MachineLearning}
}

// DuplicateDetectionEnabled reports whether both ML and duplicate detection are on.
func (s SystemConfig) DuplicateDetectionEnabled() bool {
	return s.MachineLearning.Enabled && s.MachineLearning.DuplicateDetection.Enabled
}
