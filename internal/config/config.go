package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Backend selects which capture implementation drives the camera.
type Backend string

const (
	// BackendSignalFile drives a long-lived capture process through
	// start/stop hook files (picam style). Raw segments are .ts.
	BackendSignalFile Backend = "signalfile"
	// BackendSequence spawns one capture process per segment
	// (raspivid style). Raw segments are .h264.
	BackendSequence Backend = "sequence"
)

// Config represents the complete BeePi configuration.
type Config struct {
	ExperimentName       string `yaml:"experiment_name"`
	SegmentLengthS       int    `yaml:"segment_length_s"`
	SessionLengthS       int    `yaml:"session_length_s"`
	SegmentsPerIteration int    `yaml:"segments_per_iteration"`
	IR                   bool   `yaml:"ir"`
	Debug                bool   `yaml:"debug"`

	Camera  CameraConfig  `yaml:"camera"`
	Storage StorageConfig `yaml:"storage"`
	Lights  LightsConfig  `yaml:"lights"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Health  HealthConfig  `yaml:"health"`
}

// CameraConfig contains capture device settings.
type CameraConfig struct {
	Backend      Backend `yaml:"backend"`
	Binary       string  `yaml:"binary"`        // capture executable
	WorkDir      string  `yaml:"work_dir"`      // cwd for the capture process
	DataDir      string  `yaml:"data_dir"`      // where raw segments land
	RecDir       string  `yaml:"rec_dir"`       // signalfile backend: where segment bytes are written
	FPS          int     `yaml:"fps"`
	Width        int     `yaml:"width"`
	Height       int     `yaml:"height"`
	Mode         int     `yaml:"mode"`          // vendor sensor mode enumeration
	WhiteBalance string  `yaml:"white_balance"` // auto, greyworld, ...
	ISO          int     `yaml:"iso"`
	HFlip        *bool   `yaml:"hflip"`        // unset means flipped; the camera hangs inverted
	VFlip        *bool   `yaml:"vflip"`
	AudioDevice  string  `yaml:"audio_device"` // signalfile backend only
	WarmupS      int     `yaml:"warmup_s"`
}

// HFlipped reports the horizontal flip setting. Unset defaults to on.
func (c CameraConfig) HFlipped() bool { return c.HFlip == nil || *c.HFlip }

// VFlipped reports the vertical flip setting. Unset defaults to on.
func (c CameraConfig) VFlipped() bool { return c.VFlip == nil || *c.VFlip }

// StorageConfig contains local and external volume settings.
type StorageConfig struct {
	ExternalPath     string  `yaml:"external_path"`     // removable volume mount
	OffloadAfterGB   float64 `yaml:"offload_after_gb"`  // local used before offload attempt
	SpareMarginGB    float64 `yaml:"spare_margin_gb"`   // min local spare before stop
	RecursiveOffload bool    `yaml:"recursive_offload"` // walk subdirectories when offloading
}

// LightsConfig contains the IR illumination board settings.
type LightsConfig struct {
	// Pins maps LED channels to GPIO pin names, lowest channel first.
	Pins []string `yaml:"pins"`
}

// MQTTConfig contains optional session telemetry settings.
// An empty broker disables the emitter.
type MQTTConfig struct {
	Broker string `yaml:"broker"`
	Topic  string `yaml:"topic"`
	QoS    byte   `yaml:"qos"`
}

// HealthConfig contains the health endpoint settings.
// An empty port disables the server.
type HealthConfig struct {
	Port string `yaml:"port"`
}

// Load reads, parses and validates a YAML configuration file.
func Load(path string) (*Config, error) {
	cfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadFile reads and parses a YAML configuration file without validating,
// so callers can apply command-line overrides first.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &cfg, nil
}

// ApplyDebug rewrites the session to a small preconfigured smoke test.
func (c *Config) ApplyDebug() {
	c.ExperimentName = "test"
	c.SegmentLengthS = 3
	c.SessionLengthS = 7
}

// SegmentLength returns the segment duration.
func (c *Config) SegmentLength() time.Duration {
	return time.Duration(c.SegmentLengthS) * time.Second
}

// SessionLength returns the target total footage duration.
func (c *Config) SessionLength() time.Duration {
	return time.Duration(c.SessionLengthS) * time.Second
}
