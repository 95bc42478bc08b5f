package config

import (
	"fmt"
	"path/filepath"
	"time"
)

// Validate checks if the configuration is valid and fills in defaults.
// The segment/session length invariant is rejected here, before any
// hardware is touched.
func Validate(cfg *Config) error {
	// Defaults
	if cfg.ExperimentName == "" {
		cfg.ExperimentName = time.Now().Format("20060102-1504")
	}
	if cfg.SegmentLengthS == 0 {
		cfg.SegmentLengthS = 120
	}
	if cfg.SessionLengthS == 0 {
		cfg.SessionLengthS = 400
	}
	if cfg.SegmentsPerIteration == 0 {
		cfg.SegmentsPerIteration = 5
	}
	if cfg.Debug {
		cfg.ApplyDebug()
	}

	// Zero was already defaulted above; only a negative value reaches here.
	if cfg.SegmentLengthS < 0 {
		return fmt.Errorf("segment_length_s must not be negative")
	}
	if cfg.SegmentLengthS >= cfg.SessionLengthS {
		return fmt.Errorf("segment_length_s (%d) must be shorter than session_length_s (%d)",
			cfg.SegmentLengthS, cfg.SessionLengthS)
	}

	if err := validateCamera(&cfg.Camera); err != nil {
		return err
	}

	// Storage defaults
	if cfg.Storage.ExternalPath == "" {
		cfg.Storage.ExternalPath = "/home/pi/usbstick"
	}
	if cfg.Storage.OffloadAfterGB == 0 {
		cfg.Storage.OffloadAfterGB = 8.0
	}
	if cfg.Storage.SpareMarginGB == 0 {
		cfg.Storage.SpareMarginGB = 6.0
	}

	if cfg.MQTT.Broker != "" && cfg.MQTT.Topic == "" {
		cfg.MQTT.Topic = fmt.Sprintf("beepi/sessions/%s", cfg.ExperimentName)
	}

	if cfg.IR && len(cfg.Lights.Pins) == 0 {
		return fmt.Errorf("ir is enabled but lights.pins is empty")
	}

	return nil
}

func validateCamera(cam *CameraConfig) error {
	switch cam.Backend {
	case "":
		cam.Backend = BackendSignalFile
	case BackendSignalFile, BackendSequence:
	default:
		return fmt.Errorf("camera.backend must be %q or %q, got %q",
			BackendSignalFile, BackendSequence, cam.Backend)
	}

	if cam.FPS == 0 {
		cam.FPS = 60
	}
	if cam.FPS < 0 {
		return fmt.Errorf("camera.fps must not be negative")
	}
	if cam.Width == 0 {
		cam.Width = 640
	}
	if cam.Height == 0 {
		cam.Height = 480
	}
	if cam.Mode == 0 {
		cam.Mode = 6 // high fps mode on the v2 sensor
	}
	if cam.WhiteBalance == "" {
		cam.WhiteBalance = "greyworld"
	}
	if cam.ISO == 0 {
		cam.ISO = 800
	}
	if cam.WarmupS == 0 {
		cam.WarmupS = 5
	}

	switch cam.Backend {
	case BackendSignalFile:
		if cam.Binary == "" {
			cam.Binary = "./picam"
		}
		if cam.WorkDir == "" {
			cam.WorkDir = "/home/pi/picam"
		}
		if cam.AudioDevice == "" {
			cam.AudioDevice = "hw:1,0"
		}
		if cam.DataDir == "" {
			cam.DataDir = filepath.Join(cam.WorkDir, "archive")
		}
		if cam.RecDir == "" {
			cam.RecDir = filepath.Join(cam.WorkDir, "rec")
		}
	case BackendSequence:
		if cam.Binary == "" {
			cam.Binary = "raspivid"
		}
		if cam.DataDir == "" {
			cam.DataDir = "/home/pi/picamera_data"
		}
	}

	return nil
}
