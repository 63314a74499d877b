package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// DetectorParams are the tunable inference parameters of a detector.
type DetectorParams struct {
	ConfThreshold float64 `yaml:"conf_threshold" json:"conf_threshold"`
	IOUThreshold  float64 `yaml:"iou_threshold" json:"iou_threshold"`
	ImageSize     int     `yaml:"image_size" json:"image_size"`
}

// Detector describes one registered detection model.
type Detector struct {
	Key         string         `yaml:"-" json:"key"`
	Name        string         `yaml:"name" json:"name"`
	Description string         `yaml:"description" json:"description"`
	ModelPath   string         `yaml:"model_path" json:"model_path"`
	Config      DetectorParams `yaml:"config" json:"config"`
}

// DetectorsFile is the YAML document shape of DETECTORS_CONFIG.
type DetectorsFile struct {
	Detectors map[string]Detector `yaml:"detectors"`
}

// FallbackDetectorParams apply to detectors without their own defaults.
var FallbackDetectorParams = DetectorParams{ConfThreshold: 0.25, IOUThreshold: 0.45, ImageSize: 640}

// DefaultDetectors returns the built-in registry with model files under modelsDir.
func DefaultDetectors(modelsDir string) map[string]Detector {
	model := func(key string) string { return filepath.Join(modelsDir, key+".pt") }
	return map[string]Detector{
		"fire_smoke": {
			Key:         "fire_smoke",
			Name:        "Fire and Smoke",
			Description: "Detects fire and smoke in images and videos. Can help in early detection of fire incidents.",
			ModelPath:   model("fire_smoke"),
			Config:      DetectorParams{ConfThreshold: 0.25, IOUThreshold: 0.45, ImageSize: 640},
		},
		"fall": {
			Key:         "fall",
			Name:        "Fall Detection",
			Description: "Detects people falling, which is especially useful for elderly care and safety monitoring.",
			ModelPath:   model("fall"),
			Config:      DetectorParams{ConfThreshold: 0.4, IOUThreshold: 0.37, ImageSize: 512},
		},
		"violence": {
			Key:         "violence",
			Name:        "Violence Detection",
			Description: "Detects violent behaviors and physical altercations in surveillance footage.",
			ModelPath:   model("violence"),
			Config:      DetectorParams{ConfThreshold: 0.35, IOUThreshold: 0.35, ImageSize: 736},
		},
		"choking": {
			Key:         "choking",
			Name:        "Choking Detection",
			Description: "Detects choking incidents to enable rapid response in emergencies.",
			ModelPath:   model("choking"),
			Config:      DetectorParams{ConfThreshold: 0.25, IOUThreshold: 0.30, ImageSize: 640},
		},
	}
}

// LoadDetectors returns the defaults overlaid with the YAML file at path.
// An empty path yields the defaults.
func LoadDetectors(path, modelsDir string) (map[string]Detector, error) {
	detectors := DefaultDetectors(modelsDir)
	if path == "" {
		return detectors, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read detectors config: %w", err)
	}

	var file DetectorsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse detectors config: %w", err)
	}

	for key, override := range file.Detectors {
		current, ok := detectors[key]
		if !ok {
			current = Detector{Key: key, Name: key, Config: FallbackDetectorParams}
		}
		if override.Name != "" {
			current.Name = override.Name
		}
		if override.Description != "" {
			current.Description = override.Description
		}
		if override.ModelPath != "" {
			current.ModelPath = override.ModelPath
			if !filepath.IsAbs(current.ModelPath) {
				current.ModelPath = filepath.Join(modelsDir, current.ModelPath)
			}
		}
		if current.ModelPath == "" {
			return nil, fmt.Errorf("detector %s: model_path is required", key)
		}
		if override.Config.ConfThreshold != 0 {
			current.Config.ConfThreshold = override.Config.ConfThreshold
		}
		if override.Config.IOUThreshold != 0 {
			current.Config.IOUThreshold = override.Config.IOUThreshold
		}
		if override.Config.ImageSize != 0 {
			current.Config.ImageSize = override.Config.ImageSize
		}
		detectors[key] = current
	}
	return detectors, nil
}

// DetectorKeys returns the registry keys in a stable order.
func DetectorKeys(detectors map[string]Detector) []string {
	keys := make([]string, 0, len(detectors))
	for k := range detectors {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
