package admin

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/tidwall/gjson"

	"github.com/R3E-Network/sentinel/internal/app/domain/account"
	domain "github.com/R3E-Network/sentinel/internal/app/domain/admin"
	"github.com/R3E-Network/sentinel/internal/config"
	apperrors "github.com/R3E-Network/sentinel/internal/errors"
)

const detectorSettingPrefix = "detectors."

// DetectorView is a registry entry with model availability.
type DetectorView struct {
	config.Detector
	ModelExists bool `json:"model_exists"`
}

// DetectorPatch carries a partial detector configuration.
type DetectorPatch struct {
	ConfThreshold *float64 `json:"conf_threshold"`
	IOUThreshold  *float64 `json:"iou_threshold"`
	ImageSize     *int     `json:"image_size"`
}

// ModelValidation reports which detector models are missing on disk.
type ModelValidation struct {
	AllValid      bool     `json:"all_valid"`
	MissingModels []string `json:"missing_models"`
}

// Detectors is the detector registry. Configuration changes are persisted as
// system settings keyed detectors.<key>.
type Detectors struct {
	mu       sync.RWMutex
	registry map[string]config.Detector
	stat     func(string) (os.FileInfo, error)
}

// NewDetectors wraps a loaded registry.
func NewDetectors(registry map[string]config.Detector) *Detectors {
	return &Detectors{registry: registry, stat: os.Stat}
}

func (d *Detectors) get(key string) (config.Detector, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	det, ok := d.registry[key]
	return det, ok
}

func (d *Detectors) exists(path string) bool {
	info, err := d.stat(path)
	return err == nil && !info.IsDir()
}

// Validate checks that every model file exists.
func (d *Detectors) Validate() ModelValidation {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := ModelValidation{MissingModels: []string{}}
	for _, key := range config.DetectorKeys(d.registry) {
		if !d.exists(d.registry[key].ModelPath) {
			out.MissingModels = append(out.MissingModels, key)
		}
	}
	out.AllValid = len(out.MissingModels) == 0
	return out
}

// ListDetectors returns the registry with persisted configuration applied.
func (s *Service) ListDetectors(ctx context.Context, p account.Principal) ([]DetectorView, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}
	if err := s.loadDetectorOverrides(ctx); err != nil {
		return nil, apperrors.Internal("", err)
	}
	s.detectors.mu.RLock()
	defer s.detectors.mu.RUnlock()
	keys := config.DetectorKeys(s.detectors.registry)
	out := make([]DetectorView, 0, len(keys))
	for _, key := range keys {
		det := s.detectors.registry[key]
		out = append(out, DetectorView{Detector: det, ModelExists: s.detectors.exists(det.ModelPath)})
	}
	return out, nil
}

// ValidateDetectors reports missing model files.
func (s *Service) ValidateDetectors(_ context.Context, p account.Principal) (ModelValidation, error) {
	if err := requireAdmin(p); err != nil {
		return ModelValidation{}, err
	}
	return s.detectors.Validate(), nil
}

// UpdateDetectorConfig applies patch to the detector key and persists it.
func (s *Service) UpdateDetectorConfig(ctx context.Context, p account.Principal, key string, patch DetectorPatch) (config.Detector, error) {
	if err := requireAdmin(p); err != nil {
		return config.Detector{}, err
	}
	det, ok := s.detectors.get(key)
	if !ok {
		return config.Detector{}, apperrors.NotFound("detector")
	}

	var errs []string
	if patch.ConfThreshold != nil {
		if *patch.ConfThreshold < 0 || *patch.ConfThreshold > 1 {
			errs = append(errs, apperrors.Field("conf_threshold", "Ensure this value is between 0 and 1."))
		}
		det.Config.ConfThreshold = *patch.ConfThreshold
	}
	if patch.IOUThreshold != nil {
		if *patch.IOUThreshold < 0 || *patch.IOUThreshold > 1 {
			errs = append(errs, apperrors.Field("iou_threshold", "Ensure this value is between 0 and 1."))
		}
		det.Config.IOUThreshold = *patch.IOUThreshold
	}
	if patch.ImageSize != nil {
		if *patch.ImageSize <= 0 {
			errs = append(errs, apperrors.Field("image_size", "Ensure this value is greater than 0."))
		}
		det.Config.ImageSize = *patch.ImageSize
	}
	if len(errs) > 0 {
		return config.Detector{}, apperrors.Validation(errs...)
	}

	raw, err := json.Marshal(det.Config)
	if err != nil {
		return config.Detector{}, apperrors.Internal("", err)
	}
	userID := p.UserID
	st, err := s.store.GetSettingByKey(ctx, detectorSettingPrefix+key)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = s.store.CreateSetting(ctx, domain.Setting{
			Key:         detectorSettingPrefix + key,
			Value:       string(raw),
			Description: fmt.Sprintf("Inference parameters of the %s detector.", det.Name),
			DataType:    domain.DataJSON,
			IsEditable:  true,
			Category:    "detectors",
			UpdatedBy:   &userID,
		})
	case err == nil:
		st.Value, st.UpdatedBy = string(raw), &userID
		_, err = s.store.UpdateSetting(ctx, st)
	}
	if err != nil {
		return config.Detector{}, apperrors.Internal("", err)
	}

	s.detectors.mu.Lock()
	s.detectors.registry[key] = det
	s.detectors.mu.Unlock()
	s.log.WithField("detector", key).WithField("user_id", p.UserID).Info("detector configuration updated")
	return det, nil
}

// loadDetectorOverrides applies persisted configuration to the registry.
func (s *Service) loadDetectorOverrides(ctx context.Context) error {
	s.detectors.mu.Lock()
	defer s.detectors.mu.Unlock()
	for key, det := range s.detectors.registry {
		st, err := s.store.GetSettingByKey(ctx, detectorSettingPrefix+key)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return err
		}
		if !gjson.Valid(st.Value) {
			s.log.WithField("detector", key).Warn("ignoring malformed detector setting")
			continue
		}
		v := gjson.Parse(st.Value)
		if r := v.Get("conf_threshold"); r.Exists() {
			det.Config.ConfThreshold = r.Float()
		}
		if r := v.Get("iou_threshold"); r.Exists() {
			det.Config.IOUThreshold = r.Float()
		}
		if r := v.Get("image_size"); r.Exists() {
			det.Config.ImageSize = int(r.Int())
		}
		s.detectors.registry[key] = det
	}
	return nil
}
