package camera

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Type is the transport a camera is reached through.
type Type string

const (
	TypeIP    Type = "ip"
	TypeRTSP  Type = "rtsp"
	TypeUSB   Type = "usb"
	TypeONVIF Type = "onvif"
)

// Status is the last observed reachability of a camera.
type Status string

const (
	StatusOnline   Status = "online"
	StatusOffline  Status = "offline"
	StatusInactive Status = "inactive"
	StatusError    Status = "error"
)

// Camera is a registered video source owned by a user.
type Camera struct {
	ID          int64      `json:"id" db:"id"`
	Name        string     `json:"name" db:"name"`
	Description string     `json:"description" db:"description"`
	Location    string     `json:"location" db:"location"`
	CameraType  Type       `json:"camera_type" db:"camera_type"`
	StreamURL   string     `json:"stream_url" db:"stream_url"`
	Username    string     `json:"username" db:"username"`
	Password    string     `json:"-" db:"password"`
	Port        int        `json:"port" db:"port"`
	Status      Status     `json:"status" db:"status"`
	LastOnline  *time.Time `json:"last_online" db:"last_online"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
	UserID      int64      `json:"user" db:"user_id"`

	DetectionEnabled    bool    `json:"detection_enabled" db:"detection_enabled"`
	FireSmokeDetection  bool    `json:"fire_smoke_detection" db:"fire_smoke_detection"`
	FallDetection       bool    `json:"fall_detection" db:"fall_detection"`
	ViolenceDetection   bool    `json:"violence_detection" db:"violence_detection"`
	ChokingDetection    bool    `json:"choking_detection" db:"choking_detection"`
	FaceRecognition     bool    `json:"face_recognition" db:"face_recognition"`
	ConfidenceThreshold float64 `json:"confidence_threshold" db:"confidence_threshold"`
	IOUThreshold        float64 `json:"iou_threshold" db:"iou_threshold"`
	ImageSize           int     `json:"image_size" db:"image_size"`
	FrameRate           int     `json:"frame_rate" db:"frame_rate"`
}

// New returns a camera populated with the column defaults.
func New() Camera {
	return Camera{
		CameraType:          TypeRTSP,
		Port:                554,
		Status:              StatusOffline,
		DetectionEnabled:    true,
		FireSmokeDetection:  true,
		FallDetection:       true,
		ViolenceDetection:   true,
		ChokingDetection:    true,
		ConfidenceThreshold: 0.6,
		IOUThreshold:        0.45,
		ImageSize:           640,
		FrameRate:           10,
	}
}

// Summary is the list projection of a camera.
type Summary struct {
	ID         int64      `json:"id"`
	Name       string     `json:"name"`
	Location   string     `json:"location"`
	CameraType Type       `json:"camera_type"`
	Status     Status     `json:"status"`
	LastOnline *time.Time `json:"last_online"`
}

// Summarize returns the list projection.
func (c Camera) Summarize() Summary {
	return Summary{ID: c.ID, Name: c.Name, Location: c.Location, CameraType: c.CameraType, Status: c.Status, LastOnline: c.LastOnline}
}

// StatusView is the status endpoint projection.
type StatusView struct {
	ID         int64      `json:"id"`
	Name       string     `json:"name"`
	Status     Status     `json:"status"`
	LastOnline *time.Time `json:"last_online"`
}

// Settings is the detection settings subset of a camera.
type Settings struct {
	DetectionEnabled    bool    `json:"detection_enabled"`
	FireSmokeDetection  bool    `json:"fire_smoke_detection"`
	FallDetection       bool    `json:"fall_detection"`
	ViolenceDetection   bool    `json:"violence_detection"`
	ChokingDetection    bool    `json:"choking_detection"`
	FaceRecognition     bool    `json:"face_recognition"`
	ConfidenceThreshold float64 `json:"confidence_threshold"`
	IOUThreshold        float64 `json:"iou_threshold"`
	ImageSize           int     `json:"image_size"`
	FrameRate           int     `json:"frame_rate"`
}

// Settings returns the detection settings subset.
func (c Camera) Settings() Settings {
	return Settings{
		DetectionEnabled:    c.DetectionEnabled,
		FireSmokeDetection:  c.FireSmokeDetection,
		FallDetection:       c.FallDetection,
		ViolenceDetection:   c.ViolenceDetection,
		ChokingDetection:    c.ChokingDetection,
		FaceRecognition:     c.FaceRecognition,
		ConfidenceThreshold: c.ConfidenceThreshold,
		IOUThreshold:        c.IOUThreshold,
		ImageSize:           c.ImageSize,
		FrameRate:           c.FrameRate,
	}
}

// Patch carries writable camera fields; nil fields are left untouched.
type Patch struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Location    *string `json:"location"`
	CameraType  *Type   `json:"camera_type"`
	StreamURL   *string `json:"stream_url"`
	Username    *string `json:"username"`
	Password    *string `json:"password"`
	Port        *int    `json:"port"`
	SettingsPatch
}

// SettingsPatch carries writable detection settings.
type SettingsPatch struct {
	DetectionEnabled    *bool    `json:"detection_enabled"`
	FireSmokeDetection  *bool    `json:"fire_smoke_detection"`
	FallDetection       *bool    `json:"fall_detection"`
	ViolenceDetection   *bool    `json:"violence_detection"`
	ChokingDetection    *bool    `json:"choking_detection"`
	FaceRecognition     *bool    `json:"face_recognition"`
	ConfidenceThreshold *float64 `json:"confidence_threshold"`
	IOUThreshold        *float64 `json:"iou_threshold"`
	ImageSize           *int     `json:"image_size"`
	FrameRate           *int     `json:"frame_rate"`
}

// Apply copies the set fields onto c.
func (p Patch) Apply(c *Camera) {
	setString(&c.Name, p.Name)
	setString(&c.Description, p.Description)
	setString(&c.Location, p.Location)
	if p.CameraType != nil {
		c.CameraType = *p.CameraType
	}
	setString(&c.StreamURL, p.StreamURL)
	setString(&c.Username, p.Username)
	setString(&c.Password, p.Password)
	if p.Port != nil {
		c.Port = *p.Port
	}
	p.SettingsPatch.Apply(c)
}

// Apply copies the set settings onto c.
func (p SettingsPatch) Apply(c *Camera) {
	setBool(&c.DetectionEnabled, p.DetectionEnabled)
	setBool(&c.FireSmokeDetection, p.FireSmokeDetection)
	setBool(&c.FallDetection, p.FallDetection)
	setBool(&c.ViolenceDetection, p.ViolenceDetection)
	setBool(&c.ChokingDetection, p.ChokingDetection)
	setBool(&c.FaceRecognition, p.FaceRecognition)
	if p.ConfidenceThreshold != nil {
		c.ConfidenceThreshold = *p.ConfidenceThreshold
	}
	if p.IOUThreshold != nil {
		c.IOUThreshold = *p.IOUThreshold
	}
	if p.ImageSize != nil {
		c.ImageSize = *p.ImageSize
	}
	if p.FrameRate != nil {
		c.FrameRate = *p.FrameRate
	}
}

// MissingRequired lists required fields absent from a full (PUT/POST) patch.
func (p Patch) MissingRequired() []string {
	var missing []string
	if p.Name == nil {
		missing = append(missing, "name: This field is required.")
	}
	if p.StreamURL == nil {
		missing = append(missing, "stream_url: This field is required.")
	}
	return missing
}

// Validate returns field-scoped problems with c.
func (c Camera) Validate() []string {
	var errs []string
	name := strings.TrimSpace(c.Name)
	switch {
	case name == "":
		errs = append(errs, "name: This field may not be blank.")
	case len(name) > 100:
		errs = append(errs, "name: Ensure this field has no more than 100 characters.")
	}
	switch {
	case strings.TrimSpace(c.StreamURL) == "":
		errs = append(errs, "stream_url: This field may not be blank.")
	case len(c.StreamURL) > 500:
		errs = append(errs, "stream_url: Ensure this field has no more than 500 characters.")
	}
	switch c.CameraType {
	case TypeIP, TypeRTSP, TypeUSB, TypeONVIF:
	default:
		errs = append(errs, fmt.Sprintf("camera_type: \"%s\" is not a valid choice.", c.CameraType))
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, "port: Ensure this value is between 1 and 65535.")
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		errs = append(errs, "confidence_threshold: Ensure this value is between 0 and 1.")
	}
	if c.IOUThreshold < 0 || c.IOUThreshold > 1 {
		errs = append(errs, "iou_threshold: Ensure this value is between 0 and 1.")
	}
	if c.ImageSize <= 0 {
		errs = append(errs, "image_size: Ensure this value is greater than 0.")
	}
	if c.FrameRate <= 0 {
		errs = append(errs, "frame_rate: Ensure this value is greater than 0.")
	}
	return errs
}

// AuthenticatedStreamURL embeds credentials into RTSP URLs; other cameras
// return the configured URL unchanged.
func (c Camera) AuthenticatedStreamURL() string {
	if c.CameraType != TypeRTSP || c.Username == "" || c.Password == "" {
		return c.StreamURL
	}
	scheme, rest, ok := strings.Cut(c.StreamURL, "://")
	if !ok {
		return c.StreamURL
	}
	if at := strings.Index(rest, "@"); at >= 0 {
		if slash := strings.Index(rest, "/"); slash < 0 || at < slash {
			rest = rest[at+1:]
		}
	}
	creds := url.UserPassword(c.Username, c.Password).String()
	return scheme + "://" + creds + "@" + rest
}

// Filter selects cameras.
type Filter struct {
	UserID int64
	Status Status
	Limit  int
	Offset int
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}
