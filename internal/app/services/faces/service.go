package faces

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/R3E-Network/sentinel/internal/app/domain/account"
	"github.com/R3E-Network/sentinel/internal/app/domain/alert"
	"github.com/R3E-Network/sentinel/internal/app/domain/camera"
	"github.com/R3E-Network/sentinel/internal/app/domain/face"
	"github.com/R3E-Network/sentinel/internal/app/media"
	"github.com/R3E-Network/sentinel/internal/app/storage"
	apperrors "github.com/R3E-Network/sentinel/internal/errors"
	"github.com/R3E-Network/sentinel/internal/logging"
)

// DefaultThreshold is the match threshold used when the caller sends none.
const DefaultThreshold = 0.6

// AlertRaiser creates alerts outside of a user request.
type AlertRaiser interface {
	Raise(ctx context.Context, a alert.Alert) (alert.Alert, error)
}

// Upload is a received file.
type Upload struct {
	Filename string
	Content  io.Reader
}

// Service manages authorized faces and verification.
type Service struct {
	faces   storage.FaceStore
	cameras storage.CameraStore
	files   *media.Store
	encoder *Encoder
	alerts  AlertRaiser
	log     *logging.Logger
	now     func() time.Time
}

// New constructs a face service. A nil encoder uses the whole-frame locator.
func New(faces storage.FaceStore, cameras storage.CameraStore, files *media.Store, encoder *Encoder, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("faces")
	}
	if encoder == nil {
		encoder = NewEncoder(nil)
	}
	return &Service{faces: faces, cameras: cameras, files: files, encoder: encoder, log: log, now: time.Now}
}

// WithAlerts sets where unauthorized face alerts are raised.
func (s *Service) WithAlerts(r AlertRaiser) { s.alerts = r }

// Query carries list filters.
type Query struct {
	Name     string
	Role     string
	IsActive *bool
	Limit    int
	Offset   int
}

// List returns the faces visible to p ordered by name.
func (s *Service) List(ctx context.Context, p account.Principal, q Query) ([]face.AuthorizedFace, int, error) {
	faces, total, err := s.faces.ListFaces(ctx, face.Filter{
		UserID:   p.ScopeOwner(),
		Name:     strings.TrimSpace(q.Name),
		Role:     strings.TrimSpace(q.Role),
		IsActive: q.IsActive,
		Limit:    q.Limit,
		Offset:   q.Offset,
	})
	if err != nil {
		return nil, 0, apperrors.Internal("", err)
	}
	return faces, total, nil
}

// Input carries writable face fields; nil fields are left untouched.
type Input struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Role        *string `json:"role"`
	AccessLevel *string `json:"access_level"`
	IsActive    *bool   `json:"is_active"`
	Image       *Upload `json:"-"`
}

func (in Input) apply(f *face.AuthorizedFace) {
	if in.Name != nil {
		f.Name = strings.TrimSpace(*in.Name)
	}
	if in.Description != nil {
		f.Description = *in.Description
	}
	if in.Role != nil {
		f.Role = *in.Role
	}
	if in.AccessLevel != nil {
		f.AccessLevel = *in.AccessLevel
	}
	if in.IsActive != nil {
		f.IsActive = *in.IsActive
	}
}

func validateFace(f face.AuthorizedFace) []string {
	var errs []string
	switch {
	case f.Name == "":
		errs = append(errs, apperrors.Field("name", "This field may not be blank."))
	case len(f.Name) > 100:
		errs = append(errs, apperrors.Field("name", "Ensure this field has no more than 100 characters."))
	}
	if len(f.Role) > 100 {
		errs = append(errs, apperrors.Field("role", "Ensure this field has no more than 100 characters."))
	}
	if len(f.AccessLevel) > 50 {
		errs = append(errs, apperrors.Field("access_level", "Ensure this field has no more than 50 characters."))
	}
	return errs
}

// Create stores a face for p and encodes its image. When encoding fails the
// face is removed again.
func (s *Service) Create(ctx context.Context, p account.Principal, in Input) (face.AuthorizedFace, error) {
	f := face.AuthorizedFace{UserID: p.UserID, IsActive: true}
	in.apply(&f)
	errs := validateFace(f)
	if in.Name == nil {
		errs = []string{apperrors.Field("name", "This field is required.")}
	}
	if in.Image == nil {
		errs = append(errs, apperrors.Field("face_image", "No file was submitted."))
	}
	if len(errs) > 0 {
		return face.AuthorizedFace{}, apperrors.Validation(errs...)
	}

	rel, err := s.files.Save(media.FaceImages, in.Image.Filename, in.Image.Content)
	if err != nil {
		return face.AuthorizedFace{}, apperrors.Internal("", err)
	}
	f.FaceImage = rel
	f, err = s.faces.CreateFace(ctx, f)
	if err != nil {
		_ = s.files.Remove(rel)
		return face.AuthorizedFace{}, apperrors.Internal("", err)
	}

	enc, err := s.encodeFile(rel)
	if err != nil {
		_ = s.faces.DeleteFace(ctx, f.ID)
		_ = s.files.Remove(rel)
		s.log.WithError(err).WithField("user_id", p.UserID).Warn("face encoding failed")
		return face.AuthorizedFace{}, imageError(err)
	}
	f.FaceEncoding = enc.Bytes()
	f, err = s.faces.UpdateFace(ctx, f)
	if err != nil {
		return face.AuthorizedFace{}, apperrors.Internal("", err)
	}
	s.log.WithField("face_id", f.ID).WithField("user_id", p.UserID).Info("authorized face created")
	return f, nil
}

func imageError(err error) error {
	return apperrors.Validation(apperrors.Field("face_image", "Error processing face image: "+err.Error()))
}

func (s *Service) encodeFile(rel string) (face.Encoding, error) {
	file, err := s.files.Open(rel)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return s.encoder.Encode(file)
}

// Get returns a face visible to p.
func (s *Service) Get(ctx context.Context, p account.Principal, id int64) (face.AuthorizedFace, error) {
	f, err := s.faces.GetFace(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return face.AuthorizedFace{}, apperrors.NotFound("face")
	}
	if err != nil {
		return face.AuthorizedFace{}, apperrors.Internal("", err)
	}
	if !p.CanAccess(f.UserID) {
		return face.AuthorizedFace{}, apperrors.NotFound("face")
	}
	return f, nil
}

// Update applies in. A new image replaces the stored one and is re-encoded;
// the face is left unchanged if encoding fails.
func (s *Service) Update(ctx context.Context, p account.Principal, id int64, in Input, partial bool) (face.AuthorizedFace, error) {
	f, err := s.Get(ctx, p, id)
	if err != nil {
		return face.AuthorizedFace{}, err
	}
	if !partial && in.Name == nil {
		return face.AuthorizedFace{}, apperrors.Validation(apperrors.Field("name", "This field is required."))
	}
	in.apply(&f)
	if errs := validateFace(f); len(errs) > 0 {
		return face.AuthorizedFace{}, apperrors.Validation(errs...)
	}

	var previous string
	if in.Image != nil {
		rel, err := s.files.Save(media.FaceImages, in.Image.Filename, in.Image.Content)
		if err != nil {
			return face.AuthorizedFace{}, apperrors.Internal("", err)
		}
		enc, err := s.encodeFile(rel)
		if err != nil {
			_ = s.files.Remove(rel)
			return face.AuthorizedFace{}, imageError(err)
		}
		previous, f.FaceImage, f.FaceEncoding = f.FaceImage, rel, enc.Bytes()
	}

	f, err = s.faces.UpdateFace(ctx, f)
	if err != nil {
		return face.AuthorizedFace{}, apperrors.Internal("", err)
	}
	if previous != "" {
		_ = s.files.Remove(previous)
	}
	return f, nil
}

// Delete removes a face and its image.
func (s *Service) Delete(ctx context.Context, p account.Principal, id int64) error {
	f, err := s.Get(ctx, p, id)
	if err != nil {
		return err
	}
	if err := s.faces.DeleteFace(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.NotFound("face")
		}
		return apperrors.Internal("", err)
	}
	_ = s.files.Remove(f.FaceImage)
	return nil
}

// VerifyInput is the verification request.
type VerifyInput struct {
	Image     *Upload
	CameraID  *int64
	Threshold *float64
}

// Verification is the outcome of Verify.
type Verification struct {
	face.VerifyResult
	Message string `json:"-"`
}

const noFaceMessage = "No face detected in the image."

// Verify matches the face in the uploaded image against the active faces
// visible to p. Every attempt is logged. A non-matching face seen by a camera
// with face recognition enabled raises an unauthorized face alert.
func (s *Service) Verify(ctx context.Context, p account.Principal, in VerifyInput) (Verification, error) {
	threshold := DefaultThreshold
	if in.Threshold != nil {
		threshold = *in.Threshold
	}
	var errs []string
	if in.Image == nil {
		errs = append(errs, apperrors.Field("face_image", "No file was submitted."))
	}
	if threshold < 0 || threshold > 1 {
		errs = append(errs, apperrors.Field("confidence_threshold", "Ensure this value is between 0 and 1."))
	}
	if len(errs) > 0 {
		return Verification{}, apperrors.Validation(errs...)
	}

	var cam *camera.Camera
	if in.CameraID != nil {
		c, err := s.cameras.GetCamera(ctx, *in.CameraID)
		if errors.Is(err, sql.ErrNoRows) {
			return Verification{}, apperrors.New(http.StatusNotFound, apperrors.CodeNotFound, "Camera not found.")
		}
		if err != nil {
			return Verification{}, apperrors.Internal("", err)
		}
		if !p.CanAccess(c.UserID) {
			return Verification{}, apperrors.Forbidden()
		}
		cam = &c
	}

	rel, err := s.files.Save(media.FaceVerification, in.Image.Filename, in.Image.Content)
	if err != nil {
		return Verification{}, apperrors.Internal("", err)
	}
	logEntry := face.VerificationLog{SourceImage: rel, VerifiedAt: s.now().UTC()}
	if cam != nil {
		id := cam.ID
		logEntry.SourceCameraID = &id
	}

	probe, err := s.encodeFile(rel)
	if errors.Is(err, ErrNoFace) {
		logEntry.Notes = noFaceMessage
		saved, lerr := s.faces.CreateVerificationLog(ctx, logEntry)
		if lerr != nil {
			return Verification{}, apperrors.Internal("", lerr)
		}
		return Verification{}, apperrors.BadRequest(noFaceMessage).
			WithData(map[string]interface{}{"verification_id": saved.ID})
	}
	if err != nil {
		_ = s.files.Remove(rel)
		return Verification{}, imageError(err)
	}

	candidates, _, err := s.faces.ListFaces(ctx, face.Filter{UserID: p.ScopeOwner(), ActiveOnly: true})
	if err != nil {
		return Verification{}, apperrors.Internal("", err)
	}
	best, found := face.BestMatch(probe, candidates)
	matched := found && best.Confidence >= threshold

	logEntry.IsMatch = matched
	logEntry.Confidence = best.Confidence
	if matched {
		id := best.Face.ID
		logEntry.AuthorizedFaceID = &id
		logEntry.Notes = fmt.Sprintf("Matched with %s.", best.Face.Name)
	} else {
		logEntry.Notes = "No matching face found."
	}
	logEntry, err = s.faces.CreateVerificationLog(ctx, logEntry)
	if err != nil {
		return Verification{}, apperrors.Internal("", err)
	}

	out := Verification{VerifyResult: face.VerifyResult{
		IsMatch:        matched,
		Confidence:     best.Confidence,
		VerificationID: logEntry.ID,
	}}
	if matched {
		f := best.Face
		out.MatchedFace = &f
		out.Message = fmt.Sprintf("Face matched with %s (confidence: %.2f).", f.Name, best.Confidence)
	} else {
		out.Message = "No matching face found."
		if cam != nil && cam.FaceRecognition {
			s.raiseUnauthorized(ctx, *cam, best.Confidence, rel)
		}
	}
	s.log.WithField("verification_id", logEntry.ID).WithField("is_match", matched).Info("face verified")
	return out, nil
}

func (s *Service) raiseUnauthorized(ctx context.Context, cam camera.Camera, confidence float64, image string) {
	if s.alerts == nil {
		return
	}
	_, err := s.alerts.Raise(ctx, alert.Alert{
		Title:       "Unauthorized Face Detected",
		Description: fmt.Sprintf("An unrecognized face was detected by %s.", cam.Name),
		AlertType:   alert.TypeUnauthorizedFace,
		Severity:    alert.SeverityHigh,
		Confidence:  confidence,
		CameraID:    cam.ID,
		Location:    cam.Location,
		Thumbnail:   image,
	})
	if err != nil {
		s.log.WithError(err).WithField("camera_id", cam.ID).Warn("raise unauthorized face alert failed")
	}
}
