package face

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// AuthorizedFace is a known person whose face may be matched.
type AuthorizedFace struct {
	ID           int64     `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	Description  string    `json:"description" db:"description"`
	FaceImage    string    `json:"face_image" db:"face_image"`
	FaceEncoding []byte    `json:"-" db:"face_encoding"`
	Role         string    `json:"role" db:"role"`
	AccessLevel  string    `json:"access_level" db:"access_level"`
	UserID       int64     `json:"user" db:"user_id"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
	IsActive     bool      `json:"is_active" db:"is_active"`
}

// VerificationLog records one verification attempt.
type VerificationLog struct {
	ID               int64     `json:"id" db:"id"`
	AuthorizedFaceID *int64    `json:"authorized_face" db:"authorized_face_id"`
	IsMatch          bool      `json:"is_match" db:"is_match"`
	Confidence       float64   `json:"confidence" db:"confidence"`
	SourceImage      string    `json:"source_image" db:"source_image"`
	SourceCameraID   *int64    `json:"source_camera" db:"source_camera_id"`
	VerifiedAt       time.Time `json:"verified_at" db:"verified_at"`
	Notes            string    `json:"notes" db:"notes"`
}

// Filter selects authorized faces.
type Filter struct {
	UserID     int64
	Name       string
	Role       string
	IsActive   *bool
	ActiveOnly bool
	Limit      int
	Offset     int
}

// Encoding is a normalized face feature vector.
type Encoding []float32

// Bytes serializes the encoding as little-endian float32 values.
func (e Encoding) Bytes() []byte {
	buf := make([]byte, 4*len(e))
	for i, v := range e {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

// DecodeEncoding parses bytes produced by Encoding.Bytes.
func DecodeEncoding(raw []byte) (Encoding, error) {
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("face encoding length %d is not a multiple of 4", len(raw))
	}
	out := make(Encoding, len(raw)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return out, nil
}

// Similarity maps the cosine similarity of a and b into [0,1]. Mismatched or
// zero vectors score 0.
func Similarity(a, b Encoding) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	cos := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return (cos + 1) / 2
}

// Match is the best candidate found for a probe encoding.
type Match struct {
	Face       AuthorizedFace
	Confidence float64
}

// BestMatch returns the highest scoring candidate with a decodable encoding.
func BestMatch(probe Encoding, candidates []AuthorizedFace) (Match, bool) {
	var (
		best  Match
		found bool
	)
	for _, c := range candidates {
		if len(c.FaceEncoding) == 0 {
			continue
		}
		enc, err := DecodeEncoding(c.FaceEncoding)
		if err != nil {
			continue
		}
		score := Similarity(probe, enc)
		if !found || score > best.Confidence {
			best = Match{Face: c, Confidence: score}
			found = true
		}
	}
	return best, found
}

// VerifyResult is the response of a verification attempt.
type VerifyResult struct {
	IsMatch        bool            `json:"is_match"`
	Confidence     float64         `json:"confidence"`
	MatchedFace    *AuthorizedFace `json:"matched_face"`
	VerificationID int64           `json:"verification_id"`
}
