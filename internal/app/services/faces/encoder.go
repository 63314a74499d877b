package faces

import (
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"golang.org/x/image/draw"

	"github.com/R3E-Network/sentinel/internal/app/domain/face"
)

// EncodingSize is the edge length faces are resized to before flattening.
const EncodingSize = 128

// ErrNoFace is returned when the locator finds no face region.
var ErrNoFace = errors.New("no face detected")

// Locator finds candidate face regions in an image.
type Locator interface {
	Locate(img image.Image) []image.Rectangle
}

// WholeFrameLocator treats the whole frame as the face region. Frames smaller
// than MinSize in either dimension report no face.
type WholeFrameLocator struct {
	MinSize int
}

// Locate implements Locator.
func (l WholeFrameLocator) Locate(img image.Image) []image.Rectangle {
	b := img.Bounds()
	minSize := l.MinSize
	if minSize <= 0 {
		minSize = 32
	}
	if b.Dx() < minSize || b.Dy() < minSize {
		return nil
	}
	return []image.Rectangle{b}
}

// Encoder turns images into normalized grayscale feature vectors.
type Encoder struct {
	locator Locator
	size    int
}

// NewEncoder returns an encoder using locator; nil selects WholeFrameLocator.
func NewEncoder(locator Locator) *Encoder {
	if locator == nil {
		locator = WholeFrameLocator{MinSize: 32}
	}
	return &Encoder{locator: locator, size: EncodingSize}
}

// Encode decodes a jpeg, png or gif image and encodes its largest face.
func (e *Encoder) Encode(r io.Reader) (face.Encoding, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return e.EncodeImage(img)
}

// EncodeImage encodes the largest face region of img.
func (e *Encoder) EncodeImage(img image.Image) (face.Encoding, error) {
	regions := e.locator.Locate(img)
	if len(regions) == 0 {
		return nil, ErrNoFace
	}
	best := regions[0]
	for _, r := range regions[1:] {
		if r.Dx()*r.Dy() > best.Dx()*best.Dy() {
			best = r
		}
	}
	best = best.Intersect(img.Bounds())
	if best.Empty() {
		return nil, ErrNoFace
	}

	gray := image.NewGray(image.Rect(0, 0, e.size, e.size))
	draw.ApproxBiLinear.Scale(gray, gray.Bounds(), img, best, draw.Src, nil)

	out := make(face.Encoding, 0, e.size*e.size)
	for y := 0; y < e.size; y++ {
		for x := 0; x < e.size; x++ {
			out = append(out, float32(gray.GrayAt(x, y).Y)/255)
		}
	}
	return out, nil
}
