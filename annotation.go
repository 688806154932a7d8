package lbledit

// The annotation data model and its transform to and from the normalized
// training interchange format.

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Errors reported by the coordinate transform and by index-based set access.
var (
	ErrInvalidImageDimensions = errors.New("image dimensions must be positive")
	ErrMalformedRecord        = errors.New("malformed annotation record")
	ErrIndexOutOfRange        = errors.New("annotation index out of range")
)

// Annotation is an axis-aligned bounding box over a single image.
//
// X and Y are the pixel offsets of the top-left corner from the image's
// top-left corner. ClassID is an opaque key into an external class registry;
// the engine never checks that it is registered.
type Annotation struct {
	ID      string  `json:"-"` // Stable identity, assigned at creation. Never persisted.
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
	ClassID int64   `json:"class_id"`
}

// NewAnnotation creates an annotation with a fresh identity.
func NewAnnotation(x, y, width, height float64, classID int64) Annotation {
	return Annotation{
		ID:      uuid.NewString(),
		X:       x,
		Y:       y,
		Width:   width,
		Height:  height,
		ClassID: classID,
	}
}

// Right is the x offset of the right edge.
func (a Annotation) Right() float64 { return a.X + a.Width }

// Bottom is the y offset of the bottom edge.
func (a Annotation) Bottom() float64 { return a.Y + a.Height }

// Contains reports whether the point (x, y) lies on or inside the box.
func (a Annotation) Contains(x, y float64) bool {
	return x >= a.X && x <= a.Right() && y >= a.Y && y <= a.Bottom()
}

// ToNormalized converts a to the normalized record [class, cx, cy, w, h],
// with the four geometry fields expressed as ratios of the image dimensions.
//
// The output is not clamped to [0, 1]: a box that extends beyond the image
// produces out-of-range values, and callers that need clipped geometry must
// clip before converting.
func ToNormalized(a Annotation, imageWidth, imageHeight int) ([5]float64, error) {
	if imageWidth <= 0 || imageHeight <= 0 {
		return [5]float64{},
				fmt.Errorf("%w: %dx%d", ErrInvalidImageDimensions, imageWidth, imageHeight)
	}

	w := float64(imageWidth)
	h := float64(imageHeight)
	return [5]float64{
		float64(a.ClassID),
		(a.X + a.Width/2) / w,
		(a.Y + a.Height/2) / h,
		a.Width / w,
		a.Height / h,
	}, nil
}

// FromNormalized converts a normalized record back to pixel space. The record
// must have exactly 5 fields. The class field is truncated, not rounded.
func FromNormalized(record []float64, imageWidth, imageHeight int) (Annotation, error) {
	if len(record) != 5 {
		return Annotation{},
				fmt.Errorf("%w: expected 5 fields, got %d", ErrMalformedRecord, len(record))
	}
	if imageWidth <= 0 || imageHeight <= 0 {
		return Annotation{},
				fmt.Errorf("%w: %dx%d", ErrInvalidImageDimensions, imageWidth, imageHeight)
	}

	w := float64(imageWidth)
	h := float64(imageHeight)
	width := record[3] * w
	height := record[4] * h
	return Annotation{
		ID:      uuid.NewString(),
		X:       record[1]*w - width/2,
		Y:       record[2]*h - height/2,
		Width:   width,
		Height:  height,
		ClassID: int64(record[0]),
	}, nil
}

// AnnotationSet is the ordered annotation list of a single image key. Order
// is insertion order; it carries no meaning beyond index identity.
type AnnotationSet []Annotation

// Clone returns an independent copy of the set.
func (s AnnotationSet) Clone() AnnotationSet {
	if s == nil {
		return nil
	}
	c := make(AnnotationSet, len(s))
	copy(c, s)
	return c
}

// At returns the annotation at index i.
func (s AnnotationSet) At(i int) (Annotation, error) {
	if i < 0 || i >= len(s) {
		return Annotation{}, fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, i, len(s))
	}
	return s[i], nil
}

// IndexOf returns the index of the annotation with the given identity, or -1
// if it is not in the set.
func (s AnnotationSet) IndexOf(id string) int {
	for i := range s {
		if s[i].ID == id {
			return i
		}
	}
	return -1
}

// assignIDs gives every annotation without an identity a fresh one.
func (s AnnotationSet) assignIDs() {
	for i := range s {
		if s[i].ID == "" {
			s[i].ID = uuid.NewString()
		}
	}
}
