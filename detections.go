package lbledit

// Import of external detector output: filtered, clamped to the image, and
// written back as a fresh annotation set.

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// Default detection import thresholds.
const (
	DefaultMinConfidence = 0.25 // Detections below this confidence are dropped.
	DefaultDetectionSize = 5.0  // Boxes below this size in either dimension are dropped.
)

// Detection is one detected object as produced by an external inference
// runner: a pixel-space box, a class id and a confidence in [0, 1].
type Detection struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	ClassID    int64   `json:"class_id"`
	Confidence float64 `json:"confidence"`
}

// DetectionFilter holds the acceptance thresholds for imported detections.
type DetectionFilter struct {
	MinConfidence float64
	MinSize       float64
}

// DefaultDetectionFilter returns the stock thresholds.
func DefaultDetectionFilter() DetectionFilter {
	return DetectionFilter{
		MinConfidence: DefaultMinConfidence,
		MinSize:       DefaultDetectionSize,
	}
}

// Validate replaces out-of-range values with their defaults.
func (f *DetectionFilter) Validate() {
	if f.MinConfidence < 0 || f.MinConfidence >= 1 {
		f.MinConfidence = DefaultMinConfidence
	}
	if f.MinSize <= 0 {
		f.MinSize = DefaultDetectionSize
	}
}

// ReadDetections reads and parses a detection file: a JSON array of Detection
// records for a single image.
func ReadDetections(path string) ([]Detection, error) {
	enc, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var detections []Detection
	if err := json.Unmarshal(enc, &detections); err != nil {
		return nil, fmt.Errorf("failed to parse detections from %q: %v", path, err)
	}

	return detections, nil
}

// AnnotationsFromDetections converts detections to annotations for an image
// of the given size. Detections below the filter's confidence are dropped,
// boxes are clamped to the image bounds, and boxes smaller than the filter's
// minimum size in either dimension after clamping are dropped. The input
// order is preserved.
func AnnotationsFromDetections(detections []Detection, imageWidth, imageHeight int,
		filter DetectionFilter) (AnnotationSet, error) {

	if imageWidth <= 0 || imageHeight <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidImageDimensions, imageWidth, imageHeight)
	}
	filter.Validate()

	w := float64(imageWidth)
	h := float64(imageHeight)

	set := make(AnnotationSet, 0, len(detections))
	for _, d := range detections {
		if d.Confidence < filter.MinConfidence {
			continue
		}

		// Clamp the box corners to the image.
		x1 := math.Max(0, math.Min(d.X, w))
		y1 := math.Max(0, math.Min(d.Y, h))
		x2 := math.Max(0, math.Min(d.X+d.Width, w))
		y2 := math.Max(0, math.Min(d.Y+d.Height, h))

		if x2-x1 < filter.MinSize || y2-y1 < filter.MinSize {
			continue
		}

		set = append(set, NewAnnotation(x1, y1, x2-x1, y2-y1, d.ClassID))
	}

	return set, nil
}

// ImportDetections reads the detection file at path and writes the filtered
// result back as the annotation set for key, replacing any prior set. Returns
// the number of annotations written.
func (s *Store) ImportDetections(key, path string, imageWidth, imageHeight int,
		filter DetectionFilter) (int, error) {

	detections, err := ReadDetections(path)
	if err != nil {
		return 0, err
	}

	set, err := AnnotationsFromDetections(detections, imageWidth, imageHeight, filter)
	if err != nil {
		return 0, err
	}

	if err := s.Save(key, set); err != nil {
		return 0, err
	}

	return len(set), nil
}
