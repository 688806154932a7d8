package lbledit

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// writeDetectionsJSON marshals detections to a JSON file and returns its path.
func writeDetectionsJSON(t *testing.T, detections []Detection) string {
	t.Helper()

	enc, err := json.Marshal(detections)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	path := filepath.Join(t.TempDir(), "frame.json")
	if err := os.WriteFile(path, enc, 0644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return path
}

func TestAnnotationsFromDetectionsFiltersConfidence(t *testing.T) {
	detections := []Detection{
		{X: 10, Y: 10, Width: 20, Height: 20, ClassID: 0, Confidence: 0.9},
		{X: 50, Y: 50, Width: 20, Height: 20, ClassID: 1, Confidence: 0.1},
		{X: 80, Y: 20, Width: 20, Height: 20, ClassID: 2, Confidence: 0.3},
	}

	set, err := AnnotationsFromDetections(detections, 200, 100, DefaultDetectionFilter())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(set) != 2 {
		t.Fatalf("expected 2 annotations, got %d", len(set))
	}
	// Input order is preserved.
	if set[0].ClassID != 0 || set[1].ClassID != 2 {
		t.Fatalf("unexpected classes: %d, %d", set[0].ClassID, set[1].ClassID)
	}
}

func TestAnnotationsFromDetectionsClampsToImage(t *testing.T) {
	detections := []Detection{
		{X: -10, Y: -10, Width: 50, Height: 50, ClassID: 0, Confidence: 0.9},
	}

	set, err := AnnotationsFromDetections(detections, 200, 100, DefaultDetectionFilter())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(set) != 1 {
		t.Fatalf("expected 1 annotation, got %d", len(set))
	}
	checkBox(t, set[0], 0, 0, 40, 40)
}

func TestAnnotationsFromDetectionsDropsTinyBoxes(t *testing.T) {
	detections := []Detection{
		// Collapses to 2x2 after clamping.
		{X: 198, Y: 98, Width: 20, Height: 20, ClassID: 0, Confidence: 0.9},
		// Exactly the minimum size survives.
		{X: 195, Y: 95, Width: 20, Height: 20, ClassID: 1, Confidence: 0.9},
	}

	set, err := AnnotationsFromDetections(detections, 200, 100, DefaultDetectionFilter())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(set) != 1 {
		t.Fatalf("expected 1 annotation, got %d", len(set))
	}
	if set[0].ClassID != 1 {
		t.Fatalf("expected the 5x5 box to survive, got class %d", set[0].ClassID)
	}
	checkBox(t, set[0], 195, 95, 5, 5)
}

func TestAnnotationsFromDetectionsInvalidDimensions(t *testing.T) {
	_, err := AnnotationsFromDetections(nil, 0, 100, DefaultDetectionFilter())
	if !errors.Is(err, ErrInvalidImageDimensions) {
		t.Fatalf("expected ErrInvalidImageDimensions, got %v", err)
	}
}

func TestDetectionFilterValidate(t *testing.T) {
	f := DetectionFilter{MinConfidence: 1.5, MinSize: -1}
	f.Validate()
	if f.MinConfidence != DefaultMinConfidence || f.MinSize != DefaultDetectionSize {
		t.Fatalf("expected defaults, got %+v", f)
	}

	// Zero confidence is a valid "keep everything" choice.
	f = DetectionFilter{MinConfidence: 0, MinSize: 2}
	f.Validate()
	if f.MinConfidence != 0 || f.MinSize != 2 {
		t.Fatalf("expected the explicit values to survive, got %+v", f)
	}
}

func TestReadDetections(t *testing.T) {
	path := writeDetectionsJSON(t, []Detection{
		{X: 1, Y: 2, Width: 3, Height: 4, ClassID: 5, Confidence: 0.6},
	})

	detections, err := ReadDetections(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(detections) != 1 || detections[0].ClassID != 5 {
		t.Fatalf("unexpected detections: %+v", detections)
	}

	if _, err := ReadDetections(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestImportDetections(t *testing.T) {
	store := NewStore(DirKeyPath(t.TempDir()))
	path := writeDetectionsJSON(t, []Detection{
		{X: 10, Y: 10, Width: 30, Height: 30, ClassID: 0, Confidence: 0.9},
		{X: 50, Y: 50, Width: 30, Height: 30, ClassID: 1, Confidence: 0.05},
	})

	n, err := store.ImportDetections("frame", path, 200, 100, DefaultDetectionFilter())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 imported annotation, got %d", n)
	}

	set := mustGet(t, store, "frame")
	if len(set) != 1 {
		t.Fatalf("expected 1 annotation, got %d", len(set))
	}
	checkBox(t, set[0], 10, 10, 30, 30)
}

func TestImportDetectionsAllFilteredKeepsExisting(t *testing.T) {
	store := NewStore(DirKeyPath(t.TempDir()))
	if err := store.Save("frame", AnnotationSet{NewAnnotation(0, 0, 20, 20, 0)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	path := writeDetectionsJSON(t, []Detection{
		{X: 10, Y: 10, Width: 30, Height: 30, ClassID: 0, Confidence: 0.01},
	})
	n, err := store.ImportDetections("frame", path, 200, 100, DefaultDetectionFilter())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 imported annotations, got %d", n)
	}

	if len(mustGet(t, store, "frame")) != 1 {
		t.Fatal("expected the prior annotations to survive an all-filtered import")
	}
}
