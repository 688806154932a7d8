package lbledit

import (
	"os"
	"path/filepath"
	"testing"
)

// newTestDataset builds five 8x8 images with annotations on two of them and
// returns an exporter over the lot.
func newTestDataset(t *testing.T) *DatasetExporter {
	t.Helper()

	dir := makeImageDir(t, "img0.png", "img1.png", "img2.png", "img3.png", "img4.png")
	images, err := LoadImageSet(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	store := NewStore(DirKeyPath(t.TempDir()))
	if err := store.Save("img1", AnnotationSet{NewAnnotation(1, 1, 4, 4, 0)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.Save("img3", AnnotationSet{
		NewAnnotation(0, 0, 2, 2, 0),
		NewAnnotation(3, 3, 4, 4, 1),
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	classes := NewClassRegistrySeeded(1)
	classes.Add("car")
	classes.Add("person")

	return &DatasetExporter{
		Store:   store,
		Images:  images,
		Classes: classes,
		Ratios:  DefaultSplitRatios(),
		Seed:    7,
	}
}

func TestSplitRatiosValidate(t *testing.T) {
	if err := DefaultSplitRatios().Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := (SplitRatios{Train: 0.8, Val: 0.2}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bad := []SplitRatios{
		{Train: 0.5, Val: 0.2, Test: 0.1},  // Sums to 0.8.
		{Train: 1.2, Val: -0.2},            // Out of range.
		{Train: 0.5, Val: 0.6, Test: -0.1}, // Negative.
	}
	for _, r := range bad {
		if err := r.Validate(); err == nil {
			t.Fatalf("expected an error for %+v", r)
		}
	}
}

func TestDatasetExport(t *testing.T) {
	exporter := newTestDataset(t)
	outDir := t.TempDir()

	summary, err := exporter.Export(outDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if summary.Total() != 5 {
		t.Fatalf("expected 5 exported images, got %d", summary.Total())
	}
	if summary.Images != [3]int{3, 1, 1} {
		t.Fatalf("expected a 3/1/1 split, got %v", summary.Images)
	}
	if summary.Annotations != 3 {
		t.Fatalf("expected 3 annotations, got %d", summary.Annotations)
	}
	if summary.Background != 3 {
		t.Fatalf("expected 3 background images, got %d", summary.Background)
	}
	if summary.PerClass[0] != 2 || summary.PerClass[1] != 1 {
		t.Fatalf("unexpected per-class counts: %v", summary.PerClass)
	}

	if err := ValidateLayout(outDir); err != nil {
		t.Fatalf("expected a valid layout: %v", err)
	}
	for _, name := range []string{"data.yaml", "statistics.txt", "train.txt", "val.txt", "test.txt"} {
		if _, err := os.Stat(filepath.Join(outDir, name)); err != nil {
			t.Fatalf("missing %s: %v", name, err)
		}
	}

	// Every image landed in exactly one subset.
	var imageCount, labelCount int
	for _, subset := range []string{"train", "val", "test"} {
		images, err := filesByExtInDir(filepath.Join(outDir, "images", subset), "png")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		labels, err := filesByExtInDir(filepath.Join(outDir, "labels", subset), "txt")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		imageCount += len(images)
		labelCount += len(labels)
	}
	if imageCount != 5 {
		t.Fatalf("expected 5 images across subsets, got %d", imageCount)
	}
	if labelCount != 2 {
		t.Fatalf("expected label files only for the 2 annotated images, got %d", labelCount)
	}

	// The subset list files cover the same images.
	var listed int
	for _, name := range []string{"train.txt", "val.txt", "test.txt"} {
		lines, err := readLines(filepath.Join(outDir, name))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		listed += len(lines)
	}
	if listed != 5 {
		t.Fatalf("expected 5 listed image paths, got %d", listed)
	}

	// The exported label content matches the store.
	found := false
	for _, subset := range []string{"train", "val", "test"} {
		path := filepath.Join(outDir, "labels", subset, "img3.txt")
		if _, err := os.Stat(path); err != nil {
			continue
		}
		found = true
		lines, err := ReadLabelFile(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(lines) != 2 {
			t.Fatalf("expected 2 label lines for img3, got %d", len(lines))
		}
	}
	if !found {
		t.Fatal("expected a label file for img3 in one of the subsets")
	}
}

func TestDatasetExportIsDeterministic(t *testing.T) {
	exporter := newTestDataset(t)

	outA := t.TempDir()
	if _, err := exporter.Export(outA); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	outB := t.TempDir()
	if _, err := exporter.Export(outB); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, name := range []string{"train.txt", "val.txt", "test.txt"} {
		a, err := os.ReadFile(filepath.Join(outA, name))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		b, err := os.ReadFile(filepath.Join(outB, name))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(a) != string(b) {
			t.Fatalf("%s differs between two exports with the same seed", name)
		}
	}
}

func TestDatasetExportRejectsBadRatios(t *testing.T) {
	exporter := newTestDataset(t)
	exporter.Ratios = SplitRatios{Train: 0.5, Val: 0.1, Test: 0.1}

	if _, err := exporter.Export(t.TempDir()); err == nil {
		t.Fatal("expected an error for ratios that do not sum to 1")
	}
}

func TestDatasetFolds(t *testing.T) {
	exporter := newTestDataset(t)

	folds, err := exporter.Folds(2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(folds) != 2 {
		t.Fatalf("expected 2 folds, got %d", len(folds))
	}

	seen := make(map[string]int)
	for i, fold := range folds {
		if len(fold.Train)+len(fold.Val) != 5 {
			t.Fatalf("fold %d: expected 5 images total, got %d",
				i, len(fold.Train)+len(fold.Val))
		}
		for _, path := range fold.Val {
			seen[path]++
		}
	}

	// Every image validates exactly once across the folds.
	if len(seen) != 5 {
		t.Fatalf("expected every image in a val fold, got %d", len(seen))
	}
	for path, n := range seen {
		if n != 1 {
			t.Fatalf("image %q appears in %d val folds", path, n)
		}
	}

	if _, err := exporter.Folds(1); err == nil {
		t.Fatal("expected an error for fewer than 2 folds")
	}
	if _, err := exporter.Folds(6); err == nil {
		t.Fatal("expected an error for more folds than images")
	}
}

func TestValidateLayoutDetectsOrphanLabels(t *testing.T) {
	exporter := newTestDataset(t)
	outDir := t.TempDir()
	if _, err := exporter.Export(outDir); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	orphan := filepath.Join(outDir, "labels", "train", "ghost.txt")
	if err := os.WriteFile(orphan, []byte("0 0.5 0.5 0.1 0.1\n"), 0644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := ValidateLayout(outDir); err == nil {
		t.Fatal("expected an error for a label without a matching image")
	}
}

func TestValidateLayoutMissingDataYAML(t *testing.T) {
	if err := ValidateLayout(t.TempDir()); err == nil {
		t.Fatal("expected an error for a directory without data.yaml")
	}
}
