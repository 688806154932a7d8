package lbledit

import (
	"os"
	"path/filepath"
	"testing"
)

func TestClassRegistryAddDeduplicates(t *testing.T) {
	r := NewClassRegistrySeeded(1)

	car := r.Add("car")
	person := r.Add("person")
	again := r.Add("car")

	if car.ID != 0 || person.ID != 1 {
		t.Fatalf("expected sequential ids 0 and 1, got %d and %d", car.ID, person.ID)
	}
	if again.ID != car.ID {
		t.Fatalf("expected the existing id %d for a duplicate name, got %d", car.ID, again.ID)
	}
	if r.Len() != 2 {
		t.Fatalf("expected 2 classes, got %d", r.Len())
	}

	for _, ch := range car.Color {
		if ch < 50 || ch > 200 {
			t.Fatalf("expected color channels in [50, 200], got %v", car.Color)
		}
	}
}

func TestClassRegistryFallbacks(t *testing.T) {
	r := NewClassRegistrySeeded(1)

	if label := r.Label(7); label != "Class 7" {
		t.Fatalf("expected fallback label \"Class 7\", got %q", label)
	}
	if col := r.Color(7); col != [3]uint8{128, 128, 128} {
		t.Fatalf("expected grey fallback color, got %v", col)
	}

	r.Add("car")
	if label := r.Label(0); label != "car" {
		t.Fatalf("expected \"car\", got %q", label)
	}
}

func TestClassRegistryNextIDSkipsGaps(t *testing.T) {
	r := NewClassRegistrySeeded(1)
	r.Add("car")    // 0
	r.Add("person") // 1

	if err := r.Remove(0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next := r.NextID(); next != 2 {
		t.Fatalf("expected next id 2 after removing id 0, got %d", next)
	}

	bike := r.Add("bike")
	if bike.ID != 2 {
		t.Fatalf("expected id 2, got %d", bike.ID)
	}
}

func TestClassRegistryRename(t *testing.T) {
	r := NewClassRegistrySeeded(1)
	r.Add("car")

	if err := r.Rename(0, "vehicle"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if label := r.Label(0); label != "vehicle" {
		t.Fatalf("expected \"vehicle\", got %q", label)
	}

	if err := r.Rename(9, "x"); err == nil {
		t.Fatal("expected an error for an unknown id")
	}
	if err := r.Remove(9); err == nil {
		t.Fatal("expected an error for an unknown id")
	}
}

func TestClassRegistryMerge(t *testing.T) {
	r := NewClassRegistrySeeded(1)
	r.Add("car")    // 0
	r.Add("person") // 1

	other := NewClassRegistrySeeded(2)
	other.Add("person") // 0: name collision with r's id 1.
	other.Add("bike")   // 1: id collision with r's person.

	mapping := r.Merge(other)

	if mapping[0] != 1 {
		t.Fatalf("expected other's person to map to existing id 1, got %d", mapping[0])
	}
	if mapping[1] != 2 {
		t.Fatalf("expected other's bike to move to fresh id 2, got %d", mapping[1])
	}
	if r.Len() != 3 {
		t.Fatalf("expected 3 classes after merge, got %d", r.Len())
	}
	if label := r.Label(2); label != "bike" {
		t.Fatalf("expected \"bike\" at id 2, got %q", label)
	}
}

func TestClassesJSONRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "classes.json")

	r := NewClassRegistrySeeded(1)
	r.Add("car")
	r.Add("person")
	if err := r.SaveJSON(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	loaded, err := LoadClassesJSON(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := r.Classes()
	got := loaded.Classes()
	if len(got) != len(want) {
		t.Fatalf("expected %d classes, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("class %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
}

func TestDataYAMLRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.yaml")

	r := NewClassRegistrySeeded(1)
	r.Add("car")
	r.Add("person")
	cfg := DataConfig{Train: "images/train", Val: "images/val"}
	if err := r.WriteDataYAML(path, cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	loaded, err := ReadDataYAML(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loaded.Label(0) != "car" || loaded.Label(1) != "person" {
		t.Fatalf("unexpected names: %q, %q", loaded.Label(0), loaded.Label(1))
	}
}

func TestReadDataYAMLNamesList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.yaml")
	doc := "train: images/train\nval: images/val\nnc: 2\nnames:\n  - car\n  - person\n"
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	r, err := ReadDataYAML(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Len() != 2 || r.Label(0) != "car" || r.Label(1) != "person" {
		t.Fatalf("unexpected registry contents: %v", r.Classes())
	}
}

func TestReadDataYAMLNamesMap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.yaml")
	doc := "names:\n  0: car\n  3: truck\n"
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	r, err := ReadDataYAML(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Len() != 2 || r.Label(0) != "car" || r.Label(3) != "truck" {
		t.Fatalf("unexpected registry contents: %v", r.Classes())
	}
}

func TestReadDataYAMLMissingNames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.yaml")
	if err := os.WriteFile(path, []byte("train: images/train\n"), 0644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	r, err := ReadDataYAML(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Len() != 0 {
		t.Fatalf("expected an empty registry, got %d classes", r.Len())
	}
}
