package lbledit

// Dataset split and export: the on-disk layout consumed by YOLO training
// tools, with deterministic shuffling.

import (
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
)

// DefaultSeed seeds the split shuffle unless the exporter overrides it.
const DefaultSeed = 42

// subsetNames are the dataset subsets in export order.
var subsetNames = [3]string{"train", "val", "test"}

// SplitRatios are the train/val/test fractions of a dataset split.
type SplitRatios struct {
	Train, Val, Test float64
}

// DefaultSplitRatios returns the stock 70/20/10 split.
func DefaultSplitRatios() SplitRatios {
	return SplitRatios{Train: 0.7, Val: 0.2, Test: 0.1}
}

// Validate checks that every ratio is within [0, 1] and that the three sum to
// 1.0 within a 0.001 tolerance.
func (r SplitRatios) Validate() error {
	for _, v := range [3]float64{r.Train, r.Val, r.Test} {
		if v < 0 || v > 1 {
			return fmt.Errorf("split ratio %v out of range [0, 1]", v)
		}
	}
	if total := r.Train + r.Val + r.Test; math.Abs(total-1) > 0.001 {
		return fmt.Errorf("split ratios add up to %v, expected 1.0", total)
	}

	return nil
}

// ExportSummary reports what a dataset export produced.
type ExportSummary struct {
	Images      [3]int // Image counts per subset, in subsetNames order.
	Annotations int
	Background  int // Images exported without a label file.
	PerClass    map[int64]int
}

// Total is the number of exported images across all subsets.
func (s ExportSummary) Total() int {
	return s.Images[0] + s.Images[1] + s.Images[2]
}

// DatasetExporter writes annotated images into a training-ready directory
// tree:
//
//	outDir/
//	    data.yaml
//	    statistics.txt
//	    train.txt, val.txt, test.txt
//	    images/{train,val,test}/<image files>
//	    labels/{train,val,test}/<key>.txt
type DatasetExporter struct {
	Store   *Store
	Images  *ImageSet
	Classes *ClassRegistry
	Ratios  SplitRatios
	Seed    int64 // Shuffle seed; DefaultSeed when zero.
}

// Export splits the image set and writes the dataset tree under outDir.
// Images whose metadata cannot be read are skipped. Images without
// annotations are exported with no label file.
func (e *DatasetExporter) Export(outDir string) (ExportSummary, error) {
	summary := ExportSummary{PerClass: make(map[int64]int)}

	if err := e.Ratios.Validate(); err != nil {
		return summary, err
	}

	subsets := e.splitFiles()
	if err := makeDatasetDirs(outDir); err != nil {
		return summary, err
	}

	for si, files := range subsets {
		subset := subsetNames[si]
		listed := make([]string, 0, len(files))

		for _, path := range files {
			width, height, err := ImageSize(path)
			if err != nil {
				log.Printf("Skipping %q: %v", path, err)
				continue
			}

			key := ImageKey(path)
			lines, err := e.Store.ExportLines(key, width, height)
			if err != nil {
				return summary, err
			}

			imageRel := filepath.Join("images", subset, filepath.Base(path))
			if err := copyFile(path, filepath.Join(outDir, imageRel)); err != nil {
				return summary, err
			}

			if len(lines) == 0 {
				summary.Background++
			} else {
				labelPath := filepath.Join(outDir, "labels", subset, key+".txt")
				if err := WriteLabelFile(labelPath, lines); err != nil {
					return summary, err
				}
			}

			set, err := e.Store.Get(key)
			if err != nil {
				return summary, err
			}
			summary.Annotations += len(set)
			for _, a := range set {
				summary.PerClass[a.ClassID]++
			}

			listed = append(listed, imageRel)
			summary.Images[si]++
		}

		listPath := filepath.Join(outDir, subset+".txt")
		if err := WriteLabelFile(listPath, listed); err != nil {
			return summary, err
		}
	}

	cfg := DataConfig{
		Path:  outDir,
		Train: filepath.Join("images", "train"),
		Val:   filepath.Join("images", "val"),
		Test:  filepath.Join("images", "test"),
	}
	if err := e.Classes.WriteDataYAML(filepath.Join(outDir, "data.yaml"), cfg); err != nil {
		return summary, err
	}

	if err := e.writeStatistics(filepath.Join(outDir, "statistics.txt"), summary); err != nil {
		return summary, err
	}

	return summary, nil
}

// splitFiles shuffles the image paths deterministically and slices them into
// the train, val and test subsets.
func (e *DatasetExporter) splitFiles() [3][]string {
	files := e.Images.Files()

	seed := e.Seed
	if seed == 0 {
		seed = DefaultSeed
	}
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(files), func(i, j int) {
		files[i], files[j] = files[j], files[i]
	})

	numTrain := int(e.Ratios.Train * float64(len(files)))
	numVal := int(e.Ratios.Val * float64(len(files)))

	return [3][]string{
		files[:numTrain],
		files[numTrain : numTrain+numVal],
		files[numTrain+numVal:],
	}
}

// writeStatistics renders the export summary to a plain-text report.
func (e *DatasetExporter) writeStatistics(path string, summary ExportSummary) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Dataset statistics\n")
	fmt.Fprintf(&b, "==================\n")
	fmt.Fprintf(&b, "Total images: %d (train %d, val %d, test %d)\n",
		summary.Total(), summary.Images[0], summary.Images[1], summary.Images[2])
	fmt.Fprintf(&b, "Background images: %d\n", summary.Background)
	fmt.Fprintf(&b, "Total annotations: %d\n", summary.Annotations)

	if e.Classes.Len() > 0 || len(summary.PerClass) > 0 {
		fmt.Fprintf(&b, "Annotations per class:\n")
		for _, c := range e.Classes.Classes() {
			fmt.Fprintf(&b, "  %d %s: %d\n", c.ID, c.Name, summary.PerClass[c.ID])
		}
		for id, count := range summary.PerClass {
			if _, ok := e.Classes.Get(id); !ok {
				fmt.Fprintf(&b, "  %d %s: %d\n", id, e.Classes.Label(id), count)
			}
		}
	}

	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("cannot write file %q: %v", path, err)
	}
	return nil
}

// Fold is one cross-validation assignment of image paths.
type Fold struct {
	Train []string
	Val   []string
}

// Folds partitions the image set into k rotating train/val folds after a
// deterministic shuffle. The last fold absorbs the remainder.
func (e *DatasetExporter) Folds(k int) ([]Fold, error) {
	files := e.Images.Files()
	if k < 2 || k > len(files) {
		return nil, fmt.Errorf("invalid fold count %d for %d images", k, len(files))
	}

	seed := e.Seed
	if seed == 0 {
		seed = DefaultSeed
	}
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(files), func(i, j int) {
		files[i], files[j] = files[j], files[i]
	})

	size := len(files) / k
	folds := make([]Fold, k)
	for i := 0; i < k; i++ {
		lo := i * size
		hi := lo + size
		if i == k-1 {
			hi = len(files)
		}

		val := files[lo:hi]
		train := make([]string, 0, len(files)-len(val))
		train = append(train, files[:lo]...)
		train = append(train, files[hi:]...)
		folds[i] = Fold{Train: train, Val: val}
	}

	return folds, nil
}

// ValidateLayout checks that dir contains a complete dataset export: the
// data.yaml, the images and labels trees, and no labels without images.
func ValidateLayout(dir string) error {
	if _, err := os.Stat(filepath.Join(dir, "data.yaml")); err != nil {
		return fmt.Errorf("missing data.yaml in %q: %v", dir, err)
	}

	for _, subset := range subsetNames {
		imagesDir := filepath.Join(dir, "images", subset)
		labelsDir := filepath.Join(dir, "labels", subset)

		images, err := filesByExtInDir(imagesDir, imageExtensions...)
		if err != nil {
			return err
		}
		labels, err := filesByExtInDir(labelsDir, "txt")
		if err != nil {
			return err
		}

		keys := make(map[string]bool, len(images))
		for _, path := range images {
			keys[ImageKey(path)] = true
		}
		for _, path := range labels {
			if !keys[ImageKey(path)] {
				return fmt.Errorf("label %q has no matching image in %q", path, imagesDir)
			}
		}
	}

	return nil
}

// makeDatasetDirs creates the images and labels subset directories.
func makeDatasetDirs(outDir string) error {
	for _, subset := range subsetNames {
		for _, kind := range [2]string{"images", "labels"} {
			if err := os.MkdirAll(filepath.Join(outDir, kind, subset), 0755); err != nil {
				return err
			}
		}
	}
	return nil
}
