// Manages YOLO bounding box annotations for image directories: label file
// import and export, detection import, dataset splitting, TFRecord export,
// annotation rendering and letterbox resizing.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/sensorable/lbledit"
)

var (
	op operation // The operation to perform.

	imageDirPath             string // The input directory with the images.
	imageOutDirPath          string // The output directory for processed images.
	labelDirPath             string // The input directory with YOLO label files.
	labelOutPath             string // The label output directory (export) or file (tfrecord).
	storeDirPath             string // The annotation store directory.
	classFilePath            string // The class definitions JSON file.
	dataFilePath             string // The data.yaml to read class names from.
	outDirPath               string // The dataset output directory.
	detectionsDirPath        string // The directory with detection JSON files.
	tfRecordLabelMapFilePath string // The TFRecord label map file.

	splitRatios lbledit.SplitRatios // The train/val/test split.
	splitSeed   int64               // The shuffle seed for splits.

	numShardFiles    int     // The number of shard files to create.
	letterboxSize    int     // The square output size for letterboxed images.
	minConfidence    float64 // The min. confidence to keep a detection.
	minBboxSize      float64 // The min. detection box width and height in pixels.
	imageJPEGQuality int     // The JPEG quality for JPEG outputs.
)

type operation int

// The known operations.
const (
	Unknown operation = iota
	Import
	Export
	Split
	TFRecord
	Render
	Resize
	Stats
	Detections
)

func operationFrom(s string) operation {
	switch s {
	case "import":
		return Import
	case "export":
		return Export
	case "split":
		return Split
	case "tfrecord":
		return TFRecord
	case "render":
		return Render
	case "resize":
		return Resize
	case "stats":
		return Stats
	case "detections":
		return Detections
	}
	return Unknown
}

func init() {
	flag.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, "Usage of %s:\n", filepath.Base(os.Args[0]))
		_, _ = fmt.Fprintln(os.Stderr, "  import options:\t-images <dir> -labels <dir> -store <dir>")
		_, _ = fmt.Fprintln(os.Stderr, "  export options:\t-images <dir> -store <dir> -labels-out <dir>")
		_, _ = fmt.Fprintln(os.Stderr, "  split options:\t-images <dir> -store <dir> -out <dir>"+
				" [-classes <file>] [-split] [-seed]")
		_, _ = fmt.Fprintln(os.Stderr, "  tfrecord options:\t-images <dir> -store <dir> -labels-out <file>"+
				" -tfrecord-label-map-file <file> [-num-shards]")
		_, _ = fmt.Fprintln(os.Stderr, "  render options:\t-images <dir> -store <dir> -images-out <dir>"+
				" [-classes <file>] [-jpeg-quality]")
		_, _ = fmt.Fprintln(os.Stderr, "  resize options:\t-images <dir> -images-out <dir> -size <px>"+
				" [-jpeg-quality]")
		_, _ = fmt.Fprintln(os.Stderr, "  stats options:\t-images <dir> -store <dir> [-classes <file>]")
		_, _ = fmt.Fprintln(os.Stderr, "  detections options:\t-images <dir> -store <dir> -detections <dir>"+
				" [-min-confidence] [-min-bbox-size]")
		_, _ = fmt.Fprintln(os.Stderr)
		flag.PrintDefaults()
	}

	printUsageAndExit := func(msg ...interface{}) {
		log.Print(msg...)
		flag.Usage()
		os.Exit(1)
	}

	// Operation argument.
	opName := flag.String("op", "", "The `operation` to perform"+
			" {import, export, split, tfrecord, render, resize, stats, detections}")

	// Path arguments.
	flag.StringVar(&imageDirPath, "images", imageDirPath,
		"The `path` to the image input directory")
	flag.StringVar(&imageOutDirPath, "images-out", imageOutDirPath,
		"The `path` to the image output directory (render, resize)")
	flag.StringVar(&labelDirPath, "labels", labelDirPath,
		"The `path` to the directory with YOLO label files to import")
	flag.StringVar(&labelOutPath, "labels-out", labelOutPath,
		"The label output `path`: a directory (export) or a file (tfrecord)")
	flag.StringVar(&storeDirPath, "store", storeDirPath,
		"The `path` to the annotation store directory")
	flag.StringVar(&classFilePath, "classes", classFilePath,
		"The `path` to the class definitions JSON file")
	flag.StringVar(&dataFilePath, "data", dataFilePath,
		"The `path` to a data.yaml to read class names from (ignored when -classes is set)")
	flag.StringVar(&outDirPath, "out", outDirPath,
		"The `path` to the dataset output directory (split)")
	flag.StringVar(&detectionsDirPath, "detections", detectionsDirPath,
		"The `path` to the directory with detection JSON files")
	flag.StringVar(&tfRecordLabelMapFilePath, "tfrecord-label-map-file", tfRecordLabelMapFilePath,
		"The TFRecord label map file `path`")

	// Split arguments.
	splits := flag.String("split", "70,20,10",
		"The comma-separated train,val[,test] split percentages (`percent[,...]`);"+
				" must add up to 100%")
	flag.Int64Var(&splitSeed, "seed", lbledit.DefaultSeed,
		"The shuffle `seed` for dataset splits")

	// Output arguments.
	flag.IntVar(&numShardFiles, "num-shards", 1,
		"The number of shard files to create (tfrecord only)")
	flag.IntVar(&letterboxSize, "size", 640,
		"The square output `size` in pixels for letterboxed images (resize only)")
	flag.IntVar(&imageJPEGQuality, "jpeg-quality", 90,
		"The quality to use when encoding JPEGs [1, 100]")

	// Detection filter arguments.
	flag.Float64Var(&minConfidence, "min-confidence", lbledit.DefaultMinConfidence,
		"The minimum confidence value to keep a detection; range [0.0, 1.0)")
	flag.Float64Var(&minBboxSize, "min-bbox-size", lbledit.DefaultDetectionSize,
		"The min. required width and height in `pixels` for detection boxes")

	// Parse and validate flags.
	flag.Parse()

	op = operationFrom(*opName)
	if op == Unknown {
		printUsageAndExit("Unsupported operation")
	}

	// Validate the per-operation path arguments.
	if imageDirPath == "" {
		printUsageAndExit("Missing image input path argument")
	}
	switch op {
	case Import:
		if labelDirPath == "" || storeDirPath == "" {
			printUsageAndExit("Missing label input or store path argument")
		}
	case Export:
		if storeDirPath == "" || labelOutPath == "" {
			printUsageAndExit("Missing store or label output path argument")
		}
	case Split:
		if storeDirPath == "" || outDirPath == "" {
			printUsageAndExit("Missing store or dataset output path argument")
		}
	case TFRecord:
		if storeDirPath == "" || labelOutPath == "" || tfRecordLabelMapFilePath == "" {
			printUsageAndExit("Missing store, label output or label map path argument")
		}
	case Render:
		if storeDirPath == "" || imageOutDirPath == "" {
			printUsageAndExit("Missing store or image output path argument")
		}
	case Resize:
		if imageOutDirPath == "" {
			printUsageAndExit("Missing image output path argument")
		} else if letterboxSize <= 0 {
			printUsageAndExit("Invalid value for -size: ", letterboxSize)
		}
	case Stats:
		if storeDirPath == "" {
			printUsageAndExit("Missing store path argument")
		}
	case Detections:
		if storeDirPath == "" || detectionsDirPath == "" {
			printUsageAndExit("Missing store or detections path argument")
		}
	}

	// Parse the split percentages.
	parts := strings.Split(*splits, ",")
	if len(parts) < 2 || len(parts) > 3 {
		printUsageAndExit("Argument -split needs two or three values")
	}
	var percentages [3]int
	var splitSum int
	for i, v := range parts {
		if p, err := strconv.Atoi(v); err != nil || p < 0 || p > 100 {
			printUsageAndExit("Invalid value in -split: ", v)
		} else {
			percentages[i] = p
			splitSum += p
		}
	}
	if splitSum != 100 {
		printUsageAndExit("The values in -split must add up to 100%")
	}
	splitRatios = lbledit.SplitRatios{
		Train: float64(percentages[0]) / 100,
		Val:   float64(percentages[1]) / 100,
		Test:  float64(percentages[2]) / 100,
	}

	// Validate image and filter arguments.
	if imageJPEGQuality < 1 || imageJPEGQuality > 100 {
		imageJPEGQuality = 92
		log.Print("Invalid JPEG quality, setting it to ", imageJPEGQuality)
	}
	if minConfidence < 0 || minConfidence >= 1 {
		printUsageAndExit("Invalid -min-confidence, must be in [0.0, 1.0): ", minConfidence)
	}

	// Clean path arguments.
	imageDirPath = filepath.Clean(imageDirPath)
	if imageOutDirPath != "" {
		imageOutDirPath = filepath.Clean(imageOutDirPath)
		if imageDirPath == imageOutDirPath {
			printUsageAndExit("The image input and output paths cannot be identical")
		}
	}
	if labelDirPath != "" && labelOutPath != "" && labelDirPath == labelOutPath {
		printUsageAndExit("The label input and output paths cannot be identical")
	}
}

func main() {
	images, err := lbledit.LoadImageSet(imageDirPath)
	if err != nil {
		log.Fatal("Failed to load the image directory: ", err)
	}
	if images.Len() == 0 {
		log.Fatal("No images found in ", imageDirPath)
	}

	var store *lbledit.Store
	if storeDirPath != "" {
		if err := os.MkdirAll(storeDirPath, 0755); err != nil {
			log.Fatal("Failed to create the store directory: ", err)
		}
		store = lbledit.NewStore(lbledit.DirKeyPath(storeDirPath))
	}

	classes, err := loadClasses()
	if err != nil {
		log.Fatal("Failed to load the class definitions: ", err)
	}

	switch op {
	case Import:
		err = runImport(store, images)
	case Export:
		err = runExport(store, images)
	case Split:
		err = runSplit(store, images, classes)
	case TFRecord:
		err = runTFRecord(store, images, classes)
	case Render:
		err = runRender(store, images, classes)
	case Resize:
		err = runResize(images)
	case Stats:
		err = runStats(store, images, classes)
	case Detections:
		err = runDetections(store, images)
	}
	if err != nil {
		log.Fatal("Operation failed: ", err)
	}
}

// loadClasses builds the class registry from -classes or -data, or returns an
// empty registry when neither is set.
func loadClasses() (*lbledit.ClassRegistry, error) {
	if classFilePath != "" {
		return lbledit.LoadClassesJSON(classFilePath)
	}
	if dataFilePath != "" {
		return lbledit.ReadDataYAML(dataFilePath)
	}
	return lbledit.NewClassRegistry(), nil
}

// runImport reads the YOLO label file for every image that has one and saves
// the parsed annotations to the store.
func runImport(store *lbledit.Store, images *lbledit.ImageSet) error {
	imported, skipped := 0, 0
	for _, path := range images.Files() {
		key := lbledit.ImageKey(path)
		labelPath := filepath.Join(labelDirPath, key+".txt")
		if _, err := os.Stat(labelPath); err != nil {
			continue // No label file for this image.
		}

		width, height, err := lbledit.ImageSize(path)
		if err != nil {
			log.Printf("Skipping %q: %v", path, err)
			continue
		}

		lines, err := lbledit.ReadLabelFile(labelPath)
		if err != nil {
			return err
		}
		n, err := store.ImportLines(key, lines, width, height)
		if err != nil {
			return err
		}

		skipped += n
		imported++
	}

	log.Printf("Imported labels for %d files (%d malformed lines skipped)", imported, skipped)
	return nil
}

// runExport writes one YOLO label file per annotated image.
func runExport(store *lbledit.Store, images *lbledit.ImageSet) error {
	if err := os.MkdirAll(labelOutPath, 0755); err != nil {
		return err
	}

	exported := 0
	for _, path := range images.Files() {
		key := lbledit.ImageKey(path)

		width, height, err := lbledit.ImageSize(path)
		if err != nil {
			log.Printf("Skipping %q: %v", path, err)
			continue
		}

		lines, err := store.ExportLines(key, width, height)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			continue
		}

		if err := lbledit.WriteLabelFile(filepath.Join(labelOutPath, key+".txt"), lines); err != nil {
			return err
		}
		exported++
	}

	log.Printf("Wrote labels for %d files to %s", exported, labelOutPath)
	return nil
}

// runSplit exports the training-ready dataset tree.
func runSplit(store *lbledit.Store, images *lbledit.ImageSet,
		classes *lbledit.ClassRegistry) error {

	exporter := lbledit.DatasetExporter{
		Store:   store,
		Images:  images,
		Classes: classes,
		Ratios:  splitRatios,
		Seed:    splitSeed,
	}
	summary, err := exporter.Export(outDirPath)
	if err != nil {
		return err
	}
	if err := lbledit.ValidateLayout(outDirPath); err != nil {
		return err
	}

	log.Printf("Split %d images into train %d, val %d, test %d (%d annotations)",
		summary.Total(), summary.Images[0], summary.Images[1], summary.Images[2],
		summary.Annotations)
	return nil
}

// runTFRecord serialises the image set and its annotations to TFRecord shards.
func runTFRecord(store *lbledit.Store, images *lbledit.ImageSet,
		classes *lbledit.ClassRegistry) error {

	exporter := lbledit.TFRecordExporter{
		Store:     store,
		Images:    images,
		Classes:   classes,
		NumShards: numShardFiles,
	}
	if err := exporter.Export(labelOutPath, tfRecordLabelMapFilePath); err != nil {
		return err
	}

	log.Printf("Wrote %d TFRecord shard(s) to %s", numShardFiles, labelOutPath)
	return nil
}

// runRender draws the stored annotations onto every annotated image.
func runRender(store *lbledit.Store, images *lbledit.ImageSet,
		classes *lbledit.ClassRegistry) error {

	if err := os.MkdirAll(imageOutDirPath, 0755); err != nil {
		return err
	}

	rendered := 0
	for _, path := range images.Files() {
		set, err := store.Get(lbledit.ImageKey(path))
		if err != nil {
			return err
		}
		if len(set) == 0 {
			continue
		}

		dst := filepath.Join(imageOutDirPath, filepath.Base(path))
		if err := lbledit.SaveAnnotated(path, dst, set, classes, imageJPEGQuality); err != nil {
			log.Printf("Skipping %q: %v", path, err)
			continue
		}
		rendered++
	}

	log.Printf("Rendered %d annotated images to %s", rendered, imageOutDirPath)
	return nil
}

// runResize letterboxes every image to a square canvas.
func runResize(images *lbledit.ImageSet) error {
	if err := images.LetterboxAll(imageOutDirPath, letterboxSize, imageJPEGQuality); err != nil {
		return err
	}

	log.Printf("Letterboxed %d images to %dx%d in %s",
		images.Len(), letterboxSize, letterboxSize, imageOutDirPath)
	return nil
}

// runStats prints annotation totals for the image directory.
func runStats(store *lbledit.Store, images *lbledit.ImageSet,
		classes *lbledit.ClassRegistry) error {

	annotated := 0
	for _, path := range images.Files() {
		set, err := store.Get(lbledit.ImageKey(path))
		if err != nil {
			return err
		}
		if len(set) > 0 {
			annotated++
		}
	}

	stats := store.Statistics()
	ids := make([]int64, 0, len(stats.PerClass))
	for id := range stats.PerClass {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	fmt.Printf("Images: %d\n", images.Len())
	fmt.Printf("Annotated images: %d\n", annotated)
	fmt.Printf("Annotations: %d\n", stats.Annotations)
	for _, id := range ids {
		fmt.Printf("  %d %s: %d\n", id, classes.Label(id), stats.PerClass[id])
	}

	return nil
}

// runDetections imports the detection JSON file for every image that has one.
func runDetections(store *lbledit.Store, images *lbledit.ImageSet) error {
	filter := lbledit.DetectionFilter{MinConfidence: minConfidence, MinSize: minBboxSize}

	total, imported := 0, 0
	for _, path := range images.Files() {
		key := lbledit.ImageKey(path)
		detPath := filepath.Join(detectionsDirPath, key+".json")
		if _, err := os.Stat(detPath); err != nil {
			continue // No detections for this image.
		}

		width, height, err := lbledit.ImageSize(path)
		if err != nil {
			log.Printf("Skipping %q: %v", path, err)
			continue
		}

		n, err := store.ImportDetections(key, detPath, width, height, filter)
		if err != nil {
			return err
		}

		total += n
		imported++
	}

	log.Printf("Imported %d detections for %d files", total, imported)
	return nil
}
