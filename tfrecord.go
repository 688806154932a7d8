package lbledit

// TFRecord object detection export.

import (
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"strings"

	"github.com/golang/protobuf/proto"
	"github.com/ryszard/tfutils/go/example"
	"github.com/ryszard/tfutils/go/tfrecord"
	"github.com/ryszard/tfutils/proto/tensorflow/core/example" // package tensorflow
)

// TFFeatureMap maps feature names to their values. Values must be convertible
// to tensorflow.Feature.
type TFFeatureMap map[string]interface{}

// TFRecordExporter serialises the annotation store to the TFRecord format
// consumed by the TensorFlow object detection tooling.
//
// Class label IDs in the records are the annotation class IDs shifted up by
// one, since ID 0 is reserved for the implicit background class.
type TFRecordExporter struct {
	Store     *Store
	Images    *ImageSet
	Classes   *ClassRegistry
	NumShards int // Number of output shards; 1 when non-positive.

	// Customise, when set, may modify the default feature map for each image
	// before it is serialised. All values must remain convertible to
	// tensorflow.Feature.
	Customise func(key string, f TFFeatureMap)
}

// Export does a streaming conversion, serialisation and file write of every
// image in the set to one or more TFRecord files stored under recordPath
// (with suffixes added when NumShards > 1). The class registry is written to
// labelMapPath in the prototxt label map format.
//
// Images that cannot be decoded are skipped.
func (e *TFRecordExporter) Export(recordPath, labelMapPath string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("conversion to TensorFlow Example failed: %v", r)
		}
	}()

	numShards := e.NumShards
	if numShards <= 0 {
		numShards = 1
	}

	files := e.Images.Files()
	if len(files) == 0 {
		return fmt.Errorf("no images to export from %q", e.Images.Dir())
	}

	fmtShardSuffix := func(idx int) string {
		return fmt.Sprintf("-%05d-of-%05d", idx, numShards)
	}

	var shardFile *os.File
	shardSize := int(math.Ceil(float64(len(files)) / float64(numShards)))
	shardIdx := -1

	// Convert and serialise one image at a time.
	for i, path := range files {
		// Check if a new shard file needs to be opened for writing.
		if i%shardSize == 0 {
			shardIdx++

			if shardFile != nil {
				_ = shardFile.Close()
				shardFile = nil
			}

			shardPath := recordPath
			if numShards > 1 {
				shardPath += fmtShardSuffix(shardIdx)
			}
			f, err := os.Create(shardPath)
			if err != nil {
				return fmt.Errorf("cannot create shard at %q: %v", shardPath, err)
			}
			shardFile = f
		}

		features, err := e.imageFeatures(path)
		if err != nil {
			log.Printf("Skipping %q: %v", path, err)
			continue
		}
		if e.Customise != nil {
			e.Customise(ImageKey(path), features)
		}
		tfExample := example.New(features)

		if err := writeTFRecordExample(shardFile, tfExample); err != nil {
			log.Print("Failed to write example: ", err)
			break
		}
	}

	if shardFile != nil {
		_ = shardFile.Close()
	}

	return WriteLabelMapFile(labelMapPath, e.Classes)
}

// imageFeatures builds the default TFRecord feature map for a single image
// and its stored annotations.
func (e *TFRecordExporter) imageFeatures(path string) (TFFeatureMap, error) {
	img, format, err := decodeImageConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to decode the image metadata: %v", err)
	}

	imgData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read the image: %v", err)
	}

	set, err := e.Store.Get(ImageKey(path))
	if err != nil {
		return nil, err
	}

	f := make(TFFeatureMap, 16)
	f["image/height"] = img.Height
	f["image/width"] = img.Width
	f["image/filename"] = path
	f["image/source_id"] = path
	f["image/encoded"] = imgData
	f["image/format"] = format

	xmins := make([]float32, len(set))
	ymins := make([]float32, len(set))
	xmaxs := make([]float32, len(set))
	ymaxs := make([]float32, len(set))
	texts := make([]string, len(set))
	labels := make([]int64, len(set))
	for i, a := range set {
		xmins[i] = float32(a.X) / float32(img.Width)
		ymins[i] = float32(a.Y) / float32(img.Height)
		xmaxs[i] = float32(a.Right()) / float32(img.Width)
		ymaxs[i] = float32(a.Bottom()) / float32(img.Height)
		texts[i] = e.Classes.Label(a.ClassID)
		labels[i] = a.ClassID + 1
	}
	f["image/object/bbox/xmin"] = xmins
	f["image/object/bbox/ymin"] = ymins
	f["image/object/bbox/xmax"] = xmaxs
	f["image/object/bbox/ymax"] = ymaxs
	f["image/object/class/text"] = texts
	f["image/object/class/label"] = labels

	return f, nil
}

// writeTFRecordExample serialises the example and writes it as a TFRecord
// to w.
func writeTFRecordExample(w io.Writer, e *tensorflow.Example) error {
	enc, err := proto.Marshal(e)
	if err != nil {
		return err
	}

	return tfrecord.Write(w, enc)
}

// WriteLabelMapFile renders the class registry in the prototxt label map
// format understood by the TensorFlow object detection tooling and writes it
// to path. IDs are shifted up by one to keep 0 free for the background class.
func WriteLabelMapFile(path string, classes *ClassRegistry) error {
	var b strings.Builder
	for _, c := range classes.Classes() {
		fmt.Fprintf(&b, "item {\n  name: %q\n  id: %d\n}\n", c.Name, c.ID+1)
	}

	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("failed to write the label map %q: %v", path, err)
	}

	return nil
}
