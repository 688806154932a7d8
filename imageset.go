package lbledit

// Discovery of and navigation over the image files of an annotation session.

import (
	"fmt"
	"image"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
)

// imageExtensions are the file extensions recognised as images.
var imageExtensions = []string{"jpg", "jpeg", "png", "bmp", "tif", "tiff", "gif"}

// ImageKey derives the annotation store key for an image path: the base file
// name without its extension.
func ImageKey(path string) string {
	_, baseNoExt, _, err := splitPath(path)
	if err != nil {
		return filepath.Base(path)
	}
	return baseNoExt
}

// ImageSize returns the pixel dimensions of the image at path without
// decoding the pixel data.
func ImageSize(path string) (width, height int, err error) {
	cfg, _, err := decodeImageConfig(path)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to decode the image metadata of %q: %v", path, err)
	}
	return cfg.Width, cfg.Height, nil
}

// Thumbnail loads the image at path scaled down to fit within maxWidth x
// maxHeight, preserving the aspect ratio.
func Thumbnail(path string, maxWidth, maxHeight int) (image.Image, error) {
	img, _, err := loadImage(path)
	if err != nil {
		return nil, err
	}
	return thumbnailImage(img, maxWidth, maxHeight), nil
}

// ImageSet is the ordered collection of image files directly under one
// directory, with wrap-around navigation.
type ImageSet struct {
	dir   string
	files []string // Sorted by file name.
	index int
}

// LoadImageSet scans dir for supported image files and returns them as a set
// sorted by file name.
func LoadImageSet(dir string) (*ImageSet, error) {
	files, err := filesByExtInDir(dir, imageExtensions...)
	if err != nil {
		return nil, err
	}
	sort.Strings(files)

	return &ImageSet{dir: dir, files: files}, nil
}

// Dir returns the scanned directory.
func (s *ImageSet) Dir() string { return s.dir }

// Len returns the number of images in the set.
func (s *ImageSet) Len() int { return len(s.files) }

// Files returns a copy of the image paths in set order.
func (s *ImageSet) Files() []string {
	files := make([]string, len(s.files))
	copy(files, s.files)
	return files
}

// Index returns the cursor position.
func (s *ImageSet) Index() int { return s.index }

// SetIndex moves the cursor to i.
func (s *ImageSet) SetIndex(i int) error {
	if i < 0 || i >= len(s.files) {
		return fmt.Errorf("image index %d out of range [0, %d)", i, len(s.files))
	}
	s.index = i
	return nil
}

// Current returns the image path at the cursor, or "" for an empty set.
func (s *ImageSet) Current() string {
	if len(s.files) == 0 {
		return ""
	}
	return s.files[s.index]
}

// Next advances the cursor with wrap-around and returns the new current path.
func (s *ImageSet) Next() string {
	if len(s.files) == 0 {
		return ""
	}
	s.index = (s.index + 1) % len(s.files)
	return s.files[s.index]
}

// Prev moves the cursor back with wrap-around and returns the new current
// path.
func (s *ImageSet) Prev() string {
	if len(s.files) == 0 {
		return ""
	}
	s.index = (s.index - 1 + len(s.files)) % len(s.files)
	return s.files[s.index]
}

// FindKey moves the cursor to the image whose key matches and returns its
// path, or "" when no image has that key.
func (s *ImageSet) FindKey(key string) string {
	for i, path := range s.files {
		if ImageKey(path) == key {
			s.index = i
			return path
		}
	}
	return ""
}

// LetterboxAll resizes every image in the set onto a size x size canvas,
// preserving the aspect ratio and padding with black, and writes the results
// to outDir under the source file names. Images that fail to decode are
// skipped.
func (s *ImageSet) LetterboxAll(outDir string, size, jpegQuality int) error {
	if size <= 0 {
		return fmt.Errorf("invalid letterbox size %d", size)
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return err
	}

	// Limit the number of goroutines in flight, as they load potentially
	// large images into memory.
	numTasks := 2 * runtime.NumCPU()
	if len(s.files) < numTasks {
		numTasks = len(s.files)
	}
	if numTasks == 0 {
		return nil
	}

	workQueue := make(chan string, 2*numTasks)
	errors := make(chan error, 1)
	var wg sync.WaitGroup

	trySendError := func(err error) {
		select {
		case errors <- err:
		default:
		}
	}

	// Letterbox images concurrently from a work queue.
	wg.Add(numTasks)
	for i := 0; i < numTasks; i++ {
		go func() {
			defer wg.Done()
			for path := range workQueue {
				img, _, err := loadImage(path)
				if err != nil {
					log.Printf("Failed to decode, skipping %q: %v", path, err)
					continue
				}

				outPath := filepath.Join(outDir, filepath.Base(path))
				if err := saveImage(outPath, letterboxImage(img, size), jpegQuality); err != nil {
					trySendError(err)
				}
			}
		}()
	}

	// Feed the work queue.
	for _, path := range s.files {
		workQueue <- path
	}
	close(workQueue)
	wg.Wait()

	close(errors)
	if len(errors) > 0 {
		return <-errors
	}

	return nil
}
