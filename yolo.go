package lbledit

// YOLO label text functionality: one space-separated normalized record per
// line, with six decimal places for the geometry fields.

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
)

// FormatLine renders a as a single label line for an image of the given size.
func FormatLine(a Annotation, imageWidth, imageHeight int) (string, error) {
	rec, err := ToNormalized(a, imageWidth, imageHeight)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%d %.6f %.6f %.6f %.6f",
		int64(rec[0]), rec[1], rec[2], rec[3], rec[4]), nil
}

// ParseLine parses the values of a single label line.
func ParseLine(line string, imageWidth, imageHeight int) (Annotation, error) {
	tokens := strings.Fields(line)
	if len(tokens) != 5 {
		return Annotation{},
				fmt.Errorf("%w: expected 5 fields in %q, got %d", ErrMalformedRecord, line, len(tokens))
	}

	record := make([]float64, len(tokens))
	for i, t := range tokens {
		v, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return Annotation{},
					fmt.Errorf("%w: unexpected value in %q: %v", ErrMalformedRecord, line, err)
		}
		record[i] = v
	}

	return FromNormalized(record, imageWidth, imageHeight)
}

// ExportLines renders the annotation set for key as label lines, one per
// annotation, in set order.
func (s *Store) ExportLines(key string, imageWidth, imageHeight int) ([]string, error) {
	set, err := s.Get(key)
	if err != nil {
		return nil, err
	}

	lines := make([]string, 0, len(set))
	for _, a := range set {
		line, err := FormatLine(a, imageWidth, imageHeight)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}

	return lines, nil
}

// ImportLines parses label lines for key and saves the parsed set.
//
// Blank lines are ignored. Malformed lines are skipped and counted, never
// fatal: an input with no valid lines parses to an empty set, whose save
// leaves the stored annotations untouched. Returns the number of lines
// skipped as malformed.
func (s *Store) ImportLines(key string, lines []string, imageWidth, imageHeight int) (
		skipped int, err error) {

	if imageWidth <= 0 || imageHeight <= 0 {
		return 0, fmt.Errorf("%w: %dx%d", ErrInvalidImageDimensions, imageWidth, imageHeight)
	}

	set := make(AnnotationSet, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}

		a, err := ParseLine(line, imageWidth, imageHeight)
		if err != nil {
			log.Printf("Skipping malformed line %q: %v", line, err)
			skipped++
			continue
		}
		set = append(set, a)
	}

	if err := s.Save(key, set); err != nil {
		return skipped, err
	}

	return skipped, nil
}

// ReadLabelFile reads the label lines for one image from the file at path.
func ReadLabelFile(path string) ([]string, error) {
	return readLines(path)
}

// WriteLabelFile writes label lines to path, one per line.
func WriteLabelFile(path string, lines []string) error {
	var b strings.Builder
	for _, line := range lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}

	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("cannot write file %q: %v", path, err)
	}
	return nil
}
