// Package util - helpers for feeding image sequences to the detector.
package util

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/pkg/errors"
)

// ImageFile represents an image file.
type ImageFile struct {
	// Path is the path to the image file.
	Path string
	// Data is the raw bytes of the image file.
	Data []byte
	// Frame is the frame number parsed from the trailing digits of the file name, -1 if none.
	Frame int
}

// LoadDirectoryImageFiles reads all image files from a directory in playback order.
//
// Files are ordered by frame number ("frame-12.jpg", "000123.png"), then by name, so a
// directory of extracted video frames yields consecutive frames.
//
// Arguments:
//   - dir: Directory path containing image files.
//
// Returns:
//   - []ImageFile: Slice of ImageFile, each containing the raw bytes of an image file.
//   - error: Error if loading fails.
func LoadDirectoryImageFiles(dir string) ([]ImageFile, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "can't read directory %s", dir)
	}

	var images []ImageFile
	for _, file := range files {
		if file.IsDir() {
			continue
		}

		ext := strings.ToLower(filepath.Ext(file.Name()))
		switch ext {
		case ".jpg", ".jpeg", ".png", ".webp":
			imgPath := filepath.Join(dir, file.Name())
			data, readErr := os.ReadFile(imgPath)
			if readErr != nil {
				return nil, errors.Wrapf(readErr, "can't read %s", imgPath)
			}
			images = append(images, ImageFile{
				Path:  imgPath,
				Data:  data,
				Frame: frameNumber(strings.TrimSuffix(file.Name(), filepath.Ext(file.Name()))),
			})
		}
	}

	sort.SliceStable(images, func(i, j int) bool {
		if images[i].Frame != images[j].Frame {
			return images[i].Frame < images[j].Frame
		}
		return images[i].Path < images[j].Path
	})

	return images, nil
}

// frameNumber parses the trailing digits of a base name.
func frameNumber(base string) int {
	i := len(base)
	for i > 0 && unicode.IsDigit(rune(base[i-1])) {
		i--
	}
	if i == len(base) {
		return -1
	}
	n, err := strconv.Atoi(base[i:])
	if err != nil {
		return -1
	}
	return n
}

// Windows returns every run of size consecutive items, the newest last. A sequence shorter
// than size yields one window padded at the front with its first item.
func Windows[T any](items []T, size int) [][]T {
	if size <= 0 || len(items) == 0 {
		return nil
	}
	if len(items) < size {
		w := make([]T, 0, size)
		for i := 0; i < size-len(items); i++ {
			w = append(w, items[0])
		}
		return [][]T{append(w, items...)}
	}

	out := make([][]T, 0, len(items)-size+1)
	for i := 0; i+size <= len(items); i++ {
		out = append(out, items[i:i+size])
	}
	return out
}
