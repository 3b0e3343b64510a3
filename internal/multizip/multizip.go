// Package multizip unpacks the zip archive a "multi" CM message carries in
// place of its plaintext body. The vendor protocol always stores the
// decompressed payload under a single archive entry named "z".
package multizip

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
)

// ErrMissingEntry is returned when the archive has no entry named "z".
var ErrMissingEntry = errors.New("multizip: archive has no entry named \"z\"")

const entryName = "z"

// Decompress reads zipped as a zip archive and returns the contents of its
// "z" entry.
func Decompress(zipped []byte) ([]byte, error) {
	r, err := zip.NewReader(bytes.NewReader(zipped), int64(len(zipped)))
	if err != nil {
		return nil, fmt.Errorf("multizip: open archive: %w", err)
	}

	for _, f := range r.File {
		if f.Name != entryName {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("multizip: open entry %q: %w", entryName, err)
		}
		defer rc.Close()

		out, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("multizip: read entry %q: %w", entryName, err)
		}
		return out, nil
	}

	return nil, ErrMissingEntry
}
