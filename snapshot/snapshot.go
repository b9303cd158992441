// Package snapshot backs up and restores the whole backing image of a
// filesystem as a single compressed stream, independent of the filesystem's
// own structure — it treats the image as an opaque byte sequence, the way
// the teacher's squashfs compression handlers treat a data block.
//
// Write/Restore use lz4 for a fast, low-overhead snapshot; WriteCompact/
// RestoreCompact trade encode time for a smaller archive via xz, mirroring
// the pack's squashfs package offering a cheap default codec alongside a
// higher-ratio alternative behind the same interface shape.
package snapshot

import (
	"fmt"
	"io"
	"os"

	"github.com/pierrec/lz4"
	"github.com/ulikunitz/xz"
)

// Write compresses the file at imagePath with lz4 and writes it to dst.
func Write(dst io.Writer, imagePath string) error {
	src, err := os.Open(imagePath)
	if err != nil {
		return fmt.Errorf("snapshot: open image: %w", err)
	}
	defer src.Close()

	w := lz4.NewWriter(dst)
	if _, err := io.Copy(w, src); err != nil {
		return fmt.Errorf("snapshot: compress: %w", err)
	}
	return w.Close()
}

// Restore decompresses an lz4 stream produced by Write into the file at
// imagePath, truncating or creating it as needed.
func Restore(src io.Reader, imagePath string) error {
	dst, err := os.Create(imagePath)
	if err != nil {
		return fmt.Errorf("snapshot: create image: %w", err)
	}
	defer dst.Close()

	r := lz4.NewReader(src)
	if _, err := io.Copy(dst, r); err != nil {
		return fmt.Errorf("snapshot: decompress: %w", err)
	}
	return dst.Sync()
}

// WriteCompact compresses the file at imagePath with xz, trading encode
// speed for a materially smaller archive than Write.
func WriteCompact(dst io.Writer, imagePath string) error {
	src, err := os.Open(imagePath)
	if err != nil {
		return fmt.Errorf("snapshot: open image: %w", err)
	}
	defer src.Close()

	w, err := xz.NewWriter(dst)
	if err != nil {
		return fmt.Errorf("snapshot: new xz writer: %w", err)
	}
	if _, err := io.Copy(w, src); err != nil {
		w.Close()
		return fmt.Errorf("snapshot: compress: %w", err)
	}
	return w.Close()
}

// RestoreCompact decompresses an xz stream produced by WriteCompact into
// the file at imagePath, truncating or creating it as needed.
func RestoreCompact(src io.Reader, imagePath string) error {
	dst, err := os.Create(imagePath)
	if err != nil {
		return fmt.Errorf("snapshot: create image: %w", err)
	}
	defer dst.Close()

	r, err := xz.NewReader(src)
	if err != nil {
		return fmt.Errorf("snapshot: new xz reader: %w", err)
	}
	if _, err := io.Copy(dst, r); err != nil {
		return fmt.Errorf("snapshot: decompress: %w", err)
	}
	return dst.Sync()
}
