package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// writeSnapshot compresses the image at imagePath into dstPath, picking
// the codec from dstPath's suffix (.xz or anything else falling back to
// zstd). The xz.NewWriter call mirrors the teacher's own xzCompress
// helper (comp_xz.go); zstd is wired the same way the teacher gates its
// zstd decompressor (comp_zstd.go), here used for compression instead.
func writeSnapshot(imagePath, dstPath string) error {
	src, err := os.Open(imagePath)
	if err != nil {
		return fmt.Errorf("mkimg: opening %s for snapshot: %w", imagePath, err)
	}
	defer src.Close()

	dst, err := os.Create(dstPath)
	if err != nil {
		return fmt.Errorf("mkimg: creating snapshot %s: %w", dstPath, err)
	}
	defer dst.Close()

	var wc io.WriteCloser
	if strings.HasSuffix(dstPath, ".xz") {
		log.Printf("mkimg: snapshot %s using xz", dstPath)
		wc, err = xz.NewWriter(dst)
	} else {
		log.Printf("mkimg: snapshot %s using zstd", dstPath)
		wc, err = zstd.NewWriter(dst)
	}
	if err != nil {
		return fmt.Errorf("mkimg: starting snapshot compressor: %w", err)
	}

	if _, err := io.Copy(wc, src); err != nil {
		wc.Close()
		return fmt.Errorf("mkimg: writing snapshot %s: %w", dstPath, err)
	}
	return wc.Close()
}
