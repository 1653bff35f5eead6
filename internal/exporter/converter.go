package exporter

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Converter produces a web-ready copy of an attachment file in dstDir
// and returns the resulting path. HEIC originals need transcoding;
// everything else is copied through.
type Converter interface {
	Convert(ctx context.Context, src, dstDir string) (string, error)
}

// SipsConverter transcodes HEIC files to JPEG with the macOS sips
// tool. Non-HEIC files are copied unchanged.
type SipsConverter struct{}

// Convert implements Converter.
func (SipsConverter) Convert(ctx context.Context, src, dstDir string) (string, error) {
	if !isHEIC(src) {
		return copyInto(src, dstDir)
	}

	base := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	dst := filepath.Join(dstDir, base+".jpg")
	cmd := exec.CommandContext(ctx, "sips", "-s", "format", "jpeg", src, "--out", dst)
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("sips convert %s: %w: %s", src, err, strings.TrimSpace(string(out)))
	}
	return dst, nil
}

// CopyConverter copies files through without transcoding. It is the
// fallback where sips is unavailable, and keeps tests hermetic.
type CopyConverter struct{}

// Convert implements Converter.
func (CopyConverter) Convert(_ context.Context, src, dstDir string) (string, error) {
	return copyInto(src, dstDir)
}

func isHEIC(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".heic", ".heif":
		return true
	}
	return false
}

func copyInto(src, dstDir string) (string, error) {
	dst := filepath.Join(dstDir, filepath.Base(src))
	if err := copyFile(src, dst); err != nil {
		return "", err
	}
	return dst, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	return out.Close()
}
