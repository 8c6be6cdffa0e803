package hal

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/autopeer-io/flightpeer/internal/flightagent/core"
)

// FrameSource supplies camera frames to a driver.
type FrameSource interface {
	Frame(ctx context.Context) (core.Frame, error)
}

// NewFrameSource returns a source reading path, or a blank source when path is empty.
func NewFrameSource(path string) FrameSource {
	if path == "" {
		return &BlankFrames{Width: 320, Height: 240}
	}
	return &FileFrames{Path: path}
}

// FileFrames reads frames from an image file, or from the newest image in a
// directory that an external grabber keeps writing to.
type FileFrames struct {
	Path string
}

func (s *FileFrames) Frame(ctx context.Context) (core.Frame, error) {
	if err := ctx.Err(); err != nil {
		return core.Frame{}, err
	}

	path := s.Path
	info, err := os.Stat(path)
	if err != nil {
		return core.Frame{}, err
	}
	if info.IsDir() {
		if path, err = newestImage(path); err != nil {
			return core.Frame{}, err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return core.Frame{}, err
	}
	return core.Frame{Data: data, MIMEType: mimeType(path), CapturedAt: time.Now()}, nil
}

func newestImage(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	var (
		newest  string
		newestT time.Time
	)
	for _, e := range entries {
		if e.IsDir() || mimeType(e.Name()) == "" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestT) {
			newest, newestT = filepath.Join(dir, e.Name()), info.ModTime()
		}
	}
	if newest == "" {
		return "", fmt.Errorf("no image in %s", dir)
	}
	return newest, nil
}

func mimeType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	}
	return ""
}

// BlankFrames encodes a uniform gray JPEG, for benches without a camera.
type BlankFrames struct {
	Width, Height int
}

func (s *BlankFrames) Frame(ctx context.Context) (core.Frame, error) {
	if err := ctx.Err(); err != nil {
		return core.Frame{}, err
	}
	img := image.NewGray(image.Rect(0, 0, s.Width, s.Height))
	for i := range img.Pix {
		img.Pix[i] = color.Gray{Y: 128}.Y
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 60}); err != nil {
		return core.Frame{}, err
	}
	return core.Frame{Data: buf.Bytes(), MIMEType: "image/jpeg", CapturedAt: time.Now()}, nil
}
