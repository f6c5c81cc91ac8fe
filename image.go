package aippt

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/corona10/goimagehash"
	"github.com/google/uuid"
	"github.com/k1LoW/errors"
)

// similarityThreshold is the perceptual hash distance below which two images are treated as the same.
const similarityThreshold = 5

var imageExts = []string{".png", ".jpg", ".jpeg", ".gif"}

// imageProbe is what the loader learns about an image source.
type imageProbe struct {
	src     string
	width   int
	height  int
	format  string
	modTime time.Time
	pHash   *goimagehash.ImageHash
}

func isRemote(src string) bool {
	return strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://")
}

func isImageFile(path string) bool {
	return slices.Contains(imageExts, strings.ToLower(filepath.Ext(path)))
}

// probeLocal decodes the dimensions and perceptual hash of an image file.
func probeLocal(path string) (_ *imageProbe, err error) {
	defer func() {
		err = errors.WithStack(err)
	}()
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat image file %s: %w", path, err)
	}
	if p, ok := loadProbeCache(path); ok && p.modTime.Equal(fi.ModTime()) {
		return p, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image file %s: %w", path, err)
	}
	p, err := probeBytes(b, true)
	if err != nil {
		return nil, fmt.Errorf("failed to probe image file %s: %w", path, err)
	}
	p.src = path
	p.modTime = fi.ModTime()
	storeProbeCache(path, p)
	return p, nil
}

// probeBytes reads the image header, and the whole image when a perceptual hash is wanted.
func probeBytes(b []byte, hash bool) (*imageProbe, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	p := &imageProbe{
		width:  cfg.Width,
		height: cfg.Height,
		format: format,
	}
	if !hash {
		return p, nil
	}
	img, _, err := image.Decode(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	pHash, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return nil, fmt.Errorf("failed to compute perceptual hash: %w", err)
	}
	p.pHash = pHash
	return p, nil
}

// probeReader probes an image without hashing it, reading at most limit bytes.
func probeReader(r io.Reader, limit int64) (*imageProbe, error) {
	b, err := io.ReadAll(io.LimitReader(r, limit))
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}
	return probeBytes(b, false)
}

// similar reports whether a and b look the same.
func (p *imageProbe) similar(q *imageProbe) bool {
	if p == nil || q == nil || p.pHash == nil || q.pHash == nil {
		return false
	}
	distance, err := p.pHash.Distance(q.pHash)
	if err != nil {
		return false
	}
	return distance < similarityThreshold
}

func (p *imageProbe) poolImage() PoolImage {
	return PoolImage{
		ID:     imageID(p.src),
		Src:    p.src,
		Width:  float64(p.width),
		Height: float64(p.height),
	}
}

// imageID derives a stable id from an image source.
func imageID(src string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(src)).String()
}

// dedupeProbes drops images that look like an earlier one.
func dedupeProbes(probes []*imageProbe) []*imageProbe {
	var kept []*imageProbe
	for _, p := range probes {
		if slices.ContainsFunc(kept, p.similar) {
			continue
		}
		kept = append(kept, p)
	}
	return kept
}
