package aippt

import (
	"math/rand"
	"slices"
)

// PoolImage is a candidate image for image placeholders.
type PoolImage struct {
	ID     string  `json:"id"`
	Src    string  `json:"src"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// ImagePool is a set of images consumed at most once each.
type ImagePool struct {
	images []PoolImage
}

// NewImagePool copies images into a pool, keeping the first image of each ID.
func NewImagePool(images []PoolImage) *ImagePool {
	seen := make(map[string]struct{}, len(images))
	p := &ImagePool{}
	for _, img := range images {
		if _, ok := seen[img.ID]; ok {
			continue
		}
		seen[img.ID] = struct{}{}
		p.images = append(p.images, img)
	}
	return p
}

// Len returns the number of images left.
func (p *ImagePool) Len() int {
	if p == nil {
		return 0
	}
	return len(p.images)
}

// Images returns a copy of the images left.
func (p *ImagePool) Images() []PoolImage {
	if p == nil {
		return nil
	}
	return slices.Clone(p.images)
}

// Take removes and returns a random image whose orientation matches a box of w x h.
// Square boxes take square images, landscape boxes landscape images, other boxes portrait or square ones.
// When no image matches the orientation any image is taken.
func (p *ImagePool) Take(w, h float64, rng *rand.Rand) (PoolImage, bool) {
	if p.Len() == 0 {
		return PoolImage{}, false
	}
	var match func(PoolImage) bool
	switch {
	case w == h:
		match = func(i PoolImage) bool { return i.Width == i.Height }
	case w > h:
		match = func(i PoolImage) bool { return i.Width > i.Height }
	default:
		match = func(i PoolImage) bool { return i.Width <= i.Height }
	}
	var bucket []int
	for i, img := range p.images {
		if match(img) {
			bucket = append(bucket, i)
		}
	}
	if len(bucket) == 0 {
		for i := range p.images {
			bucket = append(bucket, i)
		}
	}
	idx := bucket[rng.Intn(len(bucket))]
	img := p.images[idx]
	p.images = slices.Delete(p.images, idx, idx+1)
	return img, true
}

// cropRange returns the centered crop of img matching the aspect ratio of a w x h box.
func cropRange(img PoolImage, w, h float64) ClipRange {
	if img.Width <= 0 || img.Height <= 0 || w <= 0 || h <= 0 {
		return ClipRange{{0, 0}, {100, 100}}
	}
	if img.Width/img.Height >= w/h {
		scaled := img.Width / (img.Height / h)
		d := (scaled - w) / 2 / scaled * 100
		return ClipRange{{d, 0}, {100 - d, 100}}
	}
	scaled := img.Height / (img.Width / w)
	d := (scaled - h) / 2 / scaled * 100
	return ClipRange{{0, d}, {100, 100 - d}}
}
