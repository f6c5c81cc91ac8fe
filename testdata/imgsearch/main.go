// imgsearch is a stub image search command for tests.
// It renders the query in $AIPPT_IMAGE_QUERY into a PNG under -d and prints the file path.
package main

import (
	"crypto/sha1"
	"flag"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

func main() {
	if err := _main(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func _main() error {
	var (
		dir   string
		count int
	)
	flag.StringVar(&dir, "d", ".", "output directory")
	flag.IntVar(&count, "n", 1, "number of images per query")
	flag.Parse()

	query := os.Getenv("AIPPT_IMAGE_QUERY")
	if query == "" {
		return fmt.Errorf("AIPPT_IMAGE_QUERY is empty")
	}
	_, _ = fmt.Println("# results for", query)
	for i := range count {
		text := fmt.Sprintf("%s #%d", query, i+1)
		p := filepath.Join(dir, fmt.Sprintf("%x.png", sha1.Sum([]byte(text)))) //nolint:gosec
		if err := render(p, text); err != nil {
			return err
		}
		_, _ = fmt.Println(p)
	}
	return nil
}

// render draws text in white on black, padded to a landscape image.
func render(p, text string) error {
	face := basicfont.Face7x13
	padding := 10
	lineHeight := face.Metrics().Height.Ceil()
	imgWidth := len(text)*7 + 2*padding
	imgHeight := lineHeight + 2*padding
	img := image.NewRGBA(image.Rect(0, 0, imgWidth, imgHeight))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.Black}, image.Point{}, draw.Src)

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.White),
		Face: face,
		Dot: fixed.Point26_6{
			X: fixed.I(padding),
			Y: fixed.I(padding + face.Metrics().Ascent.Ceil()),
		},
	}
	d.DrawString(text)

	f, err := os.Create(p)
	if err != nil {
		return fmt.Errorf("failed to create image: %w", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("failed to encode image: %w", err)
	}
	return nil
}
