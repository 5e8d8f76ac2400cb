package media

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Solid is a video source showing one color at every frame.
type Solid struct {
	img *image.RGBA
}

// NewSolid creates a width x height source filled with c.
func NewSolid(c color.Color, width, height int) *Solid {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
	return &Solid{img: img}
}

func (s *Solid) Image(sourceFrame int64) (image.Image, error) {
	if sourceFrame < 0 {
		return nil, ErrOutOfRange
	}
	return s.img, nil
}

func (s *Solid) AudioBlock(int64, int) ([]float32, error) { return nil, ErrNoAudio }

func (s *Solid) AudioSampleAt(int64) (float32, float32, error) { return 0, 0, ErrNoAudio }

var barColors = []color.RGBA{
	{192, 192, 192, 255},
	{192, 192, 0, 255},
	{0, 192, 192, 255},
	{0, 192, 0, 255},
	{192, 0, 192, 255},
	{192, 0, 0, 255},
	{0, 0, 192, 255},
}

// Pattern is synthetic video: color bars that scroll one column per frame,
// so every source frame renders differently.
type Pattern struct {
	width, height int
}

// NewPattern creates a width x height bars source.
func NewPattern(width, height int) *Pattern {
	return &Pattern{width: max(width, 1), height: max(height, 1)}
}

func (p *Pattern) Image(sourceFrame int64) (image.Image, error) {
	if sourceFrame < 0 {
		return nil, ErrOutOfRange
	}
	img := image.NewRGBA(image.Rect(0, 0, p.width, p.height))
	bar := max(p.width/len(barColors), 1)
	shift := int(sourceFrame % int64(p.width))
	for x := 0; x < p.width; x++ {
		c := barColors[((x+shift)%p.width/bar)%len(barColors)]
		for y := 0; y < p.height; y++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img, nil
}

func (p *Pattern) AudioBlock(int64, int) ([]float32, error) { return nil, ErrNoAudio }

func (p *Pattern) AudioSampleAt(int64) (float32, float32, error) { return 0, 0, ErrNoAudio }

// ImageSequence reads numbered stills from a directory, one per source frame,
// in file name order. PNG and JPEG are supported.
type ImageSequence struct {
	files []string
}

// NewImageSequence lists the stills in dir.
func NewImageSequence(dir string) (*ImageSequence, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".png", ".jpg", ".jpeg":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no images in %s", dir)
	}
	slices.Sort(files)
	return &ImageSequence{files: files}, nil
}

// Len returns the number of frames.
func (s *ImageSequence) Len() int64 {
	return int64(len(s.files))
}

func (s *ImageSequence) Image(sourceFrame int64) (image.Image, error) {
	if sourceFrame < 0 || sourceFrame >= s.Len() {
		return nil, ErrOutOfRange
	}
	f, err := os.Open(s.files[sourceFrame])
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", s.files[sourceFrame], err)
	}
	return img, nil
}

func (s *ImageSequence) AudioBlock(int64, int) ([]float32, error) { return nil, ErrNoAudio }

func (s *ImageSequence) AudioSampleAt(int64) (float32, float32, error) { return 0, 0, ErrNoAudio }
