package frameserver

import (
	"image"
	"sync"
)

// toneCurve is an extended Reinhard curve with white point 4, rescaled so
// full scale stays full scale, tabulated for 8-bit channels.
var toneCurve = sync.OnceValue(func() [256]uint8 {
	var lut [256]uint8
	const white = 4.0
	peak := (1 + 1/(white*white)) / 2
	for i := range lut {
		x := float64(i) / 255
		y := x * (1 + x/(white*white)) / (1 + x)
		lut[i] = uint8(y/peak*255 + 0.5)
	}
	return lut
})

// toneMap applies toneCurve to every color channel of img in place.
func toneMap(img *image.RGBA) {
	lut := toneCurve()
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, y):img.PixOffset(b.Max.X, y)]
		for i := 0; i < len(row); i += 4 {
			row[i] = lut[row[i]]
			row[i+1] = lut[row[i+1]]
			row[i+2] = lut[row[i+2]]
		}
	}
}
