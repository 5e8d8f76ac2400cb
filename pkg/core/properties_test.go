package core

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProperties_Validate(t *testing.T) {
	assert.NoError(t, DefaultProperties().Validate())

	bad := DefaultProperties()
	bad.FPS = math.NaN()
	bad.SampleRate = 0
	bad.PreviewScale = 1.5
	err := bad.Validate()
	assert.ErrorContains(t, err, "fps")
	assert.ErrorContains(t, err, "sample rate")
	assert.ErrorContains(t, err, "preview scale")
}

func TestProperties_Conversions(t *testing.T) {
	p := DefaultProperties()
	assert.Equal(t, 1600.0, p.SamplesPerFrame())
	assert.Equal(t, int64(45), p.FrameAt(1.5))
	assert.Equal(t, 2.0, p.SecondsAt(60))
}

func TestProperties_PreviewSize(t *testing.T) {
	w, h := DefaultProperties().PreviewSize()
	assert.Equal(t, 960, w)
	assert.Equal(t, 540, h)

	p := Properties{Width: 3, Height: 1, PreviewScale: 0.1}
	w, h = p.PreviewSize()
	assert.Equal(t, 1, w)
	assert.Equal(t, 1, h)

	p.PreviewScale = 0
	w, h = p.PreviewSize()
	assert.Equal(t, 3, w)
	assert.Equal(t, 1, h)
}
