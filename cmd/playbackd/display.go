package main

import (
	"fmt"
	"image"
	"image/png"
	"math"
	"os"
	"sync"
	"sync/atomic"

	"golang.org/x/image/draw"

	"github.com/reelcut/playback/pkg/core"
)

// snapshotDisplay keeps a copy of the last published frame.
type snapshotDisplay struct {
	mu        sync.Mutex
	last      *image.RGBA
	published atomic.Uint64
}

func (d *snapshotDisplay) Publish(img *image.RGBA) {
	d.mu.Lock()
	if d.last == nil || d.last.Rect != img.Rect {
		d.last = image.NewRGBA(img.Rect)
	}
	draw.Copy(d.last, d.last.Rect.Min, img, img.Rect, draw.Src, nil)
	d.mu.Unlock()
	d.published.Add(1)
}

// Save writes the last frame as PNG. It fails when nothing was published.
func (d *snapshotDisplay) Save(path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.last == nil {
		return fmt.Errorf("no frame published")
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating snapshot: %w", err)
	}
	if err := png.Encode(f, d.last); err != nil {
		f.Close()
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	return f.Close()
}

// peakMeter holds the loudest levels seen per channel.
type peakMeter struct {
	left, right atomic.Uint64
}

func (m *peakMeter) SetLevels(peakLeft, peakRight float64) {
	raise(&m.left, peakLeft)
	raise(&m.right, peakRight)
}

func (m *peakMeter) Peaks() (float64, float64) {
	return math.Float64frombits(m.left.Load()), math.Float64frombits(m.right.Load())
}

func raise(slot *atomic.Uint64, v float64) {
	for {
		old := slot.Load()
		if v <= math.Float64frombits(old) {
			return
		}
		if slot.CompareAndSwap(old, math.Float64bits(v)) {
			return
		}
	}
}

// fanoutDisplay publishes to several sinks in order.
type fanoutDisplay []core.DisplaySink

func (f fanoutDisplay) Publish(img *image.RGBA) {
	for _, d := range f {
		d.Publish(img)
	}
}
