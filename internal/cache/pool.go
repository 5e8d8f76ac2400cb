package cache

import (
	"image"
	"sync"
	"sync/atomic"
)

// BufferPool recycles RGBA canvases by size. It is best effort: buffers that
// are not tightly packed at the origin, or that arrive when the free list for
// their size is full, are dropped for the GC.
type BufferPool struct {
	mu      sync.Mutex
	free    map[image.Point][]*image.RGBA
	perSize int

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewBufferPool keeps up to perSize free buffers for each canvas size.
func NewBufferPool(perSize int) *BufferPool {
	return &BufferPool{
		free:    make(map[image.Point][]*image.RGBA),
		perSize: perSize,
	}
}

// Get returns a w x h canvas. Reused canvases keep their previous pixels.
func (p *BufferPool) Get(w, h int) *image.RGBA {
	size := image.Pt(w, h)

	p.mu.Lock()
	list := p.free[size]
	if n := len(list); n > 0 {
		img := list[n-1]
		p.free[size] = list[:n-1]
		p.mu.Unlock()
		p.hits.Add(1)
		return img
	}
	p.mu.Unlock()

	p.misses.Add(1)
	return image.NewRGBA(image.Rect(0, 0, w, h))
}

// Put hands a canvas back to the pool.
func (p *BufferPool) Put(img *image.RGBA) {
	if img == nil || img.Rect.Min != (image.Point{}) || img.Stride != img.Rect.Dx()*bytesPerPixel {
		return
	}
	size := img.Rect.Size()

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.free[size]) >= p.perSize {
		return
	}
	p.free[size] = append(p.free[size], img)
}

// Free returns the number of pooled canvases of size w x h.
func (p *BufferPool) Free(w, h int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free[image.Pt(w, h)])
}

// Stats returns the lifetime hit and miss counts of Get.
func (p *BufferPool) Stats() (hits, misses uint64) {
	return p.hits.Load(), p.misses.Load()
}
