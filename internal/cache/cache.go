package cache

import (
	"image"
	"sync"
)

const bytesPerPixel = 4

// BudgetFrames converts a memory budget in MB into a frame count for RGBA
// frames of the given size. The result is at least 1.
func BudgetFrames(megabytes, width, height int) int {
	frameBytes := width * height * bytesPerPixel
	if frameBytes <= 0 || megabytes <= 0 {
		return 1
	}
	n := megabytes * 1024 * 1024 / frameBytes
	if n < 1 {
		return 1
	}
	return n
}

// FrameCache maps timeline frames to composited images.
// The displayed frame is never evicted, whatever its distance from the current frame.
type FrameCache struct {
	mu           sync.RWMutex
	frames       map[int64]*image.RGBA
	budget       int
	displayed    int64
	hasDisplayed bool
}

// NewFrameCache creates a cache holding at most budget frames.
func NewFrameCache(budget int) *FrameCache {
	if budget < 1 {
		budget = 1
	}
	return &FrameCache{
		frames: make(map[int64]*image.RGBA),
		budget: budget,
	}
}

// Get returns the cached image for frame.
func (c *FrameCache) Get(frame int64) (*image.RGBA, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	img, ok := c.frames[frame]
	return img, ok
}

// Put stores img for frame and returns the buffer it replaced, if any.
func (c *FrameCache) Put(frame int64, img *image.RGBA) *image.RGBA {
	c.mu.Lock()
	defer c.mu.Unlock()
	old := c.frames[frame]
	c.frames[frame] = img
	if old == img {
		return nil
	}
	return old
}

// Remove drops the entry for frame and returns its buffer.
func (c *FrameCache) Remove(frame int64) *image.RGBA {
	c.mu.Lock()
	defer c.mu.Unlock()
	img := c.frames[frame]
	delete(c.frames, frame)
	return img
}

// Contains reports whether frame is cached.
func (c *FrameCache) Contains(frame int64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.frames[frame]
	return ok
}

// Len returns the number of cached frames.
func (c *FrameCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.frames)
}

// Budget returns the maximum number of frames kept after Evict.
func (c *FrameCache) Budget() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.budget
}

// SetBudget changes the frame budget. It takes effect on the next Evict.
func (c *FrameCache) SetBudget(budget int) {
	if budget < 1 {
		budget = 1
	}
	c.mu.Lock()
	c.budget = budget
	c.mu.Unlock()
}

// SetDisplayed marks frame as the one on screen.
func (c *FrameCache) SetDisplayed(frame int64) {
	c.mu.Lock()
	c.displayed = frame
	c.hasDisplayed = true
	c.mu.Unlock()
}

// Displayed returns the frame marked as on screen.
func (c *FrameCache) Displayed() (int64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.displayed, c.hasDisplayed
}

// Evict removes entries farther than the budget from current, then the farthest
// remaining entries until the cache fits the budget. Removed buffers are returned
// so the caller can recycle them.
func (c *FrameCache) Evict(current int64) []*image.RGBA {
	c.mu.Lock()
	defer c.mu.Unlock()

	var removed []*image.RGBA
	budget := int64(c.budget)
	for f, img := range c.frames {
		if c.isDisplayed(f) {
			continue
		}
		if distance(f, current) > budget {
			delete(c.frames, f)
			removed = append(removed, img)
		}
	}

	for len(c.frames) > c.budget {
		far, found := int64(0), false
		for f := range c.frames {
			if c.isDisplayed(f) {
				continue
			}
			if !found || distance(f, current) > distance(far, current) {
				far, found = f, true
			}
		}
		if !found {
			break
		}
		removed = append(removed, c.frames[far])
		delete(c.frames, far)
	}

	return removed
}

// Clear empties the cache and forgets the displayed mark. Every buffer except
// keep is returned for recycling.
func (c *FrameCache) Clear(keep *image.RGBA) []*image.RGBA {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := make([]*image.RGBA, 0, len(c.frames))
	for _, img := range c.frames {
		if img != keep {
			removed = append(removed, img)
		}
	}
	c.frames = make(map[int64]*image.RGBA)
	c.hasDisplayed = false
	return removed
}

func (c *FrameCache) isDisplayed(frame int64) bool {
	return c.hasDisplayed && frame == c.displayed
}

func distance(a, b int64) int64 {
	if a > b {
		return a - b
	}
	return b - a
}
