package timeline

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/reelcut/playback/internal/temporal"
	"github.com/reelcut/playback/pkg/core"
)

// ErrClipNotFound is returned by edits addressing an unknown clip ID.
var ErrClipNotFound = errors.New("clip not found")

// Model holds the clip list and track types of one project.
// Reads return copies; the servers never see a clip mid-edit.
type Model struct {
	mu       sync.RWMutex
	name     string
	clips    []core.Clip // sorted by Start, then Track
	tracks   map[int]core.TrackType
	revision atomic.Uint64
}

// NewModel creates an empty timeline
func NewModel(name string) *Model {
	if name == "" {
		name = "Untitled"
	}
	return &Model{
		name:   name,
		tracks: make(map[int]core.TrackType),
	}
}

// Name returns the project name
func (m *Model) Name() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.name
}

// LayoutRevision returns the current structural revision.
func (m *Model) LayoutRevision() uint64 {
	return m.revision.Load()
}

// BumpLayoutRevision advances the revision and returns the new value.
func (m *Model) BumpLayoutRevision() uint64 {
	return m.revision.Add(1)
}

// TrackType returns the media kind of a track. Unknown tracks are video.
func (m *Model) TrackType(index int) core.TrackType {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tracks[index]
}

// SetTrackType changes the media kind of a track.
func (m *Model) SetTrackType(index int, t core.TrackType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.tracks[index]; ok && cur == t {
		return
	}
	m.tracks[index] = t
	m.revision.Add(1)
}

// ClipsOverlapping returns copies of the clips covering frame.
func (m *Model) ClipsOverlapping(frame int64) []core.Clip {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Clips starting after frame cannot cover it.
	end, _ := slices.BinarySearchFunc(m.clips, frame+1, func(c core.Clip, f int64) int {
		if c.Start < f {
			return -1
		}
		return 1
	})

	var out []core.Clip
	for _, c := range m.clips[:end] {
		if c.Covers(frame) {
			out = append(out, c.Clone())
		}
	}
	return out
}

// Clips returns a copy of every clip in timeline order.
func (m *Model) Clips() []core.Clip {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]core.Clip, len(m.clips))
	for i, c := range m.clips {
		out[i] = c.Clone()
	}
	return out
}

// Clip returns a copy of the clip with the given ID.
func (m *Model) Clip(id string) (core.Clip, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i := m.indexOf(id)
	if i < 0 {
		return core.Clip{}, false
	}
	return m.clips[i].Clone(), true
}

// Duration returns the first frame after the last clip.
func (m *Model) Duration() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var end int64
	for _, c := range m.clips {
		end = max(end, c.End())
	}
	return end
}

// AddClip inserts a clip and returns its ID. An empty ID is replaced by a
// generated one.
func (m *Model) AddClip(c core.Clip) (string, error) {
	if c.Duration <= 0 {
		return "", fmt.Errorf("clip duration must be positive, got %d", c.Duration)
	}
	if c.Start < 0 {
		return "", fmt.Errorf("clip start must not be negative, got %d", c.Start)
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}

	c = c.Clone()
	temporal.SortKeyframes(c.Retime)
	temporal.SortKeyframes(c.Transforms)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.indexOf(c.ID) >= 0 {
		return "", fmt.Errorf("duplicate clip id %q", c.ID)
	}
	m.clips = append(m.clips, c)
	m.sortLocked()
	m.revision.Add(1)
	return c.ID, nil
}

// RemoveClip deletes a clip.
func (m *Model) RemoveClip(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.indexOf(id)
	if i < 0 {
		return fmt.Errorf("remove %q: %w", id, ErrClipNotFound)
	}
	m.clips = slices.Delete(m.clips, i, i+1)
	m.revision.Add(1)
	return nil
}

// MoveClip places a clip at a new start frame and track.
func (m *Model) MoveClip(id string, start int64, track int) error {
	if start < 0 {
		return fmt.Errorf("clip start must not be negative, got %d", start)
	}
	return m.structural(id, func(c *core.Clip) error {
		c.Start = start
		c.Track = track
		return nil
	})
}

// ResizeClip changes a clip's duration.
func (m *Model) ResizeClip(id string, duration int64) error {
	if duration <= 0 {
		return fmt.Errorf("clip duration must be positive, got %d", duration)
	}
	return m.structural(id, func(c *core.Clip) error {
		c.Duration = duration
		return nil
	})
}

// AddRetimeKeyframe inserts or replaces a source-frame keyframe.
func (m *Model) AddRetimeKeyframe(id string, kf core.Keyframe[float64]) error {
	return m.edit(id, func(c *core.Clip) {
		c.Retime = upsertKeyframe(c.Retime, kf)
	})
}

// AddTransformKeyframe inserts or replaces a transform keyframe.
func (m *Model) AddTransformKeyframe(id string, kf core.Keyframe[core.Transform]) error {
	return m.edit(id, func(c *core.Clip) {
		c.Transforms = upsertKeyframe(c.Transforms, kf)
	})
}

// SetFade replaces a clip's fade windows.
func (m *Model) SetFade(id string, in, out core.Fade) error {
	if in.Frames < 0 || out.Frames < 0 {
		return fmt.Errorf("fade length must not be negative")
	}
	return m.edit(id, func(c *core.Clip) {
		c.FadeIn = in
		c.FadeOut = out
	})
}

// SetOpacity replaces a clip's opacity ramp.
func (m *Model) SetOpacity(id string, start, end float64) error {
	return m.edit(id, func(c *core.Clip) {
		c.StartOpacity = start
		c.EndOpacity = end
	})
}

// SetGain replaces a clip's audio gain.
func (m *Model) SetGain(id string, gain float64) error {
	return m.edit(id, func(c *core.Clip) {
		c.Gain = gain
	})
}

// structural applies fn and bumps the layout revision.
func (m *Model) structural(id string, fn func(*core.Clip) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.indexOf(id)
	if i < 0 {
		return fmt.Errorf("edit %q: %w", id, ErrClipNotFound)
	}
	if err := fn(&m.clips[i]); err != nil {
		return err
	}
	m.sortLocked()
	m.revision.Add(1)
	return nil
}

// edit applies a non-structural change. The keyframe slices are replaced,
// never mutated in place, so earlier snapshots stay valid.
func (m *Model) edit(id string, fn func(*core.Clip)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.indexOf(id)
	if i < 0 {
		return fmt.Errorf("edit %q: %w", id, ErrClipNotFound)
	}
	c := m.clips[i].Clone()
	fn(&c)
	m.clips[i] = c
	return nil
}

func (m *Model) indexOf(id string) int {
	return slices.IndexFunc(m.clips, func(c core.Clip) bool { return c.ID == id })
}

func (m *Model) sortLocked() {
	slices.SortStableFunc(m.clips, func(a, b core.Clip) int {
		if a.Start != b.Start {
			if a.Start < b.Start {
				return -1
			}
			return 1
		}
		return a.Track - b.Track
	})
}

func upsertKeyframe[T any](kfs []core.Keyframe[T], kf core.Keyframe[T]) []core.Keyframe[T] {
	for i := range kfs {
		if kfs[i].ClipFrame == kf.ClipFrame {
			kfs[i] = kf
			return kfs
		}
	}
	kfs = append(kfs, kf)
	temporal.SortKeyframes(kfs)
	return kfs
}
