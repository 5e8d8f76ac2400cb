// pkg/core/clip.go
package core

import "fmt"

// TrackType is the kind of media a track carries.
type TrackType int

const (
	TrackVideo TrackType = iota
	TrackAudio
)

func (t TrackType) String() string {
	switch t {
	case TrackVideo:
		return "video"
	case TrackAudio:
		return "audio"
	default:
		return fmt.Sprintf("TrackType(%d)", int(t))
	}
}

// FadeCurve selects the shape of a fade-in or fade-out window.
type FadeCurve int

const (
	CurveLinear FadeCurve = iota
	CurveEaseIn
	CurveEaseOut
	CurveSmoothstep
	CurveSinusoidal
)

var fadeCurveNames = map[FadeCurve]string{
	CurveLinear:     "linear",
	CurveEaseIn:     "ease-in",
	CurveEaseOut:    "ease-out",
	CurveSmoothstep: "smoothstep",
	CurveSinusoidal: "sinusoidal",
}

func (c FadeCurve) String() string {
	if name, ok := fadeCurveNames[c]; ok {
		return name
	}
	return fmt.Sprintf("FadeCurve(%d)", int(c))
}

// ParseFadeCurve converts a curve name to a FadeCurve.
func ParseFadeCurve(name string) (FadeCurve, error) {
	for c, n := range fadeCurveNames {
		if n == name {
			return c, nil
		}
	}
	return CurveLinear, fmt.Errorf("unknown fade curve: %q", name)
}

// Keyframe anchors a value to a clip-local frame.
type Keyframe[T any] struct {
	ClipFrame int64
	Value     T
}

// Transform is a 2D placement snapshot of a clip on the canvas.
// Position and anchor are in canvas pixels, rotation in degrees.
type Transform struct {
	X        float64
	Y        float64
	ScaleX   float64
	ScaleY   float64
	Rotation float64
	AnchorX  float64
	AnchorY  float64
}

// IdentityTransform places a clip at the canvas origin at native size.
func IdentityTransform() Transform {
	return Transform{ScaleX: 1, ScaleY: 1}
}

// IsIdentity reports whether t leaves the source untouched.
func (t Transform) IsIdentity() bool {
	return t == IdentityTransform()
}

// Fade describes one side of a clip's opacity/volume envelope.
type Fade struct {
	Frames int64
	Curve  FadeCurve
}

// Clip is a span of media placed on a track.
type Clip struct {
	ID       string
	Track    int
	Start    int64 // timeline frame of the first clip-local frame
	Duration int64 // in frames; clip-local frames are [0, Duration)

	StartOpacity float64
	EndOpacity   float64
	FadeIn       Fade
	FadeOut      Fade

	// Gain scales audio samples; zero is treated as unity by NewClip.
	Gain float64

	// Retime maps clip-local frames to source frames. Empty means identity.
	Retime []Keyframe[float64]
	// Transforms animates placement. Empty means IdentityTransform.
	Transforms []Keyframe[Transform]

	Source Decoder
}

// NewClip returns a clip with full opacity, unity gain and no keyframes.
func NewClip(id string, track int, start, duration int64, source Decoder) Clip {
	return Clip{
		ID:           id,
		Track:        track,
		Start:        start,
		Duration:     duration,
		StartOpacity: 1,
		EndOpacity:   1,
		Gain:         1,
		Source:       source,
	}
}

// End returns the first timeline frame after the clip.
func (c Clip) End() int64 {
	return c.Start + c.Duration
}

// Covers reports whether the timeline frame falls inside the clip.
func (c Clip) Covers(frame int64) bool {
	return frame >= c.Start && frame < c.End()
}

// LocalFrame converts a timeline frame to a clip-local frame.
func (c Clip) LocalFrame(frame int64) int64 {
	return frame - c.Start
}

// Clone returns a copy whose keyframe slices do not alias c's.
func (c Clip) Clone() Clip {
	out := c
	if c.Retime != nil {
		out.Retime = append([]Keyframe[float64](nil), c.Retime...)
	}
	if c.Transforms != nil {
		out.Transforms = append([]Keyframe[Transform](nil), c.Transforms...)
	}
	return out
}
