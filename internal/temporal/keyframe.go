// Package temporal holds the pure keyframe, retiming and fade math shared by the
// frame server and the audio server. Nothing here keeps state; callers must not
// mutate a keyframe slice while it is being read.
package temporal

import (
	"cmp"
	"math"
	"slices"

	"github.com/reelcut/playback/pkg/core"
)

// LerpFunc blends two values; t is in [0, 1].
type LerpFunc[T any] func(a, b T, t float64) T

// Interpolate evaluates a sorted keyframe list at a clip-local position.
// An empty list yields def. Before the first keyframe the first value holds,
// after the last keyframe the last value holds.
func Interpolate[T any](kfs []core.Keyframe[T], clipFrame float64, def T, lerp LerpFunc[T]) T {
	if len(kfs) == 0 {
		return def
	}

	// first keyframe strictly after clipFrame
	right := upperBound(kfs, clipFrame)
	if right == 0 {
		return kfs[0].Value
	}
	left := kfs[right-1]
	if right == len(kfs) {
		return left.Value
	}
	next := kfs[right]

	span := float64(next.ClipFrame - left.ClipFrame)
	if span <= 0 {
		return next.Value
	}
	t := (clipFrame - float64(left.ClipFrame)) / span
	return lerp(left.Value, next.Value, t)
}

func upperBound[T any](kfs []core.Keyframe[T], clipFrame float64) int {
	i, _ := slices.BinarySearchFunc(kfs, clipFrame, func(k core.Keyframe[T], f float64) int {
		if float64(k.ClipFrame) <= f {
			return -1
		}
		return 1
	})
	return i
}

// SortKeyframes orders keyframes by clip frame. Call it after every insertion.
func SortKeyframes[T any](kfs []core.Keyframe[T]) {
	slices.SortStableFunc(kfs, func(a, b core.Keyframe[T]) int {
		return cmp.Compare(a.ClipFrame, b.ClipFrame)
	})
}

// Lerp is linear interpolation between a and b.
func Lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

// LerpTransform interpolates every field of a transform independently.
func LerpTransform(a, b core.Transform, t float64) core.Transform {
	return core.Transform{
		X:        Lerp(a.X, b.X, t),
		Y:        Lerp(a.Y, b.Y, t),
		ScaleX:   Lerp(a.ScaleX, b.ScaleX, t),
		ScaleY:   Lerp(a.ScaleY, b.ScaleY, t),
		Rotation: Lerp(a.Rotation, b.Rotation, t),
		AnchorX:  Lerp(a.AnchorX, b.AnchorX, t),
		AnchorY:  Lerp(a.AnchorY, b.AnchorY, t),
	}
}

// SourceFrameAt maps a clip-local frame to a source frame, rounding to nearest.
// Without retime keyframes the mapping is the identity.
func SourceFrameAt(kfs []core.Keyframe[float64], clipFrame int64) int64 {
	return int64(math.Round(SourcePosition(kfs, float64(clipFrame))))
}

// SourcePosition is the unrounded retime mapping, used where sub-frame
// precision matters (audio resampling).
func SourcePosition(kfs []core.Keyframe[float64], clipFrame float64) float64 {
	return Interpolate(kfs, clipFrame, clipFrame, Lerp)
}

// TransformAt evaluates transform keyframes at a clip-local frame.
func TransformAt(kfs []core.Keyframe[core.Transform], clipFrame int64) core.Transform {
	return Interpolate(kfs, float64(clipFrame), core.IdentityTransform(), LerpTransform)
}
