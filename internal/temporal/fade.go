package temporal

import (
	"math"

	"github.com/reelcut/playback/internal/util"
	"github.com/reelcut/playback/pkg/core"
)

// FadeValue evaluates a fade curve at t. Fade-outs mirror the curve (1 - value).
func FadeValue(curve core.FadeCurve, t float64, fadeIn bool) float64 {
	t = util.Clamp01(t)

	var v float64
	switch curve {
	case core.CurveEaseIn:
		v = math.Pow(t, 0.25)
	case core.CurveEaseOut:
		v = math.Pow(t, 4)
	case core.CurveSmoothstep:
		v = t * t * (3 - 2*t)
	case core.CurveSinusoidal:
		v = 0.5 * (math.Sin(math.Pi*(t-0.5)) + 1)
	default:
		v = t
	}

	if fadeIn {
		return v
	}
	return 1 - v
}

// OpacityAt is the effective opacity of a clip at a clip-local frame.
func OpacityAt(clip core.Clip, clipFrame int64) float64 {
	return EnvelopeAt(clip, float64(clipFrame))
}

// EnvelopeAt evaluates the opacity/volume envelope at a fractional clip-local
// position: the start-to-end ramp scaled by whichever fade window is active.
func EnvelopeAt(clip core.Clip, clipFrame float64) float64 {
	base := clip.StartOpacity
	if clip.Duration > 0 {
		base = Lerp(clip.StartOpacity, clip.EndOpacity, clipFrame/float64(clip.Duration))
	}

	fadeIn := float64(clip.FadeIn.Frames)
	fadeOut := float64(clip.FadeOut.Frames)
	fadeOutStart := float64(clip.Duration) - fadeOut

	switch {
	case fadeIn > 0 && clipFrame < fadeIn:
		return base * FadeValue(clip.FadeIn.Curve, clipFrame/fadeIn, true)
	case fadeOut > 0 && clipFrame > fadeOutStart:
		return base * FadeValue(clip.FadeOut.Curve, (clipFrame-fadeOutStart)/fadeOut, false)
	}
	return base
}
