package frameserver

import (
	"context"
	"image"
	"image/color"
	"math"
	"slices"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/reelcut/playback/internal/temporal"
	"github.com/reelcut/playback/pkg/core"
)

// canvasSize returns the preview canvas dimensions for props.
func canvasSize(props core.Properties) (int, int) {
	return props.PreviewSize()
}

// render composites frame into a pooled canvas. It returns false when the
// job went stale part way through; the canvas has then been recycled.
func (s *Server) render(job renderJob, props core.Properties, fast bool) (*image.RGBA, bool) {
	w, h := canvasSize(props)
	canvas := s.pool.Get(w, h)
	draw.Draw(canvas, canvas.Bounds(), image.Black, image.Point{}, draw.Src)

	clips := s.deps.Timeline.ClipsOverlapping(job.frame)
	clips = slices.DeleteFunc(clips, func(c core.Clip) bool {
		return c.Source == nil || s.deps.Timeline.TrackType(c.Track) != core.TrackVideo
	})
	slices.SortStableFunc(clips, func(a, b core.Clip) int { return a.Track - b.Track })

	var interp draw.Interpolator = draw.ApproxBiLinear
	if fast {
		interp = draw.NearestNeighbor
	}
	scale := float64(w) / float64(props.Width)

	for _, c := range clips {
		if s.abandoned(job) {
			s.pool.Put(canvas)
			return nil, false
		}

		local := c.LocalFrame(job.frame)
		src, err := c.Source.Image(temporal.SourceFrameAt(c.Retime, local))
		if err != nil || src == nil {
			s.stats.decodeFailures.Add(1)
			s.metrics.decodeFailures.Add(context.Background(), 1)
			s.deps.Logger.Debug("decode failed, skipping clip", "clip", c.ID, "frame", job.frame, "error", err)
			continue
		}

		composite(canvas, src, temporal.TransformAt(c.Transforms, local), temporal.OpacityAt(c, local), scale, interp)
	}

	if props.ToneMapping && !fast {
		toneMap(canvas)
	}
	return canvas, true
}

// composite paints src onto dst with the given placement and opacity.
func composite(dst *image.RGBA, src image.Image, tr core.Transform, opacity, scale float64, interp draw.Interpolator) {
	if opacity <= 0 || tr.ScaleX == 0 || tr.ScaleY == 0 {
		return
	}

	var mask image.Image
	if opacity < 1 {
		mask = image.NewUniform(color.Alpha{A: uint8(math.Round(opacity * 255))})
	}
	sb := src.Bounds()

	if tr.IsIdentity() {
		if scale == 1 {
			draw.DrawMask(dst, sb.Sub(sb.Min), src, sb.Min, mask, image.Point{}, draw.Over)
			return
		}
		dr := image.Rect(0, 0,
			int(math.Round(float64(sb.Dx())*scale)),
			int(math.Round(float64(sb.Dy())*scale)))
		interp.Scale(dst, dr, src, sb, draw.Over, &draw.Options{DstMask: mask})
		return
	}

	interp.Transform(dst, affine(tr, sb.Min, scale), src, sb, draw.Over, &draw.Options{DstMask: mask})
}

// affine maps source pixels to canvas pixels: move the anchor to the origin,
// scale, rotate, translate to (X, Y), then apply the preview scale.
func affine(tr core.Transform, origin image.Point, scale float64) f64.Aff3 {
	sin, cos := math.Sincos(tr.Rotation * math.Pi / 180)
	a, b := cos*tr.ScaleX, -sin*tr.ScaleY
	c, d := sin*tr.ScaleX, cos*tr.ScaleY
	ax := tr.AnchorX + float64(origin.X)
	ay := tr.AnchorY + float64(origin.Y)
	return f64.Aff3{
		scale * a, scale * b, scale * (tr.X - a*ax - b*ay),
		scale * c, scale * d, scale * (tr.Y - c*ax - d*ay),
	}
}
