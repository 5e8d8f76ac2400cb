package project

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/reelcut/playback/internal/media"
	"github.com/reelcut/playback/internal/timeline"
	"github.com/reelcut/playback/pkg/core"
)

// Project is a loaded project ready for playback.
type Project struct {
	Name       string
	Properties core.Properties
	Timeline   *timeline.Model
}

type document struct {
	Name       string          `yaml:"name"`
	Properties core.Properties `yaml:"properties"`
	Tracks     []trackDoc      `yaml:"tracks"`
	Clips      []clipDoc       `yaml:"clips"`
}

type trackDoc struct {
	Index int    `yaml:"index"`
	Type  string `yaml:"type"`
}

type sourceDoc struct {
	Kind  string `yaml:"kind"` // file, solid or pattern
	Path  string `yaml:"path"`
	Color string `yaml:"color"`
}

type fadeDoc struct {
	Frames int64  `yaml:"frames"`
	Curve  string `yaml:"curve"`
}

type retimeDoc struct {
	Frame  int64   `yaml:"frame"`
	Source float64 `yaml:"source"`
}

type transformDoc struct {
	Frame    int64    `yaml:"frame"`
	X        float64  `yaml:"x"`
	Y        float64  `yaml:"y"`
	ScaleX   *float64 `yaml:"scaleX"`
	ScaleY   *float64 `yaml:"scaleY"`
	Rotation float64  `yaml:"rotation"`
	AnchorX  float64  `yaml:"anchorX"`
	AnchorY  float64  `yaml:"anchorY"`
}

type clipDoc struct {
	ID           string         `yaml:"id"`
	Track        int            `yaml:"track"`
	Start        int64          `yaml:"start"`
	Duration     int64          `yaml:"duration"`
	Source       sourceDoc      `yaml:"source"`
	StartOpacity *float64       `yaml:"startOpacity"`
	EndOpacity   *float64       `yaml:"endOpacity"`
	Gain         *float64       `yaml:"gain"`
	FadeIn       fadeDoc        `yaml:"fadeIn"`
	FadeOut      fadeDoc        `yaml:"fadeOut"`
	Retime       []retimeDoc    `yaml:"retime"`
	Transforms   []transformDoc `yaml:"transforms"`
}

// Load reads the project at path. Media paths are relative to the project
// file.
func Load(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data, filepath.Dir(path))
}

// Parse builds a project from YAML. Missing properties keep their defaults.
func Parse(data []byte, baseDir string) (*Project, error) {
	doc := document{Properties: core.DefaultProperties()}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing project: %w", err)
	}
	if err := doc.Properties.Validate(); err != nil {
		return nil, fmt.Errorf("invalid project properties: %w", err)
	}

	m := timeline.NewModel(doc.Name)
	for _, t := range doc.Tracks {
		typ, err := parseTrackType(t.Type)
		if err != nil {
			return nil, fmt.Errorf("track %d: %w", t.Index, err)
		}
		m.SetTrackType(t.Index, typ)
	}

	for i, cd := range doc.Clips {
		clip, err := buildClip(cd, doc.Properties, baseDir)
		if err != nil {
			return nil, fmt.Errorf("clip %d (%s): %w", i, cd.ID, err)
		}
		if _, err := m.AddClip(clip); err != nil {
			return nil, fmt.Errorf("clip %d (%s): %w", i, cd.ID, err)
		}
	}

	return &Project{Name: m.Name(), Properties: doc.Properties, Timeline: m}, nil
}

func buildClip(cd clipDoc, props core.Properties, baseDir string) (core.Clip, error) {
	src, length, err := openSource(cd.Source, props, baseDir)
	if err != nil {
		return core.Clip{}, err
	}
	duration := cd.Duration
	if duration == 0 {
		duration = length
	}

	c := core.NewClip(cd.ID, cd.Track, cd.Start, duration, src)
	if cd.StartOpacity != nil {
		c.StartOpacity = *cd.StartOpacity
	}
	if cd.EndOpacity != nil {
		c.EndOpacity = *cd.EndOpacity
	}
	if cd.Gain != nil {
		c.Gain = *cd.Gain
	}
	if c.FadeIn, err = parseFade(cd.FadeIn); err != nil {
		return core.Clip{}, fmt.Errorf("fade in: %w", err)
	}
	if c.FadeOut, err = parseFade(cd.FadeOut); err != nil {
		return core.Clip{}, fmt.Errorf("fade out: %w", err)
	}

	for _, r := range cd.Retime {
		c.Retime = append(c.Retime, core.Keyframe[float64]{ClipFrame: r.Frame, Value: r.Source})
	}
	for _, t := range cd.Transforms {
		tr := core.IdentityTransform()
		tr.X, tr.Y, tr.Rotation = t.X, t.Y, t.Rotation
		tr.AnchorX, tr.AnchorY = t.AnchorX, t.AnchorY
		if t.ScaleX != nil {
			tr.ScaleX = *t.ScaleX
		}
		if t.ScaleY != nil {
			tr.ScaleY = *t.ScaleY
		}
		c.Transforms = append(c.Transforms, core.Keyframe[core.Transform]{ClipFrame: t.Frame, Value: tr})
	}
	return c, nil
}

// openSource returns the decoder for a clip and its natural length in
// frames, or zero when the source has none.
func openSource(sd sourceDoc, props core.Properties, baseDir string) (core.Decoder, int64, error) {
	switch sd.Kind {
	case "pattern":
		return media.NewPattern(props.Width, props.Height), 0, nil
	case "solid":
		c, err := parseColor(sd.Color)
		if err != nil {
			return nil, 0, err
		}
		return media.NewSolid(c, props.Width, props.Height), 0, nil
	case "file", "":
		if sd.Path == "" {
			return nil, 0, fmt.Errorf("source path is required")
		}
		path := sd.Path
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}
		dec, err := media.Open(path, props)
		if err != nil {
			return nil, 0, err
		}
		switch d := dec.(type) {
		case *media.PCM:
			return d, d.Duration(), nil
		case *media.ImageSequence:
			return d, d.Len(), nil
		}
		return dec, 0, nil
	default:
		return nil, 0, fmt.Errorf("unknown source kind %q", sd.Kind)
	}
}

func parseTrackType(s string) (core.TrackType, error) {
	switch strings.ToLower(s) {
	case "video", "":
		return core.TrackVideo, nil
	case "audio":
		return core.TrackAudio, nil
	default:
		return core.TrackVideo, fmt.Errorf("unknown track type %q", s)
	}
}

func parseFade(fd fadeDoc) (core.Fade, error) {
	if fd.Frames < 0 {
		return core.Fade{}, fmt.Errorf("fade length must not be negative")
	}
	curve := core.CurveLinear
	if fd.Curve != "" {
		var err error
		if curve, err = core.ParseFadeCurve(fd.Curve); err != nil {
			return core.Fade{}, err
		}
	}
	return core.Fade{Frames: fd.Frames, Curve: curve}, nil
}

// parseColor reads #rrggbb.
func parseColor(s string) (color.RGBA, error) {
	hex := strings.TrimPrefix(s, "#")
	if len(hex) != 6 {
		return color.RGBA{}, fmt.Errorf("invalid color %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid color %q: %w", s, err)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, nil
}
