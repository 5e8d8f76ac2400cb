package timeline

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelcut/playback/pkg/core"
)

func addClip(t *testing.T, m *Model, id string, track int, start, duration int64) {
	t.Helper()
	_, err := m.AddClip(core.NewClip(id, track, start, duration, nil))
	require.NoError(t, err)
}

func TestModel_Defaults(t *testing.T) {
	m := NewModel("")
	assert.Equal(t, "Untitled", m.Name())
	assert.Equal(t, uint64(0), m.LayoutRevision())
	assert.Equal(t, core.TrackVideo, m.TrackType(3))
	assert.Empty(t, m.Clips())
	assert.Equal(t, int64(0), m.Duration())
}

func TestModel_AddClipValidation(t *testing.T) {
	m := NewModel("p")

	_, err := m.AddClip(core.NewClip("a", 0, 0, 0, nil))
	assert.Error(t, err)

	_, err = m.AddClip(core.NewClip("a", 0, -1, 10, nil))
	assert.Error(t, err)

	addClip(t, m, "a", 0, 0, 10)
	_, err = m.AddClip(core.NewClip("a", 1, 0, 10, nil))
	assert.Error(t, err, "duplicate id")

	id, err := m.AddClip(core.NewClip("", 0, 20, 10, nil))
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

func TestModel_ClipsOverlapping(t *testing.T) {
	m := NewModel("p")
	addClip(t, m, "a", 0, 0, 30)
	addClip(t, m, "b", 1, 20, 30)
	addClip(t, m, "c", 0, 60, 10)

	ids := func(frame int64) []string {
		var out []string
		for _, c := range m.ClipsOverlapping(frame) {
			out = append(out, c.ID)
		}
		return out
	}

	assert.Equal(t, []string{"a"}, ids(0))
	assert.Equal(t, []string{"a", "b"}, ids(25))
	assert.Equal(t, []string{"b"}, ids(30), "end frame is exclusive")
	assert.Empty(t, ids(55))
	assert.Equal(t, []string{"c"}, ids(69))
	assert.Empty(t, ids(70))
	assert.Equal(t, int64(70), m.Duration())
}

func TestModel_StructuralEditsBumpRevision(t *testing.T) {
	m := NewModel("p")

	addClip(t, m, "a", 0, 0, 30)
	r1 := m.LayoutRevision()
	assert.Greater(t, r1, uint64(0))

	require.NoError(t, m.MoveClip("a", 10, 2))
	r2 := m.LayoutRevision()
	assert.Greater(t, r2, r1)

	require.NoError(t, m.ResizeClip("a", 5))
	r3 := m.LayoutRevision()
	assert.Greater(t, r3, r2)

	m.SetTrackType(2, core.TrackAudio)
	r4 := m.LayoutRevision()
	assert.Greater(t, r4, r3)
	m.SetTrackType(2, core.TrackAudio)
	assert.Equal(t, r4, m.LayoutRevision(), "unchanged track type is not an edit")

	require.NoError(t, m.RemoveClip("a"))
	assert.Greater(t, m.LayoutRevision(), r4)

	assert.ErrorIs(t, m.RemoveClip("a"), ErrClipNotFound)
	assert.ErrorIs(t, m.MoveClip("a", 0, 0), ErrClipNotFound)
}

func TestModel_MoveKeepsOrder(t *testing.T) {
	m := NewModel("p")
	addClip(t, m, "a", 0, 0, 10)
	addClip(t, m, "b", 0, 20, 10)

	require.NoError(t, m.MoveClip("a", 40, 0))

	clips := m.Clips()
	require.Len(t, clips, 2)
	assert.Equal(t, "b", clips[0].ID)
	assert.Equal(t, "a", clips[1].ID)
	assert.Equal(t, []string{"a"}, []string{m.ClipsOverlapping(45)[0].ID})
}

func TestModel_KeyframesStaySorted(t *testing.T) {
	m := NewModel("p")
	addClip(t, m, "a", 0, 0, 100)
	rev := m.LayoutRevision()

	require.NoError(t, m.AddRetimeKeyframe("a", core.Keyframe[float64]{ClipFrame: 100, Value: 200}))
	require.NoError(t, m.AddRetimeKeyframe("a", core.Keyframe[float64]{ClipFrame: 0, Value: 0}))
	require.NoError(t, m.AddRetimeKeyframe("a", core.Keyframe[float64]{ClipFrame: 50, Value: 90}))
	require.NoError(t, m.AddRetimeKeyframe("a", core.Keyframe[float64]{ClipFrame: 50, Value: 100}))

	c, ok := m.Clip("a")
	require.True(t, ok)
	require.Len(t, c.Retime, 3)
	assert.Equal(t, int64(0), c.Retime[0].ClipFrame)
	assert.Equal(t, int64(50), c.Retime[1].ClipFrame)
	assert.Equal(t, 100.0, c.Retime[1].Value, "same frame replaces")
	assert.Equal(t, int64(100), c.Retime[2].ClipFrame)

	assert.Equal(t, rev, m.LayoutRevision(), "keyframe edits are not structural")
}

func TestModel_SnapshotsDoNotAlias(t *testing.T) {
	m := NewModel("p")
	addClip(t, m, "a", 0, 0, 100)
	require.NoError(t, m.AddTransformKeyframe("a", core.Keyframe[core.Transform]{ClipFrame: 0, Value: core.IdentityTransform()}))

	snap := m.ClipsOverlapping(0)
	require.Len(t, snap, 1)
	snap[0].Transforms[0].Value.X = 500
	snap[0].Start = 99

	c, _ := m.Clip("a")
	assert.Equal(t, 0.0, c.Transforms[0].Value.X)
	assert.Equal(t, int64(0), c.Start)

	require.NoError(t, m.AddTransformKeyframe("a", core.Keyframe[core.Transform]{ClipFrame: 10, Value: core.IdentityTransform()}))
	assert.Len(t, snap[0].Transforms, 1, "earlier snapshot unaffected by later edits")
}

func TestModel_SetFadeOpacityGain(t *testing.T) {
	m := NewModel("p")
	addClip(t, m, "a", 0, 0, 90)

	require.NoError(t, m.SetFade("a", core.Fade{Frames: 30, Curve: core.CurveLinear}, core.Fade{Frames: 10, Curve: core.CurveEaseOut}))
	require.NoError(t, m.SetOpacity("a", 0.2, 0.8))
	require.NoError(t, m.SetGain("a", 0.5))
	assert.Error(t, m.SetFade("a", core.Fade{Frames: -1}, core.Fade{}))

	c, _ := m.Clip("a")
	assert.Equal(t, int64(30), c.FadeIn.Frames)
	assert.Equal(t, core.CurveEaseOut, c.FadeOut.Curve)
	assert.Equal(t, 0.2, c.StartOpacity)
	assert.Equal(t, 0.8, c.EndOpacity)
	assert.Equal(t, 0.5, c.Gain)
}

func TestModel_ThreadSafe(t *testing.T) {
	m := NewModel("p")
	addClip(t, m, "a", 0, 0, 100)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = m.AddRetimeKeyframe("a", core.Keyframe[float64]{ClipFrame: int64(j), Value: float64(i)})
				_ = m.MoveClip("a", int64(j%10), 0)
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				for _, c := range m.ClipsOverlapping(5) {
					_ = len(c.Retime)
				}
				_ = m.LayoutRevision()
			}
		}()
	}
	wg.Wait()

	c, _ := m.Clip("a")
	assert.Len(t, c.Retime, 100)
}
