package whiteboard

import (
	"sync"
	"testing"

	"studylink/internal/core/domain"
	"studylink/internal/signaling"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type boardRecorder struct {
	msgs []signaling.Message
}

func (r *boardRecorder) send(msg signaling.Message) { r.msgs = append(r.msgs, msg) }

func newTestSync(localID domain.UserID) (*Sync, *MemorySurface, *boardRecorder) {
	surface := NewMemorySurface()
	rec := &boardRecorder{}
	return NewSync(localID, surface, rec.send, nil), surface, rec
}

func TestLocalStrokeRendersAndBroadcasts(t *testing.T) {
	s, surface, rec := newTestSync("alice")

	s.LocalStroke(domain.Point{X: 0, Y: 0}, domain.Point{X: 5, Y: 5}, domain.ToolDraw, "#000", 2)

	ops := surface.Ops()
	require.Len(t, ops, 1)
	assert.Equal(t, "stroke", ops[0].Kind)
	assert.Equal(t, domain.UserID("alice"), ops[0].Stroke.OwnerID)

	require.Len(t, rec.msgs, 1)
	wb := rec.msgs[0].(*signaling.Whiteboard)
	assert.Equal(t, signaling.ActionStroke, wb.Action)
	assert.Equal(t, domain.Point{X: 5, Y: 5}, wb.Stroke.End)
}

func TestEraserIsJustAStroke(t *testing.T) {
	s, surface, _ := newTestSync("alice")

	s.LocalStroke(domain.Point{}, domain.Point{X: 1}, domain.ToolErase, "#fff", 10)

	ops := surface.Ops()
	require.Len(t, ops, 1)
	assert.Equal(t, domain.ToolErase, ops[0].Stroke.Tool)
	assert.Equal(t, 1, s.Records("alice"), "erase strokes are logged like draw strokes")
}

func TestRemoteRecordsAreKeyedBySender(t *testing.T) {
	s, _, _ := newTestSync("alice")

	// The payload claims carol drew it; the authenticated sender is bob.
	s.HandleRemote("bob", &signaling.Whiteboard{
		Action: signaling.ActionStroke,
		Stroke: &domain.StrokeRecord{OwnerID: "carol", End: domain.Point{X: 2}},
	})

	assert.Equal(t, 1, s.Records("bob"))
	assert.Zero(t, s.Records("carol"), "claimed owner must be ignored")
}

func TestClearOwnRemovesOnlyLocalRecords(t *testing.T) {
	s, surface, rec := newTestSync("alice")

	s.LocalStroke(domain.Point{}, domain.Point{X: 1}, domain.ToolDraw, "#000", 2)
	s.HandleRemote("bob", &signaling.Whiteboard{
		Action: signaling.ActionStroke,
		Stroke: &domain.StrokeRecord{End: domain.Point{X: 9}},
	})

	s.ClearOwn()

	assert.Zero(t, s.Records("alice"))
	assert.Equal(t, 1, s.Records("bob"), "other owners keep their drawings")

	visible := surface.Visible()
	require.Len(t, visible, 1)
	assert.Equal(t, domain.UserID("bob"), visible[0].Stroke.OwnerID)

	last := rec.msgs[len(rec.msgs)-1].(*signaling.Whiteboard)
	assert.Equal(t, signaling.ActionClear, last.Action)
}

func TestRemoteClearScopedToSender(t *testing.T) {
	s, surface, _ := newTestSync("alice")

	s.LocalStroke(domain.Point{}, domain.Point{X: 1}, domain.ToolDraw, "#000", 2)
	s.HandleRemote("bob", &signaling.Whiteboard{
		Action: signaling.ActionStroke,
		Stroke: &domain.StrokeRecord{End: domain.Point{X: 9}},
	})

	s.HandleRemote("bob", &signaling.Whiteboard{Action: signaling.ActionClear})

	assert.Equal(t, 1, s.Records("alice"), "local drawings survive a remote clear")
	assert.Zero(t, s.Records("bob"))

	visible := surface.Visible()
	require.Len(t, visible, 1)
	assert.Equal(t, domain.UserID("alice"), visible[0].Stroke.OwnerID)
}

func TestRedrawKeepsGlobalOrderAcrossOwners(t *testing.T) {
	s, surface, _ := newTestSync("alice")

	s.LocalStroke(domain.Point{}, domain.Point{X: 1}, domain.ToolDraw, "#000", 2)
	s.HandleRemote("bob", &signaling.Whiteboard{
		Action: signaling.ActionShape,
		Shape:  &domain.ShapeRecord{Shape: domain.ShapeRectangle},
	})
	s.LocalText(domain.Point{X: 3}, "note", "#000", 14)

	// Clearing carol (no records) still triggers a replay.
	s.HandleRemote("carol", &signaling.Whiteboard{Action: signaling.ActionClear})

	visible := surface.Visible()
	require.Len(t, visible, 3)
	assert.Equal(t, "stroke", visible[0].Kind)
	assert.Equal(t, "shape", visible[1].Kind)
	assert.Equal(t, "text", visible[2].Kind)
}

func TestRemotePayloadMissingRecordIsIgnored(t *testing.T) {
	s, surface, _ := newTestSync("alice")

	s.HandleRemote("bob", &signaling.Whiteboard{Action: signaling.ActionStroke})
	s.HandleRemote("bob", &signaling.Whiteboard{Action: signaling.ActionShape})
	s.HandleRemote("bob", &signaling.Whiteboard{Action: signaling.ActionText})
	s.HandleRemote("bob", &signaling.Whiteboard{Action: "scribble"})

	assert.Zero(t, s.Records("bob"))
	assert.Empty(t, surface.Ops(), "malformed events must not repaint")
}

func TestShapeBroadcastCarriesGeometry(t *testing.T) {
	s, _, rec := newTestSync("alice")

	s.LocalShape(domain.ShapeCircle, domain.Point{X: 1, Y: 1}, domain.Point{X: 4, Y: 4}, "#00f", 3)

	require.Len(t, rec.msgs, 1)
	wb := rec.msgs[0].(*signaling.Whiteboard)
	assert.Equal(t, signaling.ActionShape, wb.Action)
	require.NotNil(t, wb.Shape)
	assert.Equal(t, domain.ShapeCircle, wb.Shape.Shape)
	assert.Equal(t, domain.Point{X: 4, Y: 4}, wb.Shape.End)
}

func TestConcurrentLocalAndRemoteDrawingStaysConsistent(t *testing.T) {
	surface := NewMemorySurface()
	s := NewSync("alice", surface, func(signaling.Message) {}, nil)

	const perWriter = 40
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < perWriter; i++ {
			s.LocalStroke(domain.Point{}, domain.Point{X: float64(i)}, domain.ToolDraw, "#000", 2)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < perWriter; i++ {
			s.HandleRemote("bob", &signaling.Whiteboard{
				Action: signaling.ActionStroke,
				Stroke: &domain.StrokeRecord{End: domain.Point{Y: float64(i)}},
			})
		}
	}()
	wg.Wait()

	assert.Equal(t, perWriter, s.Records("alice"))
	assert.Equal(t, perWriter, s.Records("bob"))

	// A final replay must show every logged record exactly once.
	s.HandleRemote("carol", &signaling.Whiteboard{Action: signaling.ActionClear})
	assert.Len(t, surface.Visible(), 2*perWriter)
}

func TestRedrawCannotDropConcurrentLocalStroke(t *testing.T) {
	s, surface, _ := newTestSync("alice")

	// A remote clear replays the board; a local stroke logged before the
	// replay must survive it, one logged after must render incrementally.
	s.LocalStroke(domain.Point{}, domain.Point{X: 1}, domain.ToolDraw, "#000", 2)
	s.HandleRemote("bob", &signaling.Whiteboard{Action: signaling.ActionClear})
	s.LocalStroke(domain.Point{}, domain.Point{X: 2}, domain.ToolDraw, "#000", 2)

	visible := surface.Visible()
	require.Len(t, visible, 2)
	assert.Equal(t, float64(1), visible[0].Stroke.End.X)
	assert.Equal(t, float64(2), visible[1].Stroke.End.X)
}
