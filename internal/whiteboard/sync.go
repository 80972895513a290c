package whiteboard

import (
	"sort"
	"sync"

	"studylink/internal/core/domain"
	"studylink/internal/signaling"

	"go.uber.org/zap"
)

// entry is one logged record with its global replay position.
type entry struct {
	seq    uint64
	stroke *domain.StrokeRecord
	shape  *domain.ShapeRecord
	text   *domain.TextRecord
}

// Sync replicates drawing records between participants. The log is
// partitioned by owner id and clearing is always scoped to one owner.
// The surface is driven from two goroutines (local UI calls and the
// signaling read loop), so every render runs under mu; a redraw can
// never interleave with an incremental draw.
type Sync struct {
	localID domain.UserID
	surface Surface
	send    func(signaling.Message)
	logger  *zap.SugaredLogger

	mu   sync.Mutex
	logs map[domain.UserID][]entry
	seq  uint64
}

func NewSync(localID domain.UserID, surface Surface, send func(signaling.Message), logger *zap.SugaredLogger) *Sync {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Sync{
		localID: localID,
		surface: surface,
		send:    send,
		logger:  logger,
		logs:    make(map[domain.UserID][]entry),
	}
}

// LocalStroke logs a locally drawn segment, renders it incrementally and
// broadcasts it. The eraser is a stroke with Tool erase; the surface
// paints it with the background color instead of removing records.
func (s *Sync) LocalStroke(start, end domain.Point, tool domain.Tool, color string, width float64) {
	rec := domain.StrokeRecord{OwnerID: s.localID, Start: start, End: end, Tool: tool, Color: color, Width: width}

	s.mu.Lock()
	s.append(s.localID, entry{stroke: &rec})
	s.surface.DrawStroke(rec)
	s.mu.Unlock()

	s.send(&signaling.Whiteboard{Action: signaling.ActionStroke, Stroke: &rec})
}

// LocalShape logs a shape captured at gesture end. Shapes are broadcast
// once, never during the drag.
func (s *Sync) LocalShape(shape domain.Shape, start, end domain.Point, color string, width float64) {
	rec := domain.ShapeRecord{OwnerID: s.localID, Shape: shape, Start: start, End: end, Color: color, Width: width}

	s.mu.Lock()
	s.append(s.localID, entry{shape: &rec})
	s.surface.DrawShape(rec)
	s.mu.Unlock()

	s.send(&signaling.Whiteboard{Action: signaling.ActionShape, Shape: &rec})
}

// LocalText logs and broadcasts a text placement.
func (s *Sync) LocalText(pos domain.Point, text, color string, fontSize float64) {
	rec := domain.TextRecord{OwnerID: s.localID, Position: pos, Text: text, Color: color, FontSize: fontSize}

	s.mu.Lock()
	s.append(s.localID, entry{text: &rec})
	s.surface.DrawText(rec)
	s.mu.Unlock()

	s.send(&signaling.Whiteboard{Action: signaling.ActionText, Text: &rec})
}

// ClearOwn removes only the local participant's records and broadcasts a
// clear scoped to this identity.
func (s *Sync) ClearOwn() {
	s.mu.Lock()
	delete(s.logs, s.localID)
	s.redrawLocked()
	s.mu.Unlock()

	s.send(&signaling.Whiteboard{Action: signaling.ActionClear})
}

// HandleRemote applies a replicated whiteboard event. Records are keyed
// by the sender's identity regardless of what the payload claims, and a
// clear removes exactly that sender's records, never the whole board.
func (s *Sync) HandleRemote(from domain.UserID, msg *signaling.Whiteboard) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch msg.Action {
	case signaling.ActionStroke:
		if msg.Stroke == nil {
			return
		}
		rec := *msg.Stroke
		rec.OwnerID = from
		s.append(from, entry{stroke: &rec})
	case signaling.ActionShape:
		if msg.Shape == nil {
			return
		}
		rec := *msg.Shape
		rec.OwnerID = from
		s.append(from, entry{shape: &rec})
	case signaling.ActionText:
		if msg.Text == nil {
			return
		}
		rec := *msg.Text
		rec.OwnerID = from
		s.append(from, entry{text: &rec})
	case signaling.ActionClear:
		delete(s.logs, from)
	default:
		s.logger.Warnw("unknown whiteboard action", "action", msg.Action, "from", from)
		return
	}

	s.redrawLocked()
}

// Records returns the logged records for one owner, in order.
func (s *Sync) Records(owner domain.UserID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.logs[owner])
}

func (s *Sync) append(owner domain.UserID, e entry) {
	s.seq++
	e.seq = s.seq
	s.logs[owner] = append(s.logs[owner], e)
}

// redrawLocked clears the surface and replays every log in global
// order, which keeps cross-owner layering stable after a scoped clear.
// Callers hold s.mu.
func (s *Sync) redrawLocked() {
	var all []entry
	for _, log := range s.logs {
		all = append(all, log...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].seq < all[j].seq })

	s.surface.Clear()
	for _, e := range all {
		switch {
		case e.stroke != nil:
			s.surface.DrawStroke(*e.stroke)
		case e.shape != nil:
			s.surface.DrawShape(*e.shape)
		case e.text != nil:
			s.surface.DrawText(*e.text)
		}
	}
}
