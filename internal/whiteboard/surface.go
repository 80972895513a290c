package whiteboard

import "studylink/internal/core/domain"

// Surface is the drawing target. The sync layer only feeds it coordinate
// streams; rendering itself lives outside the core.
type Surface interface {
	DrawStroke(rec domain.StrokeRecord)
	DrawShape(rec domain.ShapeRecord)
	DrawText(rec domain.TextRecord)
	Clear()
}

// Op is one rendered operation, kept by MemorySurface for inspection.
type Op struct {
	Kind   string // stroke, shape, text, clear
	Stroke *domain.StrokeRecord
	Shape  *domain.ShapeRecord
	Text   *domain.TextRecord
}

// MemorySurface records every operation in order. Used by tests and the
// headless client.
type MemorySurface struct {
	ops []Op
}

func NewMemorySurface() *MemorySurface { return &MemorySurface{} }

func (s *MemorySurface) DrawStroke(rec domain.StrokeRecord) {
	s.ops = append(s.ops, Op{Kind: "stroke", Stroke: &rec})
}

func (s *MemorySurface) DrawShape(rec domain.ShapeRecord) {
	s.ops = append(s.ops, Op{Kind: "shape", Shape: &rec})
}

func (s *MemorySurface) DrawText(rec domain.TextRecord) {
	s.ops = append(s.ops, Op{Kind: "text", Text: &rec})
}

func (s *MemorySurface) Clear() {
	s.ops = append(s.ops, Op{Kind: "clear"})
}

// Ops returns the recorded operations.
func (s *MemorySurface) Ops() []Op { return s.ops }

// Visible returns the draw operations after the last clear, i.e. what a
// viewer would currently see.
func (s *MemorySurface) Visible() []Op {
	last := -1
	for i, op := range s.ops {
		if op.Kind == "clear" {
			last = i
		}
	}
	return s.ops[last+1:]
}
