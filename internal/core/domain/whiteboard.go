package domain

// Tool selects how a stroke composites onto the surface. Erase paints with
// the background color rather than deleting records, so replaying history
// preserves the visual result.
type Tool string

const (
	ToolDraw  Tool = "draw"
	ToolErase Tool = "erase"
)

// Shape kinds captured as a start+end pair at gesture end.
type Shape string

const (
	ShapeRectangle Shape = "rectangle"
	ShapeCircle    Shape = "circle"
	ShapeLine      Shape = "line"
)

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// StrokeRecord is one drawn segment. Records are appended to a per-owner
// ordered log; clearing affects only records whose OwnerID matches the
// clearer's identity.
type StrokeRecord struct {
	OwnerID UserID  `json:"owner_id"`
	Start   Point   `json:"start"`
	End     Point   `json:"end"`
	Tool    Tool    `json:"tool"`
	Color   string  `json:"color"`
	Width   float64 `json:"width"`
}

type ShapeRecord struct {
	OwnerID UserID  `json:"owner_id"`
	Shape   Shape   `json:"shape"`
	Start   Point   `json:"start"`
	End     Point   `json:"end"`
	Color   string  `json:"color"`
	Width   float64 `json:"width"`
}

type TextRecord struct {
	OwnerID  UserID  `json:"owner_id"`
	Position Point   `json:"position"`
	Text     string  `json:"text"`
	Color    string  `json:"color"`
	FontSize float64 `json:"font_size"`
}
