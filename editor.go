package lbledit

// The interactive editing state machine: pointer events in, selection changes,
// live geometry and committed store mutations out.

import (
	"fmt"
	"math"
)

// Default editing thresholds, in pixels.
const (
	DefaultMinSize      = 10.0 // Committed boxes must exceed this in both dimensions.
	DefaultHandleRadius = 8.0  // Square grab zone around each corner handle.
	DefaultEdgeMargin   = 5.0  // Grab zone measured inward and outward from each edge.
)

// EditorParams are the tunable hit-test and size thresholds of an Editor.
type EditorParams struct {
	MinSize      float64
	HandleRadius float64
	EdgeMargin   float64
}

// DefaultEditorParams returns the stock thresholds.
func DefaultEditorParams() EditorParams {
	return EditorParams{
		MinSize:      DefaultMinSize,
		HandleRadius: DefaultHandleRadius,
		EdgeMargin:   DefaultEdgeMargin,
	}
}

// Validate replaces non-positive values with their defaults.
func (p *EditorParams) Validate() {
	if p.MinSize <= 0 {
		p.MinSize = DefaultMinSize
	}
	if p.HandleRadius <= 0 {
		p.HandleRadius = DefaultHandleRadius
	}
	if p.EdgeMargin <= 0 {
		p.EdgeMargin = DefaultEdgeMargin
	}
}

// EditorState identifies the gesture the editor is currently in.
type EditorState int

// The editor states.
const (
	StateIdle EditorState = iota
	StateDrawing
	StateDragging
	StateResizing
)

// String implements fmt.Stringer.
func (s EditorState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateDrawing:
		return "Drawing"
	case StateDragging:
		return "Dragging"
	case StateResizing:
		return "Resizing"
	default:
		return fmt.Sprintf("EditorState(%d)", int(s))
	}
}

// Handle identifies a resize grip on a box. The four corner handles move only
// their corner; HandleEdge resizes symmetrically about the box center.
type Handle int

// The resize handles.
const (
	HandleNone Handle = iota
	HandleTopLeft
	HandleTopRight
	HandleBottomLeft
	HandleBottomRight
	HandleEdge
)

// String implements fmt.Stringer.
func (h Handle) String() string {
	switch h {
	case HandleNone:
		return "None"
	case HandleTopLeft:
		return "TopLeft"
	case HandleTopRight:
		return "TopRight"
	case HandleBottomLeft:
		return "BottomLeft"
	case HandleBottomRight:
		return "BottomRight"
	case HandleEdge:
		return "Edge"
	default:
		return fmt.Sprintf("Handle(%d)", int(h))
	}
}

// PointerKind is the pointer event type.
type PointerKind int

// The pointer event kinds.
const (
	PointerDown PointerKind = iota
	PointerMove
	PointerUp
	PointerHover
)

// PointerEvent is one pointer event in image pixel coordinates.
type PointerEvent struct {
	Kind PointerKind
	X, Y float64
}

// Rect is a plain geometry rectangle, used for live edit feedback.
type Rect struct {
	X, Y, Width, Height float64
}

// right is the x offset of the right edge.
func (r Rect) right() float64 { return r.X + r.Width }

// bottom is the y offset of the bottom edge.
func (r Rect) bottom() float64 { return r.Y + r.Height }

// EditOutcome describes the editor after one dispatched event.
type EditOutcome struct {
	State       EditorState
	Hover       Handle // Hover classification; HandleNone for non-hover events.
	Geometry    Rect   // Live geometry of the active box or drawing preview.
	HasGeometry bool
	Committed   bool // The event persisted a change through the history.
	Selected    int  // Index of the selected annotation, -1 for none.
}

type point struct {
	x, y float64
}

// Editor turns pointer events into selection changes, live geometry and
// committed store mutations. It edits a working copy of the current image's
// annotation set; the store is only written when a gesture commits, and every
// commit goes through the history engine so it can be undone.
//
// An Editor is not safe for concurrent use.
type Editor struct {
	store   *Store
	history *History
	params  EditorParams

	key     string
	classID int64
	set     AnnotationSet

	state      EditorState
	selectedID string

	anchor  point  // Pointer-down position of the active gesture.
	origin  Rect   // Geometry of the active box at gesture start.
	preview Rect   // Live geometry while drawing.
	handle  Handle // Active resize handle.
}

// NewEditor creates an editor over store and history.
func NewEditor(store *Store, history *History, params EditorParams) *Editor {
	params.Validate()
	return &Editor{
		store:   store,
		history: history,
		params:  params,
		state:   StateIdle,
	}
}

// SetImage switches the editor to the annotation set of key. Any in-flight
// gesture is abandoned and the selection is cleared.
func (e *Editor) SetImage(key string) error {
	set, err := e.store.Get(key)
	if err != nil {
		return err
	}

	e.key = key
	e.set = set
	e.state = StateIdle
	e.selectedID = ""
	e.handle = HandleNone
	e.preview = Rect{}

	return nil
}

// Key returns the current image key.
func (e *Editor) Key() string { return e.key }

// SetClass sets the class id assigned to newly drawn annotations.
func (e *Editor) SetClass(id int64) { e.classID = id }

// Class returns the class id assigned to newly drawn annotations.
func (e *Editor) Class() int64 { return e.classID }

// State returns the current gesture state.
func (e *Editor) State() EditorState { return e.state }

// Annotations returns a copy of the working set, including any uncommitted
// live geometry.
func (e *Editor) Annotations() AnnotationSet { return e.set.Clone() }

// SelectedIndex returns the index of the selected annotation, or -1.
func (e *Editor) SelectedIndex() int {
	if e.selectedID == "" {
		return -1
	}
	return e.set.IndexOf(e.selectedID)
}

// IsSelected reports whether the annotation at index i is selected.
func (e *Editor) IsSelected(i int) bool {
	return e.selectedID != "" && i >= 0 && i < len(e.set) && e.set[i].ID == e.selectedID
}

// Select makes the annotation at index i the selection, replacing any
// previous one.
func (e *Editor) Select(i int) error {
	a, err := e.set.At(i)
	if err != nil {
		return err
	}
	e.selectedID = a.ID
	return nil
}

// ClearSelection drops the selection.
func (e *Editor) ClearSelection() { e.selectedID = "" }

// Refresh re-reads the working set from the store, keeping the selection if
// its annotation still exists. Call it after an undo or redo.
func (e *Editor) Refresh() error {
	set, err := e.store.Get(e.key)
	if err != nil {
		return err
	}

	e.set = set
	if e.selectedID != "" && e.set.IndexOf(e.selectedID) < 0 {
		e.selectedID = ""
	}
	return nil
}

// DeleteSelected removes the selected annotation through the history. It is a
// no-op when nothing is selected.
func (e *Editor) DeleteSelected() error {
	i := e.SelectedIndex()
	if i < 0 {
		return nil
	}

	if err := e.history.Execute(DeleteCommand{ImageKey: e.key, Index: i}); err != nil {
		return err
	}
	e.selectedID = ""

	return e.Refresh()
}

// ClearAll removes every annotation of the current image through the history,
// so the clear is undoable.
func (e *Editor) ClearAll() error {
	if err := e.history.Execute(ReplaceCommand{ImageKey: e.key}); err != nil {
		return err
	}
	e.selectedID = ""

	return e.Refresh()
}

// Dispatch feeds one pointer event through the state machine and reports the
// outcome. A persistence failure from a commit is returned alongside the
// outcome; the editor lands in a consistent state either way.
func (e *Editor) Dispatch(ev PointerEvent) (EditOutcome, error) {
	if e.key == "" {
		return e.outcome(), fmt.Errorf("no image key set")
	}

	switch ev.Kind {
	case PointerDown:
		return e.pointerDown(ev.X, ev.Y), nil
	case PointerMove:
		return e.pointerMove(ev.X, ev.Y), nil
	case PointerUp:
		return e.pointerUp(ev.X, ev.Y)
	case PointerHover:
		return e.hover(ev.X, ev.Y), nil
	default:
		return e.outcome(), fmt.Errorf("unknown pointer event kind %d", ev.Kind)
	}
}

// pointerDown starts a gesture: drawing on empty canvas, dragging or resizing
// on a box. Selection exclusivity is enforced here: hitting a box selects it
// and deselects the previous one in the same transition.
func (e *Editor) pointerDown(x, y float64) EditOutcome {
	if e.state != StateIdle {
		return e.outcome()
	}

	// Hit-test from the top of the draw order.
	hit := -1
	for i := len(e.set) - 1; i >= 0; i-- {
		if e.set[i].Contains(x, y) {
			hit = i
			break
		}
	}

	if hit < 0 {
		// Empty canvas: begin drawing a new box.
		e.selectedID = ""
		e.state = StateDrawing
		e.anchor = point{x, y}
		e.preview = Rect{X: x, Y: y}
		return e.outcomeWithGeometry(e.preview)
	}

	a := e.set[hit]
	e.selectedID = a.ID
	e.anchor = point{x, y}
	e.origin = Rect{X: a.X, Y: a.Y, Width: a.Width, Height: a.Height}

	if h := e.classifyHandle(e.origin, x, y); h != HandleNone {
		e.state = StateResizing
		e.handle = h
	} else {
		e.state = StateDragging
		e.handle = HandleNone
	}

	return e.outcomeWithGeometry(e.origin)
}

// pointerMove updates the live geometry of the active gesture. Nothing is
// persisted here.
func (e *Editor) pointerMove(x, y float64) EditOutcome {
	switch e.state {
	case StateDrawing:
		e.preview = spanRect(e.anchor.x, e.anchor.y, x, y)
		return e.outcomeWithGeometry(e.preview)

	case StateDragging:
		r := Rect{
			X:      e.origin.X + (x - e.anchor.x),
			Y:      e.origin.Y + (y - e.anchor.y),
			Width:  e.origin.Width,
			Height: e.origin.Height,
		}
		e.applyLiveGeometry(r)
		return e.outcomeWithGeometry(r)

	case StateResizing:
		if r, ok := e.resizedRect(x, y); ok {
			e.applyLiveGeometry(r)
		}
		// A rejected update keeps the last valid geometry.
		return e.outcomeWithGeometry(e.currentGeometry())

	default:
		return e.outcome()
	}
}

// pointerUp ends the active gesture, committing through the history when the
// gesture produced a valid change.
func (e *Editor) pointerUp(x, y float64) (EditOutcome, error) {
	switch e.state {
	case StateDrawing:
		r := spanRect(e.anchor.x, e.anchor.y, x, y)
		e.state = StateIdle
		e.preview = Rect{}

		// The preview is discarded regardless; only a box exceeding the
		// minimum size in both dimensions becomes an annotation.
		if r.Width <= e.params.MinSize || r.Height <= e.params.MinSize {
			return e.outcome(), nil
		}

		a := NewAnnotation(r.X, r.Y, r.Width, r.Height, e.classID)
		if err := e.history.Execute(AddCommand{ImageKey: e.key, Annotation: a}); err != nil {
			return e.outcome(), err
		}
		if err := e.Refresh(); err != nil {
			return e.outcome(), err
		}

		out := e.outcomeWithGeometry(r)
		out.Committed = true
		return out, nil

	case StateDragging, StateResizing:
		e.state = StateIdle
		e.handle = HandleNone

		r := e.currentGeometry()
		if r == e.origin {
			// Nothing moved; no command.
			return e.outcomeWithGeometry(r), nil
		}

		if err := e.history.Execute(ReplaceCommand{ImageKey: e.key, Set: e.set}); err != nil {
			// Roll the working copy back to the store's state.
			_ = e.Refresh()
			return e.outcome(), err
		}

		out := e.outcomeWithGeometry(r)
		out.Committed = true
		return out, nil

	default:
		return e.outcome(), nil
	}
}

// hover classifies pointer proximity against the selected box for cursor
// feedback. It never mutates state and reports HandleNone outside Idle or
// without a selection.
func (e *Editor) hover(x, y float64) EditOutcome {
	out := e.outcome()
	if e.state != StateIdle {
		return out
	}

	i := e.SelectedIndex()
	if i < 0 {
		return out
	}

	a := e.set[i]
	out.Hover = e.classifyHandle(Rect{X: a.X, Y: a.Y, Width: a.Width, Height: a.Height}, x, y)
	return out
}

// classifyHandle classifies a point against r's resize zones: the four corner
// zones first, then the edge band around the perimeter.
func (e *Editor) classifyHandle(r Rect, x, y float64) Handle {
	corners := [4]struct {
		h    Handle
		x, y float64
	}{
		{HandleTopLeft, r.X, r.Y},
		{HandleTopRight, r.right(), r.Y},
		{HandleBottomLeft, r.X, r.bottom()},
		{HandleBottomRight, r.right(), r.bottom()},
	}
	for _, c := range corners {
		if math.Abs(x-c.x) <= e.params.HandleRadius && math.Abs(y-c.y) <= e.params.HandleRadius {
			return c.h
		}
	}

	m := e.params.EdgeMargin
	within := x >= r.X-m && x <= r.right()+m && y >= r.Y-m && y <= r.bottom()+m
	nearEdge := math.Abs(x-r.X) <= m || math.Abs(x-r.right()) <= m ||
			math.Abs(y-r.Y) <= m || math.Abs(y-r.bottom()) <= m
	if within && nearEdge {
		return HandleEdge
	}

	return HandleNone
}

// resizedRect derives the box geometry for the active handle and the current
// pointer position. ok is false when the result would collapse to MinSize or
// below in either dimension; the caller keeps the last valid geometry.
func (e *Editor) resizedRect(x, y float64) (Rect, bool) {
	dx := x - e.anchor.x
	dy := y - e.anchor.y

	left := e.origin.X
	top := e.origin.Y
	right := e.origin.right()
	bottom := e.origin.bottom()

	switch e.handle {
	case HandleTopLeft:
		left += dx
		top += dy
	case HandleTopRight:
		right += dx
		top += dy
	case HandleBottomLeft:
		left += dx
		bottom += dy
	case HandleBottomRight:
		right += dx
		bottom += dy
	case HandleEdge:
		// Symmetric about the center: opposite sides move apart by half the
		// delta on each axis.
		left -= dx / 2
		right += dx / 2
		top -= dy / 2
		bottom += dy / 2
	}

	r := Rect{X: left, Y: top, Width: right - left, Height: bottom - top}
	if r.Width <= e.params.MinSize || r.Height <= e.params.MinSize {
		return Rect{}, false
	}
	return r, true
}

// currentGeometry is the live rectangle of the selected annotation.
func (e *Editor) currentGeometry() Rect {
	i := e.SelectedIndex()
	if i < 0 {
		return Rect{}
	}

	a := e.set[i]
	return Rect{X: a.X, Y: a.Y, Width: a.Width, Height: a.Height}
}

// applyLiveGeometry writes r to the selected annotation in the working set
// only; nothing is persisted until the gesture commits.
func (e *Editor) applyLiveGeometry(r Rect) {
	i := e.SelectedIndex()
	if i < 0 {
		return
	}

	e.set[i].X = r.X
	e.set[i].Y = r.Y
	e.set[i].Width = r.Width
	e.set[i].Height = r.Height
}

// outcome is the editor's current state with no geometry attached.
func (e *Editor) outcome() EditOutcome {
	return EditOutcome{State: e.state, Hover: HandleNone, Selected: e.SelectedIndex()}
}

// outcomeWithGeometry is the editor's current state with live geometry.
func (e *Editor) outcomeWithGeometry(r Rect) EditOutcome {
	out := e.outcome()
	out.Geometry = r
	out.HasGeometry = true
	return out
}

// spanRect is the normalized rectangle spanned by two points.
func spanRect(x1, y1, x2, y2 float64) Rect {
	return Rect{
		X:      math.Min(x1, x2),
		Y:      math.Min(y1, y2),
		Width:  math.Abs(x1 - x2),
		Height: math.Abs(y1 - y2),
	}
}
