package lbledit

// Command-based undo/redo over whole-set store snapshots.

// Command is one reversible mutation of a single image key's annotation set.
//
// Commands are pure: Apply derives the post-state from the pre-state without
// touching the store. The history engine reads the pre-state snapshot at
// execute time, applies the command, installs the result, and keeps both
// snapshots for undo and redo.
type Command interface {
	// Key is the image key the command mutates.
	Key() string
	// Apply derives the post-state set from the pre-state set. It must not
	// retain or modify before.
	Apply(before AnnotationSet) AnnotationSet
}

// AddCommand appends one annotation to an image's set.
type AddCommand struct {
	ImageKey   string
	Annotation Annotation
}

// Key implements Command.
func (c AddCommand) Key() string { return c.ImageKey }

// Apply implements Command.
func (c AddCommand) Apply(before AnnotationSet) AnnotationSet {
	after := make(AnnotationSet, 0, len(before)+1)
	after = append(after, before...)
	return append(after, c.Annotation)
}

// DeleteCommand removes the annotation at Index from an image's set. An index
// that is out of range at execute time degenerates to a no-op command rather
// than an error, so a stale index from a racing UI cannot corrupt the stacks.
type DeleteCommand struct {
	ImageKey string
	Index    int
}

// Key implements Command.
func (c DeleteCommand) Key() string { return c.ImageKey }

// Apply implements Command.
func (c DeleteCommand) Apply(before AnnotationSet) AnnotationSet {
	if _, err := before.At(c.Index); err != nil {
		return before.Clone()
	}

	after := make(AnnotationSet, 0, len(before)-1)
	after = append(after, before[:c.Index]...)
	return append(after, before[c.Index+1:]...)
}

// ReplaceCommand installs a whole new set for an image key. It backs the bulk
// mutations: geometry commits after a drag or resize, and clear-all.
type ReplaceCommand struct {
	ImageKey string
	Set      AnnotationSet
}

// Key implements Command.
func (c ReplaceCommand) Key() string { return c.ImageKey }

// Apply implements Command.
func (c ReplaceCommand) Apply(AnnotationSet) AnnotationSet { return c.Set.Clone() }

// record is an executed command reduced to pure data.
type record struct {
	key    string
	before AnnotationSet
	after  AnnotationSet
}

// History executes commands against a store and maintains the undo and redo
// stacks. The stacks span image keys: undoing steps back through the edits in
// order, regardless of which image each one touched.
//
// A History is not safe for concurrent use.
type History struct {
	store *Store
	undo  []record
	redo  []record
}

// NewHistory creates a history engine bound to store.
func NewHistory(store *Store) *History {
	return &History{store: store}
}

// Execute runs cmd against the store, pushes it onto the undo stack and
// clears the redo stack. The before snapshot is read from the store at this
// moment, not at command construction time.
func (h *History) Execute(cmd Command) error {
	key := cmd.Key()
	before, err := h.store.Get(key)
	if err != nil {
		return err
	}

	after := cmd.Apply(before)
	if err := h.store.Replace(key, after); err != nil {
		return err
	}

	h.undo = append(h.undo, record{key: key, before: before, after: after.Clone()})
	h.redo = h.redo[:0]

	return nil
}

// Undo reverts the most recently executed command by restoring its before
// snapshot. It reports false when there is nothing to undo. A persistence
// failure is returned after the stacks have been adjusted: the popped command
// moves to the redo stack either way, keeping the two stacks consistent.
func (h *History) Undo() (bool, error) {
	if len(h.undo) == 0 {
		return false, nil
	}

	r := h.undo[len(h.undo)-1]
	h.undo = h.undo[:len(h.undo)-1]
	h.redo = append(h.redo, r)

	if err := h.store.Replace(r.key, r.before); err != nil {
		return true, err
	}
	return true, nil
}

// Redo re-applies the most recently undone command by restoring its after
// snapshot. It reports false when there is nothing to redo.
func (h *History) Redo() (bool, error) {
	if len(h.redo) == 0 {
		return false, nil
	}

	r := h.redo[len(h.redo)-1]
	h.redo = h.redo[:len(h.redo)-1]
	h.undo = append(h.undo, r)

	if err := h.store.Replace(r.key, r.after); err != nil {
		return true, err
	}
	return true, nil
}

// CanUndo reports whether an undo step is available.
func (h *History) CanUndo() bool { return len(h.undo) > 0 }

// CanRedo reports whether a redo step is available.
func (h *History) CanRedo() bool { return len(h.redo) > 0 }

// Clear drops both stacks.
func (h *History) Clear() {
	h.undo = nil
	h.redo = nil
}
