package convo

// ErrNotFound is returned when a node doesn't exist in the graph.
type ErrNotFound struct {
	ID string
}

func (e ErrNotFound) Error() string {
	if e.ID == "" {
		return "node not found"
	}

	return "node not found: " + e.ID
}

// ErrDuplicate is returned when a node or edge id is already present.
type ErrDuplicate struct {
	ID string
}

func (e ErrDuplicate) Error() string {
	return "duplicate id: " + e.ID
}
