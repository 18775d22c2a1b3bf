package model

// ChangeEvent is published on Registry.Events for record writes,
// collection membership changes and record lifecycle transitions.
type ChangeEvent struct {
	Entity string
	LID    string
	ID     any

	// Field is set for single-field writes and empty for bulk writes.
	Field string

	// Collection names the collection for added/removed events.
	Collection string
}

func (r *Record) event(field, collection string) ChangeEvent {
	return ChangeEvent{
		Entity:     r.ctrl.schema.Name,
		LID:        r.lid,
		ID:         r.json.get(r.ctrl.table.keyID),
		Field:      field,
		Collection: collection,
	}
}
