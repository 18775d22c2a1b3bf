package presentation

import (
	"maps"
	"slices"
	"time"

	"github.com/zjrosen/mdata/internal/model"
	"github.com/zjrosen/mdata/internal/pubsub"
)

// EntityDTO represents an entity type for presentation
type EntityDTO struct {
	Name    string            `json:"name"`
	URL     string            `json:"url"`
	Fields  []string          `json:"fields"`
	Refs    map[string]string `json:"refs,omitempty"`
	Cache   bool              `json:"cache"`
	Redraw  bool              `json:"redraw"`
	Records int               `json:"records"`
}

// RecordDTO represents a record and its state flags
type RecordDTO struct {
	Entity   string         `json:"entity"`
	LID      string         `json:"lid"`
	ID       any            `json:"id"`
	Saved    bool           `json:"saved"`
	Modified bool           `json:"modified"`
	Data     map[string]any `json:"data"`
}

// EventDTO is one change event, written as a JSON line by watch
type EventDTO struct {
	Type       string    `json:"type"`
	Entity     string    `json:"entity"`
	LID        string    `json:"lid"`
	ID         any       `json:"id,omitempty"`
	Field      string    `json:"field,omitempty"`
	Collection string    `json:"collection,omitempty"`
	At         time.Time `json:"at"`
}

// FromController converts a controller to a DTO.
func FromController(ctrl *model.Controller) EntityDTO {
	schema := ctrl.Schema()
	var refs map[string]string
	if len(schema.Refs) > 0 {
		refs = maps.Clone(schema.Refs)
	}
	return EntityDTO{
		Name:    schema.Name,
		URL:     ctrl.URL(),
		Fields:  ctrl.Fields(),
		Refs:    refs,
		Cache:   schema.Cache,
		Redraw:  schema.Redraw,
		Records: ctrl.Size(),
	}
}

// FromRegistry converts every controller, in registration order.
func FromRegistry(reg *model.Registry) []EntityDTO {
	names := reg.Names()
	dtos := make([]EntityDTO, 0, len(names))
	for _, name := range names {
		if ctrl, ok := reg.Controller(name); ok {
			dtos = append(dtos, FromController(ctrl))
		}
	}
	return dtos
}

// FromRecord converts a record. Populated references are nested when deep is set,
// otherwise they are written as identities.
func FromRecord(r *model.Record, deep bool) RecordDTO {
	return RecordDTO{
		Entity:   r.Entity(),
		LID:      r.LID(),
		ID:       r.ID(),
		Saved:    r.IsSaved(),
		Modified: r.IsModified(),
		Data:     r.Copy(deep, !deep),
	}
}

// FromRecords converts records, skipping disposed ones.
func FromRecords(records []*model.Record, deep bool) []RecordDTO {
	dtos := make([]RecordDTO, 0, len(records))
	for _, r := range records {
		if r == nil || r.IsDisposed() {
			continue
		}
		dtos = append(dtos, FromRecord(r, deep))
	}
	return dtos
}

// FromEvent converts a registry change event.
func FromEvent(ev pubsub.Event[model.ChangeEvent]) EventDTO {
	return EventDTO{
		Type:       string(ev.Type),
		Entity:     ev.Payload.Entity,
		LID:        ev.Payload.LID,
		ID:         ev.Payload.ID,
		Field:      ev.Payload.Field,
		Collection: ev.Payload.Collection,
		At:         ev.Timestamp,
	}
}

// SortByID orders records by their identity key; records without one sort last.
func SortByID(dtos []RecordDTO) {
	slices.SortStableFunc(dtos, func(a, b RecordDTO) int {
		ka, kb := keyOf(a.ID), keyOf(b.ID)
		switch {
		case ka == kb:
			return 0
		case ka == "":
			return 1
		case kb == "":
			return -1
		case ka < kb:
			return -1
		default:
			return 1
		}
	})
}
