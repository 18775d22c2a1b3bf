package presentation

import (
	"encoding/json"
	"io"

	"github.com/zjrosen/mdata/internal/store"
)

// Formatter handles output formatting
type Formatter struct {
	writer io.Writer
}

// NewFormatter creates a new formatter
func NewFormatter(writer io.Writer) *Formatter {
	return &Formatter{
		writer: writer,
	}
}

// FormatEntities formats a list of entity types as JSON
func (f *Formatter) FormatEntities(entities []EntityDTO) error {
	return f.indented(entities)
}

// FormatRecords formats a list of records as JSON
func (f *Formatter) FormatRecords(records []RecordDTO) error {
	return f.indented(records)
}

// FormatRecord formats a single record as JSON
func (f *Formatter) FormatRecord(record RecordDTO) error {
	return f.indented(record)
}

// FormatEvent writes one event as a single JSON line
func (f *Formatter) FormatEvent(event EventDTO) error {
	return json.NewEncoder(f.writer).Encode(event)
}

func (f *Formatter) indented(v any) error {
	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func keyOf(id any) string {
	k, _ := store.Key(id)
	return k
}
