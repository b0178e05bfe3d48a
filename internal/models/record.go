package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/oficinahq/garagesync/internal/common"
)

// Record is the tagged variant the store and transport layers traffic
// in: an entity kind plus the full entity payload. ID and CreatedAt are
// mirrored inside Data so decoding Data into a typed entity is
// lossless.
type Record struct {
	Kind      Kind            `json:"kind"`
	ID        string          `json:"id"`
	CreatedAt time.Time       `json:"created_at"`
	Data      json.RawMessage `json:"data"`
}

// NewRecord wraps a typed entity into a Record.
func NewRecord[T Entity](kind Kind, item T) (Record, error) {
	data, err := json.Marshal(item)
	if err != nil {
		return Record{}, fmt.Errorf("encoding %s payload: %w", kind, err)
	}
	return Record{Kind: kind, ID: item.EntityID(), Data: data}, nil
}

// Validate checks the invariants enforced at the store boundary: a
// known kind and a well-formed JSON object payload.
func (r Record) Validate() error {
	if !r.Kind.Valid() {
		return fmt.Errorf("%w: %q", common.ErrInvalidKind, r.Kind)
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(r.Data, &probe); err != nil {
		return fmt.Errorf("%s payload is not a JSON object: %w", r.Kind, err)
	}
	return nil
}

// Stamp sets the record identifier and creation time, mirroring both
// into the JSON payload.
func (r *Record) Stamp(id string, createdAt time.Time) error {
	var fields map[string]any
	if err := json.Unmarshal(r.Data, &fields); err != nil {
		return fmt.Errorf("decoding %s payload: %w", r.Kind, err)
	}
	fields["id"] = id
	fields["created_at"] = createdAt.UTC().Format(time.RFC3339Nano)
	data, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encoding %s payload: %w", r.Kind, err)
	}
	r.ID = id
	r.CreatedAt = createdAt.UTC()
	r.Data = data
	return nil
}

// RecordFromPayload builds a Record from a bare entity payload as it
// travels on the wire, lifting id and created_at out of the JSON.
func RecordFromPayload(kind Kind, payload json.RawMessage) (Record, error) {
	var probe struct {
		ID        string    `json:"id"`
		CreatedAt time.Time `json:"created_at"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return Record{}, fmt.Errorf("decoding %s payload: %w", kind, err)
	}
	return Record{Kind: kind, ID: probe.ID, CreatedAt: probe.CreatedAt, Data: payload}, nil
}

// Decode unmarshals the payload into a typed entity.
func Decode[T Entity](r Record) (T, error) {
	var item T
	if err := json.Unmarshal(r.Data, &item); err != nil {
		return item, fmt.Errorf("decoding %s %s: %w", r.Kind, r.ID, err)
	}
	return item, nil
}

// DecodeAll unmarshals a list of records, preserving order.
func DecodeAll[T Entity](recs []Record) ([]T, error) {
	items := make([]T, 0, len(recs))
	for _, r := range recs {
		item, err := Decode[T](r)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}
