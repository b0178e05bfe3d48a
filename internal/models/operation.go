package models

import (
	"encoding/json"
	"time"
)

// OpType is the kind of mutation a pending operation records.
type OpType string

const (
	OpCreate OpType = "create"
	OpUpdate OpType = "update"
	OpDelete OpType = "delete"
)

// PendingOperation is a recorded, not-yet-confirmed mutation awaiting
// remote reconciliation. IDs are ULIDs, so ascending ID order is the
// FIFO enqueue order.
type PendingOperation struct {
	ID        string          `json:"id"`
	Op        OpType          `json:"op"`
	Kind      Kind            `json:"kind"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// EntityID extracts the id of the entity the operation refers to. For
// delete operations Data carries at minimum {"id": ...}.
func (p PendingOperation) EntityID() string {
	var probe struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(p.Data, &probe); err != nil {
		return ""
	}
	return probe.ID
}

// SyncResult summarizes one synchronizer pass.
type SyncResult struct {
	Success   bool `json:"success"`
	Processed int  `json:"processed"`
	Failed    int  `json:"failed"`
}
