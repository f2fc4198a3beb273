// Package storage persists output documents and run records
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Destination receives a serialized document. Save returns a location
// describing where the data ended up (a path, URL or subject).
type Destination interface {
	Save(ctx context.Context, name string, data []byte, metadata map[string]string) (string, error)
}

// Run status values
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// RunMeta describes one execution
type RunMeta struct {
	RunID           string    `json:"run_id"`
	Status          string    `json:"status"`
	Strategy        string    `json:"strategy"`
	Bindings        int       `json:"bindings"`
	ExecutionTimeMs int64     `json:"execution_time_ms"`
	FinishedAt      time.Time `json:"finished_at"`
}

// RunError is the failure part of a record
type RunError struct {
	Message  string   `json:"message"`
	Bindings []string `json:"bindings,omitempty"`
}

// RunRecord is the envelope published for a run: metadata, the output
// document on success, the error otherwise
type RunRecord struct {
	Meta   RunMeta                `json:"_meta"`
	Error  *RunError              `json:"_error,omitempty"`
	Output map[string]interface{} `json:"output"`
}

// NewRunRecord builds a record. failed lists binding names carried by err.
func NewRunRecord(runID, strategy string, bindings int, elapsed time.Duration, output map[string]interface{}, err error, failed []string) *RunRecord {
	rec := &RunRecord{
		Meta: RunMeta{
			RunID:           runID,
			Status:          StatusSuccess,
			Strategy:        strategy,
			Bindings:        bindings,
			ExecutionTimeMs: elapsed.Milliseconds(),
			FinishedAt:      time.Now().UTC(),
		},
		Output: output,
	}
	if rec.Output == nil {
		rec.Output = map[string]interface{}{}
	}
	if err != nil {
		rec.Meta.Status = StatusFailed
		rec.Error = &RunError{Message: err.Error(), Bindings: failed}
	}
	return rec
}

// Metadata flattens the record's metadata for destinations that carry
// headers or blob metadata
func (r *RunRecord) Metadata() map[string]string {
	return map[string]string{
		"run_id":            r.Meta.RunID,
		"status":            r.Meta.Status,
		"strategy":          r.Meta.Strategy,
		"bindings":          fmt.Sprintf("%d", r.Meta.Bindings),
		"execution_time_ms": fmt.Sprintf("%d", r.Meta.ExecutionTimeMs),
	}
}

// RecordPath returns the standard object name for a run record
func RecordPath(name, runID string) string {
	return fmt.Sprintf("runs/%s/%s.json", name, runID)
}

// SaveRecord serializes rec and hands it to dest
func SaveRecord(ctx context.Context, dest Destination, name string, rec *RunRecord) (string, error) {
	if dest == nil {
		return "", fmt.Errorf("destination is required")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("failed to marshal run record: %w", err)
	}
	return dest.Save(ctx, RecordPath(name, rec.Meta.RunID), data, rec.Metadata())
}
