// Package stream pushes finished utilization reports to a central backend,
// either over a client-streaming gRPC call with a JSON codec or over a
// WebSocket. Pushing is optional; the CLI works fully without it.
package stream

import (
	"time"

	"pvescope/internal/model"
)

type Sink interface {
	SendReport(ctx Context, rep model.UtilizationReport) error
	Close(ctx Context) error
}

type Context interface {
	Done() <-chan struct{}
	Err() error
	Deadline() (time.Time, bool)
	Value(key any) any
}

// ReportFrame is the wire envelope for one pushed report.
type ReportFrame struct {
	RunID         string                  `json:"run_id"`
	TimestampUnix int64                   `json:"timestamp_unix"`
	Report        model.UtilizationReport `json:"report"`
}

func NewReportFrame(rep model.UtilizationReport) ReportFrame {
	return ReportFrame{
		RunID:         rep.Snapshot.RunID,
		TimestampUnix: rep.Snapshot.CollectedAt.UTC().Unix(),
		Report:        rep,
	}
}
