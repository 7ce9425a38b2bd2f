package sheetsync

import (
	"context"
	"log/slog"
	"time"

	"github.com/frahmantamala/attendance-management/internal/attendance"
)

// RecordSource reads attendance records past the export cursor.
// Satisfied by the attendance postgres repository.
type RecordSource interface {
	ListAfterID(id int64, limit int) ([]*attendance.Record, error)
}

// CursorStore persists the export position between runs. Satisfied by
// the settings service.
type CursorStore interface {
	SheetSyncCursor() (int64, error)
	SetSheetSyncCursor(id int64) error
}

// Exporter periodically mirrors new attendance records into the sink.
type Exporter struct {
	source    RecordSource
	cursor    CursorStore
	sink      Sink
	batchSize int
	interval  time.Duration
	logger    *slog.Logger
}

func NewExporter(source RecordSource, cursor CursorStore, sink Sink, batchSize int, interval time.Duration, logger *slog.Logger) *Exporter {
	if batchSize <= 0 {
		batchSize = 100
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Exporter{
		source:    source,
		cursor:    cursor,
		sink:      sink,
		batchSize: batchSize,
		interval:  interval,
		logger:    logger,
	}
}

// Run exports on a ticker until the context is cancelled.
func (e *Exporter) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	e.logger.Info("sheet sync exporter started",
		"interval", e.interval.String(),
		"batch_size", e.batchSize)

	for {
		select {
		case <-ticker.C:
			if err := e.ExportOnce(); err != nil {
				e.logger.Error("sheet sync export cycle failed", "error", err)
			}
		case <-ctx.Done():
			e.logger.Info("sheet sync exporter stopped")
			return
		}
	}
}

// ExportOnce reads one batch past the cursor, pushes it, and advances
// the cursor. Drains repeatedly until fewer than a full batch remains.
func (e *Exporter) ExportOnce() error {
	for {
		cursor, err := e.cursor.SheetSyncCursor()
		if err != nil {
			return err
		}

		records, err := e.source.ListAfterID(cursor, e.batchSize)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}

		rows := make([]Row, 0, len(records))
		for _, rec := range records {
			rows = append(rows, Row{
				RecordID:  rec.ID,
				UserID:    rec.UserID,
				Type:      rec.Type,
				Timestamp: rec.Timestamp,
				IP:        rec.IP,
				DeviceID:  rec.DeviceID,
			})
		}

		if err := e.sink.Push(rows); err != nil {
			// Leave the cursor where it is; the batch is retried next cycle.
			return err
		}

		last := records[len(records)-1].ID
		if err := e.cursor.SetSheetSyncCursor(last); err != nil {
			return err
		}

		e.logger.Info("sheet sync batch exported", "rows", len(rows), "cursor", last)

		if len(records) < e.batchSize {
			return nil
		}
	}
}
