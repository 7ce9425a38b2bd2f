package sheetsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/frahmantamala/attendance-management/internal"
)

// Row is one attendance entry in the shape the spreadsheet mirror
// accepts. The external wire protocol stays behind the Sink interface.
type Row struct {
	RecordID  int64     `json:"record_id"`
	UserID    int64     `json:"user_id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	IP        string    `json:"ip,omitempty"`
	DeviceID  string    `json:"device_id,omitempty"`
}

// Sink receives batches of attendance rows.
type Sink interface {
	Push(rows []Row) error
}

type batchJob struct {
	Rows []Row
}

type Worker struct {
	ID         int
	WorkerPool chan chan batchJob
	JobChannel chan batchJob
	Logger     *slog.Logger
}

func NewWorker(id int, workerPool chan chan batchJob, logger *slog.Logger) *Worker {
	return &Worker{
		ID:         id,
		WorkerPool: workerPool,
		JobChannel: make(chan batchJob),
		Logger:     logger,
	}
}

func (w *Worker) Start(ctx context.Context, wg *sync.WaitGroup, processFunc func(batchJob)) {
	wg.Add(1)
	go func() {
		defer wg.Done()

		for {
			w.WorkerPool <- w.JobChannel

			select {
			case job := <-w.JobChannel:
				w.Logger.Debug("worker processing batch", "worker_id", w.ID, "rows", len(job.Rows))
				processFunc(job)
			case <-ctx.Done():
				w.Logger.Debug("worker shutting down", "worker_id", w.ID)
				return
			}
		}
	}()
}

type Config struct {
	APIURL         string
	APIKey         string
	RequestTimeout time.Duration
	MaxWorkers     int
	JobQueueSize   int
}

// HTTPSink pushes rows to the spreadsheet API through a bounded worker
// pool. Delivery is best-effort: a batch that fails after being queued
// is logged and dropped. The exporter only advances its cursor when
// Push accepts a batch.
type HTTPSink struct {
	apiURL         string
	apiKey         string
	requestTimeout time.Duration
	logger         *slog.Logger

	jobQueue   chan batchJob
	workerPool chan chan batchJob
	maxWorkers int
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	once       sync.Once
}

func NewHTTPSink(config Config, logger *slog.Logger) *HTTPSink {
	ctx, cancel := context.WithCancel(context.Background())

	maxWorkers := config.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 4
	}

	jobQueueSize := config.JobQueueSize
	if jobQueueSize <= 0 {
		jobQueueSize = 50
	}

	requestTimeout := config.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = 10 * time.Second
	}

	sink := &HTTPSink{
		apiURL:         config.APIURL,
		apiKey:         config.APIKey,
		requestTimeout: requestTimeout,
		logger:         logger,

		maxWorkers: maxWorkers,
		jobQueue:   make(chan batchJob, jobQueueSize),
		workerPool: make(chan chan batchJob, maxWorkers),
		ctx:        ctx,
		cancel:     cancel,
	}

	sink.startWorkerPool()

	return sink
}

func (s *HTTPSink) startWorkerPool() {
	s.once.Do(func() {
		for i := 0; i < s.maxWorkers; i++ {
			worker := NewWorker(i, s.workerPool, s.logger)
			worker.Start(s.ctx, &s.wg, s.processBatch)
		}

		go s.dispatch()

		s.logger.Info("sheet sync worker pool started",
			"max_workers", s.maxWorkers,
			"queue_size", cap(s.jobQueue))
	})
}

func (s *HTTPSink) dispatch() {
	s.wg.Add(1)
	defer s.wg.Done()

	for {
		select {
		case job := <-s.jobQueue:
			select {
			case jobChannel := <-s.workerPool:
				select {
				case jobChannel <- job:
				case <-s.ctx.Done():
					s.logger.Info("dispatcher shutting down")
					return
				}
			case <-s.ctx.Done():
				s.logger.Info("dispatcher shutting down")
				return
			}
		case <-s.ctx.Done():
			s.logger.Info("dispatcher shutting down")
			return
		}
	}
}

func (s *HTTPSink) Shutdown() {
	s.logger.Info("shutting down sheet sync sink")
	s.cancel()
	s.wg.Wait()
	s.logger.Info("sheet sync sink shutdown complete")
}

// Push queues a batch for delivery. A full queue rejects the batch so
// the exporter can retry it on the next cycle.
func (s *HTTPSink) Push(rows []Row) error {
	if len(rows) == 0 {
		return nil
	}

	select {
	case s.jobQueue <- batchJob{Rows: rows}:
		s.logger.Info("sheet sync batch queued",
			"rows", len(rows),
			"queue_length", len(s.jobQueue))
		return nil
	default:
		s.logger.Warn("sheet sync queue full, rejecting batch",
			"rows", len(rows),
			"queue_capacity", cap(s.jobQueue))
		return fmt.Errorf("sheet sync queue full")
	}
}

func (s *HTTPSink) processBatch(job batchJob) {
	payload := map[string]interface{}{
		"rows": job.Rows,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("failed to marshal sheet sync batch", "error", err)
		return
	}

	ctx, cancel := internal.WithTimeout(s.ctx, s.requestTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, "POST", s.apiURL+"/rows", bytes.NewBuffer(jsonData))
	if err != nil {
		s.logger.Error("failed to create sheet sync request", "error", err)
		return
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		httpReq.Header.Set("X-API-Key", s.apiKey)
	}

	client := &http.Client{Timeout: s.requestTimeout}
	resp, err := client.Do(httpReq)
	if err != nil {
		s.logger.Error("sheet sync request failed", "error", err, "rows", len(job.Rows))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		s.logger.Warn("sheet sync API returned error status",
			"status", resp.StatusCode,
			"rows", len(job.Rows))
		return
	}

	s.logger.Info("sheet sync batch delivered", "rows", len(job.Rows))
}
