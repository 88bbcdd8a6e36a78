// Package upload runs the background file/clipboard upload worker: a
// bounded queue of pending uploads drained by a single goroutine, each
// POSTed to an HTTP blob host with a fixed timeout. Results are delivered
// on a bounded channel for the main event loop to drain; uploads are
// fire-and-forget from the caller's perspective, with no cancellation
// once submitted.
package upload

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/relaycore/relaycore/internal/common/apperrors"
	"github.com/relaycore/relaycore/internal/common/config"
	"github.com/relaycore/relaycore/internal/common/logger"
)

// resultQueueCapacity bounds both the request and the result channel: up
// to this many finished uploads can wait for the main loop to drain them.
// Once the result channel is full the worker blocks until a slot frees up
// or ctx is cancelled, rather than drop a completed upload.
const resultQueueCapacity = 10

// Request describes one pending upload.
type Request struct {
	Filename string
	Data     []byte
}

// Result is posted once an upload finishes, successfully or not.
type Result struct {
	Filename string
	URL      string
	Err      error
}

// Worker owns the HTTP client and the request/result channels.
type Worker struct {
	httpClient *http.Client
	blobHost   string
	logger     *logger.Logger

	requests chan Request
	results  chan Result
}

// New builds a Worker. cfg.BlobHostURL empty means uploads are disabled;
// Submit still accepts requests but every one resolves to an error.
func New(cfg config.UploadConfig, log *logger.Logger) *Worker {
	return &Worker{
		httpClient: &http.Client{Timeout: cfg.TimeoutDuration()},
		blobHost:   cfg.BlobHostURL,
		logger:     log.WithFields(zap.String("component", "upload")),
		requests:   make(chan Request, resultQueueCapacity),
		results:    make(chan Result, resultQueueCapacity),
	}
}

// Results returns the channel the main loop drains on its upload arm.
func (w *Worker) Results() <-chan Result {
	return w.results
}

// Submit enqueues req for upload. Returns false if the request queue is
// full and the caller should surface backpressure rather than block the
// render loop.
func (w *Worker) Submit(req Request) bool {
	select {
	case w.requests <- req:
		return true
	default:
		return false
	}
}

// Run drains requests and performs uploads until ctx is cancelled. Each
// upload runs serially; a slow blob host delays subsequent uploads, which
// matches the fire-and-forget, non-cancellable contract callers see.
func (w *Worker) Run(ctx context.Context) error {
	defer close(w.results)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-w.requests:
			result := w.upload(ctx, req)
			select {
			case w.results <- result:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (w *Worker) upload(ctx context.Context, req Request) Result {
	if w.blobHost == "" {
		return Result{Filename: req.Filename, Err: apperrors.Malformedf("upload", "no blob host configured")}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, w.blobHost, bytes.NewReader(req.Data))
	if err != nil {
		return Result{Filename: req.Filename, Err: apperrors.Malformedf("upload", "build request: %v", err)}
	}
	httpReq.Header.Set("Content-Type", "application/octet-stream")
	httpReq.Header.Set("X-Filename", req.Filename)

	resp, err := w.httpClient.Do(httpReq)
	if err != nil {
		w.logger.Warn("upload failed", zap.String("filename", req.Filename), zap.Error(err))
		return Result{Filename: req.Filename, Err: apperrors.Transientf("upload", "post to blob host: %v", err)}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return Result{Filename: req.Filename, Err: apperrors.Transientf("upload", "blob host returned %d", resp.StatusCode)}
	}

	return Result{Filename: req.Filename, URL: string(body)}
}
