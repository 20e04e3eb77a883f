// Package stream holds the client side of the downstream flow-execution
// engine. The engine itself lives outside this service; submissions are plain
// HTTP notifications carrying entity identifiers, never payload data.
package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/graphium/importsvc/internal/repository"

	"github.com/google/uuid"
)

// Client submits records and batches to the flow engine over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a processing-stream client for the given engine base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

var _ repository.ProcessingStream = (*Client)(nil)

// SubmitRecord hands one record to the flow engine for processing.
func (c *Client) SubmitRecord(ctx context.Context, batchGUID uuid.UUID, index int) error {
	return c.post(ctx, "/process/record", map[string]any{
		"importBatchGuid": batchGUID.String(),
		"recordIndex":     index,
	})
}

// SubmitBatch re-triggers the flow engine's processing stream for a batch.
func (c *Client) SubmitBatch(ctx context.Context, batchGUID uuid.UUID) error {
	return c.post(ctx, "/process/batch", map[string]any{
		"importBatchGuid": batchGUID.String(),
	})
}

func (c *Client) post(ctx context.Context, path string, body map[string]any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal submission: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build submission request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to submit to processing stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("processing stream rejected submission: %s", resp.Status)
	}
	return nil
}

// LogStream is a stand-in processing stream for development and tests: it
// accepts every submission and logs it.
type LogStream struct {
	Logger *slog.Logger
}

var _ repository.ProcessingStream = (*LogStream)(nil)

func (s *LogStream) SubmitRecord(_ context.Context, batchGUID uuid.UUID, index int) error {
	s.logger().Info("record submitted to processing stream",
		"importBatchGuid", batchGUID.String(), "recordIndex", index)
	return nil
}

func (s *LogStream) SubmitBatch(_ context.Context, batchGUID uuid.UUID) error {
	s.logger().Info("batch submitted to processing stream",
		"importBatchGuid", batchGUID.String())
	return nil
}

func (s *LogStream) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
