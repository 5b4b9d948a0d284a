package simulate

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/okian/platewatch/pkg/logger"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary //nolint:gochecknoglobals // shared codec

// Submission outcomes.
const (
	outcomeCreated  = "created"
	outcomeMerged   = "merged"
	outcomeRejected = "rejected"
	outcomeFailed   = "failed"
)

// HTTPClient wraps http.Client with timeout.
type HTTPClient struct {
	client  *http.Client
	baseURL string
}

func newHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// Get performs a GET request and decodes a JSON answer into out.
func (c *HTTPClient) Get(ctx context.Context, path string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, out)
}

// Post performs a POST request with a JSON body.
func (c *HTTPClient) Post(ctx context.Context, path string, body, out any) (int, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *HTTPClient) do(req *http.Request, out any) (int, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}
	if out != nil && resp.StatusCode < http.StatusBadRequest && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// platePath escapes a plate text for use in /plates/{text}.
func platePath(text string) string {
	return "/plates/" + url.PathEscape(text)
}

// submitReadings posts readings concurrently using a worker pool.
func submitReadings(ctx context.Context, cfg *Config, readings []Reading, stats *Stats) {
	log := logger.Get().Named("simulate")
	log.Info(ctx, "submitting readings", logger.Int("readings", len(readings)), logger.Int("workers", cfg.Workers))

	client := newHTTPClient(cfg.BaseURL, cfg.Timeout)

	var created, merged, rejected, failed, submitted atomic.Int64
	var lastReport atomic.Int64

	readingChan := make(chan Reading, cfg.Workers*WorkerChannelMultiplier)
	var wg sync.WaitGroup

	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r := range readingChan {
				if ctx.Err() != nil {
					continue
				}
				switch submitSingleReading(ctx, client, r) {
				case outcomeCreated:
					created.Add(1)
				case outcomeMerged:
					merged.Add(1)
				case outcomeRejected:
					rejected.Add(1)
					if cfg.Verbose {
						log.Warn(ctx, "reading rejected", logger.String("plate_text", r.PlateText))
					}
				default:
					failed.Add(1)
				}
				n := submitted.Add(1)

				now := time.Now().UnixNano()
				last := lastReport.Load()
				if time.Duration(now-last) >= progressInterval && lastReport.CompareAndSwap(last, now) {
					log.Info(ctx, "progress",
						logger.Int("submitted", int(n)),
						logger.Int("total", len(readings)),
						logger.Int("failed", int(failed.Load())),
					)
				}
			}
		}()
	}

	go func() {
		defer close(readingChan)
		for _, r := range readings {
			select {
			case <-ctx.Done():
				return
			case readingChan <- r:
			}
		}
	}()

	wg.Wait()

	stats.ReadingsSubmitted = int(submitted.Load())
	stats.Created = int(created.Load())
	stats.Merged = int(merged.Load())
	stats.Rejected = int(rejected.Load())
	stats.Failed = int(failed.Load())

	log.Info(ctx, "submission completed",
		logger.Int("created", stats.Created),
		logger.Int("merged", stats.Merged),
		logger.Int("rejected", stats.Rejected),
		logger.Int("failed", stats.Failed),
	)
}

func submitSingleReading(ctx context.Context, client *HTTPClient, r Reading) string {
	var ack readingResponse
	status, err := client.Post(ctx, "/readings", r, &ack)
	if err != nil {
		return outcomeFailed
	}
	switch status {
	case http.StatusCreated:
		return outcomeCreated
	case http.StatusOK:
		return outcomeMerged
	case http.StatusUnprocessableEntity:
		return outcomeRejected
	default:
		return outcomeFailed
	}
}
