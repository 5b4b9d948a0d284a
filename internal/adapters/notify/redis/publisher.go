// Package redis publishes accepted plate detections on a Redis channel for
// live consumers.
package redis

import (
	"context"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"

	"github.com/okian/platewatch/internal/domain/model"
)

// DefaultChannel is the pub/sub channel detections go to.
const DefaultChannel = "platewatch:detections"

const pingTimeout = 5 * time.Second

var json = jsoniter.ConfigCompatibleWithStandardLibrary //nolint:gochecknoglobals // shared codec

// Event is the published message.
type Event struct {
	RecordID       string            `json:"record_id"`
	PlateText      string            `json:"plate_text"`
	RawText        string            `json:"raw_text"`
	PatternKind    string            `json:"pattern_kind"`
	Confidence     float64           `json:"confidence"`
	Coordinates    model.Coordinates `json:"coordinates"`
	Location       string            `json:"location"`
	DetectionCount int               `json:"detection_count"`
	Created        bool              `json:"created"`
	BestImproved   bool              `json:"best_improved"`
	Timestamp      time.Time         `json:"timestamp"`
}

// publisher is the part of the go-redis client used here.
type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Publisher sends events to one channel.
type Publisher struct {
	client  publisher
	closer  func() error
	channel string
}

// Options configures the connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// New connects to Redis and pings it.
func New(ctx context.Context, opts Options) (*Publisher, error) {
	if opts.Addr == "" {
		return nil, ErrNoAddr
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	pctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	p := NewWithClient(client, opts.Channel)
	p.closer = client.Close
	return p, nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client publisher, channel string) *Publisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Publisher{client: client, channel: channel}
}

// Channel returns the channel events go to.
func (p *Publisher) Channel() string { return p.channel }

// Publish encodes and sends one event. It returns the number of subscribers
// that received it.
func (p *Publisher) Publish(ctx context.Context, ev Event) (int64, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return 0, fmt.Errorf("encode event: %w", err)
	}
	n, err := p.client.Publish(ctx, p.channel, payload).Result()
	if err != nil {
		return 0, fmt.Errorf("publish: %w", err)
	}
	return n, nil
}

// Close closes the underlying connection when this publisher opened it.
func (p *Publisher) Close() error {
	if p.closer == nil {
		return nil
	}
	return p.closer()
}
