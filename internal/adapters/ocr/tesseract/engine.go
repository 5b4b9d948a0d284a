// Package tesseract is a recognize.Engine backed by a local Tesseract install.
package tesseract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"
	"github.com/sunshineplan/imgconv"

	"github.com/okian/platewatch/internal/domain/recognize"
)

// PlateChars is the OCR whitelist: uppercase letters, digits and space.
const PlateChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789 "

// Engine wraps one gosseract client. The client is not safe for concurrent
// use, so calls are serialised.
type Engine struct {
	mu     sync.Mutex
	client *gosseract.Client
}

var _ recognize.Engine = (*Engine)(nil)

// New creates an engine for language (e.g. "eng").
func New(language string) (*Engine, error) {
	if language == "" {
		language = "eng"
	}
	client := gosseract.NewClient()
	if err := client.SetLanguage(language); err != nil {
		client.Close()
		return nil, fmt.Errorf("set language: %w", err)
	}
	// Plates are not dictionary words.
	_ = client.SetVariable("load_system_dawg", "false")
	_ = client.SetVariable("load_freq_dawg", "false")

	if err := client.SetPageSegMode(gosseract.PSM_SPARSE_TEXT); err != nil {
		client.Close()
		return nil, fmt.Errorf("set page seg mode: %w", err)
	}
	if err := client.SetWhitelist(PlateChars); err != nil {
		client.Close()
		return nil, fmt.Errorf("set whitelist: %w", err)
	}
	return &Engine{client: client}, nil
}

// Recognize implements recognize.Engine.
func (e *Engine) Recognize(ctx context.Context, img image.Image) ([]recognize.Fragment, error) {
	var buf bytes.Buffer
	if err := imgconv.Write(&buf, img, &imgconv.FormatOption{Format: imgconv.PNG}); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.client.SetImageFromBytes(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("set image: %w", err)
	}
	boxes, err := e.client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("bounding boxes: %w", err)
	}

	frags := make([]recognize.Fragment, 0, len(boxes))
	for _, box := range boxes {
		text := strings.TrimSpace(box.Word)
		if text == "" {
			continue
		}
		frags = append(frags, recognize.Fragment{
			Text:       text,
			Confidence: box.Confidence / 100,
			Bounds:     box.Box,
		})
	}
	return frags, nil
}

// Close releases the Tesseract handle.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.client.Close()
}
