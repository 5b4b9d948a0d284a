// Package rekognition is a recognize.Engine backed by AWS Rekognition
// DetectText.
package rekognition

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"math"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/rekognition"
	"github.com/aws/aws-sdk-go/service/rekognition/rekognitioniface"
	"github.com/sunshineplan/imgconv"

	"github.com/okian/platewatch/internal/domain/recognize"
)

const jpegQuality = 90

// Engine sends regions to Rekognition and returns WORD detections.
type Engine struct {
	client rekognitioniface.RekognitionAPI
}

var _ recognize.Engine = (*Engine)(nil)

// New creates an engine from an AWS session.
func New(sess *session.Session) *Engine {
	return &Engine{client: rekognition.New(sess)}
}

// NewWithClient creates an engine around an existing client.
func NewWithClient(client rekognitioniface.RekognitionAPI) *Engine {
	return &Engine{client: client}
}

// Recognize implements recognize.Engine. Rekognition boxes are relative to
// the image; they are scaled back to pixels.
func (e *Engine) Recognize(ctx context.Context, img image.Image) ([]recognize.Fragment, error) {
	var buf bytes.Buffer
	err := imgconv.Write(&buf, img, &imgconv.FormatOption{
		Format:       imgconv.JPEG,
		EncodeOption: []imgconv.EncodeOption{imgconv.Quality(jpegQuality)},
	})
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}

	out, err := e.client.DetectTextWithContext(ctx, &rekognition.DetectTextInput{
		Image: &rekognition.Image{Bytes: buf.Bytes()},
	})
	if err != nil {
		return nil, fmt.Errorf("detect text: %w", err)
	}

	size := img.Bounds().Size()
	frags := make([]recognize.Fragment, 0, len(out.TextDetections))
	for _, td := range out.TextDetections {
		if aws.StringValue(td.Type) != rekognition.TextTypesWord {
			continue
		}
		text := strings.TrimSpace(aws.StringValue(td.DetectedText))
		if text == "" {
			continue
		}
		frags = append(frags, recognize.Fragment{
			Text:       text,
			Confidence: aws.Float64Value(td.Confidence) / 100,
			Bounds:     toPixels(td.Geometry, size),
		})
	}
	return frags, nil
}

func toPixels(g *rekognition.Geometry, size image.Point) image.Rectangle {
	if g == nil || g.BoundingBox == nil {
		return image.Rectangle{}
	}
	bb := g.BoundingBox
	x0 := int(math.Round(aws.Float64Value(bb.Left) * float64(size.X)))
	y0 := int(math.Round(aws.Float64Value(bb.Top) * float64(size.Y)))
	w := int(math.Round(aws.Float64Value(bb.Width) * float64(size.X)))
	h := int(math.Round(aws.Float64Value(bb.Height) * float64(size.Y)))
	return image.Rect(x0, y0, x0+w, y0+h)
}
