// Package s3 uploads evidence crops of plates to an S3 bucket.
package s3

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"image"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
	"github.com/oklog/ulid/v2"
	"github.com/sunshineplan/imgconv"
)

const (
	defaultPrefix = "plates"
	jpegQuality   = 85
)

// Archiver stores JPEG crops under <prefix>/<plate>/<ulid>.jpg.
type Archiver struct {
	uploader s3manageriface.UploaderAPI
	bucket   string
	prefix   string

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// New creates an archiver using the session's uploader.
func New(sess *session.Session, bucket, prefix string) (*Archiver, error) {
	return NewWithUploader(s3manager.NewUploader(sess), bucket, prefix)
}

// NewWithUploader creates an archiver around an existing uploader.
func NewWithUploader(uploader s3manageriface.UploaderAPI, bucket, prefix string) (*Archiver, error) {
	if bucket == "" {
		return nil, ErrNoBucket
	}
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Archiver{
		uploader: uploader,
		bucket:   bucket,
		prefix:   prefix,
		entropy:  ulid.Monotonic(rand.Reader, 0),
	}, nil
}

// Archive uploads crop for plate text and returns the object URL.
func (a *Archiver) Archive(ctx context.Context, text string, crop image.Image, at time.Time) (string, error) {
	if crop == nil {
		return "", ErrNoImage
	}
	var buf bytes.Buffer
	err := imgconv.Write(&buf, crop, &imgconv.FormatOption{
		Format:       imgconv.JPEG,
		EncodeOption: []imgconv.EncodeOption{imgconv.Quality(jpegQuality)},
	})
	if err != nil {
		return "", fmt.Errorf("encode: %w", err)
	}

	key, err := a.key(text, at)
	if err != nil {
		return "", err
	}
	out, err := a.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("image/jpeg"),
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return out.Location, nil
}

// key builds the object key. ULIDs sort by capture time.
func (a *Archiver) key(text string, at time.Time) (string, error) {
	a.mu.Lock()
	id, err := ulid.New(ulid.Timestamp(at), a.entropy)
	a.mu.Unlock()
	if err != nil {
		return "", fmt.Errorf("object id: %w", err)
	}
	return path.Join(a.prefix, strings.ReplaceAll(text, " ", "_"), id.String()+".jpg"), nil
}
