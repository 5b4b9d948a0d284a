package s3_test

import (
	"context"
	"errors"
	"image"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/oklog/ulid/v2"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/platewatch/internal/adapters/archive/s3"
)

type fakeUploader struct {
	keys []string
	body []byte
	err  error
}

func (f *fakeUploader) Upload(in *s3manager.UploadInput, opts ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error) {
	return f.UploadWithContext(context.Background(), in, opts...)
}

func (f *fakeUploader) UploadWithContext(_ aws.Context, in *s3manager.UploadInput, _ ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	key := aws.StringValue(in.Key)
	f.keys = append(f.keys, key)
	f.body, _ = io.ReadAll(in.Body)
	return &s3manager.UploadOutput{Location: "https://evidence.s3.amazonaws.com/" + key}, nil
}

func TestArchiver(t *testing.T) {
	Convey("Given an archiver over a fake uploader", t, func() {
		up := &fakeUploader{}
		a, err := s3.NewWithUploader(up, "evidence", "/cam1/")
		So(err, ShouldBeNil)
		crop := image.NewGray(image.Rect(0, 0, 40, 12))
		at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

		Convey("When two crops of the same plate are archived", func() {
			u1, err1 := a.Archive(context.Background(), "123 ABC", crop, at)
			u2, err2 := a.Archive(context.Background(), "123 ABC", crop, at)

			Convey("Then keys are per plate, time ordered and unique", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				So(u1, ShouldNotEqual, u2)
				So(up.keys[0], ShouldStartWith, "cam1/123_ABC/")
				So(up.keys[0], ShouldEndWith, ".jpg")
				So(up.keys[0] < up.keys[1], ShouldBeTrue)

				id := strings.TrimSuffix(up.keys[0][strings.LastIndex(up.keys[0], "/")+1:], ".jpg")
				parsed, err := ulid.Parse(id)
				So(err, ShouldBeNil)
				So(ulid.Time(parsed.Time()).Equal(at), ShouldBeTrue)
			})

			Convey("Then the body is a JPEG", func() {
				So(len(up.body), ShouldBeGreaterThan, 2)
				So(up.body[0], ShouldEqual, 0xFF)
				So(up.body[1], ShouldEqual, 0xD8)
			})
		})

		Convey("When the upload fails", func() {
			up.err = errors.New("access denied")
			_, err := a.Archive(context.Background(), "123 ABC", crop, at)

			Convey("Then the error names the key", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "cam1/123_ABC/")
			})
		})

		Convey("When there is no crop", func() {
			_, err := a.Archive(context.Background(), "123 ABC", nil, at)

			Convey("Then nothing is uploaded", func() {
				So(errors.Is(err, s3.ErrNoImage), ShouldBeTrue)
				So(up.keys, ShouldBeEmpty)
			})
		})
	})

	Convey("Given no bucket", t, func() {
		_, err := s3.NewWithUploader(&fakeUploader{}, "", "")

		Convey("Then construction fails", func() {
			So(errors.Is(err, s3.ErrNoBucket), ShouldBeTrue)
		})
	})
}
