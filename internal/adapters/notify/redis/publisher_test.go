package redis_test

import (
	"context"
	"errors"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	goredis "github.com/redis/go-redis/v9"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/platewatch/internal/adapters/notify/redis"
	"github.com/okian/platewatch/internal/domain/model"
)

type fakeClient struct {
	channel string
	payload []byte
	err     error
}

func (f *fakeClient) Publish(ctx context.Context, channel string, message interface{}) *goredis.IntCmd {
	f.channel = channel
	f.payload, _ = message.([]byte)
	cmd := goredis.NewIntCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
		return cmd
	}
	cmd.SetVal(2)
	return cmd
}

func TestPublisher(t *testing.T) {
	Convey("Given a publisher on the default channel", t, func() {
		client := &fakeClient{}
		p := redis.NewWithClient(client, "")
		ev := redis.Event{
			RecordID:       "id-1",
			PlateText:      "100 OOA",
			RawText:        "J00 OO4",
			PatternKind:    "numeric_alpha",
			Confidence:     0.91,
			Coordinates:    model.Coordinates{X: 1, Y: 2, W: 3, H: 4},
			Location:       "Gate A",
			DetectionCount: 1,
			Created:        true,
			Timestamp:      time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		}

		Convey("When an event is published", func() {
			n, err := p.Publish(context.Background(), ev)

			Convey("Then it goes out as JSON on the channel", func() {
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 2)
				So(client.channel, ShouldEqual, redis.DefaultChannel)

				var got map[string]interface{}
				So(jsoniter.Unmarshal(client.payload, &got), ShouldBeNil)
				So(got["plate_text"], ShouldEqual, "100 OOA")
				So(got["raw_text"], ShouldEqual, "J00 OO4")
				So(got["created"], ShouldEqual, true)
			})
		})

		Convey("When Redis rejects it", func() {
			client.err = errors.New("connection refused")
			_, err := p.Publish(context.Background(), ev)

			Convey("Then the error is wrapped", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "publish")
			})
		})

		Convey("Then closing a borrowed client is a no-op", func() {
			So(p.Close(), ShouldBeNil)
		})
	})

	Convey("Given no address", t, func() {
		_, err := redis.New(context.Background(), redis.Options{})

		Convey("Then construction fails", func() {
			So(errors.Is(err, redis.ErrNoAddr), ShouldBeTrue)
		})
	})
}
