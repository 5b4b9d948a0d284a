package detect_test

import (
	"testing"

	"github.com/okian/platewatch/internal/domain/detect"
	. "github.com/smartystreets/goconvey/convey"
)

func TestIoU(t *testing.T) {
	Convey("Given pairs of boxes", t, func() {
		a := detect.Box{X: 0, Y: 0, W: 10, H: 10}

		So(detect.IoU(a, a), ShouldEqual, 1.0)
		So(detect.IoU(a, detect.Box{X: 20, Y: 20, W: 10, H: 10}), ShouldEqual, 0.0)
		So(detect.IoU(a, detect.Box{X: 10, Y: 0, W: 10, H: 10}), ShouldEqual, 0.0)
		// 5x10 overlap: 50 / (100 + 100 - 50)
		So(detect.IoU(a, detect.Box{X: 5, Y: 0, W: 10, H: 10}), ShouldAlmostEqual, 1.0/3.0, 1e-9)
	})
}

func TestSuppress(t *testing.T) {
	Convey("Given candidate boxes", t, func() {
		Convey("When two boxes overlap above the threshold", func() {
			weak := detect.Box{X: 0, Y: 0, W: 100, H: 30, Strength: 1}
			strong := detect.Box{X: 5, Y: 2, W: 100, H: 30, Strength: 2}
			out := detect.Suppress([]detect.Box{weak, strong}, 0.3)

			Convey("Then exactly the stronger one survives", func() {
				So(out, ShouldHaveLength, 1)
				So(out[0], ShouldResemble, strong)
			})
		})

		Convey("When two boxes do not overlap", func() {
			a := detect.Box{X: 0, Y: 0, W: 50, H: 20, Strength: 1}
			b := detect.Box{X: 200, Y: 100, W: 50, H: 20, Strength: 1}
			out := detect.Suppress([]detect.Box{a, b}, 0.3)

			Convey("Then both survive", func() {
				So(out, ShouldHaveLength, 2)
			})
		})

		Convey("When overlap is below the threshold", func() {
			a := detect.Box{X: 0, Y: 0, W: 10, H: 10, Strength: 2}
			b := detect.Box{X: 5, Y: 0, W: 10, H: 10, Strength: 1} // IoU 1/3
			So(detect.Suppress([]detect.Box{a, b}, 0.5), ShouldHaveLength, 2)
			So(detect.Suppress([]detect.Box{a, b}, 0.3), ShouldHaveLength, 1)
		})

		Convey("When strengths tie", func() {
			small := detect.Box{X: 0, Y: 0, W: 10, H: 10, Strength: 1}
			large := detect.Box{X: 0, Y: 0, W: 12, H: 12, Strength: 1}
			out := detect.Suppress([]detect.Box{small, large}, 0.3)

			Convey("Then the larger box ranks first", func() {
				So(out, ShouldResemble, []detect.Box{large})
			})
		})

		Convey("When a cluster of three overlaps", func() {
			boxes := []detect.Box{
				{X: 0, Y: 0, W: 40, H: 20, Strength: 3},
				{X: 2, Y: 1, W: 40, H: 20, Strength: 5},
				{X: 4, Y: 2, W: 40, H: 20, Strength: 4},
			}
			out := detect.Suppress(boxes, 0.3)

			Convey("Then only the strongest member remains", func() {
				So(out, ShouldHaveLength, 1)
				So(out[0].Strength, ShouldEqual, 5)
			})
		})

		Convey("When boxes are degenerate or absent", func() {
			So(detect.Suppress(nil, 0.3), ShouldBeEmpty)
			So(detect.Suppress([]detect.Box{{W: 0, H: 10}}, 0.3), ShouldBeEmpty)
		})
	})
}
