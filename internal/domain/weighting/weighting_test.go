package weighting_test

import (
	"errors"
	"math"
	"testing"

	"github.com/okian/credence/internal/domain/errkind"
	"github.com/okian/credence/internal/domain/weighting"
	. "github.com/smartystreets/goconvey/convey"
)

func TestEngine_ComputeWeight(t *testing.T) {
	Convey("Given an engine with the default base rate", t, func() {
		e := weighting.New()

		Convey("Then zero and negative reputations weigh nothing", func() {
			So(e.ComputeWeight(0), ShouldEqual, 0)
			So(e.ComputeWeight(-50), ShouldEqual, 0)
		})

		Convey("Then a 1000 reputation weighs exactly 1000 × rate", func() {
			So(e.ComputeWeight(1000), ShouldEqual, 1000*weighting.DefaultBaseRate)
			So(e.ComputeWeight(1000), ShouldEqual, 50.0)
		})

		Convey("Then a 200 reputation yields a delta of 10", func() {
			w := e.ComputeWeight(200)
			So(w, ShouldEqual, 10.0)
			So(e.Delta(w), ShouldEqual, 10)
		})

		Convey("Then fractional weights round half away from zero", func() {
			So(e.Delta(e.ComputeWeight(110)), ShouldEqual, 6) // 5.5
			So(e.Delta(e.ComputeWeight(109)), ShouldEqual, 5) // 5.45
			So(e.Delta(e.ComputeWeight(9)), ShouldEqual, 0)   // 0.45
		})

		Convey("Then computing twice is deterministic", func() {
			So(e.ComputeWeight(777), ShouldEqual, e.ComputeWeight(777))
		})
	})

	Convey("Given an engine with a custom rate", t, func() {
		e := weighting.New(weighting.WithBaseRate(0.1))
		So(e.BaseRate(), ShouldEqual, 0.1)
		So(e.ComputeWeight(200), ShouldEqual, 20.0)

		Convey("When the rate is invalid it is ignored", func() {
			e := weighting.New(weighting.WithBaseRate(-1), weighting.WithBaseRate(math.NaN()))
			So(e.BaseRate(), ShouldEqual, weighting.DefaultBaseRate)
		})
	})
}

func TestEngine_Validate(t *testing.T) {
	Convey("Given caller supplied weights", t, func() {
		e := weighting.New()

		So(e.Validate(0), ShouldBeNil)
		So(e.Validate(12.5), ShouldBeNil)

		for _, w := range []float64{-1, math.NaN(), math.Inf(1)} {
			err := e.Validate(w)
			So(errors.Is(err, errkind.ErrValidation), ShouldBeTrue)
		}
	})
}
