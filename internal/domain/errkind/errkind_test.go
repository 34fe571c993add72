package errkind_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/okian/credence/internal/domain/errkind"
	. "github.com/smartystreets/goconvey/convey"
)

func TestErrorKinds(t *testing.T) {
	Convey("Given a wrapped error", t, func() {
		cause := context.DeadlineExceeded
		err := errkind.Wrap("ledger.apply", errkind.ErrTransient, cause)

		Convey("Then it matches both the kind and the cause", func() {
			So(errors.Is(err, errkind.ErrTransient), ShouldBeTrue)
			So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
			So(errors.Is(err, errkind.ErrNotFound), ShouldBeFalse)
		})

		Convey("And it is retryable", func() {
			So(errkind.IsRetryable(err), ShouldBeTrue)
			So(errkind.Name(err), ShouldEqual, "transient")
		})

		Convey("And the message names the operation", func() {
			So(err.Error(), ShouldContainSubstring, "ledger.apply")
			So(err.Error(), ShouldContainSubstring, "transient failure")
		})
	})

	Convey("Given an error wrapped again with fmt", t, func() {
		err := fmt.Errorf("outer: %w", errkind.New("store.user", errkind.ErrNotFound, "user u-1"))

		Convey("Then the kind survives", func() {
			So(errkind.KindOf(err), ShouldEqual, errkind.ErrNotFound)
			So(errkind.IsRetryable(err), ShouldBeFalse)
		})
	})

	Convey("Given nil and unclassified errors", t, func() {
		So(errkind.Wrap("op", errkind.ErrValidation, nil), ShouldBeNil)
		So(errkind.KindOf(errors.New("boom")), ShouldBeNil)
		So(errkind.Name(errors.New("boom")), ShouldEqual, "internal")
		So(errkind.Name(nil), ShouldEqual, "")
	})
}
