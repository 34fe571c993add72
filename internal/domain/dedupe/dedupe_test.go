package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/okian/credence/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestSourceGuard(t *testing.T) {
	ctx := context.Background()

	Convey("Given a new source guard", t, func() {
		g := dedupe.NewSourceGuard()
		So(g.Size(), ShouldEqual, 0)

		Convey("When a source key is recorded", func() {
			key := dedupe.Key("user-1", "endorsement:e1")
			seen := g.SeenAndRecord(ctx, key)

			Convey("Then the first sighting is new and the replay is caught", func() {
				So(seen, ShouldBeFalse)
				So(g.SeenAndRecord(ctx, key), ShouldBeTrue)
				So(g.Size(), ShouldEqual, 1)
			})

			Convey("Then the same source for another user is independent", func() {
				So(g.SeenAndRecord(ctx, dedupe.Key("user-2", "endorsement:e1")), ShouldBeFalse)
				So(g.Size(), ShouldEqual, 2)
			})

			Convey("Then unrecording allows a retry", func() {
				g.Unrecord(ctx, key)
				So(g.Size(), ShouldEqual, 0)
				So(g.SeenAndRecord(ctx, key), ShouldBeFalse)
			})
		})

		Convey("When an unknown key is unrecorded", func() {
			g.Unrecord(ctx, "nonexistent")
			So(g.Size(), ShouldEqual, 0)
		})
	})
}

func TestSourceGuardEviction(t *testing.T) {
	ctx := context.Background()

	Convey("Given a guard bounded to three keys", t, func() {
		g := dedupe.NewSourceGuard(dedupe.WithMaxSize(3))
		for _, k := range []string{"k1", "k2", "k3"} {
			So(g.SeenAndRecord(ctx, k), ShouldBeFalse)
		}

		Convey("When a fourth key arrives", func() {
			So(g.SeenAndRecord(ctx, "k4"), ShouldBeFalse)

			Convey("Then the oldest key is forgotten and the rest remain", func() {
				So(g.Size(), ShouldEqual, 3)
				So(g.SeenAndRecord(ctx, "k4"), ShouldBeTrue)
				So(g.SeenAndRecord(ctx, "k3"), ShouldBeTrue)
				So(g.SeenAndRecord(ctx, "k2"), ShouldBeTrue)
				So(g.SeenAndRecord(ctx, "k1"), ShouldBeFalse)
			})
		})

		Convey("When a middle key is unrecorded first", func() {
			g.Unrecord(ctx, "k2")
			So(g.SeenAndRecord(ctx, "k4"), ShouldBeFalse)

			Convey("Then nothing is evicted", func() {
				So(g.Size(), ShouldEqual, 3)
				So(g.SeenAndRecord(ctx, "k1"), ShouldBeTrue)
			})
		})
	})

	Convey("Given an unbounded guard", t, func() {
		g := dedupe.NewSourceGuard(dedupe.WithMaxSize(0))
		for i := 0; i < 1000; i++ {
			g.SeenAndRecord(ctx, fmt.Sprintf("k-%d", i))
		}
		So(g.Size(), ShouldEqual, 1000)
		So(g.SeenAndRecord(ctx, "k-0"), ShouldBeTrue)
	})
}

func TestSourceGuardConcurrency(t *testing.T) {
	ctx := context.Background()

	Convey("Given many goroutines racing on one source", t, func() {
		g := dedupe.NewSourceGuard()
		key := dedupe.Key("user-1", "job:j1:completed")

		var wg sync.WaitGroup
		var winners atomic.Int32
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if !g.SeenAndRecord(ctx, key) {
					winners.Add(1)
				}
			}()
		}
		wg.Wait()

		So(winners.Load(), ShouldEqual, 1)
		So(g.Size(), ShouldEqual, 1)
	})

	Convey("Given goroutines recording and unrecording distinct keys", t, func() {
		g := dedupe.NewSourceGuard(dedupe.WithMaxSize(10000))
		var wg sync.WaitGroup
		for w := 0; w < 10; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				for i := 0; i < 100; i++ {
					k := fmt.Sprintf("k-%d-%d", w, i)
					g.SeenAndRecord(ctx, k)
					if i%2 == 0 {
						g.Unrecord(ctx, k)
					}
				}
			}(w)
		}
		wg.Wait()
		So(g.Size(), ShouldEqual, 500)
	})
}
