package service_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	service "github.com/okian/credence/internal/app"
	"github.com/okian/credence/internal/adapters/repository"
	"github.com/okian/credence/internal/domain/errkind"
	"github.com/okian/credence/internal/domain/model"
	"github.com/okian/credence/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func openSQLite(dsn string) repository.Store {
	store, err := repository.Open(repository.Config{
		Driver:       repository.DriverSQLite,
		DSN:          dsn,
		MaxOpenConns: 1,
		AutoMigrate:  true,
	}, logger.Get().Named("repository"))
	if err != nil {
		panic(err)
	}
	return store
}

func TestServiceIntegration(t *testing.T) {
	Convey("Given a service on a sqlite store", t, func() {
		dsn := filepath.Join(t.TempDir(), "credence.db")
		svc := service.New(
			service.WithStore(openSQLite(dsn)),
			service.WithRetryWorkers(2),
			service.WithLedgerRetry(10, 5*time.Millisecond, 50*time.Millisecond),
		)
		defer svc.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		So(svc.Start(ctx), ShouldBeNil)

		user := register(svc)
		employer := register(svc)

		Convey("When the user verifies a skill and finishes a job", func() {
			vo, err := svc.CompleteVerification(ctx, passTest(user.ID))
			So(err, ShouldBeNil)
			job := runJob(svc, employer.ID, user.ID)
			_, err = svc.CompleteJob(ctx, job.ID)
			So(err, ShouldBeNil)

			Convey("Then the score and the event log agree", func() {
				score, err := svc.Score(ctx, user.ID)
				So(err, ShouldBeNil)
				So(score, ShouldEqual, 175)

				report, err := svc.Audit(ctx, user.ID)
				So(err, ShouldBeNil)
				So(report.Consistent, ShouldBeTrue)
				So(report.Events, ShouldEqual, 2)

				badges, err := svc.ListBadges(ctx, user.ID)
				So(err, ShouldBeNil)
				So(badges, ShouldHaveLength, 1)
				So(badges[0].ID, ShouldEqual, vo.Badge.ID)
			})

			Convey("Then replaying the completion is rejected by the store", func() {
				_, err := svc.CompleteJob(ctx, job.ID)
				So(errors.Is(err, errkind.ErrDuplicateSource), ShouldBeTrue)
				score, _ := svc.Score(ctx, user.ID)
				So(score, ShouldEqual, 175)
			})
		})

		Convey("When producers race on one user", func() {
			var wg sync.WaitGroup
			errs := make(chan error, 10)
			for i := 0; i < 10; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					if _, err := svc.AwardConsistencyBonus(ctx, user.ID, fmt.Sprintf("race-%d", i)); err != nil {
						errs <- err
					}
				}(i)
			}
			wg.Wait()
			close(errs)

			Convey("Then every delta lands once", func() {
				for err := range errs {
					So(err, ShouldBeNil)
				}
				score, _ := svc.Score(ctx, user.ID)
				So(score, ShouldEqual, 200)
				report, err := svc.Audit(ctx, user.ID)
				So(err, ShouldBeNil)
				So(report.Consistent, ShouldBeTrue)
			})
		})

		Convey("When the service restarts on the same database", func() {
			_, err := svc.CompleteVerification(ctx, passTest(user.ID))
			So(err, ShouldBeNil)
			svc.Stop()

			restarted := service.New(service.WithStore(openSQLite(dsn)))
			defer restarted.Stop()
			So(restarted.Start(ctx), ShouldBeNil)

			Convey("Then the leaderboard is rebuilt from stored scores", func() {
				entries, err := restarted.Leaderboard(ctx, 10)
				So(err, ShouldBeNil)
				So(entries, ShouldHaveLength, 2)
				So(entries[0].UserID, ShouldEqual, user.ID)
				So(entries[0].Score, ShouldEqual, 150)

				history, err := restarted.History(ctx, user.ID, 0)
				So(err, ShouldBeNil)
				So(history, ShouldHaveLength, 1)
				So(history[0].Reason, ShouldEqual, model.ReasonTestVerification)
			})
		})
	})
}
