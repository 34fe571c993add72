package mirror_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/okian/credence/internal/adapters/mirror"
	"github.com/okian/credence/internal/domain/model"
	"github.com/okian/credence/pkg/logger"
	"github.com/shopspring/decimal"
	. "github.com/smartystreets/goconvey/convey"
)

type recordingMirror struct {
	mu    sync.Mutex
	users []model.User
	err   error
}

func (r *recordingMirror) PushScore(_ context.Context, u model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users = append(r.users, u)
	return r.err
}

func (r *recordingMirror) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users)
}

func TestAsync(t *testing.T) {
	_ = logger.Init(logger.WithOutput(io.Discard))

	Convey("Given an async mirror over a recorder", t, func() {
		rec := &recordingMirror{}
		a := mirror.NewAsync(rec, 8, nil)
		a.Start(context.Background())

		Convey("Pushes are delivered before Close returns", func() {
			for i := 0; i < 5; i++ {
				So(a.PushScore(context.Background(), model.User{ID: "u1", ReputationScore: int64(100 + i)}), ShouldBeNil)
			}
			So(a.Close(), ShouldBeNil)
			So(rec.count(), ShouldEqual, 5)
			So(rec.users[4].ReputationScore, ShouldEqual, 104)
		})

		Convey("Failures downstream never reach the caller", func() {
			rec.err = errors.New("supabase down")
			So(a.PushScore(context.Background(), model.User{ID: "u1"}), ShouldBeNil)
			So(a.Close(), ShouldBeNil)
			So(rec.count(), ShouldEqual, 1)
		})

		Convey("Pushes after Close are ignored", func() {
			So(a.Close(), ShouldBeNil)
			So(a.Close(), ShouldBeNil)
			So(a.PushScore(context.Background(), model.User{ID: "u1"}), ShouldBeNil)
			So(rec.count(), ShouldEqual, 0)
		})
	})
}

func TestSupabaseMirror(t *testing.T) {
	Convey("Given a Supabase REST endpoint", t, func() {
		var (
			method string
			path   string
			query  string
			body   map[string]any
		)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			method, path, query = r.Method, r.URL.Path, r.URL.RawQuery
			_ = json.NewDecoder(r.Body).Decode(&body)
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `[]`)
		}))
		defer srv.Close()

		m, err := mirror.NewSupabase(srv.URL, "anon-key", "")
		So(err, ShouldBeNil)

		Convey("PushScore patches the profile row by wallet", func() {
			err := m.PushScore(context.Background(), model.User{
				ID: "u1", WalletAddress: "0xa11ce", ReputationScore: 185, JobsCompleted: 1,
				TotalEarnings: decimal.RequireFromString("12.5"),
			})
			So(err, ShouldBeNil)
			So(method, ShouldEqual, http.MethodPatch)
			So(strings.HasSuffix(path, "/users"), ShouldBeTrue)
			So(query, ShouldContainSubstring, "wallet_address=eq.0xa11ce")
			So(body["reputation_score"], ShouldEqual, float64(185))
			So(body["total_earnings"], ShouldEqual, "12.5")
		})
	})

	Convey("Missing credentials are rejected", t, func() {
		_, err := mirror.NewSupabase("", "", "")
		So(err, ShouldNotBeNil)
	})

	Convey("The no-op mirror accepts everything", t, func() {
		So(mirror.Nop{}.PushScore(context.Background(), model.User{}), ShouldBeNil)
	})
}
