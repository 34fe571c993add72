package chain_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	aptos "github.com/aptos-labs/aptos-go-sdk"

	"github.com/okian/credence/internal/adapters/chain"
	"github.com/okian/credence/internal/domain/errkind"
	"github.com/okian/credence/internal/domain/model"
	"github.com/okian/credence/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

// capturedView keeps the BCS body of the last view call.
type capturedView struct {
	mu   sync.Mutex
	body []byte
}

func (c *capturedView) has(part []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return bytes.Contains(c.body, part)
}

func newNode(status int, body string, seen *capturedView) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/view" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		if seen != nil {
			raw, _ := io.ReadAll(r.Body)
			seen.mu.Lock()
			seen.body = raw
			seen.mu.Unlock()
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
}

func TestConfigValidate(t *testing.T) {
	Convey("Given chain configurations", t, func() {
		Convey("A known network resolves its node url", func() {
			cfg := chain.Config{Network: "testnet", ModuleAddress: "0x1"}
			So(cfg.Validate(), ShouldBeNil)
			So(cfg.NodeURL, ShouldEqual, strings.TrimRight(aptos.TestnetConfig.NodeUrl, "/"))
			So(cfg.Timeout, ShouldBeGreaterThan, 0)
		})

		Convey("An explicit node url wins and loses its trailing slash", func() {
			cfg := chain.Config{Network: "custom", NodeURL: "http://localhost:8080/v1/", ModuleAddress: "0xabcd"}
			So(cfg.Validate(), ShouldBeNil)
			So(cfg.NodeURL, ShouldEqual, "http://localhost:8080/v1")
		})

		Convey("An unknown network without url is rejected", func() {
			cfg := chain.Config{Network: "moonnet", ModuleAddress: "0x1"}
			So(errors.Is(cfg.Validate(), errkind.ErrValidation), ShouldBeTrue)
		})

		Convey("A bare module address is rejected", func() {
			cfg := chain.Config{Network: "devnet", ModuleAddress: "abc"}
			So(errors.Is(cfg.Validate(), errkind.ErrValidation), ShouldBeTrue)
		})

		Convey("A module address that is not hex is rejected", func() {
			cfg := chain.Config{Network: "devnet", ModuleAddress: "0xnothex"}
			So(errors.Is(cfg.Validate(), errkind.ErrValidation), ShouldBeTrue)
		})
	})
}

func TestClientViews(t *testing.T) {
	_ = logger.Init(logger.WithOutput(io.Discard))
	ctx := context.Background()

	Convey("Given a node that answers view calls", t, func() {
		var seen capturedView
		srv := newNode(http.StatusOK, `["150"]`, &seen)
		defer srv.Close()

		c, err := chain.New(chain.Config{NodeURL: srv.URL + "/v1", ModuleAddress: "0xcafe"})
		So(err, ShouldBeNil)

		var wallet aptos.AccountAddress
		So(wallet.ParseStringRelaxed("0xa11ce5"), ShouldBeNil)

		Convey("Reputation decodes the u64 string", func() {
			score, err := c.Reputation(ctx, "0xa11ce5")
			So(err, ShouldBeNil)
			So(score, ShouldEqual, 150)
			So(seen.has([]byte("soulbound_nft")), ShouldBeTrue)
			So(seen.has([]byte("get_user_reputation")), ShouldBeTrue)
			So(seen.has(wallet[:]), ShouldBeTrue)
		})

		Convey("BadgeCount calls its own view", func() {
			_, err := c.BadgeCount(ctx, "0xa11ce5")
			So(err, ShouldBeNil)
			So(seen.has([]byte("get_skill_badge_count")), ShouldBeTrue)
		})

		Convey("A malformed wallet never reaches the node", func() {
			_, err := c.Reputation(ctx, "wallet")
			So(errors.Is(err, errkind.ErrValidation), ShouldBeTrue)
		})
	})

	Convey("Given a node that never answers", t, func() {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-release
			_, _ = io.WriteString(w, `["1"]`)
		}))
		defer srv.Close()
		defer close(release)

		c, err := chain.New(chain.Config{NodeURL: srv.URL + "/v1", ModuleAddress: "0x1"})
		So(err, ShouldBeNil)

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err = c.Reputation(cctx, "0xa11ce5")
		So(errkind.IsRetryable(err), ShouldBeTrue)
	})

	Convey("Given failing nodes", t, func() {
		cases := []struct {
			status int
			body   string
			kind   error
		}{
			{http.StatusServiceUnavailable, `{"message":"busy"}`, errkind.ErrTransient},
			{http.StatusTooManyRequests, `{}`, errkind.ErrTransient},
			{http.StatusBadRequest, `{"message":"bad address","error_code":"invalid_input"}`, errkind.ErrValidation},
			{http.StatusOK, `[]`, errkind.ErrNotFound},
			{http.StatusOK, `["not-a-number"]`, errkind.ErrValidation},
			{http.StatusOK, `{"oops":1}`, errkind.ErrValidation},
		}
		for _, tc := range cases {
			srv := newNode(tc.status, tc.body, nil)
			c, err := chain.New(chain.Config{NodeURL: srv.URL + "/v1", ModuleAddress: "0x1"})
			So(err, ShouldBeNil)
			_, err = c.Reputation(ctx, "0xa11ce5")
			So(errors.Is(err, tc.kind), ShouldBeTrue)
			srv.Close()
		}
	})

	Convey("Given an unreachable node", t, func() {
		srv := newNode(http.StatusOK, `["1"]`, nil)
		url := srv.URL
		srv.Close()

		c, err := chain.New(chain.Config{NodeURL: url + "/v1", ModuleAddress: "0x1"})
		So(err, ShouldBeNil)
		_, err = c.Reputation(ctx, "0xa11ce5")
		So(errkind.IsRetryable(err), ShouldBeTrue)
	})
}

func TestNopSubmitter(t *testing.T) {
	Convey("The default submitter records nothing", t, func() {
		var s chain.Submitter = chain.NopSubmitter{}
		hash, err := s.SubmitBadge(context.Background(), "0x1", model.SkillBadge{ID: "b1"})
		So(err, ShouldBeNil)
		So(hash, ShouldBeEmpty)
	})
}
