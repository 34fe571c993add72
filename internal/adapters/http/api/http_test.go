package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/okian/credence/internal/adapters/http/api"
	service "github.com/okian/credence/internal/app"
	"github.com/okian/credence/internal/domain/errkind"
	"github.com/okian/credence/internal/domain/model"
	"github.com/okian/credence/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	if err := logger.Init(logger.WithOutput(io.Discard)); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

// pendingDeps reports every endorsement as stored but not yet applied.
type pendingDeps struct {
	*service.Service
}

func (pendingDeps) Endorse(_ context.Context, req service.EndorseRequest) (service.EndorsementResult, error) {
	res := service.EndorsementResult{
		Endorsement: model.Endorsement{ID: "e-1", EndorserID: req.EndorserID, LedgerStatus: model.LedgerPending},
		Warning:     "ledger update pending",
	}
	cause := errkind.New("ledger.apply", errkind.ErrTransient, "store busy")
	return res, fmt.Errorf("%w: %w", service.ErrLedgerPending, cause)
}

// failedDeps reports every endorsement as stored with a refused delta.
type failedDeps struct {
	*service.Service
}

func (failedDeps) Endorse(_ context.Context, req service.EndorseRequest) (service.EndorsementResult, error) {
	res := service.EndorsementResult{
		Endorsement: model.Endorsement{ID: "e-2", EndorserID: req.EndorserID, LedgerStatus: model.LedgerFailed},
		Warning:     "user not found",
	}
	cause := errkind.New("ledger.apply", errkind.ErrNotFound, "user not found")
	return res, fmt.Errorf("%w: %w", service.ErrLedgerFailed, cause)
}

type harness struct {
	mux *http.ServeMux
	svc *service.Service
}

func newHarness(opts ...service.Option) *harness {
	svc := service.New(opts...)
	mux := http.NewServeMux()
	api.NewServer(svc, svc, 50).Register(context.Background(), mux)
	return &harness{mux: mux, svc: svc}
}

func (h *harness) do(method, path, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	w := httptest.NewRecorder()
	h.mux.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](w *httptest.ResponseRecorder) T {
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		panic(fmt.Sprintf("decode %q: %v", w.Body.String(), err))
	}
	return v
}

func (h *harness) register(wallet string) model.User {
	w := h.do(http.MethodPost, "/users", fmt.Sprintf(`{"wallet_address":%q}`, wallet))
	if w.Code != http.StatusCreated {
		panic(w.Body.String())
	}
	return decodeBody[model.User](w)
}

const testEvidence = `{"type":"test","data":{"platform":"hackerrank","test_id":"go-1","score":80,"max_score":100}}`

func (h *harness) verify(userID string) service.VerificationOutcome {
	body := fmt.Sprintf(`{"user_id":%q,"skill_id":"go","level":"advanced","outcome":"approved","evidence":%s}`, userID, testEvidence)
	w := h.do(http.MethodPost, "/verifications", body)
	if w.Code != http.StatusCreated {
		panic(w.Body.String())
	}
	return decodeBody[service.VerificationOutcome](w)
}

func TestServer_Register(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		h := newHarness()

		Convey("Health answers JSON by default", func() {
			w := h.do(http.MethodGet, "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"ok"`)
		})

		Convey("Health answers metrics for text/plain", func() {
			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			req.Header.Set("Accept", "text/plain")
			w := httptest.NewRecorder()
			h.mux.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("Content-Type"), ShouldContainSubstring, "text/plain")
		})

		Convey("Metrics are served", func() {
			So(h.do(http.MethodGet, "/metrics", "").Code, ShouldEqual, http.StatusOK)
		})

		Convey("Stats are served", func() {
			w := h.do(http.MethodGet, "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			stats := decodeBody[map[string]any](w)
			So(stats["store"], ShouldEqual, "memory")
		})

		Convey("Unknown routes are not found", func() {
			So(h.do(http.MethodGet, "/unknown", "").Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("Wrong methods are rejected", func() {
			So(h.do(http.MethodPut, "/users", "{}").Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}

func TestUsers(t *testing.T) {
	Convey("Given a registered user", t, func() {
		h := newHarness()
		u := h.register("0xaaa")
		So(u.ReputationScore, ShouldEqual, 100)

		Convey("The user and score can be read", func() {
			w := h.do(http.MethodGet, "/users/"+u.ID, "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decodeBody[model.User](w).WalletAddress, ShouldEqual, "0xaaa")

			w = h.do(http.MethodGet, "/users/"+u.ID+"/score", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"score":100`)
		})

		Convey("Registering the wallet again conflicts", func() {
			w := h.do(http.MethodPost, "/users", `{"wallet_address":"0xAAA"}`)
			So(w.Code, ShouldEqual, http.StatusConflict)
			So(w.Body.String(), ShouldContainSubstring, "duplicate_source")
		})

		Convey("Malformed bodies are bad requests", func() {
			w := h.do(http.MethodPost, "/users", `{"wallet_address":`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(w.Body.String(), ShouldContainSubstring, "bad_request")
		})

		Convey("Missing users are not found", func() {
			So(h.do(http.MethodGet, "/users/nope", "").Code, ShouldEqual, http.StatusNotFound)
			So(h.do(http.MethodGet, "/users/nope/audit", "").Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("A bonus is credited once per period", func() {
			w := h.do(http.MethodPost, "/users/"+u.ID+"/consistency-bonus", `{"period":"2026-10"}`)
			So(w.Code, ShouldEqual, http.StatusCreated)
			So(decodeBody[model.ReputationEvent](w).ScoreAfter, ShouldEqual, 110)

			w = h.do(http.MethodPost, "/users/"+u.ID+"/consistency-bonus", `{"period":"2026-10"}`)
			So(w.Code, ShouldEqual, http.StatusConflict)

			w = h.do(http.MethodGet, "/users/"+u.ID+"/events?limit=5", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decodeBody[[]model.ReputationEvent](w), ShouldHaveLength, 1)

			w = h.do(http.MethodGet, "/users/"+u.ID+"/audit", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"consistent":true`)
		})

		Convey("A bad limit is rejected", func() {
			So(h.do(http.MethodGet, "/users/"+u.ID+"/events?limit=-1", "").Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Chain reads are unavailable without a chain client", func() {
			w := h.do(http.MethodGet, "/users/"+u.ID+"/chain-reputation", "")
			So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
			So(w.Body.String(), ShouldContainSubstring, "chain_disabled")
		})

		Convey("Deactivation removes the user from the leaderboard", func() {
			So(h.do(http.MethodDelete, "/users/"+u.ID, "").Code, ShouldEqual, http.StatusNoContent)
			So(h.do(http.MethodGet, "/rank/"+u.ID, "").Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestVerificationsAndEndorsements(t *testing.T) {
	Convey("Given a badge holder and an endorser", t, func() {
		h := newHarness()
		holder := h.register("0xbbb")
		endorser := h.register("0xccc")
		vo := h.verify(holder.ID)
		So(vo.Delta, ShouldEqual, 50)
		So(vo.Badge.Level, ShouldEqual, model.LevelAdvanced)

		Convey("An endorsement credits the holder", func() {
			body := fmt.Sprintf(`{"endorser_id":%q,"skill_badge_id":%q}`, endorser.ID, vo.Badge.ID)
			w := h.do(http.MethodPost, "/endorsements", body)
			So(w.Code, ShouldEqual, http.StatusCreated)
			res := decodeBody[service.EndorsementResult](w)
			So(res.Endorsement.Weight, ShouldEqual, 5.0)
			So(res.Event.ScoreAfter, ShouldEqual, 155)

			So(h.do(http.MethodPost, "/endorsements", body).Code, ShouldEqual, http.StatusConflict)

			w = h.do(http.MethodGet, "/endorsements?user_id="+holder.ID, "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decodeBody[[]model.Endorsement](w), ShouldHaveLength, 1)
		})

		Convey("Self endorsement is a bad request", func() {
			body := fmt.Sprintf(`{"endorser_id":%q,"skill_badge_id":%q}`, holder.ID, vo.Badge.ID)
			So(h.do(http.MethodPost, "/endorsements", body).Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Listing endorsements needs a user", func() {
			So(h.do(http.MethodGet, "/endorsements", "").Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("A rejected verification answers 200 without a badge", func() {
			body := fmt.Sprintf(`{"user_id":%q,"skill_id":"rust","level":"Expert","outcome":"rejected","evidence":%s}`, holder.ID, testEvidence)
			w := h.do(http.MethodPost, "/verifications", body)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decodeBody[service.VerificationOutcome](w).Badge, ShouldBeNil)
		})

		Convey("Unknown levels and evidence types are bad requests", func() {
			body := fmt.Sprintf(`{"user_id":%q,"skill_id":"go","level":"guru","outcome":"approved","evidence":%s}`, holder.ID, testEvidence)
			So(h.do(http.MethodPost, "/verifications", body).Code, ShouldEqual, http.StatusBadRequest)
			body = fmt.Sprintf(`{"user_id":%q,"skill_id":"go","level":"expert","outcome":"approved","evidence":{"type":"oracle","data":{}}}`, holder.ID)
			So(h.do(http.MethodPost, "/verifications", body).Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Badge issuance is confirmed and the badge can be revoked", func() {
			w := h.do(http.MethodPost, "/badges/"+vo.Badge.ID+"/issuance", `{"transaction_hash":"0xfeed","token_id":"7"}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decodeBody[model.SkillBadge](w).TransactionHash, ShouldNotBeNil)

			So(h.do(http.MethodDelete, "/badges/"+vo.Badge.ID, "").Code, ShouldEqual, http.StatusNoContent)
			w = h.do(http.MethodGet, "/badges?user_id="+holder.ID, "")
			So(w.Code, ShouldEqual, http.StatusOK)
			badges := decodeBody[[]model.SkillBadge](w)
			So(badges, ShouldHaveLength, 1)
			So(badges[0].IsVerified, ShouldBeFalse)
		})
	})

	Convey("Given an endorsement whose ledger write is pending", t, func() {
		svc := service.New()
		mux := http.NewServeMux()
		api.NewServer(pendingDeps{svc}, svc, 50).Register(context.Background(), mux)

		req := httptest.NewRequest(http.MethodPost, "/endorsements", strings.NewReader(`{"endorser_id":"a","skill_badge_id":"b"}`))
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req)

		Convey("Then the API accepts it with the warning", func() {
			So(w.Code, ShouldEqual, http.StatusAccepted)
			res := decodeBody[service.EndorsementResult](w)
			So(res.Endorsement.LedgerStatus, ShouldEqual, model.LedgerPending)
			So(res.Warning, ShouldNotBeEmpty)
		})
	})

	Convey("Given an endorsement whose ledger write was refused", t, func() {
		svc := service.New()
		mux := http.NewServeMux()
		api.NewServer(failedDeps{svc}, svc, 50).Register(context.Background(), mux)

		req := httptest.NewRequest(http.MethodPost, "/endorsements", strings.NewReader(`{"endorser_id":"a","skill_badge_id":"b"}`))
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req)

		Convey("Then the API reports a terminal failure instead of 202", func() {
			So(w.Code, ShouldEqual, http.StatusUnprocessableEntity)
			So(w.Body.String(), ShouldContainSubstring, "ledger_failed")
		})
	})
}

func TestPeerVerification(t *testing.T) {
	Convey("Given an open peer request", t, func() {
		h := newHarness()
		requester := h.register("0x100")
		w := h.do(http.MethodPost, "/peer-verifications",
			fmt.Sprintf(`{"requester_id":%q,"skill_id":"design","level":"intermediate","evidence_refs":["ipfs://x"]}`, requester.ID))
		So(w.Code, ShouldEqual, http.StatusCreated)
		pr := decodeBody[model.PeerVerificationRequest](w)

		Convey("Three approvals conclude it with a badge", func() {
			var last service.PeerResult
			for i := 0; i < 3; i++ {
				peer := h.register(fmt.Sprintf("0x20%d", i))
				w := h.do(http.MethodPost, "/peer-verifications/"+pr.ID+"/responses",
					fmt.Sprintf(`{"peer_id":%q,"approved":true}`, peer.ID))
				So(w.Code, ShouldEqual, http.StatusOK)
				last = decodeBody[service.PeerResult](w)
			}
			So(last.Request.Status, ShouldEqual, model.PeerApproved)
			So(last.Verification.Delta, ShouldEqual, 30)

			w := h.do(http.MethodGet, "/peer-verifications/"+pr.ID, "")
			So(w.Code, ShouldEqual, http.StatusOK)
			got := decodeBody[model.PeerVerificationRequest](w)
			So(got.Status, ShouldEqual, model.PeerApproved)
			So(got.BadgeID, ShouldEqual, last.Verification.Badge.ID)

			w = h.do(http.MethodPost, "/peer-verifications/"+pr.ID+"/complete", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			done := decodeBody[service.PeerResult](w)
			So(done.Verification, ShouldBeNil)
			So(done.Request.BadgeID, ShouldEqual, got.BadgeID)
		})

		Convey("It can be read back and listed by requester", func() {
			w := h.do(http.MethodGet, "/peer-verifications/"+pr.ID, "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decodeBody[model.PeerVerificationRequest](w).Status, ShouldEqual, model.PeerPending)

			w = h.do(http.MethodGet, "/peer-verifications?user_id="+requester.ID, "")
			So(w.Code, ShouldEqual, http.StatusOK)
			list := decodeBody[[]model.PeerVerificationRequest](w)
			So(list, ShouldHaveLength, 1)
			So(list[0].ID, ShouldEqual, pr.ID)

			So(h.do(http.MethodGet, "/peer-verifications", "").Code, ShouldEqual, http.StatusBadRequest)
			So(h.do(http.MethodGet, "/peer-verifications/missing", "").Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("Completing a pending panel is a bad request", func() {
			w := h.do(http.MethodPost, "/peer-verifications/"+pr.ID+"/complete", "")
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("A self review is a bad request", func() {
			w := h.do(http.MethodPost, "/peer-verifications/"+pr.ID+"/responses",
				fmt.Sprintf(`{"peer_id":%q,"approved":true}`, requester.ID))
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("An unknown request is not found", func() {
			peer := h.register("0x300")
			w := h.do(http.MethodPost, "/peer-verifications/missing/responses",
				fmt.Sprintf(`{"peer_id":%q,"approved":true}`, peer.ID))
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestJobs(t *testing.T) {
	Convey("Given an employer and a freelancer", t, func() {
		h := newHarness()
		employer := h.register("0xe00")
		freelancer := h.register("0xf00")

		create := func(minRep int) model.JobListing {
			w := h.do(http.MethodPost, "/jobs", fmt.Sprintf(
				`{"employer_id":%q,"title":"Landing page","min_reputation":%d,"payment_amount":"300.50"}`, employer.ID, minRep))
			So(w.Code, ShouldEqual, http.StatusCreated)
			return decodeBody[model.JobListing](w)
		}

		Convey("A job runs to completion and credits the freelancer", func() {
			job := create(50)
			So(job.PaymentCurrency, ShouldEqual, "APT")

			w := h.do(http.MethodPost, "/jobs/"+job.ID+"/assign", fmt.Sprintf(`{"freelancer_id":%q}`, freelancer.ID))
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decodeBody[model.JobListing](w).Status, ShouldEqual, model.JobInProgress)

			w = h.do(http.MethodPost, "/jobs/"+job.ID+"/complete", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			res := decodeBody[service.JobResult](w)
			So(res.Events, ShouldHaveLength, 1)
			So(res.Events[0].ScoreAfter, ShouldEqual, 125)

			So(h.do(http.MethodPost, "/jobs/"+job.ID+"/complete", "").Code, ShouldEqual, http.StatusConflict)
		})

		Convey("A gated job is hidden and forbidden below its minimum", func() {
			job := create(500)
			w := h.do(http.MethodGet, "/users/"+freelancer.ID+"/jobs/eligible", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decodeBody[[]model.JobListing](w), ShouldBeEmpty)

			w = h.do(http.MethodPost, "/jobs/"+job.ID+"/assign", fmt.Sprintf(`{"freelancer_id":%q}`, freelancer.ID))
			So(w.Code, ShouldEqual, http.StatusForbidden)
		})

		Convey("Listing filters by status and gate", func() {
			create(10)
			create(200)
			w := h.do(http.MethodGet, "/jobs?status=open&min_reputation=100", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			jobs := decodeBody[[]model.JobListing](w)
			So(jobs, ShouldHaveLength, 1)
			So(jobs[0].MinReputation, ShouldEqual, 200)

			So(h.do(http.MethodGet, "/jobs?min_reputation=abc", "").Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("A dispute penalizes the party at fault", func() {
			job := create(0)
			h.do(http.MethodPost, "/jobs/"+job.ID+"/assign", fmt.Sprintf(`{"freelancer_id":%q}`, freelancer.ID))

			w := h.do(http.MethodPost, "/jobs/"+job.ID+"/dispute", `{"raised_by":"stranger"}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)

			w = h.do(http.MethodPost, "/jobs/"+job.ID+"/dispute", fmt.Sprintf(`{"raised_by":%q}`, freelancer.ID))
			So(w.Code, ShouldEqual, http.StatusOK)

			w = h.do(http.MethodPost, "/jobs/"+job.ID+"/dispute/resolve", `{"ruling":"employer_at_fault"}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			res := decodeBody[service.JobResult](w)
			So(res.Events[0].UserID, ShouldEqual, employer.ID)
			So(res.Events[0].ScoreAfter, ShouldEqual, 0)

			w = h.do(http.MethodGet, "/jobs/"+job.ID, "")
			So(decodeBody[model.JobListing](w).Ruling, ShouldEqual, model.RulingEmployerAtFault)
		})

		Convey("A cancelled job cannot be completed", func() {
			job := create(0)
			So(h.do(http.MethodPost, "/jobs/"+job.ID+"/cancel", "").Code, ShouldEqual, http.StatusOK)
			So(h.do(http.MethodPost, "/jobs/"+job.ID+"/complete", "").Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestLeaderboard(t *testing.T) {
	Convey("Given ranked users", t, func() {
		h := newHarness()
		top := h.register("0x1")
		h.register("0x2")
		h.verify(top.ID)

		Convey("The leaderboard lists the top users", func() {
			w := h.do(http.MethodGet, "/leaderboard?limit=1", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			entries := decodeBody[[]api.Entry](w)
			So(entries, ShouldHaveLength, 1)
			So(entries[0].UserID, ShouldEqual, top.ID)
			So(entries[0].Rank, ShouldEqual, 1)
		})

		Convey("The default limit covers everyone", func() {
			w := h.do(http.MethodGet, "/leaderboard", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decodeBody[[]api.Entry](w), ShouldHaveLength, 2)
		})

		Convey("Invalid limits are rejected", func() {
			So(h.do(http.MethodGet, "/leaderboard?limit=0", "").Code, ShouldEqual, http.StatusBadRequest)
			So(h.do(http.MethodGet, "/leaderboard?limit=abc", "").Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("A rank is served per user", func() {
			w := h.do(http.MethodGet, "/rank/"+top.ID, "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decodeBody[api.Entry](w).Score, ShouldEqual, 150)
		})
	})
}
