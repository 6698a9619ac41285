package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cvmap/cvmap/internal/adapters/http/api"
	service "github.com/cvmap/cvmap/internal/app"
	"github.com/cvmap/cvmap/internal/domain/model"
	"github.com/cvmap/cvmap/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	svc := service.New(service.WithWorkerCount(2))
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(svc.Stop)

	mux := http.NewServeMux()
	api.NewServer(svc, svc).Register(context.Background(), mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, method, url, ident string, body any, out any) int {
	t.Helper()
	var buf io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		buf = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, buf)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if ident != "" {
		req.Header.Set("x-ident", ident)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}
	return resp.StatusCode
}

func register(t *testing.T, ts *httptest.Server, name string) model.IdentInfo {
	t.Helper()
	var info model.IdentInfo
	status := doJSON(t, http.MethodPost, ts.URL+"/v1/idents", "", map[string]string{"displayName": name}, &info)
	if status != http.StatusCreated {
		t.Fatalf("register status %d", status)
	}
	return info
}

func TestRegistrationEndpoint(t *testing.T) {
	Convey("Given the registry API", t, func() {
		ts := newTestServer(t)
		Convey("When an identity registers", func() {
			var info model.IdentInfo
			status := doJSON(t, http.MethodPost, ts.URL+"/v1/idents", "", map[string]string{"displayName": "alice"}, &info)

			Convey("Then it is created with base trust", func() {
				So(status, ShouldEqual, http.StatusCreated)
				So(info.Identity, ShouldNotBeEmpty)
				So(info.DisplayName, ShouldEqual, "alice")
				So(info.Credibility, ShouldEqual, 50.0)
			})

			Convey("Then it can be fetched back", func() {
				var got model.IdentInfo
				So(doJSON(t, http.MethodGet, ts.URL+"/v1/idents/"+info.Identity, "", nil, &got), ShouldEqual, http.StatusOK)
				So(got.Identity, ShouldEqual, info.Identity)
			})

			Convey("Then it can rename itself but nobody else", func() {
				var got model.IdentInfo
				So(doJSON(t, http.MethodPut, ts.URL+"/v1/idents/"+info.Identity, info.Identity,
					map[string]string{"displayName": "alicia"}, &got), ShouldEqual, http.StatusOK)
				So(got.DisplayName, ShouldEqual, "alicia")

				var dto api.ErrorDto
				So(doJSON(t, http.MethodPut, ts.URL+"/v1/idents/"+info.Identity, "someone-else",
					map[string]string{"displayName": "mallory"}, &dto), ShouldEqual, http.StatusForbidden)
				So(dto.Code, ShouldEqual, api.CodeForbidden)
			})
		})

		Convey("Then fetching an unknown identity yields a not_found envelope", func() {
			var dto api.ErrorDto
			So(doJSON(t, http.MethodGet, ts.URL+"/v1/idents/ghost", "", nil, &dto), ShouldEqual, http.StatusNotFound)
			So(dto.Code, ShouldEqual, api.CodeNotFound)
			So(dto.Path, ShouldEqual, "/v1/idents/ghost")
			So(dto.Timestamp.IsZero(), ShouldBeFalse)
		})
	})
}

func TestReportAndVoteFlow(t *testing.T) {
	Convey("Given a reporter and a voter", t, func() {
		ts := newTestServer(t)
		reporter := register(t, ts, "reporter")
		voter := register(t, ts, "voter")

		Convey("When the reporter reports a fresh location", func() {
			var cvm model.Cvm
			status := doJSON(t, http.MethodPost, ts.URL+"/v1/reports", reporter.Identity,
				map[string]any{"latitude": 52.52, "longitude": 13.405, "reason": "missing"}, &cvm)

			Convey("Then a CVM is created", func() {
				So(status, ShouldEqual, http.StatusCreated)
				So(cvm.ID, ShouldNotBeEmpty)
				So(cvm.Latitude, ShouldEqual, 52.52)
			})

			Convey("When the voter upvotes it", func() {
				var voted model.Cvm
				status := doJSON(t, http.MethodPost, ts.URL+"/v1/cvms/"+cvm.ID+"/votes", voter.Identity,
					map[string]string{"direction": "up"}, &voted)
				So(status, ShouldEqual, http.StatusOK)
				So(voted.Score, ShouldEqual, 1.0)

				Convey("Then a repeat vote conflicts", func() {
					var dto api.ErrorDto
					So(doJSON(t, http.MethodPost, ts.URL+"/v1/cvms/"+cvm.ID+"/votes", voter.Identity,
						map[string]string{"direction": "down"}, &dto), ShouldEqual, http.StatusConflict)
					So(dto.Code, ShouldEqual, api.CodeDuplicateVote)
				})

				Convey("Then the viewport query shows the CVM with personalization", func() {
					var items []json.RawMessage
					url := ts.URL + "/v1/cvms?latMin=52&latMax=53&lonMin=13&lonMax=14&zoom=19"
					So(doJSON(t, http.MethodGet, url, voter.Identity, nil, &items), ShouldEqual, http.StatusOK)
					So(len(items), ShouldEqual, 1)
					var got model.Cvm
					So(json.Unmarshal(items[0], &got), ShouldBeNil)
					So(got.ID, ShouldEqual, cvm.ID)
					So(got.AlreadyVoted, ShouldEqual, model.VoteUp)
				})

				Convey("Then the leaderboard ranks the reporter first", func() {
					var page model.Page[model.LeaderboardMember]
					So(doJSON(t, http.MethodGet, ts.URL+"/v1/leaderboard", "", nil, &page), ShouldEqual, http.StatusOK)
					So(len(page.Content), ShouldEqual, 2)
					So(page.Content[0].DisplayName, ShouldEqual, "reporter")
				})
			})

			Convey("Then voting with a bad direction is rejected", func() {
				var dto api.ErrorDto
				So(doJSON(t, http.MethodPost, ts.URL+"/v1/cvms/"+cvm.ID+"/votes", voter.Identity,
					map[string]string{"direction": "sideways"}, &dto), ShouldEqual, http.StatusBadRequest)
				So(dto.Code, ShouldEqual, api.CodeBadRequest)
			})

			Convey("Then voting on an unknown CVM is not found", func() {
				var dto api.ErrorDto
				So(doJSON(t, http.MethodPost, ts.URL+"/v1/cvms/nope/votes", voter.Identity,
					map[string]string{"direction": "up"}, &dto), ShouldEqual, http.StatusNotFound)
				So(dto.Code, ShouldEqual, api.CodeNotFound)
			})
		})

		Convey("Then mutations without x-ident are unauthorized", func() {
			var dto api.ErrorDto
			So(doJSON(t, http.MethodPost, ts.URL+"/v1/reports", "",
				map[string]any{"latitude": 1, "longitude": 1, "reason": "missing"}, &dto), ShouldEqual, http.StatusUnauthorized)
			So(dto.Code, ShouldEqual, api.CodeUnknownSubject)
		})

		Convey("Then an unregistered x-ident is unauthorized", func() {
			var dto api.ErrorDto
			So(doJSON(t, http.MethodPost, ts.URL+"/v1/reports", "ghost",
				map[string]any{"latitude": 1, "longitude": 1, "reason": "missing"}, &dto), ShouldEqual, http.StatusUnauthorized)
			So(dto.Code, ShouldEqual, api.CodeUnknownSubject)
		})

		Convey("Then a malformed reason is a bad request", func() {
			var dto api.ErrorDto
			So(doJSON(t, http.MethodPost, ts.URL+"/v1/reports", reporter.Identity,
				map[string]any{"latitude": 1, "longitude": 1, "reason": "ugly"}, &dto), ShouldEqual, http.StatusBadRequest)
			So(dto.Code, ShouldEqual, api.CodeBadRequest)
		})
	})
}

func TestQueryValidation(t *testing.T) {
	Convey("Given the registry API", t, func() {
		ts := newTestServer(t)
		Convey("Then a viewport query without bounds is rejected", func() {
			var dto api.ErrorDto
			So(doJSON(t, http.MethodGet, ts.URL+"/v1/cvms", "", nil, &dto), ShouldEqual, http.StatusBadRequest)
			So(dto.Code, ShouldEqual, api.CodeInvalidViewport)
		})

		Convey("Then inverted bounds are rejected by the service", func() {
			var dto api.ErrorDto
			url := ts.URL + "/v1/cvms?latMin=53&latMax=52&lonMin=13&lonMax=14"
			So(doJSON(t, http.MethodGet, url, "", nil, &dto), ShouldEqual, http.StatusBadRequest)
			So(dto.Code, ShouldEqual, api.CodeInvalidViewport)
		})

		Convey("Then zero-based pagination is rejected", func() {
			var dto api.ErrorDto
			So(doJSON(t, http.MethodGet, ts.URL+"/v1/leaderboard?page=0", "", nil, &dto), ShouldEqual, http.StatusBadRequest)
			So(dto.Code, ShouldEqual, api.CodeInvalidPagination)
		})

		Convey("Then non-numeric pagination is rejected", func() {
			var dto api.ErrorDto
			So(doJSON(t, http.MethodGet, ts.URL+"/v1/leaderboard?perPage=lots", "", nil, &dto), ShouldEqual, http.StatusBadRequest)
			So(dto.Code, ShouldEqual, api.CodeInvalidPagination)
		})
	})
}

func TestOperationalEndpoints(t *testing.T) {
	Convey("Given the registry API", t, func() {
		ts := newTestServer(t)
		Convey("Then /healthz reports ok", func() {
			var body map[string]string
			So(doJSON(t, http.MethodGet, ts.URL+"/healthz", "", nil, &body), ShouldEqual, http.StatusOK)
			So(body["status"], ShouldEqual, "ok")
		})

		Convey("Then /stats exposes service counters", func() {
			var stats map[string]any
			So(doJSON(t, http.MethodGet, ts.URL+"/stats", "", nil, &stats), ShouldEqual, http.StatusOK)
			So(stats["started"], ShouldEqual, true)
		})

		Convey("Then /metrics serves the Prometheus registry", func() {
			resp, err := http.Get(ts.URL + "/metrics")
			So(err, ShouldBeNil)
			defer resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
		})
	})
}
