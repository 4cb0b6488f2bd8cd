package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-seat-access/internal/broadcast"
	"github.com/iliyamo/cinema-seat-access/internal/database"
	"github.com/iliyamo/cinema-seat-access/internal/handler"
	"github.com/iliyamo/cinema-seat-access/internal/logger"
	"github.com/iliyamo/cinema-seat-access/internal/router"
	"github.com/iliyamo/cinema-seat-access/internal/service"
	"github.com/iliyamo/cinema-seat-access/internal/store"
)

type app struct {
	e       *echo.Echo
	seats   *service.SeatService
	ctrl    *service.Controller
	purged  int
	changed []string
}

func newApp(t *testing.T) *app {
	t.Helper()
	st := store.NewMemory(database.DefaultSeats())
	events := broadcast.NewFanout()
	ctrl := service.NewController(st, events, nil, logger.Discard(), service.ControllerOptions{})
	seats := service.NewSeatService(st, events, ctrl, logger.Discard(), service.Options{PurgeOnEndAll: true})

	a := &app{e: echo.New(), seats: seats, ctrl: ctrl}
	sh := handler.NewSeatHandler(seats, logger.Discard())
	sh.AfterEndAll = func(context.Context) { a.purged++ }
	sh.AfterChange = func(_ context.Context, seatID string) { a.changed = append(a.changed, seatID) }

	router.RegisterRoutes(a.e)
	router.RegisterSeats(a.e, sh, router.Middlewares{})
	router.RegisterController(a.e, handler.NewControllerHandler(ctrl, logger.Discard()))
	return a
}

func (a *app) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	req.RemoteAddr = "192.0.2.10:4000"
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)

	var out map[string]any
	if strings.HasPrefix(strings.TrimSpace(rec.Body.String()), "{") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func (a *app) issue(t *testing.T, seat string) string {
	t.Helper()
	rec, body := a.do(t, http.MethodPost, "/codes", `{"seatId":"`+seat+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return body["code"].(string)
}

func TestHealth(t *testing.T) {
	a := newApp(t)
	rec, body := a.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestIssueCodeEndpoint(t *testing.T) {
	a := newApp(t)

	rec, body := a.do(t, http.MethodPost, "/codes", `{"seatId":"a1"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "A1", body["seatId"])
	assert.Len(t, body["code"], 5)
	assert.NotEmpty(t, body["expiresAt"])

	rec, body = a.do(t, http.MethodPost, "/codes", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "bad_request", body["error"])

	rec, body = a.do(t, http.MethodPost, "/codes", `{"seatId":"Z9"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", body["error"])
}

func TestValidateEndpoint(t *testing.T) {
	a := newApp(t)
	code := a.issue(t, "B2")

	rec, _ := a.do(t, http.MethodPost, "/validate", `{"seatId":"B2"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body := a.do(t, http.MethodPost, "/validate", `{"seatId":"B2","code":"nope!"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "invalid_code", body["error"])

	rec, body = a.do(t, http.MethodPost, "/validate", `{"seatId":"B2","code":"`+code+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "B2", body["seatId"])

	rec, body = a.do(t, http.MethodPost, "/validate", `{"seatId":"B2","code":"`+code+`"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "already_used", body["error"])

	next := a.issue(t, "B2")
	rec, body = a.do(t, http.MethodPost, "/validate", `{"seatId":"B2","code":"`+next+`"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "conflict", body["error"])

	hist, err := a.seats.History(context.Background(), "B2")
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, "192.0.2.10", hist[0].Origin)
}

func TestSeatsEndpoint(t *testing.T) {
	a := newApp(t)
	code := a.issue(t, "A2")

	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/seats", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var seats []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &seats))
	require.Len(t, seats, 50)
	assert.Equal(t, "A1", seats[0]["id"])
	assert.Equal(t, true, seats[0]["vip"])
	assert.Equal(t, "available", seats[0]["logicalStatus"])
	assert.Equal(t, "waiting", seats[0]["physicalStatus"])
	assert.NotContains(t, seats[0], "activeCode")

	assert.Equal(t, "purchased", seats[1]["logicalStatus"])
	assert.Equal(t, code, seats[1]["activeCode"])
	assert.Contains(t, seats[1], "expiresAt")
}

func TestSessionEndpoints(t *testing.T) {
	a := newApp(t)
	code := a.issue(t, "C3")

	rec, body := a.do(t, http.MethodPost, "/sessions/end", `{"seatId":"C3"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "no_active_session", body["error"])

	rec, _ = a.do(t, http.MethodPost, "/validate", `{"seatId":"C3","code":"`+code+`","originIdentity":"kiosk-1"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body = a.do(t, http.MethodGet, "/seats/c3/history", "")
	require.Equal(t, http.StatusOK, rec.Code)
	sessions := body["sessions"].([]any)
	require.Len(t, sessions, 1)
	first := sessions[0].(map[string]any)
	assert.Equal(t, "kiosk-1", first["originIdentity"])
	assert.Equal(t, "active", first["status"])
	assert.Contains(t, first, "durationMinutes")

	rec, body = a.do(t, http.MethodPost, "/sessions/end", `{"seatId":"C3"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	// failed attempts leave cached history alone
	assert.Equal(t, []string{"C3", "C3"}, a.changed)

	rec, body = a.do(t, http.MethodGet, "/seats/Z9/history", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", body["error"])
}

func TestEndAllEndpoint(t *testing.T) {
	a := newApp(t)
	for _, seat := range []string{"A1", "B1"} {
		code := a.issue(t, seat)
		rec, _ := a.do(t, http.MethodPost, "/validate", `{"seatId":"`+seat+`","code":"`+code+`"}`)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec, body := a.do(t, http.MethodPost, "/sessions/end-all", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), body["sessionsEnded"])
	assert.Equal(t, float64(2), body["codesDeactivated"])
	assert.Equal(t, true, body["purged"])
	assert.Equal(t, 1, a.purged)
}

func TestControllerEndpoints(t *testing.T) {
	a := newApp(t)

	rec, body := a.do(t, http.MethodGet, "/controller/current", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, body["seatId"])
	assert.Equal(t, service.StateUnbound, body["state"])

	rec, _ = a.do(t, http.MethodPost, "/controller/bind", `{"seatId":"Z9"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, body = a.do(t, http.MethodPost, "/controller/bind", `{"seatId":"D4"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "D4", body["seatId"])
	assert.Equal(t, service.StateBound, body["state"])
	assert.Equal(t, false, body["confirmed"])

	rec, _ = a.do(t, http.MethodPost, "/controller/simulate", `{"seatId":"D4","action":"toggle"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = a.do(t, http.MethodPost, "/controller/simulate", `{"seatId":"D5","action":"PRESSED"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "conflict", body["error"])

	rec, body = a.do(t, http.MethodPost, "/controller/simulate", `{"seatId":"D4","action":"pressed"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "PRESSED", body["action"])

	seats, err := a.seats.ListSeats(context.Background())
	require.NoError(t, err)
	for _, s := range seats {
		want := "waiting"
		if s.ID == "D4" {
			want = "pending"
		}
		assert.Equal(t, want, s.PhysicalStatus, s.ID)
	}

	_, body = a.do(t, http.MethodGet, "/controller/current", "")
	assert.Equal(t, "D4", body["seatId"])
}
