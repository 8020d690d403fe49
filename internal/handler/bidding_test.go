package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/nowshin-108/capstone/internal/bidding"
	"github.com/nowshin-108/capstone/internal/handler"
	"github.com/nowshin-108/capstone/internal/model"
	"github.com/nowshin-108/capstone/internal/notify"
	"github.com/nowshin-108/capstone/internal/repository/memory"
	"github.com/nowshin-108/capstone/internal/router"
	"github.com/nowshin-108/capstone/internal/scheduler"
	"github.com/nowshin-108/capstone/internal/utils"
)

const secret = "handler-test-secret"

var t0 = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

type api struct {
	e      *echo.Echo
	store  *memory.Store
	engine *bidding.Engine
}

func newAPI(t *testing.T) *api {
	t.Helper()
	store := memory.New()
	store.PutFlight(model.Flight{FlightID: "F1", CarrierCode: "AA", FlightNumber: "100", ScheduledDeparture: t0.Add(6 * time.Hour)})
	for uid, seat := range map[uint64]string{1: "12A", 2: "9C", 3: "14B"} {
		require.NoError(t, store.AssignSeat("F1", uid, seat))
	}
	hub := notify.NewHub()
	engine := bidding.NewEngine(bidding.Deps{
		Store:     store,
		Seats:     store,
		Swapper:   store,
		Flights:   store,
		Events:    hub,
		Scheduler: scheduler.New(scheduler.NewManualClock(t0)),
	}, bidding.DefaultOptions())
	t.Cleanup(engine.Close)

	e := echo.New()
	router.RegisterRoutes(e, nil)
	router.RegisterBidding(e, handler.NewBiddingHandler(engine), handler.NewRealtimeHandler(hub, 8, nil), secret, nil)
	router.RegisterFlights(e, handler.NewFlightHandler(store, store), secret, nil)
	return &api{e: e, store: store, engine: engine}
}

func token(t *testing.T, uid uint64, role string) string {
	t.Helper()
	tok, err := utils.NewAccessToken(secret, uid, role, 15)
	require.NoError(t, err)
	return tok.Token
}

func (a *api) do(t *testing.T, method, path string, uid uint64, role string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if uid != 0 {
		req.Header.Set("Authorization", "Bearer "+token(t, uid, role))
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)

	out := map[string]any{}
	if strings.HasPrefix(strings.TrimSpace(rec.Body.String()), "{") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func (a *api) passenger(t *testing.T, method, path string, uid uint64, body any) (*httptest.ResponseRecorder, map[string]any) {
	return a.do(t, method, path, uid, model.RolePassenger, body)
}

func TestStartBidding(t *testing.T) {
	a := newAPI(t)

	rec, body := a.passenger(t, http.MethodPost, "/v1/bidding/start", 1, echo.Map{"seat_number": " 12A ", "flight_id": "F1"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "F1-12A", body["bidding_id"])
	assert.Equal(t, "ACTIVE", body["status"])
	assert.Equal(t, []any{}, body["bids"])
	assert.Equal(t, "2026-05-04T14:00:00Z", body["expiration_time"])

	rec, body = a.passenger(t, http.MethodPost, "/v1/bidding/start", 1, echo.Map{"seat_number": "14B", "flight_id": "F1"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "conflict", body["code"])
	assert.Equal(t, "F1-12A", body["existing_bidding_id"])
}

func TestSeatNumbersAreMatchedExactly(t *testing.T) {
	a := newAPI(t)
	require.NoError(t, a.store.AssignSeat("F1", 7, "exit-1b"))

	rec, body := a.passenger(t, http.MethodPost, "/v1/bidding/start", 7, echo.Map{"seat_number": "exit-1b", "flight_id": "F1"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "F1-exit-1b", body["bidding_id"])

	rec, _ = a.passenger(t, http.MethodPost, "/v1/bidding/start", 1, echo.Map{"seat_number": "12a", "flight_id": "F1"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, body = a.passenger(t, http.MethodPost, "/v1/bidding/bid", 2, echo.Map{"bidding_id": "F1-exit-1b", "amount": 20, "bidder_seat_number": "9C"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	bidID, _ := body["bid_id"].(string)

	rec, _ = a.passenger(t, http.MethodPost, "/v1/bidding/accept", 7, echo.Map{"bidding_id": "F1-exit-1b", "bid_id": bidID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	seat, ok := a.store.Seat("F1", 2)
	require.True(t, ok)
	assert.Equal(t, "exit-1b", seat)
}

func TestStartForAnotherPassengerIsForbidden(t *testing.T) {
	a := newAPI(t)
	rec, _ := a.passenger(t, http.MethodPost, "/v1/bidding/start", 2, echo.Map{"passenger_id": 1, "seat_number": "12A", "flight_id": "F1"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestStartUnknownFlight(t *testing.T) {
	a := newAPI(t)
	rec, _ := a.passenger(t, http.MethodPost, "/v1/bidding/start", 1, echo.Map{"seat_number": "12A", "flight_id": "F9"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBidAndAccept(t *testing.T) {
	a := newAPI(t)
	rec, _ := a.passenger(t, http.MethodPost, "/v1/bidding/start", 1, echo.Map{"seat_number": "12A", "flight_id": "F1"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, body := a.passenger(t, http.MethodPost, "/v1/bidding/bid", 2, echo.Map{"bidding_id": "F1-12A", "amount": 50, "bidder_seat_number": "9C"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	bidID, _ := body["bid_id"].(string)
	require.NotEmpty(t, bidID)

	rec, _ = a.passenger(t, http.MethodPost, "/v1/bidding/accept", 2, echo.Map{"bidding_id": "F1-12A", "bid_id": bidID})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, body = a.passenger(t, http.MethodPost, "/v1/bidding/accept", 1, echo.Map{"bidding_id": "F1-12A", "bid_id": bidID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, body["success"])

	rec, body = a.passenger(t, http.MethodGet, "/v1/flights/F1/seat", 1, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "9C", body["seat_number"])
	rec, body = a.passenger(t, http.MethodGet, "/v1/flights/F1/seat", 2, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "12A", body["seat_number"])

	rec, _ = a.passenger(t, http.MethodGet, "/v1/bidding/active/F1", 3, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec, _ = a.passenger(t, http.MethodPost, "/v1/bidding/accept", 1, echo.Map{"bidding_id": "F1-12A", "bid_id": bidID})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBidValidation(t *testing.T) {
	a := newAPI(t)
	a.passenger(t, http.MethodPost, "/v1/bidding/start", 1, echo.Map{"seat_number": "12A", "flight_id": "F1"})

	rec, body := a.passenger(t, http.MethodPost, "/v1/bidding/bid", 2, echo.Map{"bidding_id": "F1-12A", "bidder_seat_number": "9C"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "amount is required", body["error"])

	rec, _ = a.passenger(t, http.MethodPost, "/v1/bidding/bid", 2, echo.Map{"bidding_id": "F1-12A", "amount": -1, "bidder_seat_number": "9C"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = a.passenger(t, http.MethodPost, "/v1/bidding/bid", 2, echo.Map{"bidding_id": "F1-12A", "amount": "10000000000", "bidder_seat_number": "9C"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = a.passenger(t, http.MethodPost, "/v1/bidding/bid", 2, echo.Map{"bidding_id": "F1-12A", "amount": 1, "bidder_seat_number": strings.Repeat("9", 17)})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = a.passenger(t, http.MethodPost, "/v1/bidding/bid", 2, echo.Map{"bidding_id": "F1-12A", "bidder_id": 3, "amount": 1, "bidder_seat_number": "14B"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAcceptUnknownBidAsksForRefresh(t *testing.T) {
	a := newAPI(t)
	a.passenger(t, http.MethodPost, "/v1/bidding/start", 1, echo.Map{"seat_number": "12A", "flight_id": "F1"})

	rec, body := a.passenger(t, http.MethodPost, "/v1/bidding/accept", 1, echo.Map{"bidding_id": "F1-12A", "bid_id": "nope"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_state", body["code"])
	assert.Equal(t, true, body["refresh"])
}

func TestAcceptStorageFailure(t *testing.T) {
	a := newAPI(t)
	a.passenger(t, http.MethodPost, "/v1/bidding/start", 1, echo.Map{"seat_number": "12A", "flight_id": "F1"})
	_, body := a.passenger(t, http.MethodPost, "/v1/bidding/bid", 2, echo.Map{"bidding_id": "F1-12A", "amount": "10.00", "bidder_seat_number": "9C"})
	a.store.BeforeSwap = func(model.SeatSwap) error { return errors.New("connection reset") }

	rec, body := a.passenger(t, http.MethodPost, "/v1/bidding/accept", 1, echo.Map{"bidding_id": "F1-12A", "bid_id": body["bid_id"]})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "transaction_failed", body["code"])
	seat, _ := a.store.Seat("F1", 1)
	assert.Equal(t, "12A", seat)
}

func TestCancel(t *testing.T) {
	a := newAPI(t)
	a.passenger(t, http.MethodPost, "/v1/bidding/start", 1, echo.Map{"seat_number": "12A", "flight_id": "F1"})
	a.passenger(t, http.MethodPost, "/v1/bidding/start", 2, echo.Map{"seat_number": "9C", "flight_id": "F1"})

	rec, _ := a.passenger(t, http.MethodPost, "/v1/bidding/cancel", 3, echo.Map{"bidding_id": "F1-12A"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = a.passenger(t, http.MethodPost, "/v1/bidding/cancel", 1, echo.Map{"bidding_id": "F1-12A"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = a.do(t, http.MethodPost, "/v1/bidding/cancel", 99, model.RoleAdmin, echo.Map{"bidding_id": "F1-9C"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = a.passenger(t, http.MethodGet, "/v1/bidding/active/F1", 3, nil)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestRoutesRequireToken(t *testing.T) {
	a := newAPI(t)
	for _, path := range []string{"/v1/bidding/active/F1", "/v1/flights/F1"} {
		rec, _ := a.do(t, http.MethodGet, path, 0, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
	rec, body := a.passenger(t, http.MethodGet, "/v1/flights/F1", 1, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "AA", body["carrier_code"])
}

type pinger struct{ mock.Mock }

func (p *pinger) PingContext(ctx context.Context) error { return p.Called(ctx).Error(0) }

func TestHealth(t *testing.T) {
	e := echo.New()
	p := new(pinger)
	p.On("PingContext", mock.Anything).Return(nil).Once()
	p.On("PingContext", mock.Anything).Return(errors.New("gone")).Once()
	h := handler.Health(p)

	for _, want := range []int{http.StatusOK, http.StatusServiceUnavailable} {
		rec := httptest.NewRecorder()
		require.NoError(t, h(e.NewContext(httptest.NewRequest(http.MethodGet, "/healthz", nil), rec)))
		assert.Equal(t, want, rec.Code)
	}
	p.AssertExpectations(t)
}

func TestStream(t *testing.T) {
	a := newAPI(t)
	srv := httptest.NewServer(a.e)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/bidding/stream?access_token=" + token(t, 3, model.RolePassenger)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	require.NoError(t, conn.WriteJSON(echo.Map{"action": "join-flight", "flight_id": "F1"}))
	var reply map[string]any
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "joined", reply["event"])

	_, err = a.engine.Start(context.Background(), bidding.StartRequest{PassengerID: 1, SeatNumber: "12A", FlightID: "F1"})
	require.NoError(t, err)

	var ev struct {
		Event    string         `json:"event"`
		FlightID string         `json:"flight_id"`
		Data     map[string]any `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, notify.EventNewBid, ev.Event)
	assert.Equal(t, "F1", ev.FlightID)
	assert.Equal(t, "F1-12A", ev.Data["bidding_id"])

	require.NoError(t, conn.WriteJSON(echo.Map{"action": "dance", "flight_id": "F1"}))
	reply = nil
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "error", reply["event"])
}

func TestStreamRequiresToken(t *testing.T) {
	a := newAPI(t)
	srv := httptest.NewServer(a.e)
	defer srv.Close()

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/v1/bidding/stream", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
