package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"carrental/internal/auth"
	"carrental/internal/config"
	"carrental/internal/database"
	"carrental/internal/models"
	"carrental/internal/service"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testAuth = config.AuthConfig{JWTSecret: "test-secret", Issuer: "carrental", TokenTTL: time.Hour}

type staticRates map[string]float64

func (s staticRates) FetchRates(_ context.Context, base string) (*models.Rates, error) {
	return &models.Rates{Base: base, Values: s}, nil
}

type testEnv struct {
	ts *httptest.Server
	db *database.DB
}

func newTestEnv(t *testing.T, limits config.APIRateLimitConfig) *testEnv {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(filepath.Join(t.TempDir(), "api.db"), &logger)
	if err != nil {
		t.Fatalf("new db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	svc := Services{
		Cars:      service.NewCarService(db, nil, nil, &logger),
		Bookings:  service.NewBookingService(db, nil, nil, nil, service.BookingLimits{}, &logger),
		Payments:  service.NewPaymentService(db, nil, &logger),
		Dashboard: service.NewDashboardService(db, &logger),
		Rates:     service.NewRatesService(staticRates{"RSD": 117}, nil, time.Minute, &logger),
	}
	h := NewHandler(svc, testAuth, limits, db, &logger)
	srv := NewHTTPServer(config.APIConfig{HTTP: config.APIHTTPConfig{Port: 0}}, h.Routes(), &logger)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{ts: ts, db: db}
}

func token(t *testing.T, userID, role string) string {
	t.Helper()
	tok, err := auth.Issue(testAuth.JWTSecret, testAuth.Issuer, userID, role, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return tok
}

type apiResponse struct {
	status int
	header http.Header
	body   map[string]any
}

func (e *testEnv) do(t *testing.T, method, path, tok string, body any) apiResponse {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, e.ts.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	out := apiResponse{status: resp.StatusCode, header: resp.Header}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(resp.Body).Decode(&out.body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
	}
	return out
}

func (e *testEnv) addCar(t *testing.T, ownerTok, location string, price float64) int64 {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/owner/cars", ownerTok, map[string]any{
		"brand": "Skoda", "model": "Fabia", "location": location, "pricePerDay": price,
	})
	require.Equal(t, http.StatusCreated, resp.status, "%v", resp.body)
	return int64(resp.body["car"].(map[string]any)["id"].(float64))
}

func (e *testEnv) book(t *testing.T, tok string, carID int64, pickup, ret string) apiResponse {
	t.Helper()
	return e.do(t, http.MethodPost, "/bookings", tok, map[string]any{
		"carId": carID, "pickupDate": pickup, "returnDate": ret,
	})
}

func TestHealthAndReadiness(t *testing.T) {
	env := newTestEnv(t, config.APIRateLimitConfig{})

	resp := env.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.status)
	assert.Equal(t, true, resp.body["success"])
	assert.NotEmpty(t, resp.header.Get(requestIDHeader))

	resp = env.do(t, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, resp.status)

	require.NoError(t, env.db.Close())
	resp = env.do(t, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.status)
	assert.Equal(t, false, resp.body["success"])
}

func TestCheckAvailability(t *testing.T) {
	env := newTestEnv(t, config.APIRateLimitConfig{})
	owner := token(t, "owner-1", models.RoleOwner)
	renter := token(t, "renter-1", models.RoleUser)
	free := env.addCar(t, owner, "Belgrade", 50)
	taken := env.addCar(t, owner, "Belgrade", 70)
	env.addCar(t, owner, "Nis", 40)

	require.Equal(t, http.StatusCreated, env.book(t, renter, taken, "2026-07-01", "2026-07-05").status)

	body := map[string]any{"pickupLocation": "belgrade", "pickupDate": "2026-07-05", "returnDate": "2026-07-08"}
	resp := env.do(t, http.MethodPost, "/bookings/check-availability", "", body)
	require.Equal(t, http.StatusOK, resp.status)
	assert.Equal(t, true, resp.body["success"])
	assert.NotEmpty(t, resp.body["message"])
	cars := resp.body["availableCars"].([]any)
	require.Len(t, cars, 1)
	assert.Equal(t, float64(free), cars[0].(map[string]any)["id"])

	again := env.do(t, http.MethodPost, "/api/v1/bookings/check-availability", "", body)
	assert.Equal(t, resp.body["availableCars"], again.body["availableCars"])

	resp = env.do(t, http.MethodPost, "/bookings/check-availability", "", map[string]any{
		"pickupLocation": "Belgrade", "pickupDate": "2026-07-08", "returnDate": "2026-07-05",
	})
	assert.Equal(t, http.StatusBadRequest, resp.status)
	assert.Equal(t, "INVALID_DATE_RANGE", resp.body["code"])
	assert.Equal(t, false, resp.body["success"])

	resp = env.do(t, http.MethodPost, "/bookings/check-availability", "", `{"pickupLocation":"x","pickupDate":"2026-07-40","returnDate":"2026-07-41"}`)
	assert.Equal(t, http.StatusBadRequest, resp.status)
	assert.Equal(t, "INVALID_DATE_RANGE", resp.body["code"])

	resp = env.do(t, http.MethodPost, "/bookings/check-availability", "", `{"location":"x"}`)
	assert.Equal(t, http.StatusBadRequest, resp.status)
	assert.Equal(t, "INVALID_INPUT", resp.body["code"])
}

func TestBookingLifecycle(t *testing.T) {
	env := newTestEnv(t, config.APIRateLimitConfig{})
	owner := token(t, "owner-1", models.RoleOwner)
	renter := token(t, "renter-1", models.RoleUser)
	other := token(t, "renter-2", models.RoleUser)
	carID := env.addCar(t, owner, "Novi Sad", 100)

	resp := env.book(t, "", carID, "2026-02-01", "2026-02-07")
	assert.Equal(t, http.StatusUnauthorized, resp.status)

	resp = env.book(t, renter, carID, "2026-02-01", "2026-02-07")
	require.Equal(t, http.StatusCreated, resp.status, "%v", resp.body)
	booking := resp.body["booking"].(map[string]any)
	assert.Equal(t, 600.0, booking["price"])
	assert.Equal(t, models.StatusPending, booking["status"])
	assert.Equal(t, "owner-1", booking["owner_id"])
	assert.Equal(t, "2026-02-01", booking["pickup_date"])
	assert.Equal(t, "2026-02-07", booking["return_date"])
	bookingID := int64(booking["id"].(float64))

	resp = env.book(t, other, carID, "2026-02-07", "2026-02-09")
	assert.Equal(t, http.StatusConflict, resp.status)
	assert.Equal(t, "CAR_UNAVAILABLE", resp.body["code"])

	resp = env.book(t, other, 9999, "2026-02-07", "2026-02-09")
	assert.Equal(t, http.StatusNotFound, resp.status)

	resp = env.book(t, other, carID, "2026-02-09", "2026-02-07")
	assert.Equal(t, http.StatusBadRequest, resp.status)
	assert.Equal(t, "INVALID_DATE_RANGE", resp.body["code"])

	statusPath := "/bookings/" + itoa(bookingID) + "/status"
	resp = env.do(t, http.MethodPost, statusPath, renter, map[string]any{"status": "confirmed"})
	assert.Equal(t, http.StatusForbidden, resp.status)
	assert.Equal(t, "FORBIDDEN", resp.body["code"])

	for _, status := range []string{"foo", "approved", ""} {
		resp = env.do(t, http.MethodPost, statusPath, owner, map[string]any{"status": status})
		assert.Equal(t, http.StatusBadRequest, resp.status, status)
		assert.Equal(t, "INVALID_INPUT", resp.body["code"], status)
	}

	resp = env.do(t, http.MethodPost, statusPath, owner, map[string]any{"status": "PENDING"})
	assert.Equal(t, http.StatusConflict, resp.status)
	assert.Equal(t, "INVALID_TRANSITION", resp.body["code"])

	resp = env.do(t, http.MethodPost, statusPath, owner, map[string]any{"status": "Confirmed"})
	require.Equal(t, http.StatusOK, resp.status, "%v", resp.body)
	assert.Equal(t, models.StatusConfirmed, resp.body["booking"].(map[string]any)["status"])

	resp = env.do(t, http.MethodPost, statusPath, owner, map[string]any{"status": "pending"})
	assert.Equal(t, http.StatusConflict, resp.status)
	assert.Equal(t, "INVALID_TRANSITION", resp.body["code"])

	resp = env.do(t, http.MethodGet, "/bookings?role=owner", owner, nil)
	require.Equal(t, http.StatusOK, resp.status)
	assert.Len(t, resp.body["bookings"].([]any), 1)

	resp = env.do(t, http.MethodGet, "/api/v1/bookings?role=user", other, nil)
	require.Equal(t, http.StatusOK, resp.status)
	assert.Len(t, resp.body["bookings"].([]any), 0)

	resp = env.do(t, http.MethodGet, "/bookings?role=admin", renter, nil)
	assert.Equal(t, http.StatusBadRequest, resp.status)

	resp = env.do(t, http.MethodGet, "/bookings/"+itoa(bookingID), other, nil)
	assert.Equal(t, http.StatusForbidden, resp.status)
	resp = env.do(t, http.MethodGet, "/bookings/abc", renter, nil)
	assert.Equal(t, http.StatusBadRequest, resp.status)
}

func TestPayments(t *testing.T) {
	env := newTestEnv(t, config.APIRateLimitConfig{})
	owner := token(t, "owner-1", models.RoleOwner)
	renter := token(t, "renter-1", models.RoleUser)
	carID := env.addCar(t, owner, "Nis", 100)

	resp := env.book(t, renter, carID, "2026-03-01", "2026-03-01")
	require.Equal(t, http.StatusCreated, resp.status)
	booking := resp.body["booking"].(map[string]any)
	assert.Equal(t, 100.0, booking["price"])
	bookingID := booking["id"]

	resp = env.do(t, http.MethodPost, "/payments", owner, map[string]any{"bookingId": bookingID, "amount": 100})
	assert.Equal(t, http.StatusForbidden, resp.status)

	resp = env.do(t, http.MethodPost, "/payments", renter, map[string]any{"bookingId": bookingID})
	assert.Equal(t, http.StatusBadRequest, resp.status)
	assert.Equal(t, "INVALID_INPUT", resp.body["code"])

	resp = env.do(t, http.MethodPost, "/payments", renter, map[string]any{"bookingId": bookingID, "amount": 100, "method": "BITCOIN"})
	assert.Equal(t, http.StatusBadRequest, resp.status)
	assert.Equal(t, "INVALID_INPUT", resp.body["code"])

	resp = env.do(t, http.MethodPost, "/payments", renter, map[string]any{"bookingId": bookingID, "amount": 100, "currency": "GBP"})
	assert.Equal(t, http.StatusBadRequest, resp.status)
	assert.Equal(t, "INVALID_INPUT", resp.body["code"])

	resp = env.do(t, http.MethodPost, "/payments", renter, map[string]any{
		"bookingId": bookingID, "amount": 100, "method": "Cash", "currency": "Rsd",
	})
	require.Equal(t, http.StatusCreated, resp.status, "%v", resp.body)
	payment := resp.body["payment"].(map[string]any)
	assert.Equal(t, models.PaymentPending, payment["status"])
	assert.Equal(t, models.MethodCash, payment["method"])
	assert.Equal(t, models.CurrencyRSD, payment["currency"])

	resp = env.do(t, http.MethodPost, "/payments", renter, map[string]any{"bookingId": bookingID, "amount": 100})
	assert.Equal(t, http.StatusConflict, resp.status)
	assert.Equal(t, "PAYMENT_ALREADY_EXISTS", resp.body["code"])
	assert.Equal(t, payment["id"], resp.body["payment"].(map[string]any)["id"])

	resp = env.do(t, http.MethodGet, "/payments/"+itoa(int64(payment["id"].(float64))), owner, nil)
	assert.Equal(t, http.StatusOK, resp.status)

	resp = env.do(t, http.MethodPost, "/payments", renter, map[string]any{"bookingId": 424242, "amount": 1})
	assert.Equal(t, http.StatusNotFound, resp.status)
}

func TestOwnerRoutes(t *testing.T) {
	env := newTestEnv(t, config.APIRateLimitConfig{})
	owner := token(t, "owner-1", models.RoleOwner)
	renter := token(t, "renter-1", models.RoleUser)
	carID := env.addCar(t, owner, "Kragujevac", 30)

	resp := env.do(t, http.MethodPost, "/owner/cars", renter, map[string]any{"brand": "Fiat", "location": "Nis", "pricePerDay": 10})
	assert.Equal(t, http.StatusForbidden, resp.status)

	resp = env.do(t, http.MethodPost, "/owner/cars", owner, map[string]any{"brand": "Fiat", "location": "Nis"})
	assert.Equal(t, http.StatusBadRequest, resp.status)

	require.Equal(t, http.StatusCreated, env.book(t, renter, carID, "2026-05-01", "2026-05-02").status)
	require.Equal(t, http.StatusCreated, env.book(t, renter, carID, "2026-05-10", "2026-05-12").status)

	resp = env.do(t, http.MethodGet, "/owner/dashboard", owner, nil)
	require.Equal(t, http.StatusOK, resp.status)
	dash := resp.body["dashboardData"].(map[string]any)
	assert.Equal(t, 1.0, dash["total_cars"])
	assert.Equal(t, 2.0, dash["pending_bookings"])

	req, _ := http.NewRequest(http.MethodGet, env.ts.URL+"/owner/bookings/export", nil)
	req.Header.Set("Authorization", "Bearer "+owner)
	raw, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	payload, _ := io.ReadAll(raw.Body)
	raw.Body.Close()
	assert.Equal(t, http.StatusOK, raw.StatusCode)
	assert.Contains(t, raw.Header.Get("Content-Disposition"), ".xlsx")
	assert.True(t, bytes.HasPrefix(payload, []byte("PK")), "xlsx is a zip archive")

	resp = env.do(t, http.MethodPost, "/owner/cars/"+itoa(carID)+"/toggle", owner, nil)
	require.Equal(t, http.StatusOK, resp.status)
	assert.Equal(t, false, resp.body["car"].(map[string]any)["is_available"])
	resp = env.do(t, http.MethodPost, "/owner/cars/"+itoa(carID)+"/toggle", owner, nil)
	assert.Equal(t, true, resp.body["car"].(map[string]any)["is_available"])

	resp = env.do(t, http.MethodGet, "/owner/cars", owner, nil)
	assert.Len(t, resp.body["cars"].([]any), 1)

	resp = env.do(t, http.MethodDelete, "/owner/cars/"+itoa(carID), renter, nil)
	assert.Equal(t, http.StatusForbidden, resp.status)

	resp = env.do(t, http.MethodDelete, "/owner/cars/"+itoa(carID), owner, nil)
	require.Equal(t, http.StatusOK, resp.status)
	assert.Len(t, resp.body["cancelledBookings"].([]any), 2)

	resp = env.do(t, http.MethodGet, "/bookings?role=user", renter, nil)
	for _, b := range resp.body["bookings"].([]any) {
		assert.Equal(t, models.StatusCancelled, b.(map[string]any)["status"])
	}

	resp = env.do(t, http.MethodGet, "/cars/"+itoa(carID), "", nil)
	assert.Equal(t, http.StatusNotFound, resp.status)
}

func TestCatalogAndConvert(t *testing.T) {
	env := newTestEnv(t, config.APIRateLimitConfig{})
	owner := token(t, "owner-1", models.RoleOwner)
	carID := env.addCar(t, owner, "Subotica", 45)

	resp := env.do(t, http.MethodGet, "/cars?location=subotica", "", nil)
	require.Equal(t, http.StatusOK, resp.status)
	assert.Len(t, resp.body["cars"].([]any), 1)

	resp = env.do(t, http.MethodGet, "/cars/"+itoa(carID), "", nil)
	assert.Equal(t, http.StatusOK, resp.status)

	resp = env.do(t, http.MethodGet, "/integrations/convert?amount=10&from=EUR&to=RSD", "", nil)
	require.Equal(t, http.StatusOK, resp.status)
	assert.Equal(t, 1170.0, resp.body["conversion"].(map[string]any)["converted"])

	resp = env.do(t, http.MethodGet, "/integrations/convert?amount=ten&from=EUR&to=RSD", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.status)

	resp = env.do(t, http.MethodGet, "/nowhere", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.status)
	assert.Equal(t, false, resp.body["success"])
}

func TestThrottle(t *testing.T) {
	env := newTestEnv(t, config.APIRateLimitConfig{RPS: 0.001, Burst: 2})

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/healthz", "", nil).status)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/healthz", "", nil).status)
	resp := env.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.status)
	assert.Equal(t, "RATE_LIMITED", resp.body["code"])
}

func TestInvalidToken(t *testing.T) {
	env := newTestEnv(t, config.APIRateLimitConfig{})
	forged, err := auth.Issue("other-secret", testAuth.Issuer, "renter-1", models.RoleUser, time.Hour)
	require.NoError(t, err)

	resp := env.do(t, http.MethodGet, "/bookings", forged, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.status)
	assert.Equal(t, "UNAUTHORIZED", resp.body["code"])
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
