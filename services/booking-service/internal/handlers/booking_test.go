package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/masterparty/platform/libs/auth"
	"github.com/masterparty/platform/services/booking-service/internal/availability"
	"github.com/masterparty/platform/services/booking-service/internal/booking"
	"github.com/masterparty/platform/services/booking-service/internal/model"
	"github.com/masterparty/platform/services/booking-service/internal/scheduling"
	"github.com/shopspring/decimal"
)

type memStore struct {
	mu          sync.Mutex
	bookings    map[string]model.Booking
	idempotency map[string]string
	events      []string
}

func newMemStore() *memStore {
	return &memStore{bookings: map[string]model.Booking{}, idempotency: map[string]string{}}
}

func (m *memStore) Create(_ context.Context, b model.Booking, key string) (model.Booking, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if key != "" {
		if id, ok := m.idempotency[b.ClientID+"/"+key]; ok {
			return m.bookings[id], true, nil
		}
	}
	for _, other := range m.bookings {
		if other.ServiceID != b.ServiceID || other.BookingDate != b.BookingDate || !other.Status.Holds() {
			continue
		}
		for _, s := range b.TimeSlots {
			if slices.Contains(other.TimeSlots, s) {
				return model.Booking{}, false, booking.ErrSlotTaken
			}
		}
	}
	b.ID = fmt.Sprintf("b-%d", len(m.bookings)+1)
	m.bookings[b.ID] = b
	if key != "" {
		m.idempotency[b.ClientID+"/"+key] = b.ID
	}
	m.events = append(m.events, model.EventFor(b.Status))
	return b, false, nil
}

func (m *memStore) Get(_ context.Context, id string) (model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return model.Booking{}, booking.ErrNotFound
	}
	return b, nil
}

func (m *memStore) Transition(_ context.Context, id string, decide func(model.Booking) (model.Status, error)) (model.Booking, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return model.Booking{}, false, booking.ErrNotFound
	}
	next, err := decide(b)
	if err != nil {
		return model.Booking{}, false, err
	}
	if next == b.Status {
		return b, false, nil
	}
	b.Status = next
	m.bookings[id] = b
	m.events = append(m.events, model.EventFor(next))
	return b, true, nil
}

func (m *memStore) filter(keep func(model.Booking) bool) []model.Booking {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Booking{}
	for _, b := range m.bookings {
		if keep(b) {
			out = append(out, b)
		}
	}
	slices.SortFunc(out, func(a, b model.Booking) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out
}

func (m *memStore) ListByClient(_ context.Context, clientID string, _ int) ([]model.Booking, error) {
	return m.filter(func(b model.Booking) bool { return b.ClientID == clientID }), nil
}

func (m *memStore) ListByVendor(_ context.Context, vendorID string, status model.Status, _ int) ([]model.Booking, error) {
	return m.filter(func(b model.Booking) bool {
		return b.VendorID == vendorID && (status == "" || b.Status == status)
	}), nil
}

func (m *memStore) HeldSlots(_ context.Context, serviceID, date string) ([]string, error) {
	var out []string
	for _, b := range m.filter(func(b model.Booking) bool {
		return b.ServiceID == serviceID && b.BookingDate == date && b.Status.Holds()
	}) {
		out = append(out, b.TimeSlots...)
	}
	return out, nil
}

type stubCatalog map[string]scheduling.DayContext

func (s stubCatalog) DayContext(_ context.Context, serviceID, date string) (scheduling.DayContext, error) {
	day, ok := s[serviceID]
	if !ok {
		return scheduling.DayContext{}, scheduling.ErrServiceNotFound
	}
	day.Date = date
	return day, nil
}

type caller struct {
	userID string
	roles  []string
}

var (
	client  = caller{userID: "u-client", roles: []string{auth.RoleClient}}
	client2 = caller{userID: "u-client2", roles: []string{auth.RoleClient}}
	vendor  = caller{userID: "u-vendor", roles: []string{auth.RoleClient, auth.RoleProvider}}
	other   = caller{userID: "u-other", roles: []string{auth.RoleClient, auth.RoleProvider}}
)

type fixture struct {
	store *memStore
	mux   *http.ServeMux
}

func newFixture() *fixture {
	catalog := stubCatalog{
		"svc-1": {
			ServiceID: "svc-1", VendorID: "u-vendor", VendorEmail: "vendor@example.com",
			ServiceName: "Jardín Luna", BusinessName: "Luna", IsActive: true,
			Packages:     []scheduling.Package{{Name: "Tarde", DurationHours: 1, Price: decimal.NewFromInt(1000)}},
			BlockedSlots: []string{"18:00"},
		},
		"svc-off": {ServiceID: "svc-off", VendorID: "u-vendor", IsActive: false},
	}
	store := newMemStore()
	h := NewBookingHandler(store, catalog, slog.New(slog.NewTextHandler(io.Discard, nil)))
	h.now = func() time.Time { return time.Date(2030, 6, 1, 12, 0, 0, 0, time.UTC) }
	mux := http.NewServeMux()
	h.Register(mux)
	return &fixture{store: store, mux: mux}
}

func (f *fixture) do(t *testing.T, who caller, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var raw []byte
	if body != nil {
		var err error
		if raw, err = json.Marshal(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	return f.serve(who, method, path, raw, headers...)
}

func (f *fixture) serve(who caller, method, path string, body []byte, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if who.userID != "" {
		auth.SetIdentityHeaders(req.Header, &auth.Claims{Sub: who.userID, Email: who.userID + "@example.com", Roles: who.roles})
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rw := httptest.NewRecorder()
	f.mux.ServeHTTP(rw, req)
	return rw
}

func decodeBody[T any](t *testing.T, rw *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rw.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rw.Body.String(), err)
	}
	return out
}

func request(start string) map[string]any {
	return map[string]any{"service_id": "svc-1", "package_name": "Tarde", "booking_date": "2030-06-10", "start_slot": start}
}

func TestCreateBooking(t *testing.T) {
	f := newFixture()

	rw := f.do(t, client, http.MethodPost, "/api/v1/bookings", request("10:00"))
	if rw.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d %s", rw.Code, rw.Body.String())
	}
	b := decodeBody[model.Booking](t, rw)
	if b.Status != model.StatusPending || !slices.Equal(b.TimeSlots, []string{"10:00", "10:30"}) || b.ClientEmail != "u-client@example.com" {
		t.Fatalf("unexpected booking %+v", b)
	}
	if !slices.Equal(f.store.events, []string{model.EventRequested}) {
		t.Fatalf("unexpected events %v", f.store.events)
	}
}

func TestCreateBookingRejections(t *testing.T) {
	f := newFixture()
	if rw := f.do(t, client, http.MethodPost, "/api/v1/bookings", request("10:00")); rw.Code != http.StatusCreated {
		t.Fatalf("seed booking: %d", rw.Code)
	}

	tests := []struct {
		name string
		who  caller
		body map[string]any
		want int
	}{
		{"anonymous", caller{}, request("12:00"), http.StatusUnauthorized},
		{"overlap", client2, request("10:30"), http.StatusConflict},
		{"blocked", client2, request("17:30"), http.StatusConflict},
		{"past", client2, map[string]any{"service_id": "svc-1", "package_name": "Tarde", "booking_date": "2030-05-01", "start_slot": "10:00"}, http.StatusBadRequest},
		{"started today", client2, map[string]any{"service_id": "svc-1", "package_name": "Tarde", "booking_date": "2030-06-01", "start_slot": "10:00"}, http.StatusBadRequest},
		{"unknown package", client2, map[string]any{"service_id": "svc-1", "package_name": "Noche", "booking_date": "2030-06-10", "start_slot": "10:00"}, http.StatusBadRequest},
		{"inactive", client2, map[string]any{"service_id": "svc-off", "package_name": "Tarde", "booking_date": "2030-06-10", "start_slot": "10:00"}, http.StatusUnprocessableEntity},
		{"unknown service", client2, map[string]any{"service_id": "nope", "package_name": "Tarde", "booking_date": "2030-06-10", "start_slot": "10:00"}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rw := f.do(t, tt.who, http.MethodPost, "/api/v1/bookings", tt.body); rw.Code != tt.want {
				t.Fatalf("expected %d, got %d %s", tt.want, rw.Code, rw.Body.String())
			}
		})
	}
}

func TestCreateBookingConcurrentSameSlot(t *testing.T) {
	f := newFixture()
	body, _ := json.Marshal(request("14:00"))
	codes := make(chan int, 2)
	var wg sync.WaitGroup
	for _, who := range []caller{client, client2} {
		wg.Add(1)
		go func(who caller) {
			defer wg.Done()
			codes <- f.serve(who, http.MethodPost, "/api/v1/bookings", body).Code
		}(who)
	}
	wg.Wait()
	close(codes)
	var got []int
	for c := range codes {
		got = append(got, c)
	}
	slices.Sort(got)
	if !slices.Equal(got, []int{http.StatusCreated, http.StatusConflict}) {
		t.Fatalf("expected one 201 and one 409, got %v", got)
	}
}

func TestCreateBookingIdempotent(t *testing.T) {
	f := newFixture()
	first := decodeBody[model.Booking](t, f.do(t, client, http.MethodPost, "/api/v1/bookings", request("09:00"), "Idempotency-Key", "abc"))
	rw := f.do(t, client, http.MethodPost, "/api/v1/bookings", request("09:00"), "Idempotency-Key", "abc")
	if rw.Code != http.StatusCreated {
		t.Fatalf("expected replayed 201, got %d", rw.Code)
	}
	if again := decodeBody[model.Booking](t, rw); again.ID != first.ID {
		t.Fatalf("expected same booking, got %s and %s", first.ID, again.ID)
	}
	if len(f.store.bookings) != 1 {
		t.Fatalf("expected a single booking, got %d", len(f.store.bookings))
	}
}

func TestVendorTransitions(t *testing.T) {
	f := newFixture()
	b := decodeBody[model.Booking](t, f.do(t, client, http.MethodPost, "/api/v1/bookings", request("10:00")))

	if rw := f.do(t, client, http.MethodPost, "/api/v1/vendor/bookings/"+b.ID+"/accept", nil); rw.Code != http.StatusForbidden {
		t.Fatalf("client cannot accept, got %d", rw.Code)
	}
	if rw := f.do(t, other, http.MethodPost, "/api/v1/vendor/bookings/"+b.ID+"/accept", nil); rw.Code != http.StatusNotFound {
		t.Fatalf("other vendor should get 404, got %d", rw.Code)
	}
	rw := f.do(t, vendor, http.MethodPost, "/api/v1/vendor/bookings/"+b.ID+"/accept", nil)
	if got := decodeBody[model.Booking](t, rw); got.Status != model.StatusAccepted {
		t.Fatalf("expected accepted, got %s", got.Status)
	}
	if rw := f.do(t, vendor, http.MethodPost, "/api/v1/vendor/bookings/"+b.ID+"/reject", nil); rw.Code != http.StatusConflict {
		t.Fatalf("cannot reject an accepted booking, got %d", rw.Code)
	}
	if rw := f.do(t, client, http.MethodPost, "/api/v1/bookings/"+b.ID+"/cancel", nil); rw.Code != http.StatusConflict {
		t.Fatalf("cannot cancel an accepted booking, got %d", rw.Code)
	}

	list := decodeBody[[]model.Booking](t, f.do(t, vendor, http.MethodGet, "/api/v1/vendor/bookings?status=accepted", nil))
	if len(list) != 1 || list[0].ID != b.ID {
		t.Fatalf("unexpected vendor list %+v", list)
	}
	if rw := f.do(t, vendor, http.MethodGet, "/api/v1/vendor/bookings?status=bogus", nil); rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", rw.Code)
	}
}

func TestClientCancel(t *testing.T) {
	f := newFixture()
	b := decodeBody[model.Booking](t, f.do(t, client, http.MethodPost, "/api/v1/bookings", request("10:00")))

	if rw := f.do(t, client2, http.MethodPost, "/api/v1/bookings/"+b.ID+"/cancel", nil); rw.Code != http.StatusNotFound {
		t.Fatalf("other client should get 404, got %d", rw.Code)
	}
	for i := 0; i < 2; i++ {
		rw := f.do(t, client, http.MethodPost, "/api/v1/bookings/"+b.ID+"/cancel", nil)
		if got := decodeBody[model.Booking](t, rw); rw.Code != http.StatusOK || got.Status != model.StatusCanceledByClient {
			t.Fatalf("cancel #%d: %d %+v", i+1, rw.Code, got)
		}
	}
	if !slices.Equal(f.store.events, []string{model.EventRequested, model.EventCanceled}) {
		t.Fatalf("repeated cancel must not emit again, events %v", f.store.events)
	}
	if rw := f.do(t, client2, http.MethodPost, "/api/v1/bookings", request("10:00")); rw.Code != http.StatusCreated {
		t.Fatalf("canceled booking should free its slots, got %d", rw.Code)
	}

	mine := decodeBody[[]model.Booking](t, f.do(t, client, http.MethodGet, "/api/v1/bookings/mine", nil))
	if len(mine) != 1 {
		t.Fatalf("expected one booking for client, got %d", len(mine))
	}
}

func TestGetBooking(t *testing.T) {
	f := newFixture()
	b := decodeBody[model.Booking](t, f.do(t, client, http.MethodPost, "/api/v1/bookings", request("10:00")))
	for _, tt := range []struct {
		who  caller
		want int
	}{
		{client, http.StatusOK},
		{vendor, http.StatusOK},
		{client2, http.StatusNotFound},
	} {
		if rw := f.do(t, tt.who, http.MethodGet, "/api/v1/bookings/"+b.ID, nil); rw.Code != tt.want {
			t.Fatalf("%s: expected %d, got %d", tt.who.userID, tt.want, rw.Code)
		}
	}
}

func TestDayAvailability(t *testing.T) {
	f := newFixture()
	f.do(t, client, http.MethodPost, "/api/v1/bookings", request("10:00"))

	rw := f.do(t, caller{}, http.MethodGet, "/api/v1/public/services/svc-1/availability?date=2030-06-10&package=tarde", nil)
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rw.Code, rw.Body.String())
	}
	day := decodeBody[availability.Day](t, rw)
	for _, s := range day.Slots {
		busy := s.Slot == "10:00" || s.Slot == "10:30" || s.Slot == "18:00"
		if s.Free == busy {
			t.Fatalf("slot %s free=%v", s.Slot, s.Free)
		}
	}
	for _, start := range []string{"09:30", "10:00", "10:30", "17:30", "18:00"} {
		if slices.Contains(day.StartSlots, start) {
			t.Fatalf("%s must not be a valid start", start)
		}
	}

	if rw := f.do(t, caller{}, http.MethodGet, "/api/v1/public/services/svc-1/availability?date=junio", nil); rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rw.Code)
	}
	if rw := f.do(t, caller{}, http.MethodGet, "/api/v1/public/services/svc-off/availability?date=2030-06-10", nil); rw.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for inactive service, got %d", rw.Code)
	}
	if rw := f.do(t, caller{}, http.MethodGet, "/api/v1/public/services/svc-1/availability?date=2030-06-10&package=x", nil); rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown package, got %d", rw.Code)
	}
}
