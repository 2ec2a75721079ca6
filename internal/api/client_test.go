package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func staticToken(token string) func(context.Context) (string, error) {
	return func(context.Context) (string, error) { return token, nil }
}

func TestConfirmAppointmentSendsIntent(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]bool

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, staticToken("tok"), time.Second)
	if err := c.ConfirmAppointment(context.Background(), 42, false); err != nil {
		t.Fatalf("ConfirmAppointment: %v", err)
	}

	if gotPath != "/api/bookings/42/confirm-appointment" {
		t.Errorf("Unexpected path %s", gotPath)
	}
	if gotAuth != "Bearer tok" {
		t.Errorf("Unexpected Authorization %q", gotAuth)
	}
	if confirmed, ok := gotBody["confirmed"]; !ok || confirmed {
		t.Errorf("Expected confirmed=false in body, got %v", gotBody)
	}
}

func TestStatusKinds(t *testing.T) {
	cases := []struct {
		status int
		kind   Kind
	}{
		{http.StatusUnauthorized, KindAuth},
		{http.StatusNotFound, KindNotFound},
		{http.StatusBadRequest, KindValidation},
		{http.StatusInternalServerError, KindOther},
	}

	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))

		c := NewClient(srv.URL, staticToken("tok"), time.Second)
		err := c.ConfirmAppointment(context.Background(), 1, true)
		srv.Close()

		if got := KindOf(err); got != tc.kind {
			t.Errorf("status %d: expected kind %d, got %d (%v)", tc.status, tc.kind, got, err)
		}
	}
}

func TestConnectivityFailureIsStatusZero(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewClient(url, staticToken("tok"), time.Second)
	err := c.ConfirmAppointment(context.Background(), 1, true)

	var se *StatusError
	if !errors.As(err, &se) || se.Status != 0 {
		t.Fatalf("Expected StatusError with status 0, got %v", err)
	}
	if se.Kind() != KindConnectivity {
		t.Errorf("Expected connectivity kind, got %d", se.Kind())
	}
}

func TestMissingTokenIsAuthError(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", func(context.Context) (string, error) {
		return "", errors.New("no token")
	}, time.Second)

	_, err := c.GetNotifications(context.Background())
	if !IsAuthError(err) {
		t.Errorf("Expected auth error, got %v", err)
	}
}

func TestGetNotificationsDecodesRawEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":5,"message":"Booking created","type":0,"isRead":false,
			"createdAt":"2026-10-18T10:00:00Z","bookingId":42}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, staticToken("tok"), time.Second)
	events, err := c.GetNotifications(context.Background())
	if err != nil {
		t.Fatalf("GetNotifications: %v", err)
	}
	if len(events) != 1 || events[0].ID != 5 || events[0].BookingID == nil || *events[0].BookingID != 42 {
		t.Errorf("Unexpected events %+v", events)
	}
}
