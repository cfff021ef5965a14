package meetinghost_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proofmeet/internal/fault"
	"proofmeet/internal/meetinghost"
)

type hostStub struct {
	tokenCalls   atomic.Int64
	createCalls  atomic.Int64
	rejectFirst  atomic.Bool
	failCreates  bool
	failToken    bool
	currentToken string
}

func (h *hostStub) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		h.tokenCalls.Add(1)
		if h.failToken {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		h.currentToken = "tok-" + time.Now().Format("150405.000000000")
		json.NewEncoder(w).Encode(map[string]any{"access_token": h.currentToken, "expires_in": 3600})
	})
	mux.HandleFunc("/users/me/meetings", func(w http.ResponseWriter, r *http.Request) {
		h.createCalls.Add(1)
		if h.failCreates {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		if h.rejectFirst.CompareAndSwap(true, false) || r.Header.Get("Authorization") != "Bearer "+h.currentToken {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"id":         81234567890,
			"join_url":   "https://host.example.com/j/81234567890",
			"password":   "s3cret",
			"start_time": time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC).Format(time.RFC3339),
		})
	})
	return mux
}

func newClient(srv *httptest.Server) *meetinghost.Client {
	return meetinghost.New(srv.URL, srv.URL+"/oauth/token", "client", "secret", "account", false, 5*time.Second)
}

func TestCreateMeetingCachesToken(t *testing.T) {
	stub := &hostStub{}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	client := newClient(srv)
	opts := meetinghost.MeetingOptions{Topic: "test", DurationMinutes: 60}

	m, err := client.CreateMeeting(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, "81234567890", m.ExternalID)
	assert.Equal(t, "https://host.example.com/j/81234567890", m.JoinURL)
	assert.Equal(t, "s3cret", m.Password)

	_, err = client.CreateMeeting(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stub.tokenCalls.Load(), "second call reuses the cached token")
	assert.Equal(t, int64(2), stub.createCalls.Load())
}

func TestCreateMeetingRetriesOnceAfterAuthFailure(t *testing.T) {
	stub := &hostStub{}
	stub.rejectFirst.Store(true)
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	client := newClient(srv)
	m, err := client.CreateMeeting(context.Background(), meetinghost.MeetingOptions{Topic: "test", DurationMinutes: 30})
	require.NoError(t, err)
	assert.Equal(t, "81234567890", m.ExternalID)
	assert.Equal(t, int64(2), stub.tokenCalls.Load(), "rejected token forces one refresh")
	assert.Equal(t, int64(2), stub.createCalls.Load(), "exactly one retry")
}

func TestCreateMeetingHostErrors(t *testing.T) {
	t.Run("ServerErrorSurfacesAsUnavailable", func(t *testing.T) {
		stub := &hostStub{failCreates: true}
		srv := httptest.NewServer(stub.handler())
		defer srv.Close()

		_, err := newClient(srv).CreateMeeting(context.Background(), meetinghost.MeetingOptions{DurationMinutes: 30})
		assert.ErrorIs(t, err, fault.ErrHostUnavailable)
	})

	t.Run("BadCredentials", func(t *testing.T) {
		stub := &hostStub{failToken: true}
		srv := httptest.NewServer(stub.handler())
		defer srv.Close()

		_, err := newClient(srv).CreateMeeting(context.Background(), meetinghost.MeetingOptions{DurationMinutes: 30})
		assert.ErrorIs(t, err, fault.ErrAuth)
	})

	t.Run("InvalidDuration", func(t *testing.T) {
		stub := &hostStub{}
		srv := httptest.NewServer(stub.handler())
		defer srv.Close()

		_, err := newClient(srv).CreateMeeting(context.Background(), meetinghost.MeetingOptions{})
		assert.ErrorIs(t, err, fault.ErrInvalidInput)
	})
}

func TestSkipModeNeedsNoHost(t *testing.T) {
	client := meetinghost.New("", "", "", "", "", true, time.Second)
	m, err := client.CreateMeeting(context.Background(), meetinghost.MeetingOptions{DurationMinutes: 60, StartDelay: 5 * time.Minute})
	require.NoError(t, err)
	assert.NotEmpty(t, m.ExternalID)
	assert.NotEmpty(t, m.JoinURL)
	assert.NoError(t, client.Health(context.Background()))
}
