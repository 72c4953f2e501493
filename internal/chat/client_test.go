package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slotbook/internal/model"
)

func TestClient_CreateRoom(t *testing.T) {
	var got CreateRoomRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/rooms", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		assert.Equal(t, "booking-42", r.Header.Get("Idempotency-Key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(CreateRoomResponse{RoomID: "room-42"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret", time.Second, 100)
	start := time.Date(2030, 3, 4, 9, 0, 0, 0, time.UTC)
	roomID, err := c.CreateRoom(context.Background(), model.Booking{
		ID: 42, ServiceID: 1, ClientID: 7, ScheduledAt: start, EndAt: start.Add(time.Hour),
	})
	require.NoError(t, err)

	assert.Equal(t, "room-42", roomID)
	assert.Equal(t, int64(42), got.BookingID)
	assert.Equal(t, int64(7), got.ClientID)
	assert.True(t, got.ScheduledAt.Equal(start))
}

func TestClient_CreateRoomErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantErr error
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
		},
		{
			name: "empty room",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{}`))
			},
			wantErr: ErrEmptyRoom,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			c := NewClient(srv.URL, "", time.Second, 100)
			_, err := c.CreateRoom(context.Background(), model.Booking{ID: 1})
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestClient_HealthCheck(t *testing.T) {
	healthy := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/healthz", r.URL.Path)
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second, 100)
	assert.NoError(t, c.HealthCheck(context.Background()))

	healthy = false
	assert.Error(t, c.HealthCheck(context.Background()))
}
