// Package chat provisions conversation rooms for confirmed bookings on an
// external chat service.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"slotbook/internal/model"
)

// ErrEmptyRoom is returned when the chat service answers without a room id.
var ErrEmptyRoom = errors.New("chat service returned no room id")

// Client is a simple HTTP client of the chat service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// CreateRoomRequest is the body of POST /api/rooms.
type CreateRoomRequest struct {
	BookingID   int64     `json:"booking_id"`
	ServiceID   int64     `json:"service_id"`
	ClientID    int64     `json:"client_id"`
	ScheduledAt time.Time `json:"scheduled_at"`
	EndAt       time.Time `json:"end_at"`
}

// CreateRoomResponse is the answer of POST /api/rooms.
type CreateRoomResponse struct {
	RoomID string `json:"room_id"`
}

// NewClient constructs a client with baseURL and API key. Outgoing calls
// are throttled to perSecond requests.
func NewClient(baseURL, apiKey string, timeout time.Duration, perSecond float64) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if perSecond <= 0 {
		perSecond = 5
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(perSecond), 1),
	}
}

// CreateRoom opens the room of b. The booking id is sent as idempotency key
// so a repeated call returns the same room.
func (c *Client) CreateRoom(ctx context.Context, b model.Booking) (string, error) {
	body := CreateRoomRequest{
		BookingID:   b.ID,
		ServiceID:   b.ServiceID,
		ClientID:    b.ClientID,
		ScheduledAt: b.ScheduledAt,
		EndAt:       b.EndAt,
	}

	var resp CreateRoomResponse
	headers := map[string]string{"Idempotency-Key": "booking-" + strconv.FormatInt(b.ID, 10)}
	if err := c.doPost(ctx, c.baseURL+"/api/rooms", body, headers, &resp); err != nil {
		return "", fmt.Errorf("create room for booking %d: %w", b.ID, err)
	}
	if resp.RoomID == "" {
		return "", ErrEmptyRoom
	}
	return resp.RoomID, nil
}

// HealthCheck checks if the chat service is available.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", http.NoBody)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) doPost(ctx context.Context, endpoint string, body any, headers map[string]string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("http %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
