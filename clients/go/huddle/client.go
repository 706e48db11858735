// Package huddle provides a client for the Huddle chat relay.
package huddle

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a Huddle API client.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates a new Huddle client.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// doRequest performs an HTTP request.
func (c *Client) doRequest(method, path string, body []byte) ([]byte, int, error) {
	req, err := http.NewRequest(method, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return respBody, resp.StatusCode, nil
}

// CreateRoomRequest is the request body for creating a room.
type CreateRoomRequest struct {
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
	Passcode string `json:"passcode,omitempty"`
}

// CreateRoomResponse is the response from creating a room.
type CreateRoomResponse struct {
	RoomID   string `json:"room_id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
}

// CreateRoom creates a new room. Passcode may be empty for a public room.
func (c *Client) CreateRoom(username, avatar, passcode string) (*CreateRoomResponse, error) {
	body, _ := json.Marshal(CreateRoomRequest{Username: username, Avatar: avatar, Passcode: passcode})

	respBody, status, err := c.doRequest("POST", "/api/create-room", body)
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, apiError(status, respBody)
	}

	var resp CreateRoomResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// VerifyRoomRequest is the request body for verifying a room.
type VerifyRoomRequest struct {
	RoomID   string `json:"room_id"`
	Passcode string `json:"passcode,omitempty"`
}

// VerifyRoom reports whether a room exists and the passcode, if any,
// is correct.
func (c *Client) VerifyRoom(roomID, passcode string) (bool, error) {
	body, _ := json.Marshal(VerifyRoomRequest{RoomID: roomID, Passcode: passcode})

	respBody, status, err := c.doRequest("POST", "/api/verify-room", body)
	if err != nil {
		return false, err
	}
	switch {
	case status == http.StatusOK:
		return true, nil
	case status == http.StatusNotFound:
		return false, nil
	default:
		return false, apiError(status, respBody)
	}
}

// HealthResponse is the response from the health endpoint.
type HealthResponse struct {
	Status    string                 `json:"status"`
	Version   string                 `json:"version"`
	Checks    map[string]interface{} `json:"checks"`
	Timestamp string                 `json:"timestamp"`
}

// Health checks server health.
func (c *Client) Health() (*HealthResponse, error) {
	respBody, _, err := c.doRequest("GET", "/health", nil)
	if err != nil {
		return nil, err
	}
	var resp HealthResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StatsResponse is the response from the stats endpoint.
type StatsResponse struct {
	LiveRooms     int   `json:"live_rooms"`
	Sessions      int   `json:"sessions"`
	Connections   int   `json:"connections"`
	RoomsCreated  int64 `json:"rooms_created"`
	TotalMessages int64 `json:"total_messages"`
}

// Stats retrieves relay statistics.
func (c *Client) Stats() (*StatsResponse, error) {
	respBody, status, err := c.doRequest("GET", "/stats", nil)
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, apiError(status, respBody)
	}
	var resp StatsResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// wsURL converts the client's base URL into the websocket endpoint.
func (c *Client) wsURL() (string, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}

func apiError(status int, body []byte) error {
	var errResp struct {
		Error string `json:"error"`
	}
	json.Unmarshal(body, &errResp)
	if errResp.Error == "" {
		errResp.Error = http.StatusText(status)
	}
	return fmt.Errorf("huddle error %d: %s", status, errResp.Error)
}
