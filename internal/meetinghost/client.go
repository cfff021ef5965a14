// Package meetinghost calls the external video-conferencing provider.
// Only meeting creation is needed; join/leave happen in the provider's own
// client and reach us as webhook-style attendance events.
package meetinghost

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"proofmeet/internal/fault"
)

// MeetingOptions configures a meeting to be created on the host.
type MeetingOptions struct {
	Topic            string
	DurationMinutes  int
	StartDelay       time.Duration
	RecordingEnabled bool
	WaitingRoom      bool
}

// Meeting is the host's view of a created meeting.
type Meeting struct {
	ExternalID string
	JoinURL    string
	Password   string
	StartTime  time.Time
}

// Client calls the meeting host's REST API with server-to-server OAuth.
type Client struct {
	APIURL       string
	AuthURL      string
	ClientID     string
	ClientSecret string
	AccountID    string
	HTTP         *http.Client
	Skip         bool
	Timeout      time.Duration

	// token state, guarded by mu so concurrent callers share one refresh.
	mu       sync.Mutex
	token    string
	tokenExp time.Time
}

// New creates a client. With skip set, canned data is returned so the rest
// of the system can run without host credentials.
func New(apiURL, authURL, clientID, clientSecret, accountID string, skip bool, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		APIURL:       apiURL,
		AuthURL:      authURL,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		AccountID:    accountID,
		Skip:         skip,
		Timeout:      timeout,
		HTTP:         &http.Client{Timeout: timeout},
	}
}

// CreateMeeting creates a meeting on the host. A 401 forces one token
// refresh and a single retry; timeouts and server errors surface as
// fault.ErrHostUnavailable so creation flows never hang.
func (c *Client) CreateMeeting(ctx context.Context, opts MeetingOptions) (Meeting, error) {
	if c.Skip {
		start := time.Now().UTC().Add(opts.StartDelay)
		return Meeting{
			ExternalID: fmt.Sprintf("mock-%d", start.UnixNano()),
			JoinURL:    "https://host.example.com/j/000000000",
			Password:   "mock",
			StartTime:  start,
		}, nil
	}
	if opts.DurationMinutes <= 0 {
		return Meeting{}, fault.Errorf(fault.ErrInvalidInput, "duration %d minutes", opts.DurationMinutes)
	}

	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	m, err := c.createOnce(ctx, opts)
	if errors.Is(err, fault.ErrAuth) {
		c.invalidateToken()
		m, err = c.createOnce(ctx, opts)
	}
	return m, err
}

func (c *Client) createOnce(ctx context.Context, opts MeetingOptions) (Meeting, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return Meeting{}, err
	}

	start := time.Now().UTC().Add(opts.StartDelay)
	payload := map[string]any{
		"topic":      opts.Topic,
		"type":       2, // scheduled
		"start_time": start.Format(time.RFC3339),
		"duration":   opts.DurationMinutes,
		"settings": map[string]any{
			"auto_recording":   recordingMode(opts.RecordingEnabled),
			"waiting_room":     opts.WaitingRoom,
			"join_before_host": !opts.WaitingRoom,
		},
	}
	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIURL+"/users/me/meetings", bytes.NewReader(body))
	if err != nil {
		return Meeting{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return Meeting{}, fault.Errorf(fault.ErrHostUnavailable, "create meeting: %v", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return Meeting{}, fault.Errorf(fault.ErrAuth, "create meeting rejected")
	case resp.StatusCode >= 500:
		return Meeting{}, fault.Errorf(fault.ErrHostUnavailable, "host error %s", resp.Status)
	case resp.StatusCode >= 300:
		b, _ := io.ReadAll(resp.Body)
		return Meeting{}, fmt.Errorf("host error %s: %s", resp.Status, string(b))
	}

	var out struct {
		ID        json.Number `json:"id"`
		JoinURL   string      `json:"join_url"`
		Password  string      `json:"password"`
		StartTime time.Time   `json:"start_time"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Meeting{}, fmt.Errorf("decode create response: %w", err)
	}
	return Meeting{
		ExternalID: out.ID.String(),
		JoinURL:    out.JoinURL,
		Password:   out.Password,
		StartTime:  out.StartTime,
	}, nil
}

// accessToken returns a cached token, refreshing it under the lock when it
// is within the expiry margin. Holding mu across the refresh keeps a single
// refresh in flight even under concurrent callers.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && time.Until(c.tokenExp) > 30*time.Second {
		return c.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "account_credentials")
	form.Set("account_id", c.AccountID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.AuthURL, bytes.NewReader([]byte(form.Encode())))
	if err != nil {
		return "", err
	}
	basic := base64.StdEncoding.EncodeToString([]byte(c.ClientID + ":" + c.ClientSecret))
	req.Header.Set("Authorization", "Basic "+basic)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", fault.Errorf(fault.ErrHostUnavailable, "token request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusBadRequest {
		return "", fault.Errorf(fault.ErrAuth, "token rejected: %s", resp.Status)
	}
	if resp.StatusCode >= 300 {
		return "", fault.Errorf(fault.ErrHostUnavailable, "token error %s", resp.Status)
	}

	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if out.AccessToken == "" {
		return "", fault.Errorf(fault.ErrAuth, "empty access token")
	}
	c.token = out.AccessToken
	c.tokenExp = time.Now().Add(time.Duration(out.ExpiresIn) * time.Second)
	return c.token, nil
}

func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.tokenExp = time.Time{}
	c.mu.Unlock()
}

func recordingMode(enabled bool) string {
	if enabled {
		return "cloud"
	}
	return "none"
}

// Health checks that credentials can obtain a token.
func (c *Client) Health(ctx context.Context) error {
	if c.Skip {
		return nil
	}
	_, err := c.accessToken(ctx)
	return err
}
