package eightsleep

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/joshp123/gobed/internal/rate"
	"github.com/joshp123/gobed/internal/session"
)

const requestTimeout = 15 * time.Second

// APIError surfaces non-2xx vendor responses.
type APIError struct {
	Status int
	Body   string
}

func (e APIError) Error() string {
	return fmt.Sprintf("eightsleep api error %d: %s", e.Status, strings.TrimSpace(e.Body))
}

// Client talks to the Eight Sleep client API. Every request obtains a
// session from the manager and carries its credentials explicitly; there is
// no process-global header state.
type Client struct {
	baseURL    string
	sessions   *session.Manager
	httpClient *http.Client
}

func NewClient(cfg Config, sessions *session.Manager) *Client {
	decl := rate.Provider("eightsleep").MaxRequestsPerMinute(cfg.RequestsPerMinute)
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		sessions:   sessions,
		httpClient: rate.WrapHTTP(decl, &http.Client{Timeout: requestTimeout}),
	}
}

// LoginFunc builds the credential login used by the session manager. Login
// bypasses the session-bearing client; it is the one unauthenticated call.
func LoginFunc(cfg Config, creds Credentials) session.LoginFunc {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	httpClient := &http.Client{Timeout: requestTimeout}

	return func(ctx context.Context) (session.Session, error) {
		payload, err := json.Marshal(map[string]string{
			"email":    creds.Email,
			"password": creds.Password,
		})
		if err != nil {
			return session.Session{}, fmt.Errorf("marshal login: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/login", bytes.NewReader(payload))
		if err != nil {
			return session.Session{}, fmt.Errorf("build login request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		resp, err := httpClient.Do(req)
		if err != nil {
			return session.Session{}, fmt.Errorf("login request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			body, _ := io.ReadAll(resp.Body)
			return session.Session{}, APIError{Status: resp.StatusCode, Body: string(body)}
		}

		var wrapper struct {
			Session struct {
				UserID    string    `json:"userId"`
				Token     string    `json:"token"`
				ExpiresAt time.Time `json:"expirationDate"`
			} `json:"session"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&wrapper); err != nil {
			return session.Session{}, fmt.Errorf("decode login response: %w", err)
		}

		return session.Session{
			UserID:    wrapper.Session.UserID,
			Token:     wrapper.Session.Token,
			ExpiresAt: wrapper.Session.ExpiresAt,
		}, nil
	}
}

// Profile fetches the durable device identity for the logged-in user.
func (c *Client) Profile(ctx context.Context) (DeviceProfile, error) {
	s, err := c.sessions.Obtain(ctx)
	if err != nil {
		return DeviceProfile{}, err
	}

	var resp struct {
		User struct {
			CurrentDevice struct {
				ID   string `json:"id"`
				Side Side   `json:"side"`
			} `json:"currentDevice"`
			Devices []string `json:"devices"`
		} `json:"user"`
	}
	if err := c.getJSON(ctx, "/users/"+s.UserID, &resp); err != nil {
		return DeviceProfile{}, err
	}

	profile := DeviceProfile{
		DeviceID: resp.User.CurrentDevice.ID,
		Side:     resp.User.CurrentDevice.Side,
	}
	for _, id := range resp.User.Devices {
		if id == profile.DeviceID {
			profile.Owner = true
			break
		}
	}
	if err := profile.Validate(); err != nil {
		return DeviceProfile{}, err
	}
	return profile, nil
}

// UserSettings fetches a side's target level and on/off intent.
func (c *Client) UserSettings(ctx context.Context, userID string) (UserSettings, error) {
	var resp userSettingsPayload
	if err := c.getJSON(ctx, "/users/"+userID+"/temperature", &resp); err != nil {
		return UserSettings{}, err
	}
	return resp.toSettings(), nil
}

// SetUserLevel pushes a new target level and returns the settings the
// server acknowledged, which may differ from what was requested.
func (c *Client) SetUserLevel(ctx context.Context, userID string, level int) (UserSettings, error) {
	return c.putUserSettings(ctx, userID, map[string]any{"currentLevel": level})
}

// SetUserState pushes the on/off intent.
func (c *Client) SetUserState(ctx context.Context, userID string, state StateType) (UserSettings, error) {
	return c.putUserSettings(ctx, userID, map[string]any{
		"currentState": map[string]string{"type": string(state)},
	})
}

// DeviceState fetches the shared device settings covering both sides.
func (c *Client) DeviceState(ctx context.Context, deviceID string) (DeviceState, error) {
	var resp struct {
		Result DeviceState `json:"result"`
	}
	if err := c.getJSON(ctx, "/devices/"+deviceID, &resp); err != nil {
		return DeviceState{}, err
	}
	return resp.Result, nil
}

func (c *Client) putUserSettings(ctx context.Context, userID string, payload map[string]any) (UserSettings, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return UserSettings{}, fmt.Errorf("marshal settings: %w", err)
	}

	resp, err := c.doRequest(ctx, http.MethodPut, "/users/"+userID+"/temperature", bytes.NewReader(body))
	if err != nil {
		return UserSettings{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return UserSettings{}, APIError{Status: resp.StatusCode, Body: string(data)}
	}

	var out userSettingsPayload
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return UserSettings{}, fmt.Errorf("decode settings response: %w", err)
	}
	return out.toSettings(), nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	resp, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return APIError{Status: resp.StatusCode, Body: string(body)}
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) doRequest(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	s, err := c.sessions.Obtain(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("user-id", s.UserID)
	req.Header.Set("session-token", s.Token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	// The server rejected the token ahead of its advertised expiry. Drop it
	// and let the next call log in again.
	resp.Body.Close()
	c.sessions.Invalidate()
	return nil, fmt.Errorf("eightsleep api unauthorized; session invalidated")
}

// userSettingsPayload matches the wire shape, where intent is nested under
// currentState.type.
type userSettingsPayload struct {
	CurrentLevel int `json:"currentLevel"`
	CurrentState struct {
		Type StateType `json:"type"`
	} `json:"currentState"`
}

func (p userSettingsPayload) toSettings() UserSettings {
	return UserSettings{
		CurrentLevel: p.CurrentLevel,
		CurrentState: p.CurrentState.Type,
	}
}
