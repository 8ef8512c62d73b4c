package eightsleep

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/joshp123/gobed/internal/session"
	"github.com/joshp123/gobed/internal/statefile"
)

// fakeVendor is an httptest-backed stand-in for the vendor API.
type fakeVendor struct {
	mu         sync.Mutex
	logins     int
	token      string
	rejectNext bool

	lastUserID  string
	lastToken   string
	ackLevel    *int
	userLevel   int
	userState   StateType
	deviceState DeviceState
}

func newFakeVendor() *fakeVendor {
	return &fakeVendor{
		token:     "token-1",
		userLevel: 10,
		userState: StateSmart,
		deviceState: DeviceState{
			LeftLevel:  5,
			LeftUserID: "user-1",
			HasWater:   true,
		},
	}
}

func (f *fakeVendor) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /login", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.logins++
		token := f.token
		f.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]any{
			"session": map[string]any{
				"userId":         "user-1",
				"token":          token,
				"expirationDate": time.Now().Add(24 * time.Hour).Format(time.RFC3339),
			},
		})
	})

	authed := func(w http.ResponseWriter, r *http.Request) bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.lastUserID = r.Header.Get("user-id")
		f.lastToken = r.Header.Get("session-token")
		if f.rejectNext {
			f.rejectNext = false
			w.WriteHeader(http.StatusUnauthorized)
			return false
		}
		return true
	}

	mux.HandleFunc("GET /users/{id}", func(w http.ResponseWriter, r *http.Request) {
		if !authed(w, r) {
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"user": map[string]any{
				"currentDevice": map[string]any{"id": "device-1", "side": "solo"},
				"devices":       []string{"device-1"},
			},
		})
	})

	mux.HandleFunc("GET /users/{id}/temperature", func(w http.ResponseWriter, r *http.Request) {
		if !authed(w, r) {
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]any{
			"currentLevel": f.userLevel,
			"currentState": map[string]string{"type": string(f.userState)},
		})
	})

	mux.HandleFunc("PUT /users/{id}/temperature", func(w http.ResponseWriter, r *http.Request) {
		if !authed(w, r) {
			return
		}
		var req struct {
			CurrentLevel *int `json:"currentLevel"`
			CurrentState *struct {
				Type StateType `json:"type"`
			} `json:"currentState"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad body", http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		if req.CurrentLevel != nil {
			f.userLevel = *req.CurrentLevel
			if f.ackLevel != nil {
				f.userLevel = *f.ackLevel
			}
		}
		if req.CurrentState != nil {
			f.userState = req.CurrentState.Type
		}
		json.NewEncoder(w).Encode(map[string]any{
			"currentLevel": f.userLevel,
			"currentState": map[string]string{"type": string(f.userState)},
		})
	})

	mux.HandleFunc("GET /devices/{id}", func(w http.ResponseWriter, r *http.Request) {
		if !authed(w, r) {
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]any{"result": f.deviceState})
	})

	return mux
}

func (f *fakeVendor) loginCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logins
}

func (f *fakeVendor) lastAuth() (string, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastUserID, f.lastToken
}

func newTestClient(t *testing.T, baseURL string) (*Client, *session.Manager) {
	t.Helper()
	files, err := statefile.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	cfg := Config{
		BaseURL:           baseURL,
		PollInterval:      time.Minute,
		IdleAfter:         10 * time.Minute,
		RequestsPerMinute: 1000,
	}
	sessions := session.NewManager(LoginFunc(cfg, Credentials{Email: "a@b.c", Password: "pw"}), files, nil)
	return NewClient(cfg, sessions), sessions
}

func TestClientLogsInOnceAndSendsSessionHeaders(t *testing.T) {
	vendor := newFakeVendor()
	srv := httptest.NewServer(vendor.handler())
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL)
	ctx := context.Background()

	settings, err := client.UserSettings(ctx, "user-1")
	if err != nil {
		t.Fatalf("user settings: %v", err)
	}
	if settings.CurrentLevel != 10 || settings.CurrentState != StateSmart {
		t.Fatalf("unexpected settings: %+v", settings)
	}
	if userID, token := vendor.lastAuth(); userID != "user-1" || token != "token-1" {
		t.Fatalf("session headers not sent: user-id=%q session-token=%q", userID, token)
	}

	if _, err := client.DeviceState(ctx, "device-1"); err != nil {
		t.Fatalf("device state: %v", err)
	}
	if got := vendor.loginCount(); got != 1 {
		t.Fatalf("login count = %d, want 1", got)
	}
}

func TestClientProfile(t *testing.T) {
	vendor := newFakeVendor()
	srv := httptest.NewServer(vendor.handler())
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL)

	profile, err := client.Profile(context.Background())
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if profile.DeviceID != "device-1" || profile.Side != SideSolo || !profile.Owner {
		t.Fatalf("unexpected profile: %+v", profile)
	}
}

func TestClientSetLevelReturnsServerAck(t *testing.T) {
	vendor := newFakeVendor()
	ack := 48
	vendor.ackLevel = &ack
	srv := httptest.NewServer(vendor.handler())
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL)

	settings, err := client.SetUserLevel(context.Background(), "user-1", 50)
	if err != nil {
		t.Fatalf("set level: %v", err)
	}
	if settings.CurrentLevel != 48 {
		t.Fatalf("acked level = %d, want 48", settings.CurrentLevel)
	}
}

func TestClientUnauthorizedInvalidatesSession(t *testing.T) {
	vendor := newFakeVendor()
	srv := httptest.NewServer(vendor.handler())
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL)
	ctx := context.Background()

	if _, err := client.UserSettings(ctx, "user-1"); err != nil {
		t.Fatalf("first request: %v", err)
	}

	vendor.mu.Lock()
	vendor.rejectNext = true
	vendor.token = "token-2"
	vendor.mu.Unlock()

	if _, err := client.UserSettings(ctx, "user-1"); err == nil {
		t.Fatal("expected error on rejected token")
	}

	// The rejection dropped the session; the next call logs in again and
	// succeeds with the new token.
	if _, err := client.UserSettings(ctx, "user-1"); err != nil {
		t.Fatalf("request after invalidation: %v", err)
	}
	if got := vendor.loginCount(); got != 2 {
		t.Fatalf("login count = %d, want 2", got)
	}
	if _, token := vendor.lastAuth(); token != "token-2" {
		t.Fatalf("expected fresh token, got %q", token)
	}
}
