package eightsleep

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"

	"github.com/joshp123/gobed/internal/poll"
)

// ErrUnknownSide is returned for a side this pod does not expose.
var ErrUnknownSide = fmt.Errorf("eightsleep: unknown side")

// deviceClient is the slice of the API client the service needs.
type deviceClient interface {
	UserSettings(ctx context.Context, userID string) (UserSettings, error)
	SetUserLevel(ctx context.Context, userID string, level int) (UserSettings, error)
	SetUserState(ctx context.Context, userID string, state StateType) (UserSettings, error)
	DeviceState(ctx context.Context, deviceID string) (DeviceState, error)
}

// Publisher pushes side state to the automation bus. A nil Publisher is
// valid and publishes nothing.
type Publisher interface {
	PublishSideState(side Side, status SideStatus)
}

// SideStatus is the full derived thermostat view for one bed half.
type SideStatus struct {
	Side         Side           `json:"side"`
	CurrentTempF float64        `json:"current_temp_f"`
	CurrentTempC float64        `json:"current_temp_c"`
	TargetTempF  float64        `json:"target_temp_f"`
	TargetTempC  float64        `json:"target_temp_c"`
	CurrentLevel int            `json:"current_level"`
	TargetLevel  int            `json:"target_level"`
	IntentOn     bool           `json:"intent_on"`
	State        OperatingState `json:"state"`
	Priming      bool           `json:"priming"`
	NeedsPriming bool           `json:"needs_priming"`
	HasWater     bool           `json:"has_water"`
}

type accessory struct {
	side     Side
	userID   string
	settings *poll.Cache[UserSettings]
}

// Service exposes thermostat semantics over the vendor's level-based API.
// One accessory per occupied bed half; a solo pod gets a single accessory.
// Device-wide state (measured levels, water, priming) is shared across
// sides through one cache.
type Service struct {
	client    deviceClient
	mapper    *Mapper
	profile   DeviceProfile
	publisher Publisher

	device *poll.Cache[DeviceState]
	sides  map[Side]*accessory
}

// NewService resolves the side topology and wires the polling caches. When
// partner support is enabled the partner's user id comes from the device
// state; a missing partner id downgrades to single-side with a warning
// rather than failing startup.
func NewService(ctx context.Context, cfg Config, client deviceClient, profile DeviceProfile, ownUserID string, publisher Publisher) (*Service, error) {
	s := &Service{
		client:    client,
		mapper:    NewMapper(),
		profile:   profile,
		publisher: publisher,
		sides:     make(map[Side]*accessory),
	}

	s.device = poll.New("eightsleep-device", cfg.PollInterval, cfg.IdleAfter,
		func(ctx context.Context) (DeviceState, error) {
			return client.DeviceState(ctx, profile.DeviceID)
		})
	s.device.SetOnUpdate(func(DeviceState) {
		for _, side := range s.Sides() {
			s.publishPeek(side)
		}
	})

	s.addSide(cfg, profile.Side, ownUserID)

	if cfg.PartnerSide && profile.Side != SideSolo {
		state, err := client.DeviceState(ctx, profile.DeviceID)
		if err != nil {
			return nil, fmt.Errorf("resolve partner side: %w", err)
		}
		partner := otherSide(profile.Side)
		partnerUserID := state.UserIDForSide(partner)
		if partnerUserID == "" {
			slog.Warn("partner side enabled but no partner user on device",
				"device_id", profile.DeviceID, "side", partner)
		} else {
			s.addSide(cfg, partner, partnerUserID)
		}
	}

	return s, nil
}

func (s *Service) addSide(cfg Config, side Side, userID string) {
	settings := poll.New("eightsleep-settings-"+string(side), cfg.PollInterval, cfg.IdleAfter,
		func(ctx context.Context) (UserSettings, error) {
			return s.client.UserSettings(ctx, userID)
		})
	settings.SetOnUpdate(func(UserSettings) {
		s.publishPeek(side)
	})
	s.sides[side] = &accessory{side: side, userID: userID, settings: settings}
}

func otherSide(side Side) Side {
	if side == SideLeft {
		return SideRight
	}
	return SideLeft
}

// Sides lists the exposed bed halves in stable order.
func (s *Service) Sides() []Side {
	out := make([]Side, 0, len(s.sides))
	for side := range s.sides {
		out = append(out, side)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s *Service) accessoryFor(side Side) (*accessory, error) {
	a, ok := s.sides[side]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSide, side)
	}
	return a, nil
}

// CurrentTemperature returns the measured temperature (°F) for a side.
func (s *Service) CurrentTemperature(ctx context.Context, side Side) (float64, error) {
	a, err := s.accessoryFor(side)
	if err != nil {
		return 0, err
	}
	state, err := s.device.Get(ctx)
	if err != nil {
		return 0, err
	}
	return s.mapper.TemperatureFor(state.LevelForSide(a.side)), nil
}

// TargetTemperature returns the side's target temperature (°F).
func (s *Service) TargetTemperature(ctx context.Context, side Side) (float64, error) {
	a, err := s.accessoryFor(side)
	if err != nil {
		return 0, err
	}
	settings, err := a.settings.Get(ctx)
	if err != nil {
		return 0, err
	}
	return s.mapper.TemperatureFor(settings.CurrentLevel), nil
}

// SetTargetTemperature pushes a new target (°F). The request is clamped
// into the representable range, translated to a level, and the server's
// acknowledged settings are adopted even when they differ from the request.
func (s *Service) SetTargetTemperature(ctx context.Context, side Side, tempF float64) (SideStatus, error) {
	a, err := s.accessoryFor(side)
	if err != nil {
		return SideStatus{}, err
	}

	clamped := s.mapper.ClampTemperature(tempF)
	level, ok := s.mapper.LevelFor(clamped)
	if !ok {
		return SideStatus{}, fmt.Errorf("eightsleep: no level for %.1f°F", clamped)
	}

	acked, err := s.client.SetUserLevel(ctx, a.userID, level)
	if err != nil {
		return SideStatus{}, err
	}
	if acked.CurrentLevel != level {
		slog.Warn("server adjusted requested level",
			"side", side, "requested", level, "acknowledged", acked.CurrentLevel)
	}
	a.settings.Store(acked)

	return s.Status(ctx, side)
}

// OnOffIntent reports whether the side is set to hold its target.
func (s *Service) OnOffIntent(ctx context.Context, side Side) (bool, error) {
	a, err := s.accessoryFor(side)
	if err != nil {
		return false, err
	}
	settings, err := a.settings.Get(ctx)
	if err != nil {
		return false, err
	}
	return settings.IntentOn(), nil
}

// SetOnOffIntent turns a side on (smart hold) or off.
func (s *Service) SetOnOffIntent(ctx context.Context, side Side, on bool) (SideStatus, error) {
	a, err := s.accessoryFor(side)
	if err != nil {
		return SideStatus{}, err
	}

	state := StateOff
	if on {
		state = StateSmart
	}
	acked, err := s.client.SetUserState(ctx, a.userID, state)
	if err != nil {
		return SideStatus{}, err
	}
	a.settings.Store(acked)

	return s.Status(ctx, side)
}

// OperatingState derives the displayed thermostat state for a side.
func (s *Service) OperatingState(ctx context.Context, side Side) (OperatingState, error) {
	status, err := s.Status(ctx, side)
	if err != nil {
		return "", err
	}
	return status.State, nil
}

// Status assembles the full thermostat view for a side. This is the active
// path: it marks the caches in use and keeps them polling.
func (s *Service) Status(ctx context.Context, side Side) (SideStatus, error) {
	a, err := s.accessoryFor(side)
	if err != nil {
		return SideStatus{}, err
	}
	settings, err := a.settings.Get(ctx)
	if err != nil {
		return SideStatus{}, err
	}
	device, err := s.device.Get(ctx)
	if err != nil {
		return SideStatus{}, err
	}
	return s.buildStatus(a, settings, device), nil
}

// PeekStatus assembles the view from held values only. Passive readers use
// this so a metrics scrape never wakes the polling loops.
func (s *Service) PeekStatus(side Side) (SideStatus, bool) {
	a, ok := s.sides[side]
	if !ok {
		return SideStatus{}, false
	}
	settings, ok := a.settings.Peek()
	if !ok {
		return SideStatus{}, false
	}
	device, ok := s.device.Peek()
	if !ok {
		return SideStatus{}, false
	}
	return s.buildStatus(a, settings, device), true
}

func (s *Service) buildStatus(a *accessory, settings UserSettings, device DeviceState) SideStatus {
	currentF := s.mapper.TemperatureFor(device.LevelForSide(a.side))
	targetF := s.mapper.TemperatureFor(settings.CurrentLevel)
	return SideStatus{
		Side:         a.side,
		CurrentTempF: currentF,
		CurrentTempC: CelsiusFrom(currentF),
		TargetTempF:  targetF,
		TargetTempC:  CelsiusFrom(targetF),
		CurrentLevel: device.LevelForSide(a.side),
		TargetLevel:  settings.CurrentLevel,
		IntentOn:     settings.IntentOn(),
		State:        Reconcile(currentF, targetF, settings.IntentOn(), DefaultToleranceF),
		Priming:      device.Priming,
		NeedsPriming: device.NeedsPriming,
		HasWater:     device.HasWater,
	}
}

// publishPeek pushes the side's state to the bus whenever a cache accepts a
// new value, covering both local sets and poll refreshes. Skipped while the
// other cache is still cold.
func (s *Service) publishPeek(side Side) {
	if s.publisher == nil {
		return
	}
	status, ok := s.PeekStatus(side)
	if !ok {
		return
	}
	s.publisher.PublishSideState(side, status)
}

// Close stops all polling loops.
func (s *Service) Close() {
	s.device.Close()
	for _, a := range s.sides {
		a.settings.Close()
	}
}

// RegisterHTTP mounts the side endpoints.
func (s *Service) RegisterHTTP(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/eightsleep/sides", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"sides": s.Sides()})
	})

	mux.HandleFunc("GET /api/eightsleep/{side}/status", func(w http.ResponseWriter, r *http.Request) {
		side := Side(r.PathValue("side"))
		status, err := s.Status(r.Context(), side)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, status)
	})

	mux.HandleFunc("PUT /api/eightsleep/{side}/target", func(w http.ResponseWriter, r *http.Request) {
		side := Side(r.PathValue("side"))
		var req struct {
			TemperatureF *float64 `json:"temperature_f"`
			TemperatureC *float64 `json:"temperature_c"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid body", http.StatusBadRequest)
			return
		}
		var tempF float64
		switch {
		case req.TemperatureF != nil:
			tempF = *req.TemperatureF
		case req.TemperatureC != nil:
			tempF = FahrenheitFrom(*req.TemperatureC)
		default:
			http.Error(w, "temperature_f or temperature_c required", http.StatusBadRequest)
			return
		}
		status, err := s.SetTargetTemperature(r.Context(), side, tempF)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, status)
	})

	mux.HandleFunc("PUT /api/eightsleep/{side}/intent", func(w http.ResponseWriter, r *http.Request) {
		side := Side(r.PathValue("side"))
		var req struct {
			On bool `json:"on"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid body", http.StatusBadRequest)
			return
		}
		status, err := s.SetOnOffIntent(r.Context(), side, req.On)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, status)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrUnknownSide) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	http.Error(w, err.Error(), http.StatusBadGateway)
}
