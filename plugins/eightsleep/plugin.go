package eightsleep

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/joshp123/gobed/internal/core"
	"github.com/joshp123/gobed/internal/plugins"
	"github.com/joshp123/gobed/internal/session"
)

//go:embed dashboard.json
var dashboardJSON []byte

const (
	pluginID      = "eightsleep"
	pluginVersion = "1.0.0"
)

// Plugin bridges an Eight Sleep pod into the gobed registry.
type Plugin struct {
	service   *Service
	publisher *MQTTPublisher
	sessions  *session.Manager

	mu            sync.Mutex
	health        core.HealthStatus
	healthMessage string
}

// Factory builds the plugin from shared infrastructure. Returns (nil, nil)
// when the deployment has no eightsleep config. Missing credentials or an
// unresolvable device profile are fatal; a broker outage only degrades.
func Factory(ctx context.Context, deps plugins.Deps) (core.Plugin, error) {
	if deps.Config == nil || deps.Config.EightSleep == nil {
		return nil, nil
	}

	cfg, err := ConfigFromYAML(deps.Config.EightSleep)
	if err != nil {
		return nil, err
	}
	creds, err := CredentialsFromEnv()
	if err != nil {
		return nil, err
	}

	sessions := session.NewManager(LoginFunc(cfg, creds), deps.Files, deps.Blobs)
	sessions.Start(ctx)
	client := NewClient(cfg, sessions)

	s, err := sessions.Obtain(ctx)
	if err != nil {
		return nil, fmt.Errorf("eightsleep: %w", err)
	}

	profile, err := ResolveProfile(ctx, deps.Files, client)
	if err != nil {
		return nil, err
	}

	p := &Plugin{
		sessions: sessions,
		health:   core.HealthHealthy,
	}

	publisher, err := NewMQTTPublisher(deps.Config.MQTT)
	if err != nil {
		slog.Warn("mqtt unavailable, running without bus publishing", "error", err)
		p.setHealth(core.HealthDegraded, fmt.Sprintf("mqtt unavailable: %v", err))
		publisher = nil
	}
	p.publisher = publisher

	service, err := NewService(ctx, cfg, client, profile, s.UserID, publisherOrNil(publisher))
	if err != nil {
		return nil, err
	}
	p.service = service

	return p, nil
}

// publisherOrNil avoids handing the service a non-nil interface wrapping a
// nil *MQTTPublisher.
func publisherOrNil(p *MQTTPublisher) Publisher {
	if p == nil {
		return nil
	}
	return p
}

func (p *Plugin) ID() string { return pluginID }

func (p *Plugin) Manifest() core.Manifest {
	accessories := make([]string, 0, 2)
	for _, side := range p.service.Sides() {
		accessories = append(accessories, "thermostat-"+string(side))
	}
	return core.Manifest{
		PluginID:    pluginID,
		DisplayName: "Eight Sleep",
		Version:     pluginVersion,
		Accessories: accessories,
	}
}

func (p *Plugin) Dashboards() []core.Dashboard {
	return []core.Dashboard{{Name: "eightsleep", JSON: dashboardJSON}}
}

func (p *Plugin) Collectors() []prometheus.Collector {
	return []prometheus.Collector{NewCollector(p.service)}
}

func (p *Plugin) Health() core.HealthStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.health
}

func (p *Plugin) HealthMessage() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.healthMessage
}

func (p *Plugin) setHealth(status core.HealthStatus, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.health = status
	p.healthMessage = message
}

// RegisterHTTP mounts the accessory endpoints on the core mux.
func (p *Plugin) RegisterHTTP(mux *http.ServeMux) {
	p.service.RegisterHTTP(mux)
}

// Close stops polling and disconnects from the broker.
func (p *Plugin) Close() {
	p.service.Close()
	p.publisher.Close()
}
