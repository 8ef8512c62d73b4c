package core

import (
	"sync"
)

// PluginSummary is the discovery view of a registered plugin.
type PluginSummary struct {
	PluginID    string   `json:"plugin_id"`
	DisplayName string   `json:"display_name"`
	Version     string   `json:"version"`
	Status      string   `json:"status"`
	Message     string   `json:"message,omitempty"`
	Accessories []string `json:"accessories,omitempty"`
	Dashboards  []string `json:"dashboards,omitempty"`
}

// Registry provides plugin discovery to clients.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
}

func NewRegistry(plugins []Plugin) *Registry {
	return &Registry{plugins: plugins}
}

func (r *Registry) List() []PluginSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]PluginSummary, 0, len(r.plugins))
	for _, p := range r.plugins {
		out = append(out, summarize(p))
	}
	return out
}

func (r *Registry) Describe(id string) (PluginSummary, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Manifest().PluginID == id {
			return summarize(p), true
		}
	}
	return PluginSummary{}, false
}

func summarize(p Plugin) PluginSummary {
	manifest := p.Manifest()
	summary := PluginSummary{
		PluginID:    manifest.PluginID,
		DisplayName: manifest.DisplayName,
		Version:     manifest.Version,
		Status:      string(p.Health()),
		Message:     p.HealthMessage(),
		Accessories: manifest.Accessories,
	}
	for _, d := range p.Dashboards() {
		summary.Dashboards = append(summary.Dashboards, "/dashboards/"+manifest.PluginID+"/"+d.Name+".json")
	}
	return summary
}
