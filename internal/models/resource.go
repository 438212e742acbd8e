package models

// Resource is a bookable instrument. Resources are declared in configuration
// and never deleted while reservations reference them.
type Resource struct {
	ID           int64    `yaml:"id" json:"id"`
	Name         string   `yaml:"name" json:"name"`
	Visible      bool     `yaml:"visible" json:"visible"`
	AdvanceDays  int      `yaml:"advance_days" json:"advance_days"`
	Status       string   `yaml:"status" json:"status"`
	StatusNote   string   `yaml:"status_note" json:"status_note,omitempty"`
	Probes       []string `yaml:"probes" json:"probes,omitempty"`
	ActiveProbe  string   `yaml:"active_probe" json:"active_probe,omitempty"`
	DefaultProbe string   `yaml:"default_probe" json:"default_probe,omitempty"`
	Color        string   `yaml:"color" json:"color,omitempty"`
	Template     string   `yaml:"template" json:"template"`
}

// HasProbe reports whether name is one of the resource's interchangeable probes.
func (r Resource) HasProbe(name string) bool {
	for _, p := range r.Probes {
		if p == name {
			return true
		}
	}
	return false
}
