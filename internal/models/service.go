package models

// Service is an entry of the static service catalog, loaded once from
// config at startup.
type Service struct {
	Name            string `yaml:"name" json:"name"`
	Label           string `yaml:"label" json:"label"`
	DurationMinutes int    `yaml:"duration_minutes" json:"duration_minutes"`
}
