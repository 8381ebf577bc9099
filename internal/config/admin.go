package config

// AdminConfig controls the configuration admin API. It is off unless
// enabled.
type AdminConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Token, when set, must be presented as a bearer token on every admin
	// request.
	Token string `yaml:"token,omitempty" json:"token,omitempty"`
}

// IsEnabled reports whether the admin API is served.
func (a *AdminConfig) IsEnabled() bool {
	return a != nil && a.Enabled
}
