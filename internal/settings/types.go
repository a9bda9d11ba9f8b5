// Package settings holds the typed per-entity, per-group and global records
// that drive enablement and role resolution.
package settings

// Empty strings mean "not set" for every role field.

// EntityConfig is stored per identity (private chat or group topic).
type EntityConfig struct {
	Enabled       *bool  `json:"enabled,omitempty"`
	PrimaryRole   string `json:"primary_role,omitempty"`
	ActiveRole    string `json:"active_role,omitempty"`
	SecondaryRole string `json:"secondary_role,omitempty"`
}

// GroupConfig is stored per group and applies to every topic in it.
type GroupConfig struct {
	EnabledAll    bool   `json:"enabled_all,omitempty"`
	PrimaryRole   string `json:"primary_role,omitempty"`
	SecondaryRole string `json:"secondary_role,omitempty"`
}

// GlobalConfig is the single process-wide record.
type GlobalConfig struct {
	HistoryLimit        *int   `json:"history_limit,omitempty"`
	PrivateForAll       bool   `json:"private_for_all,omitempty"`
	UseSecondaryDefault bool   `json:"use_secondary_default,omitempty"`
	Model               string `json:"model,omitempty"`
	VoiceEnabled        bool   `json:"voice_enabled,omitempty"`
}

// Defaults are the built-in roles and model, supplied from the config file.
type Defaults struct {
	PrimaryRole   string
	SecondaryRole string
	Model         string
}
