package models

import (
	"fmt"
	"net/url"
	"strings"
)

// ConnectionConfig describes a PostgreSQL source.
type ConnectionConfig struct {
	Name     string `yaml:"name" mapstructure:"name"`
	DSN      string `yaml:"dsn" mapstructure:"dsn"`
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	Database string `yaml:"database" mapstructure:"database"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	SSLMode  string `yaml:"ssl_mode" mapstructure:"ssl_mode"`
	Schema   string `yaml:"schema" mapstructure:"schema"`
}

// ConnString returns the DSN when set, otherwise a keyword/value connection
// string built from the individual fields.
func (c ConnectionConfig) ConnString() string {
	if c.DSN != "" {
		return c.DSN
	}
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "prefer"
	}
	port := c.Port
	if port == 0 {
		port = 5432
	}

	parts := []string{
		fmt.Sprintf("host=%s", c.Host),
		fmt.Sprintf("port=%d", port),
	}
	if c.User != "" {
		parts = append(parts, fmt.Sprintf("user=%s", c.User))
	}
	if c.Database != "" {
		parts = append(parts, fmt.Sprintf("database=%s", c.Database))
	}
	parts = append(parts, fmt.Sprintf("sslmode=%s", sslMode))
	if c.Password != "" {
		parts = append(parts, fmt.Sprintf("password=%s", c.Password))
	}
	return strings.Join(parts, " ")
}

// Redacted returns a description of the source safe for logs.
func (c ConnectionConfig) Redacted() string {
	if c.DSN != "" {
		if u, err := url.Parse(c.DSN); err == nil && u.Scheme != "" {
			return u.Redacted()
		}
		return "dsn"
	}
	return fmt.Sprintf("%s@%s:%d/%s", c.User, c.Host, c.Port, c.Database)
}
