package models

import (
	"fmt"
	"time"
)

// Preset is a named, reusable filter tree.
type Preset struct {
	ID          string         `yaml:"id" json:"id"`
	Name        string         `yaml:"name" json:"name"`
	Description string         `yaml:"description,omitempty" json:"description,omitempty"`
	Tags        []string       `yaml:"tags,omitempty" json:"tags,omitempty"`
	Filter      map[string]any `yaml:"filter" json:"filter"`
	CreatedAt   time.Time      `yaml:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `yaml:"updated_at" json:"updated_at"`
	UsageCount  int            `yaml:"usage_count" json:"usage_count"`
	LastUsed    time.Time      `yaml:"last_used" json:"last_used"`
}

// Group decodes the stored filter tree.
func (p Preset) Group() (*FilterGroup, error) {
	if p.Filter == nil {
		return NewGroup(), nil
	}
	g, err := GroupFromMap(p.Filter)
	if err != nil {
		return nil, fmt.Errorf("preset %q: %w", p.Name, err)
	}
	return g, nil
}
