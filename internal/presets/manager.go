// Package presets manages named, reusable filter trees stored in YAML.
package presets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/rebeliceyang/gridfilter/internal/models"
)

// ErrNotFound is returned when no preset matches an id or name.
var ErrNotFound = errors.New("preset not found")

// FileName is the presets file inside the config directory.
const FileName = "presets.yaml"

// Manager manages filter presets.
type Manager struct {
	path    string
	presets []models.Preset
}

// NewManager creates a manager backed by <configDir>/presets.yaml.
func NewManager(configDir string) (*Manager, error) {
	return Open(filepath.Join(configDir, FileName))
}

// Open creates a manager backed by the file at path.
func Open(path string) (*Manager, error) {
	m := &Manager{
		path:    path,
		presets: []models.Preset{},
	}

	if _, err := os.Stat(path); err == nil {
		if err := m.Load(); err != nil {
			return nil, fmt.Errorf("failed to load presets: %w", err)
		}
	}
	return m, nil
}

// Load loads presets from the YAML file.
func (m *Manager) Load() error {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return fmt.Errorf("failed to read presets file: %w", err)
	}
	if err := yaml.Unmarshal(data, &m.presets); err != nil {
		return fmt.Errorf("failed to parse presets: %w", err)
	}
	return nil
}

// Save writes presets to the YAML file.
func (m *Manager) Save() error {
	data, err := yaml.Marshal(m.presets)
	if err != nil {
		return fmt.Errorf("failed to marshal presets: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(m.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write presets file: %w", err)
	}
	return nil
}

func (m *Manager) validate(id, name string, group *models.FilterGroup) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("preset name cannot be empty")
	}
	if group.IsEmpty() {
		return "", fmt.Errorf("preset %q has no filters", name)
	}
	for _, p := range m.presets {
		if p.ID != id && strings.EqualFold(p.Name, name) {
			return "", fmt.Errorf("a preset with the name '%s' already exists (names are case-insensitive)", name)
		}
	}
	return name, nil
}

// Add stores group under a new preset name.
func (m *Manager) Add(name, description string, group *models.FilterGroup, tags []string) (*models.Preset, error) {
	name, err := m.validate("", name, group)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	preset := models.Preset{
		ID:          uuid.New().String(),
		Name:        name,
		Description: strings.TrimSpace(description),
		Tags:        tags,
		Filter:      group.ToMap(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.presets = append(m.presets, preset)

	if err := m.Save(); err != nil {
		return nil, fmt.Errorf("failed to save preset: %w", err)
	}
	return &preset, nil
}

// Update replaces the name, description, filters and tags of a preset.
func (m *Manager) Update(id, name, description string, group *models.FilterGroup, tags []string) error {
	name, err := m.validate(id, name, group)
	if err != nil {
		return err
	}
	i, err := m.index(id)
	if err != nil {
		return err
	}
	m.presets[i].Name = name
	m.presets[i].Description = strings.TrimSpace(description)
	m.presets[i].Filter = group.ToMap()
	m.presets[i].Tags = tags
	m.presets[i].UpdatedAt = time.Now()
	if err := m.Save(); err != nil {
		return fmt.Errorf("failed to save preset: %w", err)
	}
	return nil
}

// Delete removes a preset by ID.
func (m *Manager) Delete(id string) error {
	i, err := m.index(id)
	if err != nil {
		return err
	}
	m.presets = append(m.presets[:i], m.presets[i+1:]...)
	if err := m.Save(); err != nil {
		return fmt.Errorf("failed to save presets after deletion: %w", err)
	}
	return nil
}

func (m *Manager) index(id string) (int, error) {
	for i, p := range m.presets {
		if p.ID == id {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: id '%s'", ErrNotFound, id)
}

// Get returns a preset by ID.
func (m *Manager) Get(id string) (*models.Preset, error) {
	i, err := m.index(id)
	if err != nil {
		return nil, err
	}
	p := m.presets[i]
	return &p, nil
}

// GetByName returns a preset by case-insensitive name.
func (m *Manager) GetByName(name string) (*models.Preset, error) {
	name = strings.TrimSpace(name)
	for _, p := range m.presets {
		if strings.EqualFold(p.Name, name) {
			return &p, nil
		}
	}
	return nil, fmt.Errorf("%w: name '%s'", ErrNotFound, name)
}

// GetAll returns all presets.
func (m *Manager) GetAll() []models.Preset {
	return m.presets
}

// Search matches presets by name, description, tags or filtered column.
func (m *Manager) Search(query string) []models.Preset {
	if query == "" {
		return m.presets
	}

	query = strings.ToLower(query)
	var results []models.Preset
	for _, p := range m.presets {
		if matches(p, query) {
			results = append(results, p)
		}
	}
	return results
}

func matches(p models.Preset, query string) bool {
	if strings.Contains(strings.ToLower(p.Name), query) ||
		strings.Contains(strings.ToLower(p.Description), query) {
		return true
	}
	for _, tag := range p.Tags {
		if strings.Contains(strings.ToLower(tag), query) {
			return true
		}
	}
	g, err := p.Group()
	if err != nil {
		return false
	}
	for _, leaf := range g.AllFilters() {
		if strings.Contains(strings.ToLower(leaf.ColumnName), query) {
			return true
		}
	}
	return false
}

// RecordUsage increments the usage statistics of a preset.
func (m *Manager) RecordUsage(id string) error {
	i, err := m.index(id)
	if err != nil {
		return err
	}
	m.presets[i].UsageCount++
	m.presets[i].LastUsed = time.Now()
	if err := m.Save(); err != nil {
		return fmt.Errorf("failed to save usage statistics: %w", err)
	}
	return nil
}

// GetMostUsed returns the most frequently used presets.
func (m *Manager) GetMostUsed(limit int) []models.Preset {
	return m.sorted(limit, func(a, b models.Preset) bool {
		return a.UsageCount > b.UsageCount
	})
}

// GetRecent returns the most recently used presets.
func (m *Manager) GetRecent(limit int) []models.Preset {
	return m.sorted(limit, func(a, b models.Preset) bool {
		return a.LastUsed.After(b.LastUsed)
	})
}

func (m *Manager) sorted(limit int, less func(a, b models.Preset) bool) []models.Preset {
	out := make([]models.Preset, len(m.presets))
	copy(out, m.presets)
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out
}
