// Package export writes saved presets to CSV or JSON for sharing.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rebeliceyang/gridfilter/internal/filter"
	"github.com/rebeliceyang/gridfilter/internal/models"
)

// Export writes presets to path, choosing CSV or JSON by extension.
func Export(presets []models.Preset, path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return ExportToCSV(presets, path)
	case ".json":
		return ExportToJSON(presets, path)
	}
	return fmt.Errorf("unsupported export format %q", filepath.Ext(path))
}

// ExportToCSV exports presets to a CSV file, one row per preset with its
// filter rendered as a summary.
func ExportToCSV(presets []models.Preset, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer func() { _ = file.Close() }()

	writer := csv.NewWriter(file)

	header := []string{"Name", "Description", "Filter", "Tags", "Created", "Updated", "Last Used", "Usage Count"}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, p := range presets {
		summary := ""
		if g, err := p.Group(); err == nil {
			summary = filter.Summary(g)
		}

		lastUsed := ""
		if !p.LastUsed.IsZero() {
			lastUsed = p.LastUsed.Format("2006-01-02 15:04:05")
		}

		row := []string{
			p.Name,
			p.Description,
			summary,
			strings.Join(p.Tags, ", "),
			p.CreatedAt.Format("2006-01-02 15:04:05"),
			p.UpdatedAt.Format("2006-01-02 15:04:05"),
			lastUsed,
			fmt.Sprintf("%d", p.UsageCount),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// ExportToJSON exports presets, filter trees included, to a JSON file.
func ExportToJSON(presets []models.Preset, path string) error {
	if presets == nil {
		presets = []models.Preset{}
	}
	data, err := json.MarshalIndent(presets, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal presets to JSON: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write JSON file: %w", err)
	}
	return nil
}
