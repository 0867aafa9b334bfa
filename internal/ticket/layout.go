package ticket

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultWidth is the column count of an 80 mm thermal roll.
const DefaultWidth = 48

// Layout holds the static parts of every printed document.
type Layout struct {
	Width        int      `yaml:"width"`
	BusinessName string   `yaml:"business_name"`
	Address      []string `yaml:"address"`
	TaxID        string   `yaml:"tax_id"`
	Footer       []string `yaml:"footer"`
}

func DefaultLayout() Layout {
	return Layout{
		Width:        DefaultWidth,
		BusinessName: "COMANDA",
		Footer:       []string{"Thank you!"},
	}
}

// LoadLayout reads a YAML layout file. Missing fields keep their defaults.
// An empty path returns the default layout.
func LoadLayout(path string) (Layout, error) {
	layout := DefaultLayout()
	if path == "" {
		return layout, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return layout, fmt.Errorf("read layout: %w", err)
	}
	if err := yaml.Unmarshal(raw, &layout); err != nil {
		return layout, fmt.Errorf("parse layout: %w", err)
	}
	if layout.Width < 24 {
		return layout, fmt.Errorf("layout width %d is below 24 columns", layout.Width)
	}
	return layout, nil
}
