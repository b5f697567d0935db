package models

import "fmt"

// Orientation is the page orientation a category's output is expected to have.
type Orientation string

const (
	Portrait  Orientation = "portrait"
	Landscape Orientation = "landscape"
)

// ParseOrientation accepts "portrait" or "landscape" and defaults an empty
// value to portrait.
func ParseOrientation(s string) (Orientation, error) {
	switch Orientation(s) {
	case "", Portrait:
		return Portrait, nil
	case Landscape:
		return Landscape, nil
	}
	return "", fmt.Errorf("unknown orientation %q", s)
}

// Category is a named input/output routing entry.
type Category struct {
	Key               string      `yaml:"key"`
	SourceFolder      string      `yaml:"source"`
	DestinationFolder string      `yaml:"destination"`
	Orientation       Orientation `yaml:"orientation"`
	Enabled           bool        `yaml:"enabled"`
}
