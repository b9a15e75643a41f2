// Package seed provides the default showcase items shown before anything is persisted.
package seed

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/MrSnakeDoc/showcase/internal/domain"
)

// File is the layout of a seed file.
//
//	items:
//	  - id: 1
//	    name: Blue Muji Pen 0.5
//	    description: Blue click muji pen 0.5
//	    image: /products/muji_pen.png
type File struct {
	Items []domain.Item `yaml:"items"`
}

// Loader reads default items from a YAML file.
type Loader struct {
	filePath string
}

func NewLoader(filePath string) *Loader {
	return &Loader{filePath: filePath}
}

// Load parses the seed file. Items with an invalid or repeated id are dropped;
// a file with no usable item is an error.
func (l *Loader) Load() ([]domain.Item, error) {
	data, err := os.ReadFile(l.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse seed yaml: %w", err)
	}

	items, _ := domain.Normalize(f.Items)
	if len(items) == 0 {
		return nil, fmt.Errorf("seed file %s has no valid items", l.filePath)
	}
	return items, nil
}

// Resolve returns the items of filePath, or the built-in defaults when it is empty.
func Resolve(filePath string) ([]domain.Item, error) {
	if filePath == "" {
		return Defaults(), nil
	}
	return NewLoader(filePath).Load()
}
