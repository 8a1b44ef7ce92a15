package inference

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type vocabularyFile struct {
	Labels []string `yaml:"labels"`
}

// LoadLabels reads a tagger vocabulary from a YAML file of the form
//
//	labels:
//	  - Speech
//	  - Silence
func LoadLabels(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open labels: %w", err)
	}
	defer f.Close()

	var v vocabularyFile
	if err := yaml.NewDecoder(f).Decode(&v); err != nil {
		return nil, fmt.Errorf("parse labels %s: %w", path, err)
	}
	if len(v.Labels) == 0 {
		return nil, errors.New("label vocabulary is empty")
	}
	// positions line up with the tagger's score vector
	out := make([]string, len(v.Labels))
	for i, l := range v.Labels {
		if out[i] = strings.TrimSpace(l); out[i] == "" {
			return nil, fmt.Errorf("label %d in %s is blank", i, path)
		}
	}
	return out, nil
}
