package inference

import (
	"context"
	"errors"
	"fmt"
)

// HTTPTagger scores sub-windows with a remote sound-event model
// (POST {url}/tag -> {"scores": [...]}, one score per label).
type HTTPTagger struct {
	c      *client
	labels []string
}

// NewHTTPTagger creates a tagger. When labels is empty the vocabulary is
// fetched from GET {url}/labels.
func NewHTTPTagger(ctx context.Context, cfg ServiceConfig, labels []string) (*HTTPTagger, error) {
	t := &HTTPTagger{c: newClient(cfg), labels: labels}
	if len(t.labels) > 0 {
		return t, nil
	}
	var out struct {
		Labels []string `json:"labels"`
	}
	if err := t.c.getJSON(ctx, "/labels", &out); err != nil {
		return nil, fmt.Errorf("fetch tagger labels: %w", err)
	}
	if len(out.Labels) == 0 {
		return nil, errors.New("tagger service returned an empty label vocabulary")
	}
	t.labels = out.Labels
	return t, nil
}

func (t *HTTPTagger) Labels() []string { return t.labels }

func (t *HTTPTagger) TagEvents(ctx context.Context, window []float32, sampleRate int) ([]float64, error) {
	scores, err := t.c.postScores(ctx, "/tag", window, sampleRate)
	if err != nil {
		return nil, fmt.Errorf("event tagger: %w", err)
	}
	if err := CheckScores(scores, t.labels); err != nil {
		return nil, err
	}
	return scores, nil
}
