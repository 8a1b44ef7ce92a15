// Package inference holds the two model collaborators of the analysis
// pipeline: a dimensional emotion scorer and a sound-event tagger.
//
// Implementations are created once per process and shared by every request.
// Wrap them with a Device so calls serialize on the single compute device.
package inference

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// ErrArity is returned when a model answers with an unexpected number of values.
var ErrArity = errors.New("unexpected model output arity")

// ErrInvalidScore is returned when a model answers with NaN or an infinity.
var ErrInvalidScore = errors.New("non-finite model score")

// Emotion is the output of the dimensional emotion model.
type Emotion struct {
	Arousal   float64
	Dominance float64
	Valence   float64
}

// Check rejects non-finite dimensions.
func (e Emotion) Check() error {
	for _, d := range []struct {
		name string
		v    float64
	}{{"arousal", e.Arousal}, {"dominance", e.Dominance}, {"valence", e.Valence}} {
		if !finite(d.v) {
			return fmt.Errorf("%w: %s is %v", ErrInvalidScore, d.name, d.v)
		}
	}
	return nil
}

// EmotionScorer scores one primary window.
type EmotionScorer interface {
	ScoreEmotion(ctx context.Context, window []float32, sampleRate int) (Emotion, error)
}

// EventTagger scores one sub-window against a fixed label vocabulary.
// TagEvents returns exactly one score per entry of Labels, in the same order.
type EventTagger interface {
	Labels() []string
	TagEvents(ctx context.Context, window []float32, sampleRate int) ([]float64, error)
}

// EmotionFromScores maps the positional (arousal, dominance, valence) output of a model.
func EmotionFromScores(scores []float64) (Emotion, error) {
	if len(scores) != 3 {
		return Emotion{}, fmt.Errorf("%w: emotion model returned %d values, want 3", ErrArity, len(scores))
	}
	e := Emotion{Arousal: scores[0], Dominance: scores[1], Valence: scores[2]}
	if err := e.Check(); err != nil {
		return Emotion{}, err
	}
	return e, nil
}

// CheckScores validates a tagger output against its vocabulary.
func CheckScores(scores []float64, labels []string) error {
	if len(scores) != len(labels) {
		return fmt.Errorf("%w: tagger returned %d scores for %d labels", ErrArity, len(scores), len(labels))
	}
	for i, v := range scores {
		if !finite(v) {
			return fmt.Errorf("%w: %q scored %v", ErrInvalidScore, labels[i], v)
		}
	}
	return nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
