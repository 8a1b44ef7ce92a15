package inference

import (
	"context"
	"math"
)

// DefaultStubLabels is the vocabulary of the stub tagger.
var DefaultStubLabels = []string{
	"Speech", "Silence", "Male speech, man speaking", "Female speech, woman speaking",
	"Child speech, kid speaking", "Conversation", "Narration, monologue", "Laughter",
	"Applause", "Chatter", "Crowd", "Inside, small room", "Inside, large room or hall",
	"Music", "Whispering", "Shout", "Clapping", "Door", "Knock", "Writing",
	"Typing", "Mechanical fan", "Air conditioning", "Hum", "White noise",
}

// StubEmotion is a deterministic, energy-derived emotion scorer used when no
// model service is configured.
type StubEmotion struct{}

func (StubEmotion) ScoreEmotion(_ context.Context, window []float32, _ int) (Emotion, error) {
	e := rms(window)
	return Emotion{
		Arousal:   clamp01(0.3 + 2*e),
		Dominance: clamp01(0.4 + e),
		Valence:   clamp01(0.5 - e/2),
	}, nil
}

// StubTagger is a deterministic tagger scoring windows by energy and zero-crossing rate.
type StubTagger struct {
	labels []string
}

func NewStubTagger() *StubTagger {
	return &StubTagger{labels: DefaultStubLabels}
}

func (t *StubTagger) Labels() []string { return t.labels }

func (t *StubTagger) TagEvents(_ context.Context, window []float32, _ int) ([]float64, error) {
	e := clamp01(10 * rms(window))
	z := zeroCrossingRate(window)
	n := len(t.labels)
	scores := make([]float64, n)
	for i := range scores {
		// small descending prior keeps the ranking deterministic
		scores[i] = 0.001 * float64(n-i) / float64(n)
	}
	for i, l := range t.labels {
		switch l {
		case "Speech":
			scores[i] = e * (1 - z)
		case "Silence":
			scores[i] = 1 - e
		case "Music":
			scores[i] = e * z
		case "White noise":
			scores[i] = e * z * z
		}
	}
	return scores, nil
}

func rms(x []float32) float64 {
	if len(x) == 0 {
		return 0
	}
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum / float64(len(x)))
}

func zeroCrossingRate(x []float32) float64 {
	if len(x) < 2 {
		return 0
	}
	var n int
	for i := 1; i < len(x); i++ {
		if (x[i-1] >= 0) != (x[i] >= 0) {
			n++
		}
	}
	return float64(n) / float64(len(x)-1)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
