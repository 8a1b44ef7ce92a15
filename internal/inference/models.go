package inference

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

const (
	BackendStub = "stub"
	BackendHTTP = "http"
)

// Options selects and configures the model backends.
type Options struct {
	Backend    string
	Device     string
	LabelsFile string
	Emotion    ServiceConfig
	Tagger     ServiceConfig
	Observer   Observer
}

// Models is the process-wide pair of scorers, already bound to one Device.
type Models struct {
	Emotion EmotionScorer
	Tagger  EventTagger
	Device  *Device
}

// New builds the scorers once at startup.
func New(ctx context.Context, opts Options) (*Models, error) {
	dev := NewDevice(opts.Device, opts.Observer)

	var labels []string
	if opts.LabelsFile != "" {
		l, err := LoadLabels(opts.LabelsFile)
		if err != nil {
			return nil, err
		}
		labels = l
	}

	var (
		emo EmotionScorer
		tag EventTagger
	)
	switch opts.Backend {
	case BackendStub, "":
		emo = StubEmotion{}
		st := NewStubTagger()
		if len(labels) > 0 {
			st.labels = labels
		}
		tag = st
	case BackendHTTP:
		emo = NewHTTPEmotion(opts.Emotion)
		t, err := NewHTTPTagger(ctx, opts.Tagger, labels)
		if err != nil {
			return nil, err
		}
		tag = t
	default:
		return nil, fmt.Errorf("unknown inference backend %q", opts.Backend)
	}

	log.Info().
		Str("backend", opts.Backend).
		Str("device", dev.Name()).
		Int("labels", len(tag.Labels())).
		Msg("inference: models ready")

	return &Models{
		Emotion: dev.Emotion(emo),
		Tagger:  dev.Tagger(tag),
		Device:  dev,
	}, nil
}
