package inference

import (
	"context"
	"time"
)

// Observer receives the duration of every inference call.
type Observer interface {
	ObserveInference(ctx context.Context, model string, d time.Duration, err error)
}

// Device serializes inference calls on one shared accelerator.
// Every scorer wrapped by the same Device holds a single slot while it runs,
// so concurrent requests degrade to sequential throughput.
type Device struct {
	name string
	slot chan struct{}
	obs  Observer
}

func NewDevice(name string, obs Observer) *Device {
	if name == "" {
		name = "cpu"
	}
	return &Device{name: name, slot: make(chan struct{}, 1), obs: obs}
}

// Name is the hardware name reported to clients.
func (d *Device) Name() string { return d.name }

// Emotion wraps s so its calls run on this device.
func (d *Device) Emotion(s EmotionScorer) EmotionScorer {
	return &deviceEmotion{dev: d, inner: s}
}

// Tagger wraps t so its calls run on this device.
func (d *Device) Tagger(t EventTagger) EventTagger {
	return &deviceTagger{dev: d, inner: t}
}

// run waits for the slot (or ctx) and invokes fn while holding it.
func (d *Device) run(ctx context.Context, model string, fn func() error) error {
	select {
	case d.slot <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-d.slot }()

	start := time.Now()
	err := fn()
	if d.obs != nil {
		d.obs.ObserveInference(ctx, model, time.Since(start), err)
	}
	return err
}

type deviceEmotion struct {
	dev   *Device
	inner EmotionScorer
}

func (e *deviceEmotion) ScoreEmotion(ctx context.Context, window []float32, sampleRate int) (Emotion, error) {
	var out Emotion
	err := e.dev.run(ctx, "emotion", func() error {
		var err error
		out, err = e.inner.ScoreEmotion(ctx, window, sampleRate)
		return err
	})
	return out, err
}

type deviceTagger struct {
	dev   *Device
	inner EventTagger
}

func (t *deviceTagger) Labels() []string { return t.inner.Labels() }

func (t *deviceTagger) TagEvents(ctx context.Context, window []float32, sampleRate int) ([]float64, error) {
	var out []float64
	err := t.dev.run(ctx, "tagger", func() error {
		var err error
		out, err = t.inner.TagEvents(ctx, window, sampleRate)
		return err
	})
	return out, err
}
