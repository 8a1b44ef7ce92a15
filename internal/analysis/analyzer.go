// Package analysis partitions a decoded signal into primary windows and
// sub-windows, drives the emotion scorer and event tagger over them, and
// produces one ChunkRecord per retained primary window, in signal order.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/obiente/translate/goanalyze/internal/audio"
	"github.com/obiente/translate/goanalyze/internal/errorsx"
	"github.com/obiente/translate/goanalyze/internal/inference"
)

// Options are the window durations in seconds. Windows shorter than their
// Min duration are dropped; that only happens for the trailing window.
type Options struct {
	PrimarySeconds    float64
	PrimaryMinSeconds float64
	SubSeconds        float64
	SubMinSeconds     float64
	TopEvents         int
}

func DefaultOptions() Options {
	return Options{
		PrimarySeconds:    10,
		PrimaryMinSeconds: 1,
		SubSeconds:        5,
		SubMinSeconds:     0.5,
		TopEvents:         20,
	}
}

// Analyzer runs the windowed inference. It holds no per-request state and
// may be shared by concurrent requests.
type Analyzer struct {
	emotion inference.EmotionScorer
	tagger  inference.EventTagger
	opts    Options
}

func New(emotion inference.EmotionScorer, tagger inference.EventTagger, opts Options) *Analyzer {
	if opts.TopEvents <= 0 {
		opts.TopEvents = DefaultOptions().TopEvents
	}
	return &Analyzer{emotion: emotion, tagger: tagger, opts: opts}
}

// Run processes sig window by window and hands each record to emit as soon as
// it is complete. Only one record exists at a time; a slow emit slows the
// analysis down. Run stops at the first error from a scorer, from emit, or
// from ctx, and makes no further scorer calls after ctx is done.
func (a *Analyzer) Run(ctx context.Context, sig audio.Signal, emit func(ChunkRecord) error) error {
	sr := sig.SampleRate
	primary := samplesFor(a.opts.PrimarySeconds, sr)
	sub := samplesFor(a.opts.SubSeconds, sr)
	if primary <= 0 || sub <= 0 {
		return fmt.Errorf("invalid window sizes at %d Hz: primary=%d sub=%d samples", sr, primary, sub)
	}
	primaryMin := samplesFor(a.opts.PrimaryMinSeconds, sr)

	total := len(sig.Samples)
	for i := 0; i < total; i += primary {
		end := min(i+primary, total)
		if end-i < primaryMin {
			log.Debug().Int("offset", i).Int("samples", end-i).Msg("analysis: dropping short trailing window")
			continue
		}
		rec, err := a.chunk(ctx, sig.Samples[i:end], i, i/primary+1, sr, sub)
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return errorsx.Wrap(err, errorsx.ReasonCanceled)
		}
		if err := emit(rec); err != nil {
			return err
		}
	}
	return nil
}

func (a *Analyzer) chunk(ctx context.Context, window []float32, offset, id, sr, sub int) (ChunkRecord, error) {
	if err := ctx.Err(); err != nil {
		return ChunkRecord{}, errorsx.Wrap(err, errorsx.ReasonCanceled)
	}
	emo, err := a.emotion.ScoreEmotion(ctx, window, sr)
	if err == nil {
		err = emo.Check()
	}
	if err != nil {
		return ChunkRecord{}, a.fail(ctx, id, "emotion scoring", err, errorsx.ReasonEmotionScore)
	}

	subMin := samplesFor(a.opts.SubMinSeconds, sr)
	events := make([]EventSegment, 0, (len(window)+sub-1)/sub)
	for j := 0; j < len(window); j += sub {
		s := window[j:min(j+sub, len(window))]
		if len(s) < subMin {
			continue
		}
		if err := ctx.Err(); err != nil {
			return ChunkRecord{}, errorsx.Wrap(err, errorsx.ReasonCanceled)
		}
		scores, err := a.tagger.TagEvents(ctx, s, sr)
		if err == nil {
			err = inference.CheckScores(scores, a.tagger.Labels())
		}
		if err != nil {
			return ChunkRecord{}, a.fail(ctx, id, "event tagging", err, errorsx.ReasonEventTag)
		}
		events = append(events, EventSegment{
			SubStart: round2(float64(offset+j) / float64(sr)),
			SubEnd:   round2(float64(offset+j+len(s)) / float64(sr)),
			Events:   topEvents(scores, a.tagger.Labels(), a.opts.TopEvents),
		})
	}

	rec := ChunkRecord{
		ChunkID: id,
		Start:   round2(float64(offset) / float64(sr)),
		End:     round2(float64(offset+len(window)) / float64(sr)),
		Emotions: Emotions{
			Arousal:   round4(emo.Arousal),
			Dominance: round4(emo.Dominance),
			Valence:   round4(emo.Valence),
		},
		ClassroomEvents: events,
	}
	log.Debug().Int("chunk_id", id).Float64("start", rec.Start).Float64("end", rec.End).Int("segments", len(events)).Msg("analysis: chunk ready")
	return rec, nil
}

func (a *Analyzer) fail(ctx context.Context, id int, stage string, err error, reason errorsx.ReasonCode) error {
	if ctx.Err() != nil {
		return errorsx.Wrap(fmt.Errorf("chunk %d: %s: %w", id, stage, ctx.Err()), errorsx.ReasonCanceled)
	}
	err = errorsx.Wrap(fmt.Errorf("chunk %d: %s: %w", id, stage, err), reason)
	switch {
	case errors.Is(err, inference.ErrArity):
		err = errorsx.Wrap(err, errorsx.ReasonArity)
	case errors.Is(err, inference.ErrInvalidScore):
		err = errorsx.Wrap(err, errorsx.ReasonInvalidScore)
	}
	return err
}

// topEvents ranks labels by score, descending; equal scores keep vocabulary order.
func topEvents(scores []float64, labels []string, k int) []Event {
	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return scores[idx[a]] > scores[idx[b]] })
	if k > len(idx) {
		k = len(idx)
	}
	out := make([]Event, k)
	for r := 0; r < k; r++ {
		out[r] = Event{Label: labels[idx[r]], Score: round4(scores[idx[r]])}
	}
	return out
}

func samplesFor(seconds float64, sr int) int {
	return int(math.Round(seconds * float64(sr)))
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round4(v float64) float64 { return math.Round(v*1e4) / 1e4 }
