// Package stream turns a stored audio file into a sequence of serialized
// units: one per chunk record, or a single terminal error unit.
package stream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/obiente/translate/goanalyze/internal/analysis"
	"github.com/obiente/translate/goanalyze/internal/audio"
	"github.com/obiente/translate/goanalyze/internal/errorsx"
	"github.com/obiente/translate/goanalyze/internal/telemetry"
)

// Runner is the windowing engine as seen by the assembler.
type Runner interface {
	Run(ctx context.Context, sig audio.Signal, emit func(analysis.ChunkRecord) error) error
}

type Assembler struct {
	decoder    audio.Decoder
	runner     Runner
	maxSeconds float64
	metrics    *telemetry.Metrics
}

// NewAssembler builds an assembler. maxSeconds <= 0 disables the duration cap;
// metrics may be nil.
func NewAssembler(decoder audio.Decoder, runner Runner, maxSeconds float64, metrics *telemetry.Metrics) *Assembler {
	return &Assembler{decoder: decoder, runner: runner, maxSeconds: maxSeconds, metrics: metrics}
}

// Stream decodes path and sends every record to sink as it is produced.
// Decode, duration-cap and scorer failures are reported to the consumer as
// one ErrorUnit. A failed Send or a cancelled ctx ends the stream with
// nothing further sent. The returned error is the terminal condition, or
// nil when the whole file was delivered.
func (a *Assembler) Stream(ctx context.Context, path string, sink Sink) error {
	started := time.Now()
	logger := log.Ctx(ctx)

	sig, err := a.decoder.Decode(path)
	if err != nil {
		err = errorsx.Wrap(fmt.Errorf("decode audio: %w", err), errorsx.ReasonDecode)
		if errors.Is(err, audio.ErrTooLong) {
			err = errorsx.Wrap(err, errorsx.ReasonAudioLimit)
		}
		return a.fail(ctx, sink, err)
	}
	logger.Info().
		Int("samples", len(sig.Samples)).
		Float64("seconds", sig.Seconds()).
		Msg("stream: processing audio")

	if a.maxSeconds > 0 && sig.Seconds() > a.maxSeconds {
		err := fmt.Errorf("audio is %.1fs long, limit is %.1fs", sig.Seconds(), a.maxSeconds)
		return a.fail(ctx, sink, errorsx.Wrap(err, errorsx.ReasonAudioLimit))
	}

	sent := 0
	err = a.runner.Run(ctx, sig, func(rec analysis.ChunkRecord) error {
		if err := sink.Send(rec); err != nil {
			return errorsx.Wrap(fmt.Errorf("send chunk %d: %w", rec.ChunkID, err), errorsx.ReasonTransportSend)
		}
		sent++
		a.metrics.ChunkSent(ctx)
		return nil
	})
	if err != nil {
		return a.fail(ctx, sink, err)
	}

	logger.Info().
		Int("chunks", sent).
		Dur("elapsed", time.Since(started)).
		Msg("stream: complete")
	return nil
}

func (a *Assembler) fail(ctx context.Context, sink Sink, err error) error {
	reason := errorsx.Reason(err)
	a.metrics.StreamFailed(ctx, err)

	if reason == errorsx.ReasonTransportSend || reason == errorsx.ReasonCanceled || ctx.Err() != nil {
		log.Ctx(ctx).Warn().Err(err).Str("reason", string(reason)).Msg("stream: consumer gone, stopping")
		return err
	}

	log.Ctx(ctx).Error().Err(err).Str("reason", string(reason)).Msg("stream: aborting")
	if sendErr := sink.Send(ErrorUnit{Error: err.Error()}); sendErr != nil {
		log.Ctx(ctx).Debug().Err(sendErr).Msg("stream: error unit not delivered")
	}
	return err
}
