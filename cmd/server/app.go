package main

import (
	"context"
	"fmt"

	"github.com/obiente/translate/goanalyze/internal/analysis"
	"github.com/obiente/translate/goanalyze/internal/audio"
	"github.com/obiente/translate/goanalyze/internal/config"
	"github.com/obiente/translate/goanalyze/internal/inference"
	"github.com/obiente/translate/goanalyze/internal/lifecycle"
	"github.com/obiente/translate/goanalyze/internal/stream"
	"github.com/obiente/translate/goanalyze/internal/telemetry"
)

// app is the process-wide object graph shared by every request.
type app struct {
	models  *inference.Models
	metrics *telemetry.Metrics
	manager *lifecycle.Manager
}

func build(ctx context.Context, cfg config.Config) (*app, error) {
	metrics, err := telemetry.New()
	if err != nil {
		return nil, err
	}

	service := func(s config.ServiceConfig) inference.ServiceConfig {
		return inference.ServiceConfig{
			URL:     s.URL,
			Timeout: s.Timeout,
			Retries: cfg.Inference.Retries,
			Backoff: cfg.Inference.RetryBackoff,
		}
	}
	models, err := inference.New(ctx, inference.Options{
		Backend:    cfg.Inference.Backend,
		Device:     cfg.Inference.Device,
		LabelsFile: cfg.Inference.LabelsFile,
		Emotion:    service(cfg.Inference.Emotion),
		Tagger:     service(cfg.Inference.Tagger),
		Observer:   metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("load models: %w", err)
	}

	w := cfg.Windowing
	analyzer := analysis.New(models.Emotion, models.Tagger, analysis.Options{
		PrimarySeconds:    w.PrimarySeconds,
		PrimaryMinSeconds: w.PrimaryMinSeconds,
		SubSeconds:        w.SubSeconds,
		SubMinSeconds:     w.SubMinSeconds,
		TopEvents:         w.TopEvents,
	})
	decoder := audio.NewFileDecoder(w.SampleRate)
	decoder.MaxSeconds = w.MaxAudioSeconds
	assembler := stream.NewAssembler(decoder, analyzer, w.MaxAudioSeconds, metrics)

	spool, err := lifecycle.NewSpool(cfg.Storage.TempDir, cfg.Server.MaxUploadBytes())
	if err != nil {
		return nil, err
	}
	return &app{
		models:  models,
		metrics: metrics,
		manager: lifecycle.NewManager(spool, assembler),
	}, nil
}
