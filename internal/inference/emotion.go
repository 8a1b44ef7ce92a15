package inference

import (
	"context"
	"fmt"
)

// HTTPEmotion scores windows with a remote dimensional emotion model
// (POST {url}/score -> {"scores": [arousal, dominance, valence]}).
type HTTPEmotion struct {
	c *client
}

func NewHTTPEmotion(cfg ServiceConfig) *HTTPEmotion {
	return &HTTPEmotion{c: newClient(cfg)}
}

func (e *HTTPEmotion) ScoreEmotion(ctx context.Context, window []float32, sampleRate int) (Emotion, error) {
	scores, err := e.c.postScores(ctx, "/score", window, sampleRate)
	if err != nil {
		return Emotion{}, fmt.Errorf("emotion model: %w", err)
	}
	return EmotionFromScores(scores)
}
