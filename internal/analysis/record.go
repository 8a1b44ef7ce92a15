package analysis

// ChunkRecord is the result of one primary window. It is emitted once and never revised.
type ChunkRecord struct {
	ChunkID         int            `json:"chunk_id"`
	Start           float64        `json:"start"`
	End             float64        `json:"end"`
	Emotions        Emotions       `json:"emotions"`
	ClassroomEvents []EventSegment `json:"classroom_events"`
}

// Emotions holds the rounded dimensional emotion scores of a primary window.
type Emotions struct {
	Arousal   float64 `json:"arousal"`
	Dominance float64 `json:"dominance"`
	Valence   float64 `json:"valence"`
}

// EventSegment is the ranked event list of one sub-window.
type EventSegment struct {
	SubStart float64 `json:"sub_start"`
	SubEnd   float64 `json:"sub_end"`
	Events   []Event `json:"events"`
}

type Event struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}
