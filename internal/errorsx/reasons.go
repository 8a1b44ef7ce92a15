package errorsx

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	ReasonDecode     ReasonCode = "decode"
	ReasonAudioLimit ReasonCode = "audio_limit"

	ReasonEmotionScore ReasonCode = "emotion_score"
	ReasonEventTag     ReasonCode = "event_tag"
	ReasonArity        ReasonCode = "arity"
	ReasonInvalidScore ReasonCode = "invalid_score"

	ReasonCanceled      ReasonCode = "canceled"
	ReasonTransportSend ReasonCode = "transport_send"
	ReasonUpload        ReasonCode = "upload"
)
