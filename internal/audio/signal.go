package audio

// TargetSampleRate is the rate every decoded signal is resampled to.
const TargetSampleRate = 16000

// Signal is a decoded mono PCM32F sample sequence. It is not modified after decoding.
type Signal struct {
	Samples    []float32
	SampleRate int
}

// Seconds returns the signal duration.
func (s Signal) Seconds() float64 {
	if s.SampleRate <= 0 {
		return 0
	}
	return float64(len(s.Samples)) / float64(s.SampleRate)
}

// Decoder turns an audio file on disk into a mono signal.
type Decoder interface {
	Decode(path string) (Signal, error)
}
