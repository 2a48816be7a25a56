package audio

import "fmt"

const (
	DefaultSampleRate    = 16000
	MaxPreferredRate     = 44100
	DefaultBitsPerSample = 16

	// wavPCMFormat is the WAVE format tag for integer linear PCM.
	wavPCMFormat = 1
)

// Format describes the PCM layout of a segment or main output file.
type Format struct {
	Channels      int `json:"channels" yaml:"channels"`
	SampleRate    int `json:"sample_rate" yaml:"sample_rate"`
	BitsPerSample int `json:"bits_per_sample" yaml:"bits_per_sample"`
}

// DefaultFormat is used when there is nothing to read the format back from.
func DefaultFormat() Format {
	return Format{
		Channels:      1,
		SampleRate:    DefaultSampleRate,
		BitsPerSample: DefaultBitsPerSample,
	}
}

// MonoFormat returns the storage format for a negotiated capture rate.
func MonoFormat(sampleRate int) Format {
	return Format{
		Channels:      1,
		SampleRate:    sampleRate,
		BitsPerSample: DefaultBitsPerSample,
	}
}

func (f Format) String() string {
	return fmt.Sprintf("%dch/%dHz/%dbit", f.Channels, f.SampleRate, f.BitsPerSample)
}
