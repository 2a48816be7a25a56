package audio

import (
	"fmt"
	"log/slog"
	"strings"
)

// Backend gives access to the host's capture devices.
type Backend interface {
	// DefaultInputDevice returns ErrNoInputDevice when the host has none.
	DefaultInputDevice() (Device, error)

	// InputDevices lists every device with at least one input channel.
	InputDevices() ([]Device, error)
}

// Device is one capture device.
type Device interface {
	Name() string
	SupportedInputConfigs() ([]ConfigRange, error)

	// OpenInputStream opens a stream that calls onInput on the device's
	// real-time thread with interleaved float32 samples in [-1, 1].
	OpenInputStream(cfg StreamConfig, onInput func(in []float32)) (Stream, error)
}

// Stream is an open input stream. Stop blocks until no callback is running.
type Stream interface {
	Start() error
	Stop() error
	Close() error
}

// ConfigRange is one supported channel count with its sample rate range.
type ConfigRange struct {
	Channels      int `json:"channels"`
	MinSampleRate int `json:"min_sample_rate"`
	MaxSampleRate int `json:"max_sample_rate"`
}

// StreamConfig is the negotiated configuration a stream is opened with.
type StreamConfig struct {
	Channels        int
	SampleRate      int
	FramesPerBuffer int
}

// RatePreference bounds the negotiated sample rate. Zero fields fall back to
// DefaultSampleRate and MaxPreferredRate.
type RatePreference struct {
	Preferred int
	Max       int
}

func (p RatePreference) withDefaults() RatePreference {
	if p.Preferred <= 0 {
		p.Preferred = DefaultSampleRate
	}
	if p.Max <= 0 {
		p.Max = MaxPreferredRate
	}
	return p
}

func (r ConfigRange) suitable(p RatePreference) bool {
	return r.Channels >= 1 && r.MinSampleRate <= p.Max && r.MaxSampleRate >= p.Preferred
}

// NegotiateConfig picks a capture configuration from the device's ranges.
// A mono range wins; otherwise the first suitable range is used and the
// input is downmixed. The preferred rate is used when the range allows it,
// else the range minimum.
func NegotiateConfig(ranges []ConfigRange, pref RatePreference) (StreamConfig, error) {
	pref = pref.withDefaults()

	var chosen *ConfigRange
	for i := range ranges {
		r := ranges[i]
		if !r.suitable(pref) {
			continue
		}
		if r.Channels == 1 {
			chosen = &ranges[i]
			break
		}
		if chosen == nil {
			chosen = &ranges[i]
		}
	}
	if chosen == nil {
		return StreamConfig{}, fmt.Errorf("%w among %d ranges", ErrNoSuitableConfig, len(ranges))
	}

	rate := chosen.MinSampleRate
	if pref.Preferred >= chosen.MinSampleRate && pref.Preferred <= chosen.MaxSampleRate {
		rate = pref.Preferred
	}

	return StreamConfig{Channels: chosen.Channels, SampleRate: rate}, nil
}

// SelectDevice returns the input device named name, or the default input
// device when name is empty or "default".
func SelectDevice(b Backend, name string) (Device, error) {
	if name == "" || strings.EqualFold(name, "default") {
		return b.DefaultInputDevice()
	}

	devices, err := b.InputDevices()
	if err != nil {
		return nil, fmt.Errorf("failed to list input devices: %w", err)
	}
	for _, d := range devices {
		if d.Name() == name {
			return d, nil
		}
	}

	slog.Warn("Configured input device not found, using default", "device", name)
	return b.DefaultInputDevice()
}
