// Package pabackend implements the capture backend on top of PortAudio.
package pabackend

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/audiolibrelab/notecapture/internal/audio"
)

// probeRates are tried in ascending order when building config ranges.
var probeRates = []int{8000, 11025, 16000, 22050, 32000, 44100, 48000}

// Backend is a PortAudio host. Open it once per process and Close it on exit.
type Backend struct {
	mu     sync.Mutex
	closed bool
}

// Open initializes PortAudio.
func Open() (*Backend, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}
	slog.Debug("PortAudio initialized", "version", portaudio.VersionText())
	return &Backend{}, nil
}

// Close terminates PortAudio. Streams must be closed first.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	return portaudio.Terminate()
}

// DefaultInputDevice returns the host's default capture device.
func (b *Backend) DefaultInputDevice() (audio.Device, error) {
	info, err := portaudio.DefaultInputDevice()
	if err != nil || info == nil || info.MaxInputChannels < 1 {
		return nil, errors.Join(audio.ErrNoInputDevice, err)
	}
	return &device{info: info}, nil
}

// InputDevices lists every device with input channels.
func (b *Backend) InputDevices() ([]audio.Device, error) {
	infos, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}

	var devices []audio.Device
	for _, info := range infos {
		if info.MaxInputChannels > 0 {
			devices = append(devices, &device{info: info})
		}
	}
	return devices, nil
}

type device struct {
	info *portaudio.DeviceInfo
}

func (d *device) Name() string { return d.info.Name }

// SupportedInputConfigs probes mono and the device's full channel count at
// each candidate rate and reports one range per supported rate.
func (d *device) SupportedInputConfigs() ([]audio.ConfigRange, error) {
	channelCounts := []int{1}
	if d.info.MaxInputChannels > 1 {
		channelCounts = append(channelCounts, d.info.MaxInputChannels)
	}

	var ranges []audio.ConfigRange
	for _, channels := range channelCounts {
		for _, rate := range probeRates {
			params := d.params(channels, rate, 0)
			if err := portaudio.IsFormatSupported(params, func(in []float32) {}); err != nil {
				continue
			}
			ranges = append(ranges, audio.ConfigRange{
				Channels:      channels,
				MinSampleRate: rate,
				MaxSampleRate: rate,
			})
		}
	}

	if len(ranges) == 0 {
		// Some hosts refuse every probe but still open at the device default.
		rate := int(d.info.DefaultSampleRate)
		slog.Debug("No probed rate supported, falling back to device default", "device", d.info.Name, "rate", rate)
		ranges = append(ranges, audio.ConfigRange{
			Channels:      min(d.info.MaxInputChannels, 2),
			MinSampleRate: rate,
			MaxSampleRate: rate,
		})
	}
	return ranges, nil
}

func (d *device) params(channels, rate, framesPerBuffer int) portaudio.StreamParameters {
	params := portaudio.LowLatencyParameters(d.info, nil)
	params.Input.Channels = channels
	params.Output.Device = nil
	params.Output.Channels = 0
	params.SampleRate = float64(rate)
	params.FramesPerBuffer = framesPerBuffer
	return params
}

func (d *device) OpenInputStream(cfg audio.StreamConfig, onInput func(in []float32)) (audio.Stream, error) {
	params := d.params(cfg.Channels, cfg.SampleRate, cfg.FramesPerBuffer)
	stream, err := portaudio.OpenStream(params, onInput)
	if err != nil {
		return nil, fmt.Errorf("failed to open portaudio stream: %w", err)
	}
	return stream, nil
}
