package audio

import (
	"errors"
	"math"
	"sync"
)

type fakeStream struct {
	mu       sync.Mutex
	startErr error
	started  bool
	stopped  bool
	closed   bool
}

func (s *fakeStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		return s.startErr
	}
	s.started = true
	return nil
}

func (s *fakeStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	return nil
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// fakeDevice records the callback of the most recently opened stream so tests
// can drive it synchronously.
type fakeDevice struct {
	name     string
	ranges   []ConfigRange
	openErr  error
	startErr error

	mu       sync.Mutex
	cfg      StreamConfig
	callback func([]float32)
	streams  []*fakeStream
}

func newFakeDevice(ranges ...ConfigRange) *fakeDevice {
	if len(ranges) == 0 {
		ranges = []ConfigRange{{Channels: 1, MinSampleRate: 8000, MaxSampleRate: 48000}}
	}
	return &fakeDevice{name: "fake input", ranges: ranges}
}

func (d *fakeDevice) Name() string { return d.name }

func (d *fakeDevice) SupportedInputConfigs() ([]ConfigRange, error) {
	return d.ranges, nil
}

func (d *fakeDevice) OpenInputStream(cfg StreamConfig, onInput func([]float32)) (Stream, error) {
	if d.openErr != nil {
		return nil, d.openErr
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	d.cfg = cfg
	d.callback = onInput
	s := &fakeStream{startErr: d.startErr}
	d.streams = append(d.streams, s)
	return s, nil
}

// feed delivers samples in blocks of blockSize to the last opened stream.
func (d *fakeDevice) feed(samples []float32, blockSize int) {
	d.mu.Lock()
	cb := d.callback
	d.mu.Unlock()

	for start := 0; start < len(samples); start += blockSize {
		end := min(start+blockSize, len(samples))
		cb(samples[start:end])
	}
}

func (d *fakeDevice) lastStream() *fakeStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.streams) == 0 {
		return nil
	}
	return d.streams[len(d.streams)-1]
}

type fakeBackend struct {
	devices []*fakeDevice
	err     error
}

func (b *fakeBackend) DefaultInputDevice() (Device, error) {
	if b.err != nil {
		return nil, b.err
	}
	if len(b.devices) == 0 {
		return nil, ErrNoInputDevice
	}
	return b.devices[0], nil
}

func (b *fakeBackend) InputDevices() ([]Device, error) {
	if b.err != nil {
		return nil, b.err
	}
	out := make([]Device, len(b.devices))
	for i, d := range b.devices {
		out[i] = d
	}
	return out, nil
}

var errFake = errors.New("fake failure")

func tone(freq, amplitude float64, sampleRate, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
	}
	return out
}

func toInt16(samples []float32) []int {
	out := make([]int, len(samples))
	for i, s := range samples {
		out[i] = sampleToInt16(s)
	}
	return out
}
