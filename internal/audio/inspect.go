package audio

import (
	"fmt"
	"os"
	"time"

	"github.com/go-audio/wav"
)

// FileInfo summarizes a PCM WAV file without decoding its samples.
type FileInfo struct {
	Path      string        `json:"path"`
	Format    Format        `json:"format"`
	Frames    int64         `json:"frames"`
	Duration  time.Duration `json:"duration_ns"`
	SizeBytes int64         `json:"size_bytes"`
}

// Inspect reads the header and data chunk size of a WAV file.
func Inspect(path string) (FileInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return FileInfo{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return FileInfo{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return FileInfo{}, fmt.Errorf("invalid PCM file: %s", path)
	}
	if err := d.FwdToPCM(); err != nil {
		return FileInfo{}, fmt.Errorf("failed to locate PCM data in %s: %w", path, err)
	}

	format := decoderFormat(d)
	info := FileInfo{
		Path:      path,
		Format:    format,
		SizeBytes: stat.Size(),
	}

	frameBytes := int64(format.Channels * ((format.BitsPerSample + 7) / 8))
	if frameBytes > 0 {
		info.Frames = int64(d.PCMSize) / frameBytes
	}
	if format.SampleRate > 0 {
		info.Duration = time.Duration(info.Frames) * time.Second / time.Duration(format.SampleRate)
	}
	return info, nil
}
