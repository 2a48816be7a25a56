package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/audiolibrelab/notecapture/internal/audio"
	"github.com/audiolibrelab/notecapture/internal/audio/pabackend"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List available input devices",
	Long: `List every capture device PortAudio can see, with the configurations
each one supports and the configuration NoteCapture would negotiate.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		backend, err := pabackend.Open()
		if err != nil {
			return err
		}
		defer backend.Close()

		return listInputDevices(backend)
	},
}

func listInputDevices(backend audio.Backend) error {
	fmt.Printf("Input devices (%s)\n", runtime.GOOS)
	fmt.Printf("=======================================\n\n")

	defaultName := ""
	if dev, err := backend.DefaultInputDevice(); err == nil {
		defaultName = dev.Name()
	}

	devices, err := backend.InputDevices()
	if err != nil {
		return fmt.Errorf("failed to list input devices: %w", err)
	}
	if len(devices) == 0 {
		fmt.Println("No input devices found.")
		return nil
	}

	pref := audio.RatePreference{
		Preferred: cfg.Audio.PreferredSampleRate,
		Max:       cfg.Audio.MaxSampleRate,
	}

	for i, dev := range devices {
		marker := ""
		if dev.Name() == defaultName {
			marker = " (default)"
		}
		fmt.Printf("%d. %s%s\n", i+1, dev.Name(), marker)

		ranges, err := dev.SupportedInputConfigs()
		if err != nil {
			fmt.Printf("   configs: unavailable (%v)\n", err)
			continue
		}
		for _, r := range ranges {
			fmt.Printf("   %d ch  %d-%d Hz\n", r.Channels, r.MinSampleRate, r.MaxSampleRate)
		}

		if sc, err := audio.NegotiateConfig(ranges, pref); err == nil {
			fmt.Printf("   negotiated: %d ch @ %d Hz\n", sc.Channels, sc.SampleRate)
		} else {
			fmt.Printf("   negotiated: none (%v)\n", err)
		}
	}

	fmt.Printf("\nSet audio.device in the config to one of the names above to override the default.\n")
	return nil
}
