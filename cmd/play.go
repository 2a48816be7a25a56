package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/audiolibrelab/notecapture/internal/audio"
	"github.com/audiolibrelab/notecapture/internal/play"
)

var playCmd = &cobra.Command{
	Use:   "play <session-id | file.wav>",
	Short: "Play a session's recorded audio",
	Long: `Play the main audio file of a session, or any WAV file, with the first
external player found (mpv, ffplay, vlc, aplay, paplay or afplay).`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		audioFile := args[0]
		if filepath.Ext(audioFile) != ".wav" {
			st, err := openStore()
			if err != nil {
				return err
			}
			sess, err := st.Get(audioFile)
			if err != nil {
				return err
			}
			audioFile = audio.NewStitcher(cfg.Output.MainFile, false).MainPath(st.SessionDir(sess.ID))
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Printf("Playing: %s\n", audioFile)
		if err := play.New().Play(ctx, audioFile); err != nil {
			return fmt.Errorf("playback failed: %w", err)
		}
		fmt.Println("Playback completed")
		return nil
	},
}
