package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/audiolibrelab/notecapture/internal/audio"
)

var infoCmd = &cobra.Command{
	Use:   "info <session-id | file.wav>",
	Short: "Show the recorded audio of a session or a WAV file",
	Long: `Display the format, length and size of a session's main audio file, or of
any PCM WAV file given by path. Leftover segment files from an interrupted
recording are listed too.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		stitcher := audio.NewStitcher(cfg.Output.MainFile, cfg.Recorder.StrictFormat)
		var dir string

		if filepath.Ext(path) != ".wav" {
			st, err := openStore()
			if err != nil {
				return err
			}
			sess, err := st.Get(path)
			if err != nil {
				return err
			}
			dir = st.SessionDir(sess.ID)
			path = stitcher.MainPath(dir)

			fmt.Printf("=== SESSION ===\n")
			fmt.Printf("title:  %s\n", sess.Title)
			fmt.Printf("course: %s\n", sess.Course)
			fmt.Printf("status: %s\n", sess.Status)
			fmt.Printf("folder: %s\n\n", dir)
		}

		info, err := audio.Inspect(path)
		if err != nil {
			return err
		}

		fmt.Printf("=== AUDIO ===\n")
		fmt.Printf("path:     %s\n", info.Path)
		fmt.Printf("format:   %s\n", info.Format)
		fmt.Printf("frames:   %d\n", info.Frames)
		fmt.Printf("duration: %s\n", info.Duration)
		fmt.Printf("size:     %d bytes\n", info.SizeBytes)

		if dir != "" {
			leftovers, _ := stitcher.Leftovers(dir)
			if len(leftovers) > 0 {
				fmt.Printf("\n=== UNMERGED SEGMENTS ===\n")
				for _, seg := range leftovers {
					fmt.Printf("  %s\n", seg)
				}
			}
		}
		return nil
	},
}
