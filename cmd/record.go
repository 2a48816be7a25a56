package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/audiolibrelab/notecapture/internal/audio"
	"github.com/audiolibrelab/notecapture/internal/events"
	"github.com/audiolibrelab/notecapture/internal/service"
)

var recordCmd = &cobra.Command{
	Use:   "record [title]",
	Short: "Record a lecture from the default microphone",
	Long: `Create a session and record into its folder until interrupted.

While recording, type a command and press Enter:
  p  pause (finalizes the current segment into the main file)
  r  resume
  s  stop and finish the session
Ctrl+C also stops the recording cleanly.

Pass --session to continue recording into an existing session.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		course, _ := cmd.Flags().GetString("course")
		sessionID, _ := cmd.Flags().GetString("session")
		showLevels, _ := cmd.Flags().GetBool("levels")

		if sessionID == "" && len(args) == 0 {
			return fmt.Errorf("a title is required unless --session is given")
		}

		svc, closeFn, err := newService()
		if err != nil {
			return err
		}
		defer closeFn()

		if sessionID == "" {
			sess, err := svc.CreateSession(args[0], course)
			if err != nil {
				return fmt.Errorf("failed to create session: %w", err)
			}
			sessionID = sess.ID
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if showLevels {
			ch, unsubscribe := svc.Subscribe()
			defer unsubscribe()
			go printEvents(ctx, ch)
		}

		if err := svc.StartRecording(sessionID); err != nil {
			return fmt.Errorf("failed to start recording: %w", err)
		}
		slog.Info("Recording started - p=pause, r=resume, s=stop, Ctrl+C to stop", "session_id", sessionID)

		runRecordingControls(ctx, svc, sessionID, os.Stdin)

		slog.Info("Stopping recording...", "session_id", sessionID)
		sess, err := svc.StopRecording(sessionID)
		if err != nil {
			return fmt.Errorf("failed to stop recording: %w", err)
		}

		fmt.Printf("Session %s complete\n", sess.ID)
		fmt.Printf("  audio:    %s\n", sess.AudioPath)
		fmt.Printf("  duration: %.1fs\n", float64(sess.DurationMs)/1000)
		if sess.TranscriptPath != "" {
			fmt.Printf("  transcript: %s\n", sess.TranscriptPath)
		}
		return nil
	},
}

// runRecordingControls reads commands from in until stop is requested,
// ctx is cancelled, or input ends.
func runRecordingControls(ctx context.Context, svc service.Service, sessionID string, in io.Reader) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- strings.TrimSpace(scanner.Text()):
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				// stdin closed: keep recording until a signal arrives
				<-ctx.Done()
				return
			}
			switch strings.ToLower(line) {
			case "p", "pause":
				if err := svc.PauseRecording(sessionID); err != nil {
					slog.Warn("Pause failed", "error", err)
					continue
				}
				slog.Info("Recording paused")
			case "r", "resume":
				if err := svc.ResumeRecording(sessionID); err != nil {
					slog.Warn("Resume failed", "error", err)
					continue
				}
				slog.Info("Recording resumed")
			case "s", "stop", "q":
				return
			case "":
			default:
				fmt.Println("unknown command; use p, r or s")
			}
		}
	}
}

func printEvents(ctx context.Context, ch <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			switch ev.Type {
			case events.TypeLevel:
				fmt.Fprintf(os.Stderr, "\rlevel %s", levelBar(ev.Level, 30))
			case events.TypeTranscript:
				fmt.Fprintf(os.Stderr, "\n> %s\n", ev.Text)
			case events.TypeStatus:
				if ev.Status == string(audio.StatusPaused) {
					fmt.Fprintln(os.Stderr, "\n[paused]")
				}
			}
		}
	}
}

func levelBar(level float64, width int) string {
	n := int(level * float64(width))
	if n > width {
		n = width
	}
	if n < 0 {
		n = 0
	}
	return "[" + strings.Repeat("#", n) + strings.Repeat(" ", width-n) + "]"
}

func init() {
	recordCmd.Flags().String("course", "", "course the lecture belongs to")
	recordCmd.Flags().String("session", "", "record into an existing session instead of creating one")
	recordCmd.Flags().Bool("levels", false, "print live input levels and transcript lines")
}
