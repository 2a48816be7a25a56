package play

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

// DefaultPlayers lists external players in order of preference. Every one of
// them can play a PCM WAV file.
var DefaultPlayers = []string{"mpv", "ffplay", "vlc", "aplay", "paplay", "afplay"}

type Player struct {
	candidates []string
	lookPath   func(string) (string, error)
	command    func(ctx context.Context, name string, args ...string) *exec.Cmd
}

func New() *Player {
	return &Player{
		candidates: DefaultPlayers,
		lookPath:   exec.LookPath,
		command:    exec.CommandContext,
	}
}

// Play blocks until the player exits or ctx is cancelled.
func (p *Player) Play(ctx context.Context, audioFile string) error {
	if _, err := os.Stat(audioFile); err != nil {
		return fmt.Errorf("audio file not found: %s", audioFile)
	}

	player, err := p.findAudioPlayer()
	if err != nil {
		return fmt.Errorf("no suitable audio player found: %w", err)
	}

	name, args := playerArgs(player, audioFile)
	slog.Debug("Starting playback", "player", name, "file", audioFile)

	cmd := p.command(ctx, name, args...)
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("playback failed with %s: %w", player, err)
	}
	return nil
}

func playerArgs(player, audioFile string) (string, []string) {
	switch player {
	case "vlc":
		return "vlc", []string{"--intf", "dummy", "--play-and-exit", audioFile}
	case "mpv":
		return "mpv", []string{"--no-video", audioFile}
	case "ffplay":
		return "ffplay", []string{"-nodisp", "-autoexit", "-loglevel", "error", audioFile}
	default:
		return player, []string{audioFile}
	}
}

func (p *Player) findAudioPlayer() (string, error) {
	for _, player := range p.candidates {
		if _, err := p.lookPath(player); err == nil {
			return player, nil
		}
	}
	return "", fmt.Errorf("no audio player found (tried: %s)", strings.Join(p.candidates, ", "))
}
