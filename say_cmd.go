package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/stratalign/pmocast/internal/audio"
	"github.com/stratalign/pmocast/internal/source"
)

var sayCmd = &cobra.Command{
	Use:     "say TEXT",
	Short:   "Speak a line of text through the narration backend",
	Example: paragraph("pmocast say \"Welcome back to the PMO Toolkit\""),
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.TrimSpace(strings.Join(args, " "))
		if text == "" {
			return errors.New("nothing to say")
		}

		s, err := loadSettings()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		client, err := source.NewClient(s.sourceConfig())
		if err != nil {
			return err //nolint:wrapcheck
		}

		w := cmd.OutOrStdout()
		clip, err := client.Synthesize(ctx, text)
		if err != nil {
			log.Warn("Speech unavailable", "err", err)
			_, _ = fmt.Fprintln(w, text)
			return nil
		}

		player, err := audio.NewPlayer(s.playerConfig())
		if err != nil {
			log.Warn("Audio output unavailable", "err", err)
			_, _ = fmt.Fprintln(w, text)
			return nil
		}
		defer func() { _ = player.Close() }()

		if err := playClip(ctx, player, clip); err != nil {
			log.Warn("Playback failed", "err", err)
			_, _ = fmt.Fprintln(w, text)
		}
		return nil
	},
}

// playClip plays one clip to its end or until ctx is cancelled.
func playClip(ctx context.Context, player *audio.Player, clip []byte) error {
	finished := make(chan error, 1)
	if err := player.Play(clip, 0, func(err error) { finished <- err }); err != nil {
		return fmt.Errorf("unable to play speech: %w", err)
	}
	log.Debug("Speaking", "bytes", len(clip))

	select {
	case err := <-finished:
		return err
	case <-ctx.Done():
		return player.Stop() //nolint:wrapcheck
	}
}
