package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/muesli/reflow/wordwrap"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/stratalign/pmocast/internal/episode"
	"github.com/stratalign/pmocast/internal/library"
	"github.com/stratalign/pmocast/internal/podcast"
	"github.com/stratalign/pmocast/ui"
)

var (
	playDeck  string
	playAll   bool
	playPlain bool
	playMouse bool
	playWidth uint

	playCmd = &cobra.Command{
		Use:     "play [EPISODE...]",
		Short:   "Play one or more episodes",
		Long:    paragraph(fmt.Sprintf("\n%s episodes from the library. Episodes are named by id or by a fuzzy match on their title; with several, they play in order as a playlist.", keyword("Play"))),
		Example: paragraph("pmocast play T5\npmocast play \"raci\" \"risk register\"\npmocast play --deck tools\npmocast play --all --rate 1.25"),
		RunE:    runPlay,
	}
)

func init() {
	playCmd.Flags().StringVarP(&playDeck, "deck", "d", "", "play every episode of a deck")
	playCmd.Flags().BoolVarP(&playAll, "all", "a", false, fmt.Sprintf("play the first %d episodes of the library", library.DefaultAllLimit))
	playCmd.Flags().BoolVar(&playPlain, "plain", false, "print the transcript instead of starting the player UI")
	playCmd.Flags().BoolVarP(&playMouse, "mouse", "m", false, "enable mouse wheel (TUI-mode only)")
	playCmd.Flags().UintVarP(&playWidth, "width", "w", 0, "word-wrap at width (0 follows the terminal)")
	playCmd.Flags().Float64P("rate", "r", 1.0, "playback rate (0.5 to 2.0)")

	_ = viper.BindPFlag("playback.rate", playCmd.Flags().Lookup("rate"))
	_ = viper.BindPFlag("mouse", playCmd.Flags().Lookup("mouse"))
	_ = viper.BindPFlag("width", playCmd.Flags().Lookup("width"))
}

// resolveEpisodes turns the command line into a playlist.
func resolveEpisodes(lib *library.Library, args []string, deck string, all bool) ([]episode.Descriptor, error) {
	if lib == nil {
		return nil, errors.New("no episode library found: set library.path or pass --library")
	}

	switch {
	case all:
		return lib.All(library.DefaultAllLimit), nil
	case deck != "":
		items, err := lib.Deck(deck)
		if err != nil {
			return nil, err //nolint:wrapcheck
		}
		return items, nil
	case len(args) == 0:
		return nil, errors.New("name an episode, or use --deck or --all")
	}

	items := make([]episode.Descriptor, 0, len(args))
	for _, q := range args {
		d, err := lib.Find(q)
		if err != nil {
			return nil, err //nolint:wrapcheck
		}
		items = append(items, d)
	}
	return items, nil
}

func runPlay(cmd *cobra.Command, args []string) error {
	s, err := loadSettings()
	if err != nil {
		return err
	}
	lib, err := loadLibrary(s.LibraryPath)
	if err != nil {
		return err
	}
	items, err := resolveEpisodes(lib, args, playDeck, playAll)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(s, lib)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn("Shutdown", "err", err)
		}
	}()

	out := cmd.OutOrStdout()
	plain := playPlain || !term.IsTerminal(int(os.Stdout.Fd()))

	greet(ctx, a, out, plain)

	if plain {
		return runPlain(ctx, a.engine, items, out, playWidth)
	}
	return runTUI(a.engine, items)
}

// greet plays the configured greeting once per day.
func greet(ctx context.Context, a *app, w io.Writer, plain bool) {
	text := a.settings.Greeting
	if text == "" {
		return
	}

	store, err := openFlags(a.settings)
	if err != nil {
		log.Warn("Could not open state store", "err", err)
		return
	}
	defer func() { _ = store.Close() }()

	if done, err := store.GreetedToday(); err != nil || done {
		return
	}

	if plain {
		_, _ = fmt.Fprintln(w, faint(text))
	}
	clip, err := a.client.Synthesize(ctx, text)
	if err != nil {
		// text-only fallback
		log.Warn("Greeting unavailable", "err", err)
		if !plain {
			_, _ = fmt.Fprintln(w, faint(text))
		}
	} else if err := playClip(ctx, a.player, clip); err != nil {
		log.Warn("Greeting failed", "err", err)
	}
	if ctx.Err() != nil {
		return
	}
	if err := store.MarkGreeted(); err != nil {
		log.Warn("Could not record greeting", "err", err)
	}
}

func runTUI(engine *podcast.Engine, items []episode.Descriptor) error {
	// Read environment to get debugging stuff
	cfg, err := env.ParseAs[ui.Config]()
	if err != nil {
		return fmt.Errorf("error parsing config: %v", err)
	}
	cfg.EnableMouse = viper.GetBool("mouse")
	cfg.Width = viper.GetUint("width")
	cfg.ExitWhenDone = true

	if err := engine.PlayDescriptors(items, 0); err != nil {
		return err //nolint:wrapcheck
	}

	// Run Bubble Tea program
	if _, err := ui.NewProgram(cfg, engine).Run(); err != nil {
		return fmt.Errorf("unable to run tui program: %w", err)
	}
	if s := engine.Session(); s.State == podcast.StateError {
		return s.Err
	}
	return nil
}

// runPlain prints each line as it starts playing until the playlist ends.
func runPlain(ctx context.Context, engine *podcast.Engine, items []episode.Descriptor, w io.Writer, width uint) error {
	if width == 0 {
		width = 80
		if tw, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && tw > 0 {
			width = uint(min(tw, 120)) //nolint:gosec
		}
	}

	updates, unsubscribe := engine.Subscribe()
	defer unsubscribe()

	if err := engine.PlayDescriptors(items, 0); err != nil {
		return err //nolint:wrapcheck
	}

	var lastEpisode string
	lastSegment := -1
	for {
		select {
		case <-ctx.Done():
			engine.Stop()
			return nil
		case s, ok := <-updates:
			if !ok {
				return nil
			}
			if s.Episode.ID != "" && s.Episode.ID != lastEpisode {
				lastEpisode = s.Episode.ID
				lastSegment = -1
				_, _ = fmt.Fprintf(w, "\n%s %s\n\n", keyword(s.Episode.ID), deckHeading(s.Episode.Title))
			}
			if s.SegmentIndex >= 0 && s.SegmentIndex != lastSegment {
				lastSegment = s.SegmentIndex
				line := fmt.Sprintf("%s: %s", s.Speaker, s.Line)
				_, _ = fmt.Fprintln(w, wordwrap.String(line, int(width))) //nolint:gosec
			}
			switch s.State {
			case podcast.StateFinished:
				return nil
			case podcast.StateError:
				return s.Err
			}
		}
	}
}
