package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/stratalign/pmocast/internal/cache"
	"github.com/stratalign/pmocast/internal/source"
	"github.com/stratalign/pmocast/internal/utils"
)

var (
	downloadOutput string

	downloadCmd = &cobra.Command{
		Use:     "download EPISODE",
		Short:   "Save an episode as a single audio file",
		Long:    paragraph(fmt.Sprintf("\n%s an episode as one MP3 file. Episodes heard earlier in this session come from the cache; others are streamed in full first.", keyword("Download"))),
		Example: paragraph("pmocast download T5\npmocast download \"raci\" -o raci.mp3"),
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings()
			if err != nil {
				return err
			}
			lib, err := loadLibrary(s.LibraryPath)
			if err != nil {
				return err
			}
			items, err := resolveEpisodes(lib, args, "", false)
			if err != nil {
				return err
			}
			d := items[0]

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			client, err := source.NewClient(s.sourceConfig())
			if err != nil {
				return err //nolint:wrapcheck
			}
			episodes := cache.New(s.cacheConfig())
			defer func() { _ = episodes.Close() }()

			segments, ok := episodes.Get(d.ID)
			if !ok {
				log.Info("Streaming episode for download", "episode", d.ID)
				segments, err = client.Collect(ctx, d)
				if err != nil {
					return fmt.Errorf("unable to fetch %s: %w", d.ID, err)
				}
				episodes.Put(d.ID, segments)
			}
			if len(segments) == 0 {
				return errors.New("episode has no segments")
			}

			path := utils.ExpandPath(downloadOutput)
			if path == "" {
				path = utils.SafeFileName(d.ID+" "+d.Title, ".mp3")
			}
			f, err := os.Create(path)
			if err != nil {
				return fmt.Errorf("unable to create %s: %w", path, err)
			}
			n, err := client.Download(ctx, segments, f)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				_ = os.Remove(path)
				return fmt.Errorf("unable to download %s: %w", d.ID, err)
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%s, %d segments)\n", keyword(path), humanize.Bytes(uint64(n)), len(segments)) //nolint:gosec
			return nil
		},
	}
)

func init() {
	downloadCmd.Flags().StringVarP(&downloadOutput, "output", "o", "", "output file (default derived from the episode title)")
}
