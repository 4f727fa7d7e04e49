package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/stratalign/pmocast/internal/devsource"
	"github.com/stratalign/pmocast/internal/utils"
)

var (
	devDir      string
	devAddr     string
	devShuffle  bool
	devSeed     uint64
	devDelay    time.Duration
	devFail     []int
	devFallback string
	devWatch    bool

	devsourceCmd = &cobra.Command{
		Use:     "devsource",
		Short:   "Serve recorded episodes as a local narration backend",
		Long:    paragraph(fmt.Sprintf("\n%s a directory of recorded episodes over the same endpoints as the narration backend. Records can be shuffled, delayed or replaced by errors to exercise the player.", keyword("Serve"))),
		Example: paragraph("pmocast devsource --dir fixtures\npmocast devsource --dir fixtures --shuffle --delay 400ms --fail 2"),
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if devDir == "" {
				return errors.New("--dir is required")
			}

			srv, err := devsource.New(devsource.Config{
				Dir:         utils.ExpandPath(devDir),
				Fallback:    devFallback,
				Shuffle:     devShuffle,
				Seed:        devSeed,
				Delay:       devDelay,
				FailIndices: devFail,
				Logger:      log.Default().WithPrefix("devsource"),
			})
			if err != nil {
				return err //nolint:wrapcheck
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if devWatch {
				go func() {
					if err := srv.Watch(ctx); err != nil {
						log.Error("Fixture watcher stopped", "err", err)
					}
				}()
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Serving %d episodes on %s\n", len(srv.Fixtures().IDs()), keyword(devAddr))
			return srv.ListenAndServe(ctx, devAddr) //nolint:wrapcheck
		},
	}
)

func init() {
	devsourceCmd.Flags().StringVar(&devDir, "dir", "", "fixtures directory, one sub-directory per episode")
	devsourceCmd.Flags().StringVar(&devAddr, "addr", "localhost:8787", "listen address")
	devsourceCmd.Flags().BoolVar(&devShuffle, "shuffle", false, "emit segments in a random order")
	devsourceCmd.Flags().Uint64Var(&devSeed, "seed", 0, "shuffle seed (0 picks one)")
	devsourceCmd.Flags().DurationVar(&devDelay, "delay", 0, "pause between records")
	devsourceCmd.Flags().IntSliceVar(&devFail, "fail", nil, "segment indices to replace with error records")
	devsourceCmd.Flags().StringVar(&devFallback, "fallback", "", "episode served for unknown ids")
	devsourceCmd.Flags().BoolVar(&devWatch, "watch", false, "reload fixtures when the directory changes")
}
