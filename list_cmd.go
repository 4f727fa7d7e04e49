package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	listDeck string

	listCmd = &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List decks and episodes in the library",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := loadSettings()
			if err != nil {
				return err
			}
			lib, err := loadLibrary(s.LibraryPath)
			if err != nil {
				return err
			}
			if lib == nil {
				return errors.New("no episode library found: set library.path or pass --library")
			}

			w := cmd.OutOrStdout()
			if listDeck != "" {
				items, err := lib.Deck(listDeck)
				if err != nil {
					return err //nolint:wrapcheck
				}
				for _, d := range items {
					_, _ = fmt.Fprintf(w, "%s %s\n", episodeID(d.ID), d.Title)
				}
				return nil
			}

			for _, deck := range lib.Decks() {
				_, _ = fmt.Fprintf(w, "%s %s\n", deckHeading(deck.Title), faint(fmt.Sprintf("(%s, %d episodes)", deck.ID, deck.Episodes)))
				items, err := lib.Deck(deck.ID)
				if err != nil {
					return err //nolint:wrapcheck
				}
				for _, d := range items {
					_, _ = fmt.Fprintf(w, "  %s %s\n", episodeID(d.ID), d.Title)
				}
			}
			return nil
		},
	}
)

func init() {
	listCmd.Flags().StringVarP(&listDeck, "deck", "d", "", "only list the episodes of this deck")
}
