// Package library loads the episode library: decks of cards, each card
// being one podcast episode. The library is a YAML file; see Parse for the
// format.
package library
