package episode

// Playlist is an ordered sequence of descriptors with a current position.
// It is a value: Next and Prev return a moved copy and never wrap around.
type Playlist struct {
	Items    []Descriptor
	Position int
}

// NewPlaylist returns a playlist positioned at the first item.
func NewPlaylist(items ...Descriptor) Playlist {
	return Playlist{Items: items}
}

// Len returns the number of items.
func (p Playlist) Len() int {
	return len(p.Items)
}

// Current returns the descriptor at the current position.
func (p Playlist) Current() (Descriptor, bool) {
	if p.Position < 0 || p.Position >= len(p.Items) {
		return Descriptor{}, false
	}
	return p.Items[p.Position], true
}

// HasNext reports whether a later item exists.
func (p Playlist) HasNext() bool {
	return p.Position+1 < len(p.Items)
}

// HasPrev reports whether an earlier item exists.
func (p Playlist) HasPrev() bool {
	return p.Position > 0 && len(p.Items) > 0
}

// Next returns the playlist moved one item forward.
func (p Playlist) Next() (Playlist, bool) {
	if !p.HasNext() {
		return p, false
	}
	p.Position++
	return p, true
}

// Prev returns the playlist moved one item back.
func (p Playlist) Prev() (Playlist, bool) {
	if !p.HasPrev() {
		return p, false
	}
	p.Position--
	return p, true
}
