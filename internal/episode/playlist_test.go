package episode

import "testing"

func TestPlaylistBounds(t *testing.T) {
	pl := NewPlaylist(
		Descriptor{ID: "a"},
		Descriptor{ID: "b"},
		Descriptor{ID: "c"},
	)

	if _, ok := pl.Prev(); ok {
		t.Error("Prev at position 0 should be a no-op")
	}

	var ok bool
	for i := 0; i < 2; i++ {
		pl, ok = pl.Next()
		if !ok {
			t.Fatalf("Next %d failed", i)
		}
	}

	cur, _ := pl.Current()
	if cur.ID != "c" {
		t.Errorf("Expected c, got %s", cur.ID)
	}

	moved, ok := pl.Next()
	if ok {
		t.Error("Next at last position should be a no-op")
	}
	if moved.Position != pl.Position {
		t.Errorf("Position changed at boundary: %d -> %d", pl.Position, moved.Position)
	}

	back, ok := pl.Prev()
	if !ok {
		t.Fatal("Prev from last position failed")
	}
	if cur, _ := back.Current(); cur.ID != "b" {
		t.Errorf("Expected b, got %s", cur.ID)
	}

	// The original value is untouched.
	if cur, _ := pl.Current(); cur.ID != "c" {
		t.Errorf("Prev mutated the receiver: %s", cur.ID)
	}
}

func TestPlaylistEmpty(t *testing.T) {
	var pl Playlist
	if _, ok := pl.Current(); ok {
		t.Error("empty playlist has no current item")
	}
	if pl.HasNext() || pl.HasPrev() {
		t.Error("empty playlist cannot move")
	}
}

func TestGapless(t *testing.T) {
	tests := []struct {
		name    string
		indices []int
		want    bool
	}{
		{"empty", nil, true},
		{"ordered", []int{0, 1, 2}, true},
		{"gap", []int{0, 2, 3}, false},
		{"not from zero", []int{1, 2}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			segs := make([]Segment, len(tt.indices))
			for i, idx := range tt.indices {
				segs[i] = Segment{Index: idx}
			}
			if got := Gapless(segs); got != tt.want {
				t.Errorf("Gapless(%v) = %v, want %v", tt.indices, got, tt.want)
			}
		})
	}
}

func TestParseSpeaker(t *testing.T) {
	if s, err := ParseSpeaker("alex"); err != nil || s != SpeakerAlex {
		t.Errorf("ParseSpeaker(alex) = %q, %v", s, err)
	}
	if _, err := ParseSpeaker("Jordan"); err == nil {
		t.Error("expected error for unknown speaker")
	}
}
