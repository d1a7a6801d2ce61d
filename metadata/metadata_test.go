package metadata

import "testing"

func TestExtract(t *testing.T) {
	tests := []struct {
		name       string
		caption    string
		filename   string
		wantTitle  string
		wantArtist string
	}{
		{"caption with remaster tag", "Queen - Bohemian Rhapsody (Remastered 2011)", "", "Bohemian Rhapsody", "Queen"},
		{"caption without separator", "Imagine", "", "Imagine", UnknownArtist},
		{"filename with track number", "", "01 Artist - Song.mp3", "Song", "Artist"},
		{"caption wins over filename", "Adele - Hello", "02 Other - Thing.mp3", "Hello", "Adele"},
		{"en dash", "Sia – Chandelier", "", "Chandelier", "Sia"},
		{"em dash without spaces", "Sia—Chandelier", "", "Chandelier", "Sia"},
		{"first separator wins", "A - B - C", "", "B - C", "A"},
		{"square brackets stripped", "Muse - Uprising [Official Video]", "", "Uprising", "Muse"},
		{"whitespace collapsed", "  Daft   Punk  -   One More   Time ", "", "One More Time", "Daft Punk"},
		{"caption of only brackets falls back to filename", "(Live)", "Coldplay - Yellow.flac", "Yellow", "Coldplay"},
		{"uppercase extension", "", "Artist - Song.M4A", "Song", "Artist"},
		{"wav with underscores", "", "07_Radiohead_-_Creep.wav", "Creep", "Radiohead"},
		{"filename with directories", "", "music/2024/Björk - Jóga.mp3", "Jóga", "Björk"},
		{"filename without separator", "", "Yesterday.mp3", "Yesterday", UnknownArtist},
		{"filename with brackets", "", "Artist - Song (Radio Edit).mp3", "Song", "Artist"},
		{"dotted track number", "", "3. Artist - Song.mp3", "Song", "Artist"},
		{"missing artist side", "- Lonely Title", "", "Lonely Title", UnknownArtist},
		{"missing title side", "Lonely Artist -", "", UnknownSong, "Lonely Artist"},
		{"nothing at all", "", "", UnknownSong, UnknownArtist},
		{"whitespace only", "   ", "  ", UnknownSong, UnknownArtist},
		{"persian caption", "گوگوش - من آمده‌ام", "", "من آمده‌ام", "گوگوش"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Extract(tt.caption, tt.filename)
			if got.Title != tt.wantTitle {
				t.Errorf("Title = %q, want %q", got.Title, tt.wantTitle)
			}
			if got.Artist != tt.wantArtist {
				t.Errorf("Artist = %q, want %q", got.Artist, tt.wantArtist)
			}
		})
	}
}

func TestExtractNormalizesUnicode(t *testing.T) {
	got := Extract("Beyoncé - Halo", "")
	if got.Artist != "Beyoncé" {
		t.Errorf("Expected NFC-composed artist, got %q", got.Artist)
	}
}

func TestSongQueryQuery(t *testing.T) {
	tests := []struct {
		name string
		q    SongQuery
		want string
	}{
		{"known artist", SongQuery{Title: "Bohemian Rhapsody", Artist: "Queen"}, "Queen Bohemian Rhapsody"},
		{"unknown artist", SongQuery{Title: "Imagine", Artist: UnknownArtist}, "Imagine"},
		{"empty artist", SongQuery{Title: "Imagine"}, "Imagine"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.q.Query(); got != tt.want {
				t.Errorf("Query() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHasArtist(t *testing.T) {
	if (SongQuery{Title: "x", Artist: UnknownArtist}).HasArtist() {
		t.Error("Expected sentinel artist to be unknown")
	}
	if !(SongQuery{Title: "x", Artist: "Queen"}).HasArtist() {
		t.Error("Expected Queen to be a known artist")
	}
}
