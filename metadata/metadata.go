// Package metadata guesses a song title and artist from a channel post.
//
// The rules are heuristics, not a grammar: the first dash-like separator
// splits artist from title, and anything in brackets is treated as noise.
package metadata

import (
	"lyrics-bridge-go/logcolors"
	"lyrics-bridge-go/utils"
	"path"
	"regexp"
	"strings"

	log "github.com/sirupsen/logrus"
)

const (
	UnknownArtist = "Unknown Artist"
	UnknownSong   = "Unknown Song"
)

var (
	bracketed   = regexp.MustCompile(`\([^)]*\)|\[[^\]]*\]`)
	separator   = regexp.MustCompile(`\s*[-–—]\s*`)
	audioExt    = regexp.MustCompile(`(?i)\.(mp3|wav|flac|m4a)$`)
	trackNumber = regexp.MustCompile(`^\d{1,2}(?:\s*[.\-_)]\s*|\s+)`)
)

// SongQuery identifies a song. Artist is UnknownArtist when it couldn't be derived.
type SongQuery struct {
	Title  string `json:"title"`
	Artist string `json:"artist"`
}

// Query returns the lookup key used by the lyrics resolver and cache.
func (q SongQuery) Query() string {
	if q.Artist == "" || q.Artist == UnknownArtist {
		return q.Title
	}
	return q.Artist + " " + q.Title
}

// HasArtist reports whether the artist is known.
func (q SongQuery) HasArtist() bool {
	return q.Artist != "" && q.Artist != UnknownArtist
}

// Extract derives a SongQuery from a post caption, falling back to the
// attached file's name. Empty strings mean absent.
func Extract(caption, filename string) SongQuery {
	if cleaned := clean(caption); cleaned != "" {
		q := split(cleaned)
		log.Debugf("%s caption %q -> %q / %q", logcolors.LogMetadata, caption, q.Artist, q.Title)
		return q
	}

	if name := cleanFilename(filename); name != "" {
		q := split(name)
		log.Debugf("%s filename %q -> %q / %q", logcolors.LogMetadata, filename, q.Artist, q.Title)
		return q
	}

	return SongQuery{Title: UnknownSong, Artist: UnknownArtist}
}

func cleanFilename(filename string) string {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return ""
	}
	base := path.Base(strings.ReplaceAll(filename, `\`, "/"))
	base = audioExt.ReplaceAllString(base, "")
	base = strings.ReplaceAll(base, "_", " ")
	base = clean(base)
	return strings.TrimSpace(trackNumber.ReplaceAllString(base, ""))
}

func clean(s string) string {
	s = bracketed.ReplaceAllString(s, " ")
	return utils.NormalizeText(s)
}

// split cuts on the first separator only, so "A - B - C" keeps "B - C" as the title.
func split(s string) SongQuery {
	loc := separator.FindStringIndex(s)
	if loc == nil {
		return SongQuery{Title: s, Artist: UnknownArtist}
	}

	artist := strings.TrimSpace(s[:loc[0]])
	title := strings.TrimSpace(s[loc[1]:])
	if artist == "" {
		artist = UnknownArtist
	}
	if title == "" {
		title = UnknownSong
	}
	return SongQuery{Title: title, Artist: artist}
}
