// Package deeplink packs an (artist, title) pair into a token usable as a
// bot start parameter, and unpacks it again.
package deeplink

import (
	"errors"
	"fmt"
	"lyrics-bridge-go/logcolors"
	"lyrics-bridge-go/utils"
	"net/url"
	"strings"

	log "github.com/sirupsen/logrus"
)

const (
	DefaultTag            = "lyrics"
	DefaultMaxFieldLength = 100

	separator = "__"
)

// ErrInvalidFormat is returned for tokens that don't decode to a tag plus two fields.
var ErrInvalidFormat = errors.New("invalid deep-link token")

// Codec is pure and stateless; it never checks that a pair refers to a real song.
type Codec struct {
	tag            string
	maxFieldLength int
}

// New returns a codec using tag as the scheme prefix. Zero values pick the defaults.
func New(tag string, maxFieldLength int) *Codec {
	if tag == "" {
		tag = DefaultTag
	}
	if maxFieldLength <= 0 {
		maxFieldLength = DefaultMaxFieldLength
	}
	return &Codec{tag: escape(tag), maxFieldLength: maxFieldLength}
}

// Encode returns tag__artist__title with both fields percent-encoded.
func (c *Codec) Encode(artist, title string) string {
	return c.tag + separator + escape(artist) + separator + escape(title)
}

// Decode reverses Encode. Each field is cut to the codec's maximum length.
func (c *Codec) Decode(token string) (artist, title string, err error) {
	parts := strings.Split(strings.TrimSpace(token), separator)
	if len(parts) != 3 {
		return "", "", fmt.Errorf("%w: expected 3 parts, got %d", ErrInvalidFormat, len(parts))
	}
	if parts[0] != c.tag {
		return "", "", fmt.Errorf("%w: unknown tag %q", ErrInvalidFormat, parts[0])
	}

	artist, err = url.QueryUnescape(parts[1])
	if err != nil {
		return "", "", fmt.Errorf("%w: artist: %v", ErrInvalidFormat, err)
	}
	title, err = url.QueryUnescape(parts[2])
	if err != nil {
		return "", "", fmt.Errorf("%w: title: %v", ErrInvalidFormat, err)
	}

	artist = utils.TruncateRunes(artist, c.maxFieldLength)
	title = utils.TruncateRunes(title, c.maxFieldLength)
	log.Debugf("%s Decoded %q -> %q / %q", logcolors.LogDeepLink, token, artist, title)
	return artist, title, nil
}

// StartLink builds the t.me link that opens botUsername with token as start parameter.
func StartLink(botUsername, token string) string {
	bot := strings.TrimPrefix(strings.TrimSpace(botUsername), "@")
	if bot == "" {
		return ""
	}
	return "https://t.me/" + bot + "?start=" + token
}

// escape percent-encodes s and also escapes '_' so the separator can't occur inside a field.
func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "_", "%5F")
}
