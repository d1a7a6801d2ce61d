package lyrics

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Source describes one lyrics website. Sources are tried in slice order.
type Source struct {
	Name               string `yaml:"name"`
	SearchURLTemplate  string `yaml:"search_url"`          // {query} is replaced with the URL-encoded query
	ResultLinkPattern  string `yaml:"result_link_pattern"` // regexp matched against href values
	LyricsBodySelector string `yaml:"lyrics_selector"`
	BaseURL            string `yaml:"base_url"`

	linkRe   *regexp.Regexp
	selector selector
}

// DefaultSources is used when no sources file is configured.
var DefaultSources = []Source{
	{
		Name:               "lyrics.com",
		SearchURLTemplate:  "https://www.lyrics.com/serp.php?st={query}&qtype=1",
		ResultLinkPattern:  `^/lyric/\d+/`,
		LyricsBodySelector: "pre#lyric-body-text",
		BaseURL:            "https://www.lyrics.com",
	},
	{
		Name:               "songlyrics",
		SearchURLTemplate:  "https://www.songlyrics.com/index.php?section=search&searchW={query}&submit=Search",
		ResultLinkPattern:  `^https?://www\.songlyrics\.com/[^/]+/[^/]+-lyrics/?$`,
		LyricsBodySelector: "p#songLyricsDiv",
		BaseURL:            "https://www.songlyrics.com",
	},
	{
		Name:               "genius",
		SearchURLTemplate:  "https://genius.com/search?q={query}",
		ResultLinkPattern:  `^https://genius\.com/[A-Za-z0-9-]+-lyrics$`,
		LyricsBodySelector: "div[data-lyrics-container=true]",
		BaseURL:            "https://genius.com",
	},
}

type sourcesFile struct {
	Sources []Source `yaml:"sources"`
}

// LoadSources reads an ordered source list from a YAML file of the form
//
//	sources:
//	  - name: lyrics.com
//	    search_url: https://www.lyrics.com/serp.php?st={query}
//	    result_link_pattern: ^/lyric/
//	    lyrics_selector: pre#lyric-body-text
//	    base_url: https://www.lyrics.com
//
// An empty path yields DefaultSources.
func LoadSources(path string) ([]Source, error) {
	if strings.TrimSpace(path) == "" {
		return cloneSources(DefaultSources), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}
	var f sourcesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse sources file %s: %w", path, err)
	}
	if len(f.Sources) == 0 {
		return nil, fmt.Errorf("sources file %s lists no sources", path)
	}
	return f.Sources, nil
}

// compile validates s and prepares its pattern and selector.
func (s *Source) compile() error {
	if s.Name == "" {
		return fmt.Errorf("source without a name")
	}
	if !strings.Contains(s.SearchURLTemplate, "{query}") {
		return fmt.Errorf("source %s: search_url must contain {query}", s.Name)
	}
	if _, err := url.Parse(s.BaseURL); err != nil || s.BaseURL == "" {
		return fmt.Errorf("source %s: invalid base_url %q", s.Name, s.BaseURL)
	}

	re, err := regexp.Compile(s.ResultLinkPattern)
	if err != nil {
		return fmt.Errorf("source %s: result_link_pattern: %w", s.Name, err)
	}
	sel, err := parseSelector(s.LyricsBodySelector)
	if err != nil {
		return fmt.Errorf("source %s: lyrics_selector: %w", s.Name, err)
	}

	s.linkRe = re
	s.selector = sel
	return nil
}

// SearchURL substitutes the URL-encoded query into the template.
func (s *Source) SearchURL(query string) string {
	return strings.ReplaceAll(s.SearchURLTemplate, "{query}", url.QueryEscape(query))
}

// absolute resolves href against the source's base URL.
func (s *Source) absolute(href string) (string, error) {
	base, err := url.Parse(s.BaseURL)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}

func cloneSources(in []Source) []Source {
	out := make([]Source, len(in))
	copy(out, in)
	return out
}
