package lyrics

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultSourcesCompile(t *testing.T) {
	sources, err := LoadSources("")
	if err != nil {
		t.Fatalf("LoadSources failed: %v", err)
	}
	if len(sources) != len(DefaultSources) {
		t.Fatalf("Expected %d default sources, got %d", len(DefaultSources), len(sources))
	}
	for i := range sources {
		if err := sources[i].compile(); err != nil {
			t.Errorf("Default source %s invalid: %v", sources[i].Name, err)
		}
	}
	if DefaultSources[0].linkRe != nil {
		t.Error("Expected LoadSources to hand out copies of the defaults")
	}
}

func TestLoadSourcesFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.yaml")
	content := `sources:
  - name: primary
    search_url: https://primary.test/search?q={query}
    result_link_pattern: ^/lyrics/
    lyrics_selector: div.lyrics
    base_url: https://primary.test
  - name: backup
    search_url: https://backup.test/find/{query}
    result_link_pattern: ^https://backup\.test/song/
    lyrics_selector: "#body"
    base_url: https://backup.test
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	sources, err := LoadSources(path)
	if err != nil {
		t.Fatalf("LoadSources failed: %v", err)
	}
	if len(sources) != 2 {
		t.Fatalf("Expected 2 sources, got %d", len(sources))
	}
	if sources[0].Name != "primary" || sources[1].Name != "backup" {
		t.Errorf("Expected order preserved, got %s, %s", sources[0].Name, sources[1].Name)
	}
	if sources[1].LyricsBodySelector != "#body" {
		t.Errorf("Expected selector %q, got %q", "#body", sources[1].LyricsBodySelector)
	}
	for i := range sources {
		if err := sources[i].compile(); err != nil {
			t.Errorf("Source %s invalid: %v", sources[i].Name, err)
		}
	}
}

func TestLoadSourcesErrors(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.yaml")
	os.WriteFile(empty, []byte("sources: []\n"), 0644)
	broken := filepath.Join(dir, "broken.yaml")
	os.WriteFile(broken, []byte("sources: [\n"), 0644)

	for _, path := range []string{filepath.Join(dir, "missing.yaml"), empty, broken} {
		if _, err := LoadSources(path); err == nil {
			t.Errorf("Expected error for %s", filepath.Base(path))
		}
	}
}
