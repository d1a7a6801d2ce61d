package main

import (
	"encoding/json"
	"fmt"
	"io"
	"lyrics-bridge-go/bootstrap"
	"lyrics-bridge-go/config"
	"lyrics-bridge-go/deeplink"
	"lyrics-bridge-go/metadata"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var version = "dev"

type rootFlags struct {
	backend   string
	cachePath string
	jsonOut   bool
	verbose   bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "lyricsctl",
		Short:         "Look up lyrics, translate text and build deep-link tokens",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			log.SetOutput(cmd.ErrOrStderr())
			if flags.verbose {
				log.SetLevel(log.DebugLevel)
			} else {
				log.SetLevel(log.WarnLevel)
			}
		},
	}
	root.PersistentFlags().StringVar(&flags.backend, "backend", "", "cache backend (bolt or sqlite); overrides CACHE_BACKEND")
	root.PersistentFlags().StringVar(&flags.cachePath, "cache-path", "", "cache file; overrides CACHE_PATH")
	root.PersistentFlags().BoolVar(&flags.jsonOut, "json", false, "print JSON instead of plain text")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "log debug output to stderr")

	root.AddCommand(
		newLyricsCmd(flags),
		newTranslateCmd(flags),
		newExtractCmd(flags),
		newEncodeCmd(flags),
		newDecodeCmd(flags),
		newSweepCmd(flags),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "lyricsctl %s\n", version)
			},
		},
	)
	return root
}

// loadConfig reads the environment and applies flag overrides.
func loadConfig(flags *rootFlags) config.Config {
	cfg := config.Get()
	if flags.backend != "" {
		cfg.Configuration.CacheBackend = flags.backend
	}
	if flags.cachePath != "" {
		cfg.Configuration.CachePath = flags.cachePath
	}
	// A running server owns the stats file
	cfg.FeatureFlags.PersistStats = false
	return cfg
}

func openApp(flags *rootFlags) (*bootstrap.App, error) {
	cfg := loadConfig(flags)
	bootstrap.ConfigureLogging(cfg)
	if !flags.verbose {
		log.SetLevel(log.WarnLevel)
	}
	return bootstrap.New(cfg)
}

// emit prints v as JSON when --json is set, otherwise text.
func emit(w io.Writer, flags *rootFlags, text string, v interface{}) error {
	if !flags.jsonOut {
		_, err := fmt.Fprintln(w, text)
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newLyricsCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "lyrics <title> [artist]",
		Short: "Find lyrics for a song",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(flags)
			if err != nil {
				return err
			}
			defer app.Close()

			title, artist := args[0], ""
			if len(args) == 2 {
				artist = args[1]
			}
			result := app.Lyrics.Resolve(cmd.Context(), title, artist)
			return emit(cmd.OutOrStdout(), flags, result, map[string]string{
				"title":  title,
				"artist": artist,
				"lyrics": result,
			})
		},
	}
}

func newTranslateCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "translate <text>...",
		Short: "Translate text into the configured target language",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(flags)
			if err != nil {
				return err
			}
			defer app.Close()

			text := strings.Join(args, " ")
			result := app.Translate(cmd.Context(), text)
			return emit(cmd.OutOrStdout(), flags, result, map[string]string{
				"text":        text,
				"translation": result,
			})
		},
	}
}

func newExtractCmd(flags *rootFlags) *cobra.Command {
	var caption, filename, bot string
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Guess title and artist from a caption or file name",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig(flags)
			if bot == "" {
				bot = cfg.Configuration.BotUsername
			}
			q := metadata.Extract(caption, filename)
			token := bootstrap.NewCodec(cfg).Encode(q.Artist, q.Title)
			link := deeplink.StartLink(bot, token)

			text := fmt.Sprintf("title:  %s\nartist: %s\ntoken:  %s", q.Title, q.Artist, token)
			if link != "" {
				text += "\nlink:   " + link
			}
			return emit(cmd.OutOrStdout(), flags, text, map[string]string{
				"title":  q.Title,
				"artist": q.Artist,
				"token":  token,
				"link":   link,
			})
		},
	}
	cmd.Flags().StringVar(&caption, "caption", "", "message caption, e.g. \"Queen - Bohemian Rhapsody\"")
	cmd.Flags().StringVar(&filename, "filename", "", "audio file name, e.g. \"01 - Queen - Bohemian Rhapsody.mp3\"")
	cmd.Flags().StringVar(&bot, "bot", "", "bot username for the start link; defaults to BOT_USERNAME")
	return cmd
}

func newEncodeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "encode <artist> <title>",
		Short: "Build a deep-link token",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			token := bootstrap.NewCodec(loadConfig(flags)).Encode(args[0], args[1])
			return emit(cmd.OutOrStdout(), flags, token, map[string]string{"token": token})
		},
	}
}

func newDecodeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "decode <token>",
		Short: "Unpack a deep-link token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			artist, title, err := bootstrap.NewCodec(loadConfig(flags)).Decode(args[0])
			if err != nil {
				return err
			}
			return emit(cmd.OutOrStdout(), flags, fmt.Sprintf("artist: %s\ntitle:  %s", artist, title),
				map[string]string{"artist": artist, "title": title})
		},
	}
}

func newSweepCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete cache entries older than the retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(flags)
			if err != nil {
				return err
			}
			defer app.Close()

			deleted, err := app.Sweeper.SweepNow()
			if err != nil {
				return err
			}
			return emit(cmd.OutOrStdout(), flags, fmt.Sprintf("deleted %d expired entries", deleted),
				map[string]int{"deleted": deleted})
		},
	}
}

func init() {
	// lyricsctl output goes to stdout; keep logrus plain text on stderr
	log.SetFormatter(&log.TextFormatter{DisableTimestamp: true})
	log.SetOutput(os.Stderr)
}
