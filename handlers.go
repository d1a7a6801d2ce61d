package main

import (
	"errors"
	"lyrics-bridge-go/circuitbreaker"
	"lyrics-bridge-go/deeplink"
	"lyrics-bridge-go/logcolors"
	"lyrics-bridge-go/lyrics"
	"lyrics-bridge-go/metadata"
	"lyrics-bridge-go/stats"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"
)

// keepAliveText is what uptime pingers see on "/".
const keepAliveText = "ربات تلگرام در حال اجراست!"

// param returns the first non-empty query value among names.
func param(r *http.Request, names ...string) string {
	q := r.URL.Query()
	for _, name := range names {
		if v := strings.TrimSpace(q.Get(name)); v != "" {
			return v
		}
	}
	return ""
}

func keepAliveHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(keepAliveText))
}

func translateHandler(w http.ResponseWriter, r *http.Request) {
	text := param(r, "text", "q")
	if text == "" {
		Respond(w, r).Error(http.StatusBadRequest, "text not provided")
		return
	}

	translation := app.Translate(r.Context(), text)
	Respond(w, r).JSON(map[string]interface{}{
		"translation": translation,
	})
}

func lyricsHandler(w http.ResponseWriter, r *http.Request) {
	title := param(r, "title", "s", "song")
	artist := param(r, "artist", "a")

	if token := param(r, "token", "start"); token != "" {
		var err error
		artist, title, err = app.Codec.Decode(token)
		if err != nil {
			log.Infof("%s Rejected token %q: %v", logcolors.LogDeepLink, token, err)
			Respond(w, r).Error(http.StatusBadRequest, err.Error())
			return
		}
	}

	if strings.TrimSpace(title) == "" {
		Respond(w, r).Error(http.StatusBadRequest, "title or token not provided")
		return
	}
	if artist == "" {
		artist = metadata.UnknownArtist
	}

	result, found := app.Lyrics.Lookup(r.Context(), title, artist)

	Respond(w, r).SetLyricsStatus(found).JSON(map[string]interface{}{
		"title":  title,
		"artist": artist,
		"found":  found,
		"lyrics": result,
	})
}

func extractHandler(w http.ResponseWriter, r *http.Request) {
	caption := r.URL.Query().Get("caption")
	filename := r.URL.Query().Get("filename")

	q := metadata.Extract(caption, filename)
	token := app.Codec.Encode(q.Artist, q.Title)
	log.Debugf("%s caption=%q filename=%q -> %s / %s", logcolors.LogMetadata, caption, filename, q.Artist, q.Title)

	Respond(w, r).JSON(map[string]interface{}{
		"title":  q.Title,
		"artist": q.Artist,
		"token":  token,
		"link":   deeplink.StartLink(app.Config.Configuration.BotUsername, token),
	})
}

func encodeLinkHandler(w http.ResponseWriter, r *http.Request) {
	artist := param(r, "artist", "a")
	title := param(r, "title", "s")
	if title == "" {
		Respond(w, r).Error(http.StatusBadRequest, "title not provided")
		return
	}

	token := app.Codec.Encode(artist, title)
	Respond(w, r).JSON(map[string]interface{}{
		"token": token,
		"link":  deeplink.StartLink(app.Config.Configuration.BotUsername, token),
	})
}

func decodeLinkHandler(w http.ResponseWriter, r *http.Request) {
	artist, title, err := app.Codec.Decode(r.URL.Query().Get("token"))
	if err != nil {
		Respond(w, r).Error(http.StatusBadRequest, err.Error())
		return
	}
	Respond(w, r).JSON(map[string]interface{}{
		"artist": artist,
		"title":  title,
	})
}

func sweepCacheHandler(w http.ResponseWriter, r *http.Request) {
	deleted, err := app.Sweeper.SweepNow()
	if err != nil {
		log.Errorf("%s Manual sweep failed: %v", logcolors.LogCacheSweep, err)
		Respond(w, r).Error(http.StatusInternalServerError, "sweep failed")
		return
	}
	log.Infof("%s Manual sweep removed %d entries", logcolors.LogCacheSweep, deleted)
	Respond(w, r).JSON(map[string]interface{}{
		"deleted": deleted,
	})
}

func backupCacheHandler(w http.ResponseWriter, r *http.Request) {
	path, err := app.Backup()
	if err != nil {
		log.Errorf("%s Backup failed: %v", logcolors.LogCacheBackup, err)
		Respond(w, r).Error(http.StatusInternalServerError, err.Error())
		return
	}
	Respond(w, r).JSON(map[string]interface{}{
		"backup": path,
	})
}

func getHealthStatus(w http.ResponseWriter, r *http.Request) {
	counts, err := app.CacheCounts()
	if err != nil {
		log.Errorf("%s Health check could not read cache: %v", logcolors.LogCache, err)
		Respond(w, r).Status(http.StatusServiceUnavailable, map[string]interface{}{
			"status": "unhealthy",
			"error":  "cache unavailable",
		})
		return
	}

	breakers := app.Lyrics.BreakerStatuses()
	status := "ok"
	open := 0
	for _, b := range breakers {
		if b.State == circuitbreaker.StateOpen.String() {
			open++
		}
	}
	// Degraded while some sources are skipped, unhealthy when none are left
	switch {
	case open == len(breakers):
		status = "unhealthy"
	case open > 0:
		status = "degraded"
	}

	Respond(w, r).JSON(map[string]interface{}{
		"status":           status,
		"cache_backend":    app.Config.Configuration.CacheBackend,
		"cache_entries":    counts,
		"sources":          app.Lyrics.SourceNames(),
		"circuit_breakers": breakers,
	})
}

func resetBreakerHandler(w http.ResponseWriter, r *http.Request) {
	source := param(r, "source")
	if source == "" {
		Respond(w, r).Error(http.StatusBadRequest, "source not provided")
		return
	}
	if err := app.Lyrics.ResetBreaker(source); err != nil {
		if errors.Is(err, lyrics.ErrUnknownSource) {
			Respond(w, r).Error(http.StatusNotFound, err.Error())
			return
		}
		Respond(w, r).Error(http.StatusInternalServerError, err.Error())
		return
	}
	Respond(w, r).JSON(map[string]interface{}{
		"source": source,
		"state":  circuitbreaker.StateClosed.String(),
	})
}

func getStats(w http.ResponseWriter, r *http.Request) {
	snapshot := stats.Get().Snapshot()
	snapshot["circuit_breakers"] = app.Lyrics.BreakerStates()
	if counts, err := app.CacheCounts(); err == nil {
		snapshot["cache_entries"] = counts
	} else {
		log.Warnf("%s Could not count cache entries: %v", logcolors.LogStats, err)
	}
	Respond(w, r).JSON(snapshot)
}
