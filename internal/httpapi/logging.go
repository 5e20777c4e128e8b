package httpapi

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog"
)

// zlog is the HTTP layer's logger. It discards until SetLogger is called.
var zlog = zerolog.Nop()

// SetLogger installs a structured logger used by the HTTP layer.
func SetLogger(l zerolog.Logger) { zlog = l.With().Str("component", "http").Logger() }

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(s) {
	case "off", "none":
		return zerolog.Disabled
	case "1":
		return zerolog.DebugLevel
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(s))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// requestLogger returns the logger for one request. ?log= or X-Log-Level
// override the configured level for that request only.
func requestLogger(r *http.Request) zerolog.Logger {
	if v := r.URL.Query().Get("log"); v != "" {
		return zlog.Level(parseLevel(v))
	}
	if v := r.Header.Get("X-Log-Level"); v != "" {
		return zlog.Level(parseLevel(v))
	}
	return zlog
}
