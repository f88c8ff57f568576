package internal

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/shui-community/walletauth"
)

// InitSlog installs a JSON slog handler at the given level as the default
// logger. Log lines go to stderr and to every extra sink, such as a rotating
// log file.
func InitSlog(level string, sinks ...io.Writer) {
	var programLevel slog.Level
	if err := (&programLevel).UnmarshalText([]byte(level)); err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %s: %v, using info\n", level, err)
		programLevel = slog.LevelInfo
	}

	leveler := &slog.LevelVar{}
	leveler.Set(programLevel)

	var out io.Writer = os.Stderr
	if len(sinks) != 0 {
		out = io.MultiWriter(append([]io.Writer{os.Stderr}, sinks...)...)
	}

	h := slog.NewJSONHandler(out, &slog.HandlerOptions{
		AddSource: true,
		Level:     leveler,
	})
	slog.SetDefault(slog.New(h))
}

// GetRequestLogger returns the default logger annotated with the request
// details that matter when tracing a login attempt. Cookie and CSRF values
// are deliberately absent.
func GetRequestLogger(r *http.Request) *slog.Logger {
	return slog.With(
		"request_id", r.Header.Get(walletauth.RequestIDHeader),
		"method", r.Method,
		"path", r.URL.Path,
		"origin", r.Header.Get("Origin"),
		"user_agent", r.UserAgent(),
		"x-forwarded-for", r.Header.Get("X-Forwarded-For"),
		"x-real-ip", r.Header.Get("X-Real-Ip"),
	)
}
