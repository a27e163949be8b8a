package observability

import (
	"log/slog"
	"os"

	"github.com/fairyhunter13/ai-voice-interviewer/internal/config"
)

// SetupLogger configures the process-wide JSON logger. LOG_LEVEL wins when
// set; otherwise dev gets debug and everything else info.
func SetupLogger(cfg config.Config) *slog.Logger {
	level := slog.LevelInfo
	if cfg.IsDev() {
		level = slog.LevelDebug
	}
	if cfg.LogLevel != "" {
		var lv slog.Level
		if err := lv.UnmarshalText([]byte(cfg.LogLevel)); err == nil {
			level = lv
		}
	}
	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(h).With(
		slog.String("service", cfg.OTELServiceName),
		slog.String("env", cfg.AppEnv),
	)
}

// SessionLogger returns a logger carrying the session id. Interview-flow log
// lines all go through it so one session can be traced end to end.
func SessionLogger(id string) *slog.Logger {
	return slog.Default().With(slog.String("session_id", id))
}
