package observability

import (
	"context"
	"log/slog"
	"testing"

	"github.com/fairyhunter13/ai-voice-interviewer/internal/config"
)

func TestSetupLogger_DevAndProd(t *testing.T) {
	lg := SetupLogger(config.Config{AppEnv: "dev", OTELServiceName: "svc"})
	if lg == nil {
		t.Fatalf("nil logger")
	}
	lg2 := SetupLogger(config.Config{AppEnv: "prod", OTELServiceName: "svc"})
	if lg2 == nil {
		t.Fatalf("nil logger prod")
	}
}

func TestSetupLogger_LevelOverride(t *testing.T) {
	lg := SetupLogger(config.Config{AppEnv: "prod", LogLevel: "debug", OTELServiceName: "svc"})
	if !lg.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatalf("LOG_LEVEL=debug not honoured in prod")
	}
	lg2 := SetupLogger(config.Config{AppEnv: "dev", LogLevel: "warn", OTELServiceName: "svc"})
	if lg2.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatalf("LOG_LEVEL=warn should suppress info in dev")
	}
	lg3 := SetupLogger(config.Config{AppEnv: "dev", LogLevel: "bogus", OTELServiceName: "svc"})
	if !lg3.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatalf("unparsable LOG_LEVEL should fall back to the env default")
	}
}

func TestSessionLogger(t *testing.T) {
	lg := SessionLogger("sess-1")
	if lg == nil {
		t.Fatalf("nil session logger")
	}
}
