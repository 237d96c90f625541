package mqtt

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// slogAdapter satisfies paho's Logger so client internals end up in the
// structured log.
type slogAdapter struct {
	logger *slog.Logger
	level  slog.Level
}

func (a slogAdapter) Println(v ...interface{}) {
	a.logger.Log(context.Background(), a.level, strings.TrimSpace(fmt.Sprintln(v...)), "component", "paho")
}

func (a slogAdapter) Printf(format string, v ...interface{}) {
	a.logger.Log(context.Background(), a.level, strings.TrimSpace(fmt.Sprintf(format, v...)), "component", "paho")
}

// RouteLogs sends paho's error and critical output to logger. paho keeps its
// loggers in package globals, so this affects every client in the process.
func RouteLogs(logger *slog.Logger) {
	paho.ERROR = slogAdapter{logger: logger, level: slog.LevelError}
	paho.CRITICAL = slogAdapter{logger: logger, level: slog.LevelError}
	paho.WARN = slogAdapter{logger: logger, level: slog.LevelWarn}
}
