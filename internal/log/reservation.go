package log

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/chainguard-dev/clog"
	"github.com/gosimple/slug"
	slogmulti "github.com/samber/slog-multi"
)

// SetupReservationLogging tees the context logger into a per-reservation log
// file at {logsDirectory}/{reservation}/{command}.log. The returned func
// closes the file.
func SetupReservationLogging(ctx context.Context, logsDirectory, reservationID, command string) (context.Context, func()) {
	if logsDirectory == "" || reservationID == "" {
		return ctx, func() {}
	}

	dir := filepath.Join(logsDirectory, slug.Make(reservationID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		clog.WarnContext(ctx, "failed to create reservation log directory", "path", dir, "error", err.Error())
		return ctx, func() {}
	}

	logPath := filepath.Join(dir, fmt.Sprintf("%s.log", slug.Make(command)))
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		clog.WarnContext(ctx, "failed to create reservation log file", "path", logPath, "error", err.Error())
		return ctx, func() {}
	}

	fileHandler := slog.NewJSONHandler(logFile, &slog.HandlerOptions{AddSource: true, Level: slog.LevelDebug})
	handler := slogmulti.Fanout(clog.FromContext(ctx).Handler(), fileHandler)

	clog.InfoContext(ctx, "logging reservation output to file", "path", logPath)
	ctx = clog.WithLogger(ctx, clog.New(handler))

	return ctx, func() {
		if err := logFile.Close(); err != nil {
			clog.WarnContext(ctx, "failed to close log file", "path", logPath, "error", err.Error())
		}
	}
}
