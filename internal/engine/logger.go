package engine

import (
	"context"
	"log/slog"
)

// replayHandler suppresses orchestration log output while a pass replays
// steps that earlier passes already logged
type replayHandler struct {
	slog.Handler
	pass *pass
}

func (h *replayHandler) Enabled(ctx context.Context, lvl slog.Level) bool {
	return !h.pass.replaying && h.Handler.Enabled(ctx, lvl)
}

func (h *replayHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &replayHandler{
		Handler: h.Handler.WithAttrs(attrs),
		pass:    h.pass,
	}
}

func (h *replayHandler) WithGroup(name string) slog.Handler {
	return &replayHandler{
		Handler: h.Handler.WithGroup(name),
		pass:    h.pass,
	}
}
