// Package logx provides the logging interface used across geostorm.
package logx

import (
	"context"
	"log/slog"
	"os"
)

// Logger is the minimal logging surface geostorm components depend on.
// The Ctx variants pick up default arguments attached via WithDefaultArgs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	DebugCtx(ctx context.Context, msg string, args ...any)
	InfoCtx(ctx context.Context, msg string, args ...any)
	WarnCtx(ctx context.Context, msg string, args ...any)
	ErrorCtx(ctx context.Context, msg string, args ...any)
}

// Default is a Logger backed by log/slog's text handler.
type Default struct {
	logger *slog.Logger
}

// New returns a Default logger writing to stderr at the given level.
func New(level slog.Level) *Default {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	return &Default{logger: logger}
}

// NewWith wraps an existing slog.Logger.
func NewWith(logger *slog.Logger) *Default {
	return &Default{logger: logger}
}

const prefix = "[geostorm] "

func (d *Default) Debug(msg string, args ...any) {
	d.logger.Debug(prefix+msg, args...)
}

func (d *Default) Info(msg string, args ...any) {
	d.logger.Info(prefix+msg, args...)
}

func (d *Default) Warn(msg string, args ...any) {
	d.logger.Warn(prefix+msg, args...)
}

func (d *Default) Error(msg string, args ...any) {
	d.logger.Error(prefix+msg, args...)
}

var defaultArgs int

func getDefaultArgs(ctx context.Context) []any {
	args := ctx.Value(&defaultArgs)
	if args == nil {
		return nil
	}
	return args.([]any)
}

// WithDefaultArgs attaches key/value pairs to the context; the Ctx logging
// variants append them to every message.
func WithDefaultArgs(ctx context.Context, args ...any) context.Context {
	dargs := getDefaultArgs(ctx)
	dargs = append(dargs, args...)
	return context.WithValue(ctx, &defaultArgs, dargs)
}

func (d *Default) DebugCtx(ctx context.Context, msg string, args ...any) {
	args = append(args, getDefaultArgs(ctx)...)
	d.logger.Debug(prefix+msg, args...)
}

func (d *Default) InfoCtx(ctx context.Context, msg string, args ...any) {
	args = append(args, getDefaultArgs(ctx)...)
	d.logger.Info(prefix+msg, args...)
}

func (d *Default) WarnCtx(ctx context.Context, msg string, args ...any) {
	args = append(args, getDefaultArgs(ctx)...)
	d.logger.Warn(prefix+msg, args...)
}

func (d *Default) ErrorCtx(ctx context.Context, msg string, args ...any) {
	args = append(args, getDefaultArgs(ctx)...)
	d.logger.Error(prefix+msg, args...)
}
