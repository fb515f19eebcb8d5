// Package log wraps log/slog with a component-scoped logger and the field
// names shared by every package.
package log

import (
	"log/slog"
	"os"
)

// Logger is a slog.Logger bound to at most one component. The embedded
// logger carries the component attribute; root carries everything else, so
// WithComponent replaces the component instead of stacking a second one.
type Logger struct {
	*slog.Logger
	root      *slog.Logger
	component string
}

type Config struct {
	Level     slog.Level
	Component string
	// Handler overrides the stdout text handler, mostly for tests.
	Handler slog.Handler
}

func DefaultConfig() Config {
	return Config{Level: slog.LevelInfo, Component: ComponentApp}
}

func New(config Config) *Logger {
	handler := config.Handler
	if handler == nil {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: config.Level})
	}
	return bind(slog.New(handler), config.Component)
}

func bind(root *slog.Logger, component string) *Logger {
	l := &Logger{Logger: root, root: root, component: component}
	if component != "" {
		l.Logger = root.With(FieldComponent, component)
	}
	return l
}

// With returns a logger carrying args in addition to the current attributes.
func (l *Logger) With(args ...any) *Logger {
	return bind(l.root.With(args...), l.component)
}

// WithComponent returns a logger tagged with component, replacing any
// component already bound.
func (l *Logger) WithComponent(component string) *Logger {
	return bind(l.root, component)
}

// Component returns the bound component name, or "" if none.
func (l *Logger) Component() string {
	return l.component
}

// SetDefault installs logger as the slog default without its component.
// Packages logging through slog directly name their own component.
func SetDefault(logger *Logger) {
	slog.SetDefault(logger.root)
}
