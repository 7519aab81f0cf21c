package bringup

import (
	"log/slog"

	"github.com/soypat/phyboot/internal"
)

// Stage identifies a step of [Boot].
type Stage uint8

const (
	StageClocks Stage = iota + 1
	StageMDIO
	StageDataPath
	StageDiscover
	StageNegotiate
	StageLink
)

func (s Stage) String() string {
	switch s {
	case StageClocks:
		return "clocks"
	case StageMDIO:
		return "mdio"
	case StageDataPath:
		return "datapath"
	case StageDiscover:
		return "discover"
	case StageNegotiate:
		return "negotiate"
	case StageLink:
		return "link"
	}
	return "Stage(?)"
}

// BootError is returned by [Boot] on failure. Err is the underlying cause
// and may be matched with errors.Is.
type BootError struct {
	Stage Stage
	Err   error
}

func (e *BootError) Error() string {
	return "bringup: " + e.Stage.String() + " failed: " + e.Err.Error()
}

func (e *BootError) Unwrap() error { return e.Err }

type logger struct {
	log *slog.Logger
}

func (l logger) fail(stage Stage, err error) error {
	berr := &BootError{Stage: stage, Err: err}
	internal.LogAttrs(l.log, slog.LevelError, "boot:failed", slog.String("stage", stage.String()), slog.String("err", err.Error()))
	return berr
}
func (l logger) error(msg string, attrs ...slog.Attr) {
	internal.LogAttrs(l.log, slog.LevelError, msg, attrs...)
}
func (l logger) warn(msg string, attrs ...slog.Attr) {
	internal.LogAttrs(l.log, slog.LevelWarn, msg, attrs...)
}
func (l logger) info(msg string, attrs ...slog.Attr) {
	internal.LogAttrs(l.log, slog.LevelInfo, msg, attrs...)
}
func (l logger) debug(msg string, attrs ...slog.Attr) {
	internal.LogAttrs(l.log, slog.LevelDebug, msg, attrs...)
}
