// Copyright (c) 2026 The OTIS DDS Bridge developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package ddslog hands out one slog.Logger per subsystem, all backed by a
// single slog.Backend constructed at process start. Subsystems obtain their
// logger once at init time and never touch the backend directly, the same
// shape dcrd-lineage daemons use throughout their package tree.
package ddslog

import (
	"io"
	"os"

	"github.com/decred/slog"
)

// backend is replaced by InitBackend once the process knows where to write
// logs; until then every subsystem logs to stdout only, so that package
// init-time log lines (before config is loaded) are never silently lost.
var backend = slog.NewBackend(os.Stdout)

// subsystems maps each subsystem tag to its logger, so SetLogLevel can
// adjust every one of them by name at runtime (the --debuglevel flag).
var subsystems = make(map[string]slog.Logger)

// Logger returns the logger for tag, creating it against the current
// backend if this is the first request for that tag. tag conventionally
// matches the owning package name (DWIR, DNET, RCTR, HTBT, BRDG, SSAD).
func Logger(tag string) slog.Logger {
	if l, ok := subsystems[tag]; ok {
		return l
	}
	l := backend.Logger(tag)
	l.SetLevel(slog.LevelInfo)
	subsystems[tag] = l
	return l
}

// InitBackend rebuilds the shared backend to write to w (typically
// io.MultiWriter(os.Stdout, rotatedLogFile)) and replaces the logger
// registered for every known tag with one on the new backend, preserving
// each subsystem's configured level. Logger values returned before the call
// are not rebound: they keep writing to the previous backend, and a later
// Logger call for the same tag returns the new one.
func InitBackend(w io.Writer) {
	backend = slog.NewBackend(w)
	for tag, old := range subsystems {
		l := backend.Logger(tag)
		l.SetLevel(old.Level())
		subsystems[tag] = l
	}
}

// SetLogLevel parses levelStr (trace, debug, info, warn, error, critical)
// and applies it to the named subsystem, or to every subsystem if tag is
// "all". An unrecognized level string is a no-op.
func SetLogLevel(tag, levelStr string) {
	level, ok := slog.LevelFromString(levelStr)
	if !ok {
		return
	}
	if tag == "all" {
		for _, l := range subsystems {
			l.SetLevel(level)
		}
		return
	}
	if l, ok := subsystems[tag]; ok {
		l.SetLevel(level)
	}
}
