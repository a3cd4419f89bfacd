// Package katlog adapts a github.com/joeycumines/logiface logger onto the
// tnkernel.Logger interface, for embedders who already standardize on
// logiface for structured output rather than the plain WriterLogger.
//
// Unlike the WriterLogger in the core package, this adapter is optional and
// pulls in the logiface module only when imported.
package katlog

import (
	"github.com/joeycumines/go-tnkernel"
	"github.com/joeycumines/logiface"
)

// Adapter implements tnkernel.Logger on top of a *logiface.Logger[E].
type Adapter[E logiface.Event] struct {
	L *logiface.Logger[E]
}

// New wraps l as a tnkernel.Logger.
func New[E logiface.Event](l *logiface.Logger[E]) *Adapter[E] {
	return &Adapter[E]{L: l}
}

func mapLevel(level tnkernel.LogLevel) logiface.Level {
	switch level {
	case tnkernel.LevelDebug:
		return logiface.LevelDebug
	case tnkernel.LevelInfo:
		return logiface.LevelInformational
	case tnkernel.LevelWarn:
		return logiface.LevelWarning
	case tnkernel.LevelError:
		return logiface.LevelError
	default:
		return logiface.LevelInformational
	}
}

// IsEnabled reports whether level would actually be written, mirroring the
// canLog check performed internally by logiface.Logger.Build.
func (a *Adapter[E]) IsEnabled(level tnkernel.LogLevel) bool {
	if a == nil || a.L == nil {
		return false
	}
	ll := a.L.Level()
	return ll.Enabled() && mapLevel(level) <= ll
}

// Log renders entry as a single logiface event, attaching category,
// object ID, task ID and error as fields before committing the message.
func (a *Adapter[E]) Log(entry tnkernel.LogEntry) {
	if a == nil || a.L == nil {
		return
	}
	b := a.L.Build(mapLevel(entry.Level))
	if b == nil {
		return
	}
	if entry.Category != "" {
		b = b.Str("category", entry.Category)
	}
	b = b.Uint64("object_id", uint64(entry.ObjectID))
	if entry.Task != nil {
		b = b.Uint64("task_id", entry.Task.ID())
	}
	if entry.Err != nil {
		b = b.Err(entry.Err)
	}
	b.Log(entry.Message)
}
