package llm

import (
	"context"
	"strings"

	"github.com/satriahrh/voicerelay/domain/repositories"
)

// eventWriter accumulates deltas into snapshots and pushes events until the
// consumer goes away.
type eventWriter struct {
	ctx      context.Context
	events   chan<- repositories.ChatEvent
	snapshot strings.Builder
}

func (w *eventWriter) content(delta string) bool {
	if delta == "" {
		return true
	}
	w.snapshot.WriteString(delta)
	return w.send(repositories.ChatEvent{
		Type:     repositories.ChatEventContent,
		Delta:    delta,
		Snapshot: w.snapshot.String(),
	})
}

func (w *eventWriter) final() bool {
	return w.send(repositories.ChatEvent{
		Type:     repositories.ChatEventFinal,
		Snapshot: w.snapshot.String(),
	})
}

func (w *eventWriter) fail(err error) bool {
	return w.send(repositories.ChatEvent{
		Type:     repositories.ChatEventError,
		Snapshot: w.snapshot.String(),
		Err:      err,
	})
}

func (w *eventWriter) send(ev repositories.ChatEvent) bool {
	select {
	case w.events <- ev:
		return true
	case <-w.ctx.Done():
		return false
	}
}
