// Package notifier implements the Notifier external collaborator (§6):
// sendSignalAlert is best-effort and the core never awaits its success.
package notifier

import (
	"context"

	"github.com/nyxsignal/oracle/pkg/models"
)

// Notifier is the collaborator the Gate Cascade hands a passed Signal to
// (§6). Implementations must not block the caller on delivery failure.
type Notifier interface {
	SendSignalAlert(ctx context.Context, sig models.Signal)
}

// Fanout broadcasts to every Notifier in the set without waiting for any of
// them, so a slow or dead downstream notifier can never stall the gate
// cascade (§6: "core does not await success").
type Fanout struct {
	notifiers []Notifier
}

// NewFanout builds a Fanout over the given notifiers.
func NewFanout(notifiers ...Notifier) *Fanout {
	return &Fanout{notifiers: notifiers}
}

// SendSignalAlert implements Notifier by dispatching to every member
// concurrently, fire-and-forget.
func (f *Fanout) SendSignalAlert(ctx context.Context, sig models.Signal) {
	for _, n := range f.notifiers {
		go n.SendSignalAlert(ctx, sig)
	}
}
