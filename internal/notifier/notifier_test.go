package notifier

import (
	"context"
	"sync"
	"testing"

	"github.com/nyxsignal/oracle/pkg/models"
	"github.com/stretchr/testify/assert"
)

type recordingNotifier struct {
	mu   sync.Mutex
	got  []models.Signal
	done chan struct{}
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{done: make(chan struct{}, 10)}
}

func (r *recordingNotifier) SendSignalAlert(ctx context.Context, sig models.Signal) {
	r.mu.Lock()
	r.got = append(r.got, sig)
	r.mu.Unlock()
	r.done <- struct{}{}
}

func TestFanoutDispatchesToAllMembers(t *testing.T) {
	a, b := newRecordingNotifier(), newRecordingNotifier()
	f := NewFanout(a, b)

	f.SendSignalAlert(context.Background(), models.Signal{TokenAddress: "x"})
	<-a.done
	<-b.done

	assert.Len(t, a.got, 1)
	assert.Len(t, b.got, 1)
}

func TestFormatSignalMessageIncludesKeyFields(t *testing.T) {
	msg := formatSignalMessage(models.Signal{TokenAddress: "tok", InstabilityIndex: 5, EntryPrice: 0.001, BayesianConfidence: 0.6, KellySize: 0.1})
	assert.Contains(t, msg, "tok")
	assert.Contains(t, msg, "Confidence")
}
