package db

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"liyu1981.xyz/seizure-alert-service/pkg/common"
	"liyu1981.xyz/seizure-alert-service/pkg/models"
)

const changeFeedBuffer = 64

// ChangeFeed fans AlertCreated events out to every subscriber. Publishing never blocks the
// writer: a subscriber whose buffer is full misses the event and a warning is logged.
type ChangeFeed struct {
	mu          sync.RWMutex
	subscribers map[chan models.AlertCreated]struct{}
	closed      bool
}

func NewChangeFeed() *ChangeFeed {
	return &ChangeFeed{subscribers: make(map[chan models.AlertCreated]struct{})}
}

func (f *ChangeFeed) Subscribe(ctx context.Context) <-chan models.AlertCreated {
	ch := make(chan models.AlertCreated, changeFeedBuffer)

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		close(ch)
		return ch
	}
	f.subscribers[ch] = struct{}{}
	f.mu.Unlock()

	go func() {
		<-ctx.Done()
		f.unsubscribe(ch)
	}()

	return ch
}

func (f *ChangeFeed) unsubscribe(ch chan models.AlertCreated) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.subscribers[ch]; ok {
		delete(f.subscribers, ch)
		close(ch)
	}
}

func (f *ChangeFeed) Publish(event models.AlertCreated) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for ch := range f.subscribers {
		select {
		case ch <- event:
		default:
			common.GetCategoryLogger(common.LoggerNameStore, common.LoggerCategoryIOTChangeFeed).
				Warn("Change feed subscriber is full, dropping event",
					zap.String("device_id", event.DeviceID),
					zap.String("alert_id", event.AlertID))
		}
	}
}

func (f *ChangeFeed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for ch := range f.subscribers {
		delete(f.subscribers, ch)
		close(ch)
	}
}
