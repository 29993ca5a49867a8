package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	pubnub "github.com/pubnub/go/v7"

	"live-requests/models"
)

type DeltaKind string

const (
	DeltaInsert DeltaKind = "insert"
	DeltaUpdate DeltaKind = "update"
	DeltaDelete DeltaKind = "delete"
)

// Delta is one row-level change of the requests set of an event.
type Delta struct {
	Kind    DeltaKind      `json:"kind"`
	Request models.Request `json:"request"`
}

// Bus delivers request deltas for one event to every connected
// subscriber. Deltas for the same request are delivered in commit order;
// there is no ordering guarantee across different requests. Delivery is
// at-least-once per connection lifetime: a dropped connection must
// resubscribe and reconcile from a fresh full read.
type Bus interface {
	// Publish fans one delta out to every subscriber of the event.
	Publish(ctx context.Context, eventID string, delta Delta) error

	// Subscribe starts delivering the event's deltas to deliver. The
	// returned cancel func is idempotent and never panics after the
	// underlying connection is gone.
	Subscribe(eventID string, deliver func(Delta)) (cancel func(), err error)
}

func requestChannel(eventID string) string {
	return fmt.Sprintf("requests-%s", eventID)
}

// PubNubBus is the production Bus on a PubNub keyset. Each event maps to
// one channel; per-channel publish order gives the per-row ordering
// guarantee since every row is published from its single writer.
type PubNubBus struct {
	pn *pubnub.PubNub
}

func NewPubNubBus(pn *pubnub.PubNub) *PubNubBus {
	return &PubNubBus{pn: pn}
}

func (b *PubNubBus) Publish(ctx context.Context, eventID string, delta Delta) error {
	payload, err := json.Marshal(delta)
	if err != nil {
		return err
	}

	var message map[string]any
	if err := json.Unmarshal(payload, &message); err != nil {
		return err
	}

	_, pnStatus, err := b.pn.Publish().
		Channel(requestChannel(eventID)).
		Message(message).
		Execute()
	if err != nil {
		return err
	}
	if pnStatus.Error != nil {
		return fmt.Errorf("realtime: publish failed: %w", pnStatus.Error)
	}

	return nil
}

func (b *PubNubBus) Subscribe(eventID string, deliver func(Delta)) (func(), error) {
	listener := pubnub.NewListener()
	channel := requestChannel(eventID)

	b.pn.AddListener(listener)
	b.pn.Subscribe().
		Channels([]string{channel}).
		Execute()

	done := make(chan struct{})

	// Single goroutine per subscription keeps delivery sequential, which
	// preserves per-row ordering on the consumer side.
	go func() {
		for {
			select {
			case <-done:
				return
			case message := <-listener.Message:
				if message == nil || message.Channel != channel {
					continue
				}

				delta, err := decodeDelta(message.Message)
				if err != nil {
					slog.Error("realtime: drop undecodable delta",
						"channel", channel, "error", err)
					continue
				}

				deliver(delta)
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			b.pn.RemoveListener(listener)
			b.pn.Unsubscribe().
				Channels([]string{channel}).
				Execute()
		})
	}

	return cancel, nil
}

func decodeDelta(message any) (Delta, error) {
	raw, err := json.Marshal(message)
	if err != nil {
		return Delta{}, err
	}

	var delta Delta
	if err := json.Unmarshal(raw, &delta); err != nil {
		return Delta{}, err
	}

	if delta.Kind == "" || delta.Request.ID == "" {
		return Delta{}, fmt.Errorf("realtime: malformed delta payload")
	}

	return delta, nil
}
