// File: internal/platform/natsbus/bridge.go
package natsbus

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"live_learning_backend/internal/identity"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Conn is the part of *nats.Conn the bridge uses.
type Conn interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
}

// message is the wire form of an identity.Event.
type message struct {
	UID      string             `json:"uid"`
	Identity *identity.Identity `json:"identity,omitempty"`
	Origin   string             `json:"origin"`
	SentAt   time.Time          `json:"sentAt"`
}

// Bridge relays session-change events between the local Notifier and other
// instances subscribed to the same subject.
type Bridge struct {
	conn     Conn
	subject  string
	origin   string
	notifier *identity.Notifier
	logger   *zap.Logger

	sub      *nats.Subscription
	cancel   func()
	done     chan struct{}
	stopOnce sync.Once
}

// NewBridge creates a Bridge with a fresh origin id.
func NewBridge(conn Conn, subject string, notifier *identity.Notifier, logger *zap.Logger) *Bridge {
	return &Bridge{
		conn:     conn,
		subject:  subject,
		origin:   uuid.NewString(),
		notifier: notifier,
		logger:   logger.Named("natsbus"),
		done:     make(chan struct{}),
	}
}

// Origin identifies this instance on the wire.
func (b *Bridge) Origin() string {
	return b.origin
}

// Start subscribes to the subject and begins forwarding local events.
func (b *Bridge) Start() error {
	sub, err := b.conn.Subscribe(b.subject, b.receive)
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", b.subject, err)
	}
	b.sub = sub

	events, cancel := b.notifier.Subscribe()
	b.cancel = cancel
	go b.forward(events)

	b.logger.Info("Session event bridge started", zap.String("subject", b.subject), zap.String("origin", b.origin))
	return nil
}

func (b *Bridge) forward(events <-chan identity.Event) {
	defer close(b.done)
	for ev := range events {
		// Events injected from the wire carry their origin and are not sent back.
		if ev.Origin != "" {
			continue
		}
		data, err := json.Marshal(message{UID: ev.UID, Identity: ev.Identity, Origin: b.origin, SentAt: time.Now().UTC()})
		if err != nil {
			b.logger.Error("Failed to encode session event", zap.String("uid", ev.UID), zap.Error(err))
			continue
		}
		if err := b.conn.Publish(b.subject, data); err != nil {
			b.logger.Warn("Failed to publish session event", zap.String("uid", ev.UID), zap.Error(err))
		}
	}
}

func (b *Bridge) receive(msg *nats.Msg) {
	var m message
	if err := json.Unmarshal(msg.Data, &m); err != nil {
		b.logger.Warn("Dropping malformed session event", zap.String("subject", msg.Subject), zap.Error(err))
		return
	}
	if m.Origin == "" || m.Origin == b.origin || m.UID == "" {
		return
	}
	b.logger.Debug("Session event received", zap.String("uid", m.UID), zap.String("origin", m.Origin), zap.Bool("signedOut", m.Identity == nil))
	b.notifier.Publish(identity.Event{UID: m.UID, Identity: m.Identity, Origin: m.Origin})
}

// Close stops forwarding and unsubscribes. It is safe to call more than once.
func (b *Bridge) Close() {
	b.stopOnce.Do(func() {
		if b.sub != nil {
			if err := b.sub.Unsubscribe(); err != nil {
				b.logger.Warn("Error during unsubscribe", zap.String("subject", b.subject), zap.Error(err))
			}
		}
		if b.cancel != nil {
			b.cancel()
			<-b.done
		}
		b.logger.Info("Session event bridge stopped", zap.String("subject", b.subject))
	})
}
