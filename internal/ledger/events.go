package ledger

import (
	"go.uber.org/zap"

	"perp-strategy-lab/internal/domain"
)

// EventType identifies a ledger notification.
type EventType string

// Event types
const (
	EventOpened  EventType = "opened"
	EventPartial EventType = "partial" // take-profit leg realized, position still open
	EventClosed  EventType = "closed"
)

// Event is a notification emitted after a state change.
// Position and Order are copies; observers may keep them.
type Event struct {
	Type     EventType
	Time     int64 // Unix ms
	Position *domain.Position
	Order    *domain.Order // set for EventClosed
	Reason   domain.ExitReason
	Realized float64 // net PnL realized by this event (EventPartial, EventClosed)
}

// Observer receives ledger events. Delivery is best-effort:
// OnEvent must not block and the ledger ignores its outcome.
type Observer interface {
	OnEvent(e Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(e Event)

// OnEvent calls f(e).
func (f ObserverFunc) OnEvent(e Event) { f(e) }

// ChannelObserver forwards events to a buffered channel, dropping them when it is full.
type ChannelObserver struct {
	ch chan Event
}

// NewChannelObserver creates a ChannelObserver with the given buffer size.
func NewChannelObserver(buffer int) *ChannelObserver {
	return &ChannelObserver{ch: make(chan Event, buffer)}
}

// Events returns the receive side of the channel.
func (o *ChannelObserver) Events() <-chan Event {
	return o.ch
}

// OnEvent implements Observer.
func (o *ChannelObserver) OnEvent(e Event) {
	select {
	case o.ch <- e:
	default:
	}
}

// LogObserver logs every event.
type LogObserver struct {
	log *zap.Logger
}

// NewLogObserver creates a LogObserver.
func NewLogObserver(log *zap.Logger) *LogObserver {
	return &LogObserver{log: log}
}

// OnEvent implements Observer.
func (o *LogObserver) OnEvent(e Event) {
	fields := []zap.Field{
		zap.String("event", string(e.Type)),
		zap.String("position_id", e.Position.ID),
		zap.String("symbol", e.Position.Symbol),
		zap.String("direction", string(e.Position.Direction)),
	}
	if e.Type != EventOpened {
		fields = append(fields,
			zap.String("reason", string(e.Reason)),
			zap.Float64("realized", e.Realized),
		)
	} else {
		fields = append(fields,
			zap.Float64("entry_price", e.Position.EntryPrice),
			zap.Float64("margin", e.Position.MarginUsed),
		)
	}
	o.log.Info("position event", fields...)
}

type multiObserver []Observer

func (m multiObserver) OnEvent(e Event) {
	for _, o := range m {
		o.OnEvent(e)
	}
}

// Observers combines observers into one.
func Observers(obs ...Observer) Observer {
	return multiObserver(obs)
}

var (
	_ Observer = ObserverFunc(nil)
	_ Observer = (*ChannelObserver)(nil)
	_ Observer = (*LogObserver)(nil)
)
