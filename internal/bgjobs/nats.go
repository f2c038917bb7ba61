package bgjobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// natsJobPayload is the wire shape expected on kvstore.bgjob.<type>.
type natsJobPayload struct {
	Arg1 int `json:"arg1"`
	Arg2 int `json:"arg2"`
	Arg3 int `json:"arg3"`
}

// NATSSource lets an external process submit bgjobs over NATS instead
// of (or in addition to) the in-process Submit call — one subject per
// job type, named kvstore.bgjob.<type>.
type NATSSource struct {
	conn *nats.Conn
	subs []*nats.Subscription
	pool *Pool
	log  *zap.Logger
}

// NewNATSSource connects to url and subscribes one handler per entry
// of types.
func NewNATSSource(url string, pool *Pool, types []Type, log *zap.Logger) (*NATSSource, error) {
	conn, err := nats.Connect(url,
		nats.MaxReconnects(10),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("bgjobs: nats connect: %w", err)
	}

	s := &NATSSource{conn: conn, pool: pool, log: log}
	for _, t := range types {
		subject := subjectFor(t)
		sub, err := conn.Subscribe(subject, s.handlerFor(t))
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("bgjobs: subscribe %s: %w", subject, err)
		}
		s.subs = append(s.subs, sub)
	}
	return s, nil
}

func subjectFor(t Type) string {
	return fmt.Sprintf("kvstore.bgjob.%s", t)
}

func (s *NATSSource) handlerFor(t Type) nats.MsgHandler {
	return func(msg *nats.Msg) {
		var payload natsJobPayload
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			if s.log != nil {
				s.log.Warn("bgjobs: malformed nats payload", zap.String("subject", msg.Subject), zap.Error(err))
			}
			return
		}
		s.pool.Submit(Job{Type: t, Arg1: payload.Arg1, Arg2: payload.Arg2, Arg3: payload.Arg3})
	}
}

// Close unsubscribes and closes the underlying NATS connection.
func (s *NATSSource) Close() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	if s.conn != nil {
		s.conn.Close()
	}
}
