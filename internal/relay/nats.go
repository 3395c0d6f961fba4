package relay

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/nats-io/nats.go"
)

const (
	subjectPrefix     = "gochat.rooms"
	userSubjectPrefix = "gochat.users"
	originHeader      = "Gochat-Origin"
)

// NatsRelay forwards broadcasts between server processes over core NATS
// subjects of the form gochat.rooms.<roomId> and gochat.users.<userId>.
// Messages published by this process are dropped on receipt using the
// origin header.
type NatsRelay struct {
	nc     *nats.Conn
	subs   []*nats.Subscription
	origin string
	log    *log.Logger
}

func NewNatsRelay(url, origin string, logger *log.Logger) (*NatsRelay, error) {
	nc, err := nats.Connect(url,
		nats.Name("gochat-"+origin),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Printf("nats disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Printf("nats reconnected to %s", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NatsRelay{nc: nc, origin: origin, log: logger}, nil
}

func (r *NatsRelay) Publish(roomId int64, payload []byte) error {
	return r.publish(Subject(roomId), payload)
}

func (r *NatsRelay) PublishUser(userId int64, payload []byte) error {
	return r.publish(UserSubject(userId), payload)
}

func (r *NatsRelay) publish(subject string, payload []byte) error {
	msg := nats.NewMsg(subject)
	msg.Header.Set(originHeader, r.origin)
	msg.Data = payload

	if err := r.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}
	return nil
}

// Subscribe registers handlers for room and user broadcasts published by
// other processes.
func (r *NatsRelay) Subscribe(onRoom func(roomId int64, payload []byte), onUser func(userId int64, payload []byte)) error {
	if err := r.subscribe(subjectPrefix, onRoom); err != nil {
		return err
	}
	return r.subscribe(userSubjectPrefix, onUser)
}

func (r *NatsRelay) subscribe(prefix string, handler func(id int64, payload []byte)) error {
	sub, err := r.nc.Subscribe(prefix+".*", func(m *nats.Msg) {
		if m.Header.Get(originHeader) == r.origin {
			return
		}

		id, err := parseId(prefix, m.Subject)
		if err != nil {
			r.log.Printf("relay: %v", err)
			return
		}

		handler(id, m.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", prefix, err)
	}

	r.subs = append(r.subs, sub)
	return nil
}

func (r *NatsRelay) Ping() error {
	if !r.nc.IsConnected() {
		return errors.New("nats: not connected")
	}
	return nil
}

func (r *NatsRelay) Close() {
	for _, sub := range r.subs {
		sub.Unsubscribe()
	}
	if r.nc != nil {
		r.nc.Close()
	}
}

func Subject(roomId int64) string {
	return subjectPrefix + "." + strconv.FormatInt(roomId, 10)
}

func UserSubject(userId int64) string {
	return userSubjectPrefix + "." + strconv.FormatInt(userId, 10)
}

func ParseSubject(subject string) (int64, error) {
	return parseId(subjectPrefix, subject)
}

func ParseUserSubject(subject string) (int64, error) {
	return parseId(userSubjectPrefix, subject)
}

func parseId(prefix, subject string) (int64, error) {
	token, ok := strings.CutPrefix(subject, prefix+".")
	if !ok {
		return 0, fmt.Errorf("unexpected subject %q", subject)
	}

	id, err := strconv.ParseInt(token, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id in subject %q", subject)
	}

	return id, nil
}
