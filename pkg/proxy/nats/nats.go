package nats

import (
	"encoding/json"

	"github.com/nats-io/nats.go"

	"github.com/gridrace/race-service-go/log"
	"github.com/gridrace/race-service-go/pkg/model"
	"github.com/gridrace/race-service-go/pkg/proxy"
)

// subscription pattern covering all race event subjects
const raceSubjects = "race.>"

// DataProxy implementation bridging race events over NATS so that
// subscribers on any instance see events produced on any other.
type (
	NatsProxy struct {
		proxy.EmptyProxy
		conn *nats.Conn
		l    *log.Logger
	}
	Option func(*NatsProxy)
)

var _ proxy.DataProxy = (*NatsProxy)(nil)

func NewNatsProxy(conn *nats.Conn, opts ...Option) (*NatsProxy, error) {
	ret := &NatsProxy{
		conn: conn,
		l:    log.Default().Named("proxy.nats"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret, nil
}

func WithLogger(l *log.Logger) Option {
	return func(n *NatsProxy) {
		n.l = l
	}
}

func (n *NatsProxy) PublishRaceProgress(ev *model.RaceProgressEvent) error {
	return n.publish(proxy.TypeRaceProgress, ev)
}

func (n *NatsProxy) PublishRaceFinished(ev *model.RaceFinishedEvent) error {
	return n.publish(proxy.TypeRaceFinished, ev)
}

func (n *NatsProxy) PublishRaceDisqualified(ev *model.RaceDisqualifiedEvent) error {
	return n.publish(proxy.TypeRaceDisqualified, ev)
}

func (n *NatsProxy) PublishRaceCancelled(ev *model.RaceCancelledEvent) error {
	return n.publish(proxy.TypeRaceCancelled, ev)
}

func (n *NatsProxy) publish(subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return n.conn.Publish(subject, data)
}

//nolint:whitespace // false positive
func (n *NatsProxy) Subscribe() (
	d <-chan *proxy.Event,
	q chan<- struct{},
	err error,
) {
	dataChan := make(chan *proxy.Event)
	quitChan := make(chan struct{})

	sub, err := n.conn.Subscribe(raceSubjects, func(msg *nats.Msg) {
		ev := &proxy.Event{Type: msg.Subject, Payload: json.RawMessage(msg.Data)}
		select {
		case dataChan <- ev:
		case <-quitChan:
		}
	})
	if err != nil {
		return nil, nil, err
	}

	go func() {
		<-quitChan
		n.l.Debug("race event quitChan was closed")
		if err := sub.Unsubscribe(); err != nil {
			n.l.Warn("unsubscribe failed", log.ErrorField(err))
		}
		close(dataChan)
	}()

	return dataChan, quitChan, nil
}

func (n *NatsProxy) Close() {
	n.conn.Close()
}
