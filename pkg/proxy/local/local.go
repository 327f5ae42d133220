package local

import (
	"github.com/gridrace/race-service-go/log"
	"github.com/gridrace/race-service-go/pkg/model"
	"github.com/gridrace/race-service-go/pkg/proxy"
	"github.com/gridrace/race-service-go/pkg/utils/broadcast"
)

// DataProxy implementation based on an in-process broadcast server
type (
	LocalProxy struct {
		proxy.EmptyProxy
		source chan *proxy.Event
		bcst   broadcast.BroadcastServer[*proxy.Event]
		l      *log.Logger
	}
	Option func(*LocalProxy)
)

var _ proxy.DataProxy = (*LocalProxy)(nil)

func NewLocalProxy(opts ...Option) *LocalProxy {
	source := make(chan *proxy.Event)
	ret := &LocalProxy{
		source: source,
		bcst:   broadcast.NewBroadcastServer("race-events", source),
		l:      log.Default().Named("proxy.local"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

func WithLogger(arg *log.Logger) Option {
	return func(l *LocalProxy) {
		l.l = arg
	}
}

func (l *LocalProxy) PublishRaceProgress(ev *model.RaceProgressEvent) error {
	return l.publish(proxy.TypeRaceProgress, ev)
}

func (l *LocalProxy) PublishRaceFinished(ev *model.RaceFinishedEvent) error {
	return l.publish(proxy.TypeRaceFinished, ev)
}

func (l *LocalProxy) PublishRaceDisqualified(ev *model.RaceDisqualifiedEvent) error {
	return l.publish(proxy.TypeRaceDisqualified, ev)
}

func (l *LocalProxy) PublishRaceCancelled(ev *model.RaceCancelledEvent) error {
	return l.publish(proxy.TypeRaceCancelled, ev)
}

func (l *LocalProxy) publish(eventType string, payload any) error {
	l.source <- &proxy.Event{Type: eventType, Payload: payload}
	return nil
}

//nolint:whitespace // false positive
func (l *LocalProxy) Subscribe() (
	d <-chan *proxy.Event,
	q chan<- struct{},
	err error,
) {
	sourceChan := l.bcst.Subscribe()
	quitChan := make(chan struct{})

	go func() {
		<-quitChan
		l.l.Debug("race event quitChan was closed")
		l.bcst.CancelSubscription(sourceChan)
	}()

	return sourceChan, quitChan, nil
}

func (l *LocalProxy) Close() {
	l.bcst.Close()
}
