// Package proxy distributes race events to interested parties. The local
// implementation fans out within the process, the nats implementation
// additionally bridges events across service instances.
package proxy

import (
	"fmt"

	"github.com/gridrace/race-service-go/pkg/model"
)

// event type identifiers, also used as NATS subjects
const (
	TypeRaceProgress     = "race.progress"
	TypeRaceFinished     = "race.finished"
	TypeRaceDisqualified = "race.disqualified"
	TypeRaceCancelled    = "race.cancelled"
)

// Event is the envelope carried to subscribers. Payload is one of the
// model race event structs, keyed by Type.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// PublishProxy is the interface used by the race controller to emit
// events. Exactly one event is published per processed update.
type PublishProxy interface {
	PublishRaceProgress(ev *model.RaceProgressEvent) error
	PublishRaceFinished(ev *model.RaceFinishedEvent) error
	PublishRaceDisqualified(ev *model.RaceDisqualifiedEvent) error
	PublishRaceCancelled(ev *model.RaceCancelledEvent) error
}

type DataProxy interface {
	PublishProxy
	// Subscribe to the race event stream.
	// The returned channel is the provider for outgoing live messages.
	Subscribe() (dataChan <-chan *Event, quitChan chan<- struct{}, err error)
	// performs cleanup
	Close()
}

type EmptyProxy struct{}

func (e EmptyProxy) PublishRaceProgress(ev *model.RaceProgressEvent) error {
	return fmt.Errorf("PublishRaceProgress not implemented")
}

func (e EmptyProxy) PublishRaceFinished(ev *model.RaceFinishedEvent) error {
	return fmt.Errorf("PublishRaceFinished not implemented")
}

func (e EmptyProxy) PublishRaceDisqualified(ev *model.RaceDisqualifiedEvent) error {
	return fmt.Errorf("PublishRaceDisqualified not implemented")
}

func (e EmptyProxy) PublishRaceCancelled(ev *model.RaceCancelledEvent) error {
	return fmt.Errorf("PublishRaceCancelled not implemented")
}

//nolint:whitespace // false positive
func (e EmptyProxy) Subscribe() (
	d <-chan *Event,
	q chan<- struct{},
	err error,
) {
	return nil, nil, fmt.Errorf("Subscribe not implemented")
}

func (e EmptyProxy) Close() {
}
