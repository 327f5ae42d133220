package client

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/gridrace/race-service-go/log"
	"github.com/gridrace/race-service-go/pkg/proxy"
	"github.com/gridrace/race-service-go/pkg/server/ws"
)

var (
	addr     string
	playerID string
	interval time.Duration
)

// traceFile is a recorded drive to be replayed against the service. The
// first two updates serve as the countdown and start positions.
type traceFile struct {
	TrackUID   string            `json:"trackUid"`
	VehicleUID *string           `json:"vehicleUid,omitempty"`
	Updates    []ws.PlayerUpdate `json:"updates"`
}

func NewClientCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "client <tracefile>",
		Short: "replays a recorded drive against the race service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return replayTrace(args[0])
		},
	}
	cmd.Flags().StringVar(&addr,
		"addr",
		"ws://localhost:8084/ws",
		"websocket url of the race service")
	cmd.Flags().StringVar(&playerID,
		"player",
		"replay-client",
		"player id to use")
	cmd.Flags().DurationVar(&interval,
		"interval",
		time.Second,
		"delay between position updates")
	return cmd
}

//nolint:funlen // sequential replay steps
func replayTrace(filename string) error {
	logger := log.DevLogger(
		os.Stderr,
		log.DebugLevel,
		log.WithCaller(true),
		log.AddCallerSkip(1))
	log.ResetDefault(logger)

	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	var trace traceFile
	if err := json.Unmarshal(data, &trace); err != nil {
		return fmt.Errorf("invalid trace file: %w", err)
	}
	if len(trace.Updates) < 2 {
		return fmt.Errorf("trace needs at least countdown and start positions")
	}

	url := fmt.Sprintf("%s?playerId=%s", addr, playerID)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return fmt.Errorf("could not connect to %s: %w", addr, err)
	}
	defer conn.Close()
	log.Info("connected", log.String("url", addr), log.String("player", playerID))

	done := make(chan struct{})
	go readEvents(conn, done)

	start := ws.StartRace{
		TrackUID:   trace.TrackUID,
		VehicleUID: trace.VehicleUID,
		Countdown:  &trace.Updates[0],
		Started:    &trace.Updates[1],
	}
	if err := send(conn, "start_race", &start); err != nil {
		return err
	}
	for i := range trace.Updates[2:] {
		time.Sleep(interval)
		if err := send(conn, "player_update", &trace.Updates[i+2]); err != nil {
			return err
		}
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		log.Warn("no terminal race event received")
	}
	return nil
}

func send(conn *websocket.Conn, msgType string, body any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return conn.WriteJSON(&ws.Envelope{Type: msgType, Body: raw})
}

// readEvents logs inbound messages and closes done once the race reached a
// terminal state.
func readEvents(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	for {
		var msg ws.Message
		if err := conn.ReadJSON(&msg); err != nil {
			log.Warn("read failed", log.ErrorField(err))
			return
		}
		log.Info("received", log.String("type", msg.Type), log.Any("body", msg.Body))
		switch msg.Type {
		case proxy.TypeRaceFinished, proxy.TypeRaceDisqualified, proxy.TypeRaceCancelled:
			return
		}
	}
}
