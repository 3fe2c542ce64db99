package slackapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/slackirc/bridge/pkg/bridgeerr"
	"github.com/slackirc/bridge/pkg/logger"
)

const (
	rtmPingInterval = 15 * time.Second
	rtmWatchdog     = 40 * time.Second
	maxBackoff      = 30 * time.Second
)

var errGoodbye = errors.New("server sent goodbye")

// RTM maintains a reconnecting websocket connection to Slack's real-time
// messaging endpoint and republishes decoded frames on Events.
type RTM struct {
	client *Client
	log    *logger.Logger

	Events chan Event
}

// NewRTM builds an RTM session bound to client. The caller starts it with Run.
func NewRTM(client *Client, log *logger.Logger) *RTM {
	return &RTM{
		client: client,
		log:    log,
		Events: make(chan Event, 64),
	}
}

// Run connects and reconnects until ctx is canceled, applying capped
// exponential backoff between attempts and emitting a synthetic
// Reconnected event after every successful connect except one made by the
// very first attempt.
func (r *RTM) Run(ctx context.Context) error {
	defer close(r.Events)

	attempt := 0
	firstConnect := true

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := r.runOnce(ctx, !firstConnect)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			r.log.Warn("rtm session ended", "error", err, "attempt", attempt)
		}

		firstConnect = false
		backoff := time.Duration(1<<uint(attempt)) * time.Second
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
		attempt++

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (r *RTM) runOnce(ctx context.Context, announceReconnect bool) error {
	url, err := r.client.RTMConnectURL(ctx)
	if err != nil {
		return bridgeerr.Wrap(bridgeerr.KindTransportTransient, "rtm.connect", err)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return bridgeerr.Wrap(bridgeerr.KindTransportTransient, "dial rtm socket", err)
	}
	defer conn.Close()

	if announceReconnect {
		select {
		case r.Events <- Event{Type: Reconnected}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	done := make(chan struct{})
	defer close(done)

	go r.watchdog(ctx, conn, done)

	conn.SetReadDeadline(time.Now().Add(rtmWatchdog))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(rtmWatchdog))
		return nil
	})

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			return bridgeerr.Wrap(bridgeerr.KindTransportTransient, "rtm read", err)
		}

		evt, err := decodeEvent(data)
		if err != nil {
			r.log.Warn("dropping malformed rtm frame", "error", err)
			continue
		}

		select {
		case r.Events <- evt:
		case <-ctx.Done():
			return ctx.Err()
		}

		if evt.Type == EventGoodbye {
			// Slack is about to close the socket on its end; reconnect now
			// rather than waiting on the read to fail.
			return bridgeerr.Wrap(bridgeerr.KindTransportTransient, "rtm goodbye", errGoodbye)
		}
	}
}

func (r *RTM) watchdog(ctx context.Context, conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(rtmPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case <-done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func decodeEvent(data []byte) (Event, error) {
	var evt Event
	if err := json.Unmarshal(data, &evt); err != nil {
		return Event{}, fmt.Errorf("decode rtm frame: %w", err)
	}
	evt.Raw = data

	if evt.Type == EventMessage {
		var msg Message
		if err := json.Unmarshal(data, &msg); err == nil {
			evt.Message = msg
		}
	}

	return evt, nil
}
