// Package wsgateway exposes the EventBus over a single named WebSocket
// channel ("flow-event", spec.md §6) so a UI can subscribe without
// speaking the in-process Bus API directly. Every connection owns one
// Bus subscription; the gateway drains it on its own goroutine per
// connection and forwards events as JSON text frames.
package wsgateway

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/flowtap/flowcore/pkg/eventbus"
	"github.com/gorilla/websocket"
)

// DefaultPollInterval bounds how long a connection's drain loop sleeps
// between Bus.Drain calls when nothing new has been published; the Bus
// itself has no blocking-wait primitive (Publish is always non-blocking
// on the writer side), so the reader side polls.
const DefaultPollInterval = 100 * time.Millisecond

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Gateway upgrades HTTP connections to WebSocket and fans out Bus
// events to each one.
type Gateway struct {
	bus          *eventbus.Bus
	logger       *log.Logger
	pollInterval time.Duration
}

// New constructs a Gateway over bus. logger may be nil.
func New(bus *eventbus.Bus, logger *log.Logger) *Gateway {
	if logger == nil {
		logger = log.New(os.Stderr, "flowcore: ", log.LstdFlags)
	}
	return &Gateway{bus: bus, logger: logger, pollInterval: DefaultPollInterval}
}

// wireEvent is the tagged-union shape sent over the wire; it mirrors
// eventbus.Event but flattens the Kind-specific payload into one object
// so JS clients don't need to case on which pointer is non-nil.
type wireEvent struct {
	Kind    eventbus.Kind          `json:"kind"`
	FlowID  string                 `json:"flowId"`
	Summary *flowSummaryWire       `json:"summary,omitempty"`
	Update  *eventbus.PartialUpdate `json:"update,omitempty"`
	Error   *flowErrorWire         `json:"error,omitempty"`
	Warning *eventbus.Warning      `json:"warning,omitempty"`
}

type flowSummaryWire struct {
	ID             string `json:"id"`
	Provider       string `json:"provider"`
	Model          string `json:"model"`
	State          string `json:"state"`
	ContentPreview string `json:"contentPreview"`
	HasError       bool   `json:"hasError"`
}

type flowErrorWire struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func toWireEvent(ev eventbus.Event) wireEvent {
	w := wireEvent{Kind: ev.Kind, FlowID: ev.FlowID, Update: ev.Update, Warning: ev.Warning}
	if ev.Summary != nil {
		w.Summary = &flowSummaryWire{
			ID:             ev.Summary.ID.String(),
			Provider:       ev.Summary.Provider,
			Model:          ev.Summary.Model,
			State:          string(ev.Summary.State),
			ContentPreview: ev.Summary.ContentPreview,
			HasError:       ev.Summary.HasError,
		}
	}
	if ev.FlowError != nil {
		w.Error = &flowErrorWire{Kind: ev.FlowError.Kind, Message: ev.FlowError.Message}
	}
	return w
}

// ServeHTTP upgrades the connection and streams Bus events to it until
// the client disconnects or a write fails.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Printf("wsgateway: upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	handle := g.bus.Subscribe()
	defer g.bus.Unsubscribe(handle)

	g.runDrainLoop(conn, handle)
}

func (g *Gateway) runDrainLoop(conn *websocket.Conn, handle eventbus.Handle) {
	// Detect client-initiated close by running a read pump that discards
	// inbound frames (the protocol is server-push only) and signals this
	// goroutine to stop.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(g.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case <-ticker.C:
			events := g.bus.Drain(handle)
			for _, ev := range events {
				payload, err := json.Marshal(toWireEvent(ev))
				if err != nil {
					continue
				}
				if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
					return
				}
			}
		}
	}
}
