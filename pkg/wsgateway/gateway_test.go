package wsgateway

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/flowtap/flowcore/pkg/eventbus"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGatewayForwardsPublishedEventAsJSON(t *testing.T) {
	bus := eventbus.New(16)
	gw := New(bus, nil)
	gw.pollInterval = 10 * time.Millisecond

	srv := httptest.NewServer(gw)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Give the server time to Subscribe before publishing, since the
	// gateway's drain loop only sees events published after Subscribe.
	time.Sleep(20 * time.Millisecond)
	bus.Publish(eventbus.Event{Kind: eventbus.KindFlowStarted, FlowID: "flow-1"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(msg), "flow-1")
	assert.Contains(t, string(msg), string(eventbus.KindFlowStarted))
}
