package rpc

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func TestCommitStreamForwardsEvents(t *testing.T) {
	feed := make(chan CommitEvent, 1)
	stream := NewCommitStream(feed, nil)

	server := httptest.NewServer(stream)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	feed <- CommitEvent{Height: 9, ValueHash: "deadbeef"}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got CommitEvent
	require.NoError(t, conn.ReadJSON(&got))
	require.Equal(t, uint64(9), got.Height)
	require.Equal(t, "deadbeef", got.ValueHash)
}
