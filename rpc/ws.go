package rpc

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mileswatson/blockkey/internal/xlog"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// CommitEvent is one message sent down a subscribed websocket: the
// height that just committed and a hex digest of the committed value.
type CommitEvent struct {
	Height    uint64 `json:"height"`
	ValueHash string `json:"valueHash"`
}

// CommitStream is an http.Handler that upgrades each request it serves
// to a websocket and forwards every event received on feed until the
// client disconnects or feed is closed. It is not mounted on any path by
// this package.
type CommitStream struct {
	feed <-chan CommitEvent
	log  xlog.Logger
}

func NewCommitStream(feed <-chan CommitEvent, log xlog.Logger) *CommitStream {
	if log == nil {
		log = xlog.Root()
	}
	return &CommitStream{feed: feed, log: log}
}

func (s *CommitStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	for event := range s.feed {
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(event); err != nil {
			s.log.Debug("websocket write failed, closing", "err", err)
			return
		}
	}
}

// Encode marshals event to the same JSON text CommitStream writes for
// it.
func Encode(event CommitEvent) ([]byte, error) { return json.Marshal(event) }
