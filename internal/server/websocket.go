package server

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/kode4food/caravan/topic"

	"github.com/kode4food/braid/pkg/api"
	"github.com/kode4food/braid/pkg/events"
	"github.com/kode4food/braid/pkg/log"
)

// Socket streams one instance's history events to a WebSocket client
type Socket struct {
	conn      *websocket.Conn
	consumer  topic.Consumer[*api.HistoryEvent]
	id        api.InstanceID
	minSeq    int64
	closeOnce sync.Once
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	wsBufferSize   = 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  wsBufferSize,
	WriteBufferSize: wsBufferSize,
	CheckOrigin: func(*http.Request) bool {
		return true
	},
}

func (s *Server) handleWebSocket(c *gin.Context) {
	id := api.InstanceID(c.Param("id"))

	// subscribe before reading state so no appended event is missed
	consumer := s.hub.NewConsumer()
	evs, err := s.client.GetHistory(c.Request.Context(), id)
	if err != nil {
		consumer.Close()
		writeError(c, ErrQueryFailed, err)
		return
	}
	st, err := events.Fold(evs)
	if err != nil {
		consumer.Close()
		writeError(c, ErrQueryFailed, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		consumer.Close()
		slog.Error("WebSocket upgrade failed",
			log.InstanceID(id),
			log.Error(err))
		return
	}

	sock := &Socket{
		conn:     conn,
		consumer: consumer,
		id:       id,
		minSeq:   st.NextSequence,
	}
	s.registerWebSocket(sock)
	go func() {
		defer s.unregisterWebSocket(sock)
		sock.run(st)
	}()
}

// Close ends the stream
func (s *Socket) Close() {
	s.closeOnce.Do(func() {
		s.consumer.Close()
		_ = s.conn.Close()
	})
}

func (s *Socket) run(st *api.InstanceState) {
	defer s.Close()

	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	if !s.send(&api.StreamMessage{
		Type:  api.StreamSubscribed,
		State: api.NewInstanceStatusResponse(st),
	}) || st.Status.IsTerminal() {
		s.sendClose()
		return
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	done := make(chan struct{})
	go s.readMessages(done)

	for {
		select {
		case <-done:
			return

		case ev, ok := <-s.consumer.Receive():
			if !ok {
				s.sendClose()
				return
			}
			if ev.InstanceID != s.id || ev.Sequence < s.minSeq {
				continue
			}
			if !s.send(&api.StreamMessage{
				Type:  api.StreamEvent,
				Event: ev,
			}) {
				return
			}
			if events.IsTerminal(ev.Type) {
				s.sendClose()
				return
			}

		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if s.conn.WriteMessage(websocket.PingMessage, nil) != nil {
				return
			}
		}
	}
}

// readMessages drains client frames so control messages are processed;
// the stream takes no commands
func (s *Socket) readMessages(done chan struct{}) {
	defer close(done)
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Socket) send(msg *api.StreamMessage) bool {
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteJSON(msg); err != nil {
		slog.Error("WebSocket write failed",
			log.InstanceID(s.id),
			log.Error(err))
		return false
	}
	return true
}

func (s *Socket) sendClose() {
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
	)
}
