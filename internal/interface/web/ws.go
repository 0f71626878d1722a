package web

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsEventBuffer  = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Clients connect from arbitrary overlay pages, so origins are not
	// restricted here.
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (h *handler) websocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.WithError(err).Warn("failed to upgrade websocket connection")
		return
	}
	defer conn.Close()

	snapshot, err := h.svc.Snapshot(c.Request.Context())
	if err != nil {
		log.WithError(err).Error("failed to build challenges snapshot")
		return
	}
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(snapshot); err != nil {
		log.WithError(err).Debug("failed to send challenges snapshot")
		return
	}

	id, events := h.svc.Broker().Subscribe(wsEventBuffer)
	defer h.svc.Broker().Unsubscribe(id)

	// Drain the read side so close frames are processed and the
	// connection teardown is noticed.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(event); err != nil {
				log.WithError(err).Debug("dropping websocket listener")
				return
			}
		case <-done:
			return
		}
	}
}
