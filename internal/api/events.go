package api

import (
	"net/http"
	"time"

	"github.com/JOEYBAGOFBITCOINS/Unit3ipechokey/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	eventsWriteWait  = 5 * time.Second
	eventsPingPeriod = 30 * time.Second
	eventsBuffer     = 32
)

// EventMessage 推送给订阅者的消息；transaction_id 查询参数可只订阅单笔交易。
type EventMessage struct {
	Type         string                    `json:"type"`
	Confirmation *models.ConfirmationEvent `json:"confirmation,omitempty"`
}

// handleEvents GET /api/events：升级为 WebSocket，推送确认事件直到连接断开。
func (s *Server) handleEvents(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	filter := c.Query("transaction_id")

	// 回调在发布方 goroutine 中执行，不能阻塞：写满即丢弃
	ch := make(chan models.ConfirmationEvent, eventsBuffer)
	unsubscribe := s.svc.OnConfirmationEvent(func(ev models.ConfirmationEvent) {
		if filter != "" && ev.TransactionID != filter {
			return
		}
		select {
		case ch <- ev:
		default:
			s.log.Warn("event subscriber slow, dropping", zap.String("transaction_id", ev.TransactionID))
		}
	})
	defer unsubscribe()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(eventsPingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-closed:
			return
		case <-c.Request.Context().Done():
			return
		case ev := <-ch:
			_ = conn.SetWriteDeadline(time.Now().Add(eventsWriteWait))
			if err := conn.WriteJSON(EventMessage{Type: "confirmation", Confirmation: &ev}); err != nil {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(eventsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
