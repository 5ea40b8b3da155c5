package ginserver

import (
	"errors"
	"net/http"
	"sync"

	gin "github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"plateful/internal/app/dto"
	domainchat "plateful/internal/domain/chat"
	domainlisting "plateful/internal/domain/listing"
	domainuser "plateful/internal/domain/user"
)

var liveUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

type liveFrame struct {
	Type    string            `json:"type"`
	History []dto.ChatMessage `json:"history,omitempty"`
	Message *dto.ChatMessage  `json:"message,omitempty"`
}

// Live upgrades the request to a websocket and streams the conversation: one
// history frame with the ordered snapshot, then a message frame per insert.
// The view is disposed when the client disconnects or a write fails.
func (h ChatHandler) Live(c *gin.Context) {
	principal, ok := requireAuth(c)
	if !ok {
		return
	}
	if h.Service == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "chat unavailable"})
		return
	}

	conn, err := liveUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	// Writes come from both this goroutine and feed callbacks.
	var writeMu sync.Mutex
	send := func(frame liveFrame) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteJSON(frame)
	}

	view, err := h.Service.OpenView(c.Request.Context(),
		domainchat.ConversationID(c.Param("id")), domainuser.ID(principal.ID),
		func(message domainchat.Message) {
			payload := dto.MapChatMessage(message)
			if err := send(liveFrame{Type: "message", Message: &payload}); err != nil {
				conn.Close()
			}
		})
	if err != nil {
		writeLiveError(conn, &writeMu, err)
		return
	}
	defer view.Close()

	if err := send(liveFrame{Type: "history", History: dto.MapChatMessages(view.Messages()).Items}); err != nil {
		return
	}

	// Drain client frames until the peer goes away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writeLiveError(conn *websocket.Conn, mu *sync.Mutex, err error) {
	code := websocket.ClosePolicyViolation
	if errors.Is(err, domainchat.ErrConversationNotFound) || errors.Is(err, domainlisting.ErrNotFound) {
		code = websocket.CloseNormalClosure
	}
	mu.Lock()
	defer mu.Unlock()
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, err.Error()))
}
