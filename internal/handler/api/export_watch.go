package api

import (
	"context"
	"net/http"
	"time"

	xhttp "PriceServer/pkg/http"
	xlogger "PriceServer/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const watchWriteWait = 5 * time.Second

var watchUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Watch upgrades to a WebSocket and pushes a status frame every time the job changes
// state. The server closes the socket after the terminal frame.
func (h *ExportsEchoHandler) Watch(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("job_id")

	st, err := h.exports.Status(ctx, id)
	if err != nil {
		return xhttp.AppErrorResponse(c, err)
	}

	conn, err := watchUpgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", xlogger.String("job_id", id), xlogger.Error(err))
		return nil
	}
	defer conn.Close()

	// The read loop only serves control frames and notices the client going away.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()

	var last string
	for {
		if string(st.State) != last {
			last = string(st.State)
			_ = conn.SetWriteDeadline(time.Now().Add(watchWriteWait))
			if err := conn.WriteJSON(statusResponse(st)); err != nil {
				return nil
			}
		}
		if st.State.Terminal() {
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, last)
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(watchWriteWait))
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		next, err := h.exports.Status(ctx, id)
		if err != nil {
			h.logger.Warn("watch status", xlogger.String("job_id", id), xlogger.Error(err))
			msg := websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "status unavailable")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(watchWriteWait))
			return nil
		}
		st = next
	}
}

