package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const wsWriteWait = 10 * time.Second

// handlePredictStream scores records sent as websocket text frames, one reply per
// frame, so a browser form can re-score on every change without new requests.
// A connection idle for longer than the server timeout is closed; pongs count as
// activity.
func (h *Handlers) handlePredictStream(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	requestID := GetRequestID(r.Context())
	conn.SetReadLimit(h.wsMaxSize)
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.wsTimeout))
	})

	for {
		_ = conn.SetReadDeadline(time.Now().Add(h.wsTimeout))
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				h.logger.Debug("closing idle websocket", zap.String("request_id", requestID))
				return
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn("websocket read failed", zap.String("request_id", requestID), zap.Error(err))
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), h.wsTimeout)
		prob, err := h.score(ctx, data)
		cancel()

		var reply any = predictResponse{Prob: prob}
		if err != nil {
			var serr *scoreError
			if !errors.As(err, &serr) {
				serr = &scoreError{message: err.Error()}
			}
			reply = errorResponse{Erro: serr.message}
		}
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(reply); err != nil {
			h.logger.Warn("websocket write failed", zap.String("request_id", requestID), zap.Error(err))
			return
		}
	}
}

func (h *Handlers) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.wsOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}
