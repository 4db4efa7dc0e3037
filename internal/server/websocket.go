package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Default interval between two statistics snapshots on the live feed
	liveStatsInterval = 2 * time.Second
)

// handleLiveStats streams statistics snapshots over a websocket until the
// peer goes away or the service is closed.
func (s *Service) handleLiveStats(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: false, // Always verify origin
	})
	if err != nil {
		s.logger.Warn(r.Context(), err, "WebSocket upgrade failed")
		return
	}
	defer conn.CloseNow()

	// The feed is write-only; CloseRead handles control frames and
	// cancels ctx once the peer closes.
	ctx := conn.CloseRead(r.Context())

	interval := s.liveInterval
	if interval <= 0 {
		interval = liveStatsInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := s.writeReport(ctx, conn); err != nil {
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				s.logger.Warn(ctx, err, "WebSocket write failed")
			}
			return
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		case <-s.done:
			conn.Close(websocket.StatusGoingAway, "share stopped")
			return
		}
	}
}

func (s *Service) writeReport(ctx context.Context, conn *websocket.Conn) error {
	message, err := json.Marshal(s.report())
	if err != nil {
		return err
	}

	writeCtx, cancel := context.WithTimeout(ctx, writeWait)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, message)
}
