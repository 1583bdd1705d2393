package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const streamWriteTimeout = 5 * time.Second

// handleStream upgrades to a websocket and pushes the derived state on connect and
// after every change. Messages from the client are ignored.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	learnerID, courseID := r.PathValue("learnerID"), r.PathValue("courseID")

	// Resolve before upgrading so unknown courses get a plain HTTP error.
	st, err := h.svc.State(r.Context(), learnerID, courseID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	// The server write timeout would otherwise cut long-lived streams.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		slog.Debug("clearing write deadline failed", "error", err)
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	updates, cancel := h.svc.Hub().Subscribe(learnerID, courseID)
	defer cancel()

	ctx := conn.CloseRead(r.Context())
	if err := writeState(ctx, conn, newStateResponse(st)); err != nil {
		return
	}

	slog.Info("progress stream opened", "learner_id", learnerID, "course_id", courseID)
	for {
		select {
		case <-ctx.Done():
			slog.Info("progress stream closed", "learner_id", learnerID, "course_id", courseID)
			return
		case u, ok := <-updates:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "stream ended")
				return
			}
			if err := writeState(ctx, conn, newStateResponse(u.State)); err != nil {
				return
			}
		}
	}
}

func writeState(ctx context.Context, conn *websocket.Conn, v stateResponse) error {
	ctx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	err := wsjson.Write(ctx, conn, v)
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Warn("progress stream write failed", "error", err)
	}
	return err
}
