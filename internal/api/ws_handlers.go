package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1 << 16,
	// The fleet API is deployed behind the operator's own gateway; origin
	// policy is enforced there.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// GET /api/v1/streams/{id}/ws
//
// Bridges a frame subscription onto a websocket: each binary message is one
// JPEG frame. Slow clients lose frames rather than stalling the stream.
func (s *Server) handleFrameSocket(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	subID := "ws-" + uuid.New().String()
	frames, err := s.streams.Subscribe(id, subID)
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	defer s.streams.Unsubscribe(id, subID)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	// Drain client control frames so pings and close are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-r.Context().Done():
			return
		case frame, ok := <-frames:
			if !ok {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stream ended"))
				return
			}
			if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				return
			}
		}
	}
}
