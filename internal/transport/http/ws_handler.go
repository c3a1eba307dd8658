package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"reading-fluency-service/internal/app"
	"reading-fluency-service/internal/domain"
)

// WSHandler drives one student's reading attempt over a websocket. The
// socket is a convenience transport: every transition still goes through the
// server-authoritative state machine, so a misbehaving client cannot skip
// lifecycle steps.
type WSHandler struct {
	sessions *app.SessionService
	upgrader websocket.Upgrader
}

func NewWSHandler(sessions *app.SessionService) *WSHandler {
	return &WSHandler{
		sessions: sessions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type startPayload struct {
	TaskID string `json:"taskId"`
}

type readingPayload struct {
	Transcript      string  `json:"transcript"`
	DurationSeconds float64 `json:"durationSeconds"`
}

type voicePayload struct {
	AudioRef string `json:"audioRef"`
}

type answersPayload struct {
	Answers []int `json:"answers"`
}

type sessionPayload struct {
	SessionID string               `json:"sessionId"`
	Status    domain.SessionStatus `json:"status"`
}

type scorePayload struct {
	SessionID string                `json:"sessionId"`
	Breakdown domain.ScoreBreakdown `json:"breakdown"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades the request and runs the session message loop.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	studentID := r.URL.Query().Get("studentId")
	if studentID == "" {
		http.Error(w, "missing studentId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	send := make(chan outboundMessage[any], 16)
	writerDone := make(chan struct{})

	// Single writer goroutine; the read loop and the async voice analysis
	// both publish through the channel to avoid concurrent writes.
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	h.readLoop(r.Context(), conn, studentID, send)

	close(send)
	<-writerDone
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, studentID string, send chan<- outboundMessage[any]) {
	var sessionID string

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			return
		}

		switch inbound.Type {
		case "start":
			var payload startPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- errorMsg("invalid start payload")
				continue
			}
			session, err := h.sessions.StartSession(ctx, payload.TaskID, studentID)
			if errors.Is(err, domain.ErrAlreadyCompleted) && session.Breakdown != nil {
				// Duplicate attempt: hand back the original result.
				sessionID = session.ID
				send <- scoreMsg(session)
				continue
			}
			if err != nil {
				send <- errorMsg(err.Error())
				continue
			}
			sessionID = session.ID
			send <- sessionMsg(session)

		case "beginReading":
			session, err := h.sessions.BeginReading(ctx, sessionID)
			if err != nil {
				send <- errorMsg(err.Error())
				continue
			}
			send <- sessionMsg(session)

		case "submitReading":
			var payload readingPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- errorMsg("invalid reading payload")
				continue
			}
			session, err := h.sessions.SubmitReading(ctx, sessionID, payload.Transcript, payload.DurationSeconds)
			if err != nil {
				send <- errorMsg(err.Error())
				continue
			}
			if session.Status == domain.StatusCompleted {
				send <- scoreMsg(session)
			} else {
				send <- sessionMsg(session)
			}

		case "submitVoice":
			var payload voicePayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- errorMsg("invalid voice payload")
				continue
			}
			session, err := h.sessions.SubmitVoiceRecording(ctx, sessionID, payload.AudioRef)
			if err != nil {
				send <- errorMsg(err.Error())
				continue
			}
			send <- outboundMessage[any]{Type: "pending", Payload: sessionPayload{SessionID: session.ID, Status: session.Status}}
			go h.analyze(ctx, session.ID, send)

		case "submitAnswers":
			var payload answersPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- errorMsg("invalid answers payload")
				continue
			}
			session, err := h.sessions.SubmitAnswers(ctx, sessionID, payload.Answers)
			if err != nil {
				send <- errorMsg(err.Error())
				continue
			}
			send <- scoreMsg(session)

		default:
			send <- errorMsg("unsupported message type")
		}
	}
}

// analyze runs the out-of-band transcription and pushes the outcome once it
// resolves; the student keeps their socket while the collaborator works.
func (h *WSHandler) analyze(ctx context.Context, sessionID string, send chan<- outboundMessage[any]) {
	defer func() {
		// The writer channel closes when the socket does; losing the race
		// is fine, the session outcome is already persisted.
		_ = recover()
	}()

	session, err := h.sessions.AnalyzeRecording(ctx, sessionID)
	if err != nil {
		send <- errorMsg(err.Error())
		return
	}
	if session.Status == domain.StatusCompleted {
		send <- scoreMsg(session)
	} else {
		send <- sessionMsg(session)
	}
}

func sessionMsg(session domain.ReadingSession) outboundMessage[any] {
	return outboundMessage[any]{Type: "session", Payload: sessionPayload{SessionID: session.ID, Status: session.Status}}
}

func scoreMsg(session domain.ReadingSession) outboundMessage[any] {
	return outboundMessage[any]{Type: "score", Payload: scorePayload{SessionID: session.ID, Breakdown: *session.Breakdown}}
}

func errorMsg(message string) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: message}}
}
