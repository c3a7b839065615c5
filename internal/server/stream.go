package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/conduit-lang/transmute/internal/generate"
	"github.com/conduit-lang/transmute/internal/store"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to receive the generate request after the upgrade
	requestWait = 30 * time.Second
)

// Message types sent on the generation stream.
const (
	MessageEvent   = "event"
	MessageOutcome = "outcome"
	MessageError   = "error"
)

// StreamMessage is one frame of the generation stream.
type StreamMessage struct {
	Type    string            `json:"type"`
	Event   *generate.Event   `json:"event,omitempty"`
	Outcome *generate.Outcome `json:"outcome,omitempty"`
	RunID   string            `json:"run_id,omitempty"`
	Error   string            `json:"error,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// handleGenerateStream upgrades to a websocket, reads one GenerateRequest
// and streams every loop transition followed by the outcome.
func (s *Server) handleGenerateStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", requestField(r), zap.Error(err))
		return
	}
	defer conn.Close()

	var mu sync.Mutex
	send := func(msg StreamMessage) {
		mu.Lock()
		defer mu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(msg); err != nil {
			s.logger.Debug("stream write failed", requestField(r), zap.Error(err))
		}
	}
	closeWith := func(code int, text string) {
		mu.Lock()
		defer mu.Unlock()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(writeWait))
	}

	conn.SetReadLimit(s.opts.MaxBodyBytes)
	_ = conn.SetReadDeadline(time.Now().Add(requestWait))
	var req GenerateRequest
	_, data, err := conn.ReadMessage()
	if err == nil {
		err = json.Unmarshal(data, &req)
	}
	if err != nil {
		send(StreamMessage{Type: MessageError, Error: "invalid generate request: " + err.Error()})
		closeWith(websocket.CloseUnsupportedData, "invalid request")
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	l, err := s.loop(req, func(e generate.Event) {
		event := e
		send(StreamMessage{Type: MessageEvent, Event: &event})
	})
	if err != nil {
		send(StreamMessage{Type: MessageError, Error: err.Error()})
		closeWith(websocket.CloseTryAgainLater, "unavailable")
		return
	}
	filtered, err := s.analyze(req.AnalyzeRequest)
	if err != nil {
		send(StreamMessage{Type: MessageError, Error: err.Error()})
		closeWith(websocket.CloseNormalClosure, "")
		return
	}

	outcome, err := l.Run(r.Context(), filtered)
	msg := StreamMessage{Type: MessageOutcome, Outcome: outcome}
	if err != nil {
		msg.Error = err.Error()
	}
	if outcome != nil {
		valid := outcome.State == generate.StateAccept
		msg.RunID = s.record(r.Context(), &store.Run{
			Kind:       store.KindGenerate,
			ExampleSet: req.Name,
			Threshold:  &filtered.Threshold,
			Patterns:   len(filtered.Patterns),
			Included:   len(filtered.Included),
			Valid:      &valid,
		}, outcome)
	} else {
		msg.Type = MessageError
	}
	send(msg)
	closeWith(websocket.CloseNormalClosure, "")
}
