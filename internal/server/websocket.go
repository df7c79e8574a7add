package server

import (
	"encoding/base64"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/svenviktorjonsson/tesseracs-chat-sub000/internal/engine"
	"github.com/svenviktorjonsson/tesseracs-chat-sub000/internal/runtime"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // deployed behind a trusted reverse proxy
	},
}

// wsIncoming is a message from the client.
type wsIncoming struct {
	Type     string            `json:"type"` // run | input | stop
	JobID    string            `json:"job_id"`
	Language string            `json:"language,omitempty"`
	Files    map[string]string `json:"files,omitempty"`
	Command  string            `json:"command,omitempty"`
	Content  string            `json:"content,omitempty"`
}

// wsOutgoing is a message to the client.
type wsOutgoing struct {
	Type     string `json:"type"` // output | awaiting_input | finished | error
	JobID    string `json:"job_id,omitempty"`
	Stream   string `json:"stream,omitempty"`
	Content  string `json:"content,omitempty"`
	ExitCode *int   `json:"exit_code,omitempty"`
	Error    string `json:"error,omitempty"`
	Artifact string `json:"artifact,omitempty"` // base64
}

// wsClient serializes writes to one WebSocket connection; engine events
// arrive from many job goroutines.
type wsClient struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
	log  *zap.Logger
}

func (c *wsClient) send(msg wsOutgoing) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.WriteJSON(msg); err != nil {
		c.log.Debug("websocket write failed",
			zap.String("client_id", c.id), zap.Error(err))
	}
}

// jobSink adapts engine events for one job onto the client connection.
type jobSink struct {
	client *wsClient
	jobID  string
}

func (s *jobSink) Output(stream runtime.Stream, text string) {
	s.client.send(wsOutgoing{
		Type:    "output",
		JobID:   s.jobID,
		Stream:  stream.String(),
		Content: text,
	})
}

func (s *jobSink) AwaitingInput() {
	s.client.send(wsOutgoing{Type: "awaiting_input", JobID: s.jobID})
}

func (s *jobSink) Finished(exitCode int, errMessage string, artifact []byte) {
	msg := wsOutgoing{
		Type:     "finished",
		JobID:    s.jobID,
		ExitCode: &exitCode,
		Error:    errMessage,
	}
	if len(artifact) > 0 {
		msg.Artifact = base64.StdEncoding.EncodeToString(artifact)
	}
	s.client.send(msg)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	client := &wsClient{
		id:   uuid.NewString(),
		conn: conn,
		log:  s.log,
	}
	// Whatever happens to the connection, the client's sandboxes go with it.
	defer s.eng.CleanupClient(client.id)

	s.log.Info("client connected", zap.String("client_id", client.id))

	for {
		var msg wsIncoming
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return
			}
			s.log.Debug("websocket read failed",
				zap.String("client_id", client.id), zap.Error(err))
			return
		}
		s.dispatch(r, client, msg)
	}
}

func (s *Server) dispatch(r *http.Request, client *wsClient, msg wsIncoming) {
	switch msg.Type {
	case "run":
		job := engine.Job{
			ID:           msg.JobID,
			ClientID:     client.id,
			Language:     msg.Language,
			Files:        msg.Files,
			EntryCommand: msg.Command,
		}
		sink := &jobSink{client: client, jobID: msg.JobID}
		if err := s.eng.Submit(r.Context(), job, sink); err != nil {
			// Fail fast so the client UI never waits on a job that will
			// not run: engine unavailable, duplicate id, missing id.
			code := engine.ExitFailure
			client.send(wsOutgoing{
				Type:     "finished",
				JobID:    msg.JobID,
				ExitCode: &code,
				Error:    err.Error(),
			})
		}
	case "input":
		s.eng.SendInput(msg.JobID, msg.Content)
	case "stop":
		s.eng.Stop(msg.JobID)
	default:
		client.send(wsOutgoing{Type: "error", Content: "invalid message type"})
	}
}
