package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"agentchat.io/agent-chat/internal/core"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10
	incomingBuffer = 16
)

func newUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[origin] = true
	}
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if len(allowed) == 0 || origin == "" || allowed["*"] {
				return true
			}
			return allowed[origin]
		},
	}
}

type rejectionResponse struct {
	Code   int    `json:"code"`
	Reason string `json:"reason"`
}

func rejectionStatus(code int) int {
	switch code {
	case core.CodeMissingToken, core.CodeInvalidToken:
		return http.StatusUnauthorized
	case core.CodeAgentNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// ChatWebSocketHandler authenticates and binds the session before the
// upgrade, so a rejected client never gets a socket.
func (h *APIHandler) ChatWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = r.Header.Get("Authorization")
	}

	session, err := h.chat.Open(r.Context(), token, chi.URLParam(r, "agentID"))
	if err != nil {
		var rejection *core.Rejection
		if !errors.As(err, &rejection) {
			rejection = &core.Rejection{Code: core.CodeInternal, Reason: "Internal error"}
		}
		writeJSON(w, rejectionStatus(rejection.Code), rejectionResponse{Code: rejection.Code, Reason: rejection.Reason})
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	t := newWSTransport(conn, h.log.With().Str("user_id", session.Identity().UserID).Logger())
	defer t.shutdown()

	if err := session.Serve(r.Context(), t); err != nil {
		h.log.Error().Err(err).Str("agent_id", session.Agent().ID).Msg("chat session ended with error")
	}
}

// wsTransport adapts a gorilla connection to core.Transport. A background
// reader feeds incoming so that a disconnect is noticed while a reply is
// still streaming.
type wsTransport struct {
	conn     *websocket.Conn
	incoming chan string
	done     chan struct{}

	writeMu   sync.Mutex
	doneOnce  sync.Once
	closeOnce sync.Once
	wg        sync.WaitGroup
	log       zerolog.Logger
}

func newWSTransport(conn *websocket.Conn, log zerolog.Logger) *wsTransport {
	t := &wsTransport{
		conn:     conn,
		incoming: make(chan string, incomingBuffer),
		done:     make(chan struct{}),
		log:      log,
	}
	t.wg.Add(2)
	go t.readLoop()
	go t.pingLoop()
	return t
}

func (t *wsTransport) markDone() {
	t.doneOnce.Do(func() { close(t.done) })
}

func (t *wsTransport) readLoop() {
	defer t.wg.Done()
	defer t.markDone()

	t.conn.SetReadLimit(maxMessageSize)
	_ = t.conn.SetReadDeadline(time.Now().Add(pongWait))
	t.conn.SetPongHandler(func(string) error {
		return t.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				t.log.Debug().Err(err).Msg("websocket read failed")
			}
			return
		}
		select {
		case t.incoming <- string(data):
		case <-t.done:
			return
		}
	}
}

func (t *wsTransport) pingLoop() {
	defer t.wg.Done()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				t.markDone()
				return
			}
		case <-t.done:
			return
		}
	}
}

func (t *wsTransport) Receive(ctx context.Context) (string, error) {
	select {
	case msg := <-t.incoming:
		return msg, nil
	case <-t.done:
		return "", core.ErrTransportClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (t *wsTransport) Send(ctx context.Context, frame core.Frame) error {
	select {
	case <-t.done:
		return core.ErrTransportClosed
	default:
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = t.conn.SetWriteDeadline(deadline)
	if err := t.conn.WriteJSON(frame); err != nil {
		t.markDone()
		return fmt.Errorf("%w: %v", core.ErrTransportClosed, err)
	}
	return nil
}

// Close sends a close frame with code and drops the connection. Only the
// first call has an effect.
func (t *wsTransport) Close(code int, reason string) error {
	var err error
	t.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(code, reason)
		err = t.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			err = nil
		}
		t.markDone()
		if cerr := t.conn.Close(); err == nil {
			err = cerr
		}
	})
	return err
}

func (t *wsTransport) Done() <-chan struct{} {
	return t.done
}

// shutdown closes normally unless a close code was already sent, then waits
// for the background goroutines.
func (t *wsTransport) shutdown() {
	_ = t.Close(websocket.CloseNormalClosure, "")
	t.wg.Wait()
}
