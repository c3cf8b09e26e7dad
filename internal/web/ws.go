package web

import (
	"bytes"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/canonical/docs-viewer/internal/finder"
)

const (
	writeWait       = 10 * time.Second
	pongWait        = 60 * time.Second
	pingPeriod      = pongWait * 9 / 10
	maxMessageBytes = 4096
)

// clientMessage is sent by the browser. Type is one of input, search,
// next, prev, seek or clear.
type clientMessage struct {
	Type  string `json:"type"`
	Query string `json:"query,omitempty"`
	Pos   int    `json:"pos,omitempty"`
}

type serverMessage struct {
	Type    string         `json:"type"`
	Result  *finder.Result `json:"result,omitempty"`
	Content string         `json:"content,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// liveSession is one WebSocket connection with its own copy of the page.
type liveSession struct {
	id     string
	conn   *websocket.Conn
	logger *slog.Logger
	finder *finder.Finder

	writeMu sync.Mutex
}

func (s *Server) handleLiveSearch(w http.ResponseWriter, r *http.Request) {
	code := s.store.Resolve(r.URL.Query().Get("lang"))
	page, err := s.translated(r.Context(), code)
	if err != nil {
		s.logger.Error("render error", "language", code, "error", err)
		writeError(w, http.StatusInternalServerError, "page unavailable")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already replied.
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	sess := &liveSession{
		id:   uuid.NewString(),
		conn: conn,
	}
	sess.logger = s.logger.With("conn", sess.id, "language", code)
	sess.finder, _ = s.newFinder(page, code, finder.Options{
		Debounce: s.cfg.Debounce(),
		Logger:   sess.logger,
		OnResult: sess.sendResult,
	})

	sess.logger.Info("live search connected")
	sess.run()
	sess.logger.Info("live search disconnected")
}

func (ls *liveSession) run() {
	defer func() {
		ls.finder.Close()
		_ = ls.conn.Close()
	}()

	done := make(chan struct{})
	defer close(done)
	go ls.ping(done)

	ls.conn.SetReadLimit(maxMessageBytes)
	_ = ls.conn.SetReadDeadline(time.Now().Add(pongWait))
	ls.conn.SetPongHandler(func(string) error {
		return ls.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg clientMessage
		if err := ls.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				ls.logger.Warn("live search read failed", "error", err)
			}
			return
		}
		ls.handle(msg)
	}
}

func (ls *liveSession) handle(msg clientMessage) {
	switch msg.Type {
	case "input":
		ls.finder.Input(msg.Query)
	case "search":
		ls.sendResult(ls.finder.Search(msg.Query))
	case "next":
		ls.sendResult(ls.finder.Next())
	case "prev":
		ls.sendResult(ls.finder.Prev())
	case "seek":
		ls.sendResult(ls.finder.Seek(msg.Pos))
	case "clear":
		ls.sendResult(ls.finder.Clear())
	default:
		ls.send(serverMessage{Type: "error", Error: "unknown message type " + msg.Type})
	}
}

// sendResult pushes a result together with the highlighted content. It
// also runs on the debounce timer goroutine.
func (ls *liveSession) sendResult(res finder.Result) {
	var buf bytes.Buffer
	if err := ls.finder.RenderContent(&buf); err != nil {
		ls.logger.Error("render content failed", "error", err)
		return
	}
	ls.send(serverMessage{Type: "result", Result: &res, Content: buf.String()})
}

func (ls *liveSession) send(msg serverMessage) {
	ls.writeMu.Lock()
	defer ls.writeMu.Unlock()
	_ = ls.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := ls.conn.WriteJSON(msg); err != nil {
		ls.logger.Debug("live search write failed", "error", err)
	}
}

func (ls *liveSession) ping(done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			ls.writeMu.Lock()
			err := ls.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			ls.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
