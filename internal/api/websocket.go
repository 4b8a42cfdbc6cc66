package api

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AaronLay10/ARTutor/internal/events"
)

const (
	backlogSize = 50
	writeWait   = 10 * time.Second
	pongWait    = 60 * time.Second
	pingPeriod  = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Presentation clients are served from other origins
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// eventStream pushes events to one WebSocket client, optionally scoped to
// a single session.
type eventStream struct {
	conn    *websocket.Conn
	session string
	sub     events.Subscriber
}

// wsEventsHandler streams events to presentation and dashboard clients.
// ?session=<id> limits the stream to one session.
func wsEventsHandler(w http.ResponseWriter, r *http.Request) {
	session := r.URL.Query().Get("session")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}

	s := &eventStream{conn: conn, session: session, sub: events.SubscribeSession(session)}
	s.run()
}

// backlog is what a new client sees before live events.
func (s *eventStream) backlog() []events.Event {
	if s.session == "" {
		return events.RecentEvents(backlogSize)
	}
	evs := events.SessionEvents(s.session)
	if len(evs) > backlogSize {
		evs = evs[len(evs)-backlogSize:]
	}
	return evs
}

func (s *eventStream) run() {
	defer s.conn.Close()
	defer events.Unsubscribe(s.sub)

	for _, e := range s.backlog() {
		if err := s.write(e); err != nil {
			log.Printf("ws write backlog failed: %v", err)
			return
		}
	}

	closed := s.readLoop()
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case e, ok := <-s.sub:
			if !ok {
				// shutdown
				return
			}
			if err := s.write(e); err != nil {
				log.Printf("ws write event failed: %v", err)
				return
			}
		case <-ping.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop consumes pongs and close frames. The returned channel closes
// when the client goes away.
func (s *eventStream) readLoop() <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		s.conn.SetPongHandler(func(string) error {
			return s.conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := s.conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	return done
}

func (s *eventStream) write(e events.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}
