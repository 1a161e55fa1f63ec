package websocket

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/proyeccion-moden/modengo/internal/models"
	"github.com/proyeccion-moden/modengo/internal/updates"
	"gorm.io/gorm"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Devices only send pongs and
	// the occasional close frame.
	maxMessageSize = 4 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Display devices connect from the workshop LAN, not a browser origin
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Client is one paired device's live update connection
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan []byte

	// Closed by the read pump when the device goes away; stops the poll loop
	done chan struct{}

	// DeskID of the authenticated desk
	DeskID uint

	db           *gorm.DB
	pollInterval time.Duration
}

// readPump drains the connection and tears the client down on disconnect.
// The device never initiates application messages; this loop exists for
// close detection and pong handling.
func (c *Client) readPump() {
	defer func() {
		close(c.done)
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WS error (desk %d): %v", c.DeskID, err)
			}
			break
		}
	}
}

// writePump pumps queued messages to the websocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// pollPump re-reads the desk on a fixed interval and emits a fresh snapshot
// whenever its updated timestamp advanced. The immediate first send is the
// connect-time snapshot. Ends when the connection goes away; the server
// never terminates the loop on its own.
func (c *Client) pollPump() {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	var lastUpdated time.Time

	snap, err := updates.Snapshot(c.db, c.DeskID)
	if err != nil {
		log.Printf("WS snapshot error (desk %d): %v", c.DeskID, err)
	} else {
		lastUpdated = snap.UpdatedAt
		c.sendJSON(snap)
	}

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			snap, err := updates.Snapshot(c.db, c.DeskID)
			if err != nil {
				log.Printf("WS snapshot error (desk %d): %v", c.DeskID, err)
				continue
			}
			if snap.UpdatedAt.After(lastUpdated) {
				lastUpdated = snap.UpdatedAt
				c.sendJSON(snap)
			}
		}
	}
}

// sendJSON queues a message without ever blocking the poll loop; a full
// buffer means the connection is dead and the read pump will notice.
func (c *Client) sendJSON(v interface{}) {
	msg, err := json.Marshal(v)
	if err != nil {
		log.Printf("WS marshal error: %v", err)
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

// ServeDesk upgrades an already-authenticated device request and starts the
// per-connection pumps. One connection per desk: a reconnect displaces the
// previous client via the hub.
func ServeDesk(hub *Hub, db *gorm.DB, pollInterval time.Duration, desk *models.Desk, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}

	client := &Client{
		hub:          hub,
		conn:         conn,
		send:         make(chan []byte, 16),
		done:         make(chan struct{}),
		DeskID:       desk.ID,
		db:           db,
		pollInterval: pollInterval,
	}
	client.hub.register <- client

	go client.writePump()
	go client.pollPump()
	go client.readPump()
}
