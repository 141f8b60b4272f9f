package websocket

import (
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 512
	sendBuffer     = 64
)

const MessageTypeRedemption = "redemption"

// RedemptionEvent is published after an approved claim draws on a CSR pool
type RedemptionEvent struct {
	ClaimID         uuid.UUID  `json:"claimId"`
	UserID          uuid.UUID  `json:"userId"`
	CorporateID     uuid.UUID  `json:"corporateId"`
	FundingID       *uuid.UUID `json:"fundingId,omitempty"`
	ProductName     string     `json:"productName"`
	Category        string     `json:"category"`
	CreditsRedeemed float64    `json:"creditsRedeemed"`
	At              time.Time  `json:"at"`
}

// Message is the envelope written to dashboard sockets
type Message struct {
	Type      string          `json:"type"`
	Data      RedemptionEvent `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// Connection is one subscribed corporate dashboard
type Connection struct {
	ID          string
	CorporateID uuid.UUID
	Conn        *websocket.Conn
	Send        chan Message
	ConnectedAt time.Time
}

// Hub fans redemption events out to the dashboards of the corporate whose
// pool was drawn. All connection bookkeeping happens on the run goroutine.
type Hub struct {
	connections map[*Connection]bool
	broadcast   chan Message
	register    chan *Connection
	unregister  chan *Connection
	stop        chan struct{}
	stopOnce    sync.Once
	count       atomic.Int64

	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	h := &Hub{
		connections: make(map[*Connection]bool),
		broadcast:   make(chan Message, 256),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		stop:        make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger: logger,
	}
	go h.run()
	return h
}

// ServeWS upgrades the request and subscribes it to the corporate's events
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, corporateID uuid.UUID) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	c := &Connection{
		ID:          uuid.New().String(),
		CorporateID: corporateID,
		Conn:        conn,
		Send:        make(chan Message, sendBuffer),
		ConnectedAt: time.Now(),
	}

	select {
	case h.register <- c:
	case <-h.stop:
		conn.Close()
		return fmt.Errorf("hub closed")
	}

	go h.readPump(c)
	go h.writePump(c)
	return nil
}

// PublishRedemption queues an event without blocking the caller
func (h *Hub) PublishRedemption(event RedemptionEvent) {
	msg := Message{Type: MessageTypeRedemption, Data: event, Timestamp: time.Now()}
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("Redemption feed full, dropping event",
			zap.String("claim_id", event.ClaimID.String()))
	}
}

func (h *Hub) ConnectionCount() int {
	return int(h.count.Load())
}

// Close disconnects every dashboard and stops the hub
func (h *Hub) Close() {
	h.stopOnce.Do(func() { close(h.stop) })
}

func (h *Hub) run() {
	for {
		select {
		case c := <-h.register:
			h.connections[c] = true
			h.count.Add(1)
			h.logger.Debug("Dashboard connected",
				zap.String("connection_id", c.ID),
				zap.String("corporate_id", c.CorporateID.String()))

		case c := <-h.unregister:
			h.remove(c)

		case msg := <-h.broadcast:
			for c := range h.connections {
				if c.CorporateID != msg.Data.CorporateID {
					continue
				}
				select {
				case c.Send <- msg:
				default:
					// slow client
					h.remove(c)
				}
			}

		case <-h.stop:
			for c := range h.connections {
				h.remove(c)
			}
			return
		}
	}
}

func (h *Hub) remove(c *Connection) {
	if _, ok := h.connections[c]; !ok {
		return
	}
	delete(h.connections, c)
	close(c.Send)
	h.count.Add(-1)
	h.logger.Debug("Dashboard disconnected",
		zap.String("connection_id", c.ID),
		zap.String("corporate_id", c.CorporateID.String()))
}

// readPump only services control frames; dashboards never send data
func (h *Hub) readPump(c *Connection) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.stop:
		}
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug("Dashboard read failed", zap.Error(err))
			}
			return
		}
	}
}

func (h *Hub) writePump(c *Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteJSON(msg); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
