// server/hub.go
package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"coinbot/events"
	"coinbot/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// client 一条 websocket 连接。订阅单个频道，
// channel 为空时接收全部事件
type client struct {
	hub     *Hub
	conn    *websocket.Conn
	channel string
	send    chan events.Event
}

// Hub 事件广播器，把服务层事件推送给订阅的 websocket 连接。
// 实现 events.Publisher
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]bool
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*client]bool)}
}

// Publish 把事件投递给所有匹配频道的连接，队列满时丢弃
func (h *Hub) Publish(ev events.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.channel != "" && ev.ChannelID != "" && c.channel != ev.ChannelID {
			continue
		}
		select {
		case c.send <- ev:
		default:
			logger.Log.Warnw("event dropped, slow websocket client", "channel", c.channel)
		}
	}
}

// ServeWS 把 HTTP 请求升级为 websocket 订阅
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Errorw("websocket upgrade failed", "err", err)
		return
	}
	c := &client{
		hub:     h,
		conn:    conn,
		channel: r.URL.Query().Get("channel"),
		send:    make(chan events.Event, 64),
	}
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()

	go c.writeLoop()
	go c.readLoop()
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c] {
		delete(h.clients, c)
		close(c.send)
	}
}

// readLoop 只消费控制帧，收到任何错误即断开
func (c *client) readLoop() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case ev, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
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
