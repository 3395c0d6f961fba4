package server

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-chatroom-realtime/internal/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendQueueSize  = 256
	inboxSize      = 64
)

// Client is the websocket transport for one Connection. It implements Sink.
type Client struct {
	conn       *websocket.Conn
	chatServer *ChatServer
	log        *log.Logger
	connection *Connection
	send       chan *ServerMessage
	inbox      chan []byte
	stop       chan struct{}
	stopOnce   sync.Once
}

func NewClient(conn *websocket.Conn, cs *ChatServer, l *log.Logger) *Client {
	return &Client{
		conn:       conn,
		chatServer: cs,
		log:        l,
		send:       make(chan *ServerMessage, sendQueueSize),
		inbox:      make(chan []byte, inboxSize),
		stop:       make(chan struct{}),
	}
}

// Start registers the client with the chat server and starts its read and
// write pumps and the goroutine that handles inbound events.
func (c *Client) Start(ctx context.Context, user types.User) error {
	connection, err := c.chatServer.Connect(ctx, user, c)
	if err != nil {
		return err
	}
	c.connection = connection

	go c.Write()
	go c.Read()
	go c.process()

	return nil
}

// Deliver queues msg without blocking. Messages are dropped once the queue
// is full or the client has stopped.
func (c *Client) Deliver(msg *ServerMessage) bool {
	select {
	case <-c.stop:
		return false
	default:
	}

	return c.queueMessage(msg)
}

func (c *Client) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.chatServer.Disconnect(c.connection)
	}()

	for {
		select {
		case msg := <-c.send:
			bytes, err := serializeMessage(msg)
			if err != nil {
				c.log.Println("failed to serialize message:", err)
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			c.sendMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.chatServer.Disconnect(c.connection)
		c.Close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			return
		}

		select {
		case c.inbox <- raw:
		case <-c.stop:
			return
		}
	}
}

// process handles inbound events in arrival order. A slow event does not
// hold up the read loop, so a closed socket is noticed while it runs.
func (c *Client) process() {
	for {
		select {
		case raw := <-c.inbox:
			c.chatServer.HandleMessage(c.connection, raw)
		case <-c.stop:
			return
		}
	}
}

func (c *Client) queueMessage(msg *ServerMessage) bool {
	select {
	case c.send <- msg:
	default:
		c.log.Println("failed to send message to client, channel is full")
		return false
	}

	return true
}

func serializeMessage(msg *ServerMessage) ([]byte, error) {
	return json.Marshal(msg)
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}
