package feedgate

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"PriceMesh/internal/domain/models"
	drepo "PriceMesh/internal/domain/repository"

	"github.com/gorilla/websocket"
)

// Client implements a SubmissionStream backed by a reporter gateway
// WebSocket. The gateway multiplexes authenticated reporter feeds into one
// stream; each frame carries the reporter identity resolved by the gateway.
type Client struct {
	token          string
	websocketURL   string
	assets         []string
	reconnectDelay time.Duration
	pingInterval   time.Duration

	conn      *websocket.Conn
	connected bool
}

// New creates a new feedgate SubmissionStream.
func New(token, websocketURL string, assets []string, reconnectDelay, pingInterval time.Duration) drepo.SubmissionStream {
	return &Client{
		token:          token,
		websocketURL:   websocketURL,
		assets:         assets,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
	}
}

// Connect establishes the WebSocket connection.
func (c *Client) Connect(ctx context.Context) error {
	u := fmt.Sprintf("%s?token=%s", c.websocketURL, c.token)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("feedgate connect: %w", err)
	}
	c.conn = conn
	c.connected = true
	log.Printf("feedgate: connected")
	return nil
}

// Subscribe subscribes to the supported assets.
func (c *Client) Subscribe(ctx context.Context) error {
	if c.conn == nil || !c.connected {
		return fmt.Errorf("feedgate not connected")
	}
	for _, a := range c.assets {
		msg := map[string]string{"type": "subscribe", "asset": a}
		if err := c.conn.WriteJSON(msg); err != nil {
			return fmt.Errorf("subscribe %s: %w", a, err)
		}
		log.Printf("feedgate: subscribed %s", a)
	}
	return nil
}

type gateFrame struct {
	Type string           `json:"type"`
	Data []gateSubmission `json:"data"`
}

type gateSubmission struct {
	Reporter string `json:"reporter"`
	Asset    string `json:"asset"`
	Price    uint64 `json:"price"`
	Volume   uint64 `json:"volume"`
	T        int64  `json:"t"` // ms
	Proof    []byte `json:"proof,omitempty"`
}

// Read streams submissions and errors.
func (c *Client) Read(ctx context.Context) (<-chan *models.Submission, <-chan error) {
	subs := make(chan *models.Submission, 1024)
	errs := make(chan error, 1)

	// ping loop
	go func() {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if c.conn != nil {
					_ = c.conn.WriteMessage(websocket.PingMessage, nil)
				}
			}
		}
	}()

	// read loop
	go func() {
		defer close(subs)
		defer close(errs)
		for {
			select {
			case <-ctx.Done():
				return
			default:
				if c.conn == nil {
					errs <- fmt.Errorf("feedgate conn nil")
					return
				}
				_, b, err := c.conn.ReadMessage()
				if err != nil {
					errs <- fmt.Errorf("feedgate read: %w", err)
					return
				}
				var m gateFrame
				if err := json.Unmarshal(b, &m); err != nil {
					// ignore non-submission frames
					continue
				}
				if m.Type != "submission" {
					continue
				}
				for _, d := range m.Data {
					sub := &models.Submission{
						Reporter:  d.Reporter,
						Asset:     d.Asset,
						Price:     d.Price,
						Volume:    d.Volume,
						Timestamp: d.T / 1000,
						Proof:     d.Proof,
					}
					select {
					case subs <- sub:
					default:
						// drop on backpressure
					}
				}
			}
		}
	}()

	return subs, errs
}

// Reconnect closes and reconnects.
func (c *Client) Reconnect(ctx context.Context) error {
	_ = c.Close()
	time.Sleep(c.reconnectDelay)
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.Subscribe(ctx)
}

// Close closes the WS connection.
func (c *Client) Close() error {
	c.connected = false
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// IsConnected indicates status.
func (c *Client) IsConnected() bool { return c.connected }
