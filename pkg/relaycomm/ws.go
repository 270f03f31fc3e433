// Package relaycomm is the telemetry boundary. It keeps a websocket to the
// relay open, turns inbound messages into controller requests and pushes
// every mode change out as a "mode" message.
package relaycomm

import (
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"dxwifi-firmware/pkg/config"
	"dxwifi-firmware/pkg/mode"

	"github.com/gorilla/websocket"
)

const (
	reconnectDelay = 5 * time.Second
	pingInterval   = 30 * time.Second
	writeWait      = 10 * time.Second
)

type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type RelayComm struct {
	mu       sync.Mutex // guards conn and serializes writes; taken after modeMu
	conn     *websocket.Conn
	running  bool
	stopChan chan struct{}
	handlers map[string]func(json.RawMessage)

	modeMu   sync.Mutex
	lastMode mode.Mode
	haveMode bool

	reconnectDelay time.Duration
	pingInterval   time.Duration
}

var instance *RelayComm
var once sync.Once

func Init() {
	once.Do(func() {
		instance = New()
	})
}

func Get() *RelayComm {
	if instance == nil {
		panic("relaycomm not initialized - call Init() first")
	}
	return instance
}

func New() *RelayComm {
	return &RelayComm{
		handlers:       make(map[string]func(json.RawMessage)),
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
	}
}

// On registers a handler for a message type. Register before Start.
func (r *RelayComm) On(messageType string, handler func(json.RawMessage)) {
	r.handlers[messageType] = handler
}

// Start connects to the relay configured under relayUrl and keeps the
// connection alive until Stop
func (r *RelayComm) Start(cfg *config.Config) error {
	relayURL := cfg.GetString(config.KeyRelayURL, "")
	if relayURL == "" {
		return fmt.Errorf("relay URL not configured")
	}
	id := cfg.GetString(config.KeyID, "")
	if id == "" {
		return fmt.Errorf("payload ID not found")
	}
	return r.start(relayURL, id)
}

func (r *RelayComm) start(relayURL, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return fmt.Errorf("already running")
	}
	r.running = true
	r.stopChan = make(chan struct{})

	go r.connectLoop(relayURL, id, r.stopChan)
	return nil
}

// Stop closes the connection and ends the reconnect loop
func (r *RelayComm) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return
	}
	r.running = false
	close(r.stopChan)
	if r.conn != nil {
		r.conn.Close()
		r.conn = nil
	}
}

// Connected reports whether a relay connection is open
func (r *RelayComm) Connected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conn != nil
}

// Send writes one message to the relay
func (r *RelayComm) Send(messageType string, payload any) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn == nil {
		return fmt.Errorf("not connected")
	}

	r.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return r.conn.WriteJSON(Message{Type: messageType, Payload: payloadJSON})
}

// PublishMode forwards a settled mode when it differs from the last one
// published. Called from the controller loop; never blocks on the network
// longer than writeWait.
func (r *RelayComm) PublishMode(m mode.Mode) {
	r.modeMu.Lock()
	defer r.modeMu.Unlock()

	if r.haveMode && r.lastMode == m {
		return
	}
	r.lastMode = m
	r.haveMode = true

	r.sendMode(m)
}

func (r *RelayComm) sendMode(m mode.Mode) {
	if !r.Connected() {
		return
	}
	if err := r.Send("mode", modePayload(m)); err != nil {
		log.Printf("Failed to publish mode: %v", err)
	}
}

func modePayload(m mode.Mode) map[string]any {
	return map[string]any{
		"mode": int(m),
		"name": m.String(),
	}
}

func (r *RelayComm) connectLoop(relayURL, id string, stop chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}

		conn, err := r.connect(relayURL, id, stop)
		if err != nil {
			log.Printf("Relay connection failed: %v", err)
		} else {
			r.resendMode()
			r.handleMessages(conn)
			r.dropConn(conn)
		}

		select {
		case <-stop:
			return
		case <-time.After(r.reconnectDelay):
		}
	}
}

func (r *RelayComm) connect(relayURL, id string, stop chan struct{}) (*websocket.Conn, error) {
	u, err := url.Parse(relayURL)
	if err != nil {
		return nil, fmt.Errorf("invalid relay URL: %w", err)
	}
	q := u.Query()
	q.Set("payloadId", id)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		conn.Close()
		return nil, fmt.Errorf("stopped")
	}
	r.conn = conn
	r.mu.Unlock()

	log.Println("Connected to relay")
	go r.pingLoop(conn, stop)
	return conn, nil
}

// resendMode tells a freshly connected relay where the payload is. modeMu
// is held across the send so a concurrent PublishMode cannot be overtaken
// by the older value.
func (r *RelayComm) resendMode() {
	r.modeMu.Lock()
	defer r.modeMu.Unlock()

	if r.haveMode {
		r.sendMode(r.lastMode)
	}
}

func (r *RelayComm) dropConn(conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == conn {
		r.conn.Close()
		r.conn = nil
	}
	log.Println("Relay connection closed")
}

func (r *RelayComm) handleMessages(conn *websocket.Conn) {
	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}

		if handler, ok := r.handlers[msg.Type]; ok {
			go handler(msg.Payload)
		} else {
			log.Printf("Unknown relay message: %s", msg.Type)
		}
	}
}

func (r *RelayComm) pingLoop(conn *websocket.Conn, stop chan struct{}) {
	ticker := time.NewTicker(r.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
