package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DefaultHeartbeatInterval    = 30 * time.Second
	DefaultReconnectDelay       = 3 * time.Second
	DefaultMaxReconnectAttempts = 5
)

// State is the connection lifecycle state of a Manager.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// TokenSource supplies the bearer credential attached to the connection URL.
// An empty token means no credential; the query parameter is omitted entirely.
type TokenSource interface {
	Token() string
}

// Notifier receives normalized server notifications, independent of the raw
// OnNotification callback. Fire-and-forget.
type Notifier interface {
	Notify(level, title, message string)
}

// Metrics is the instrumentation surface the manager reports to.
// Defined here so the metrics package is not a hard dependency.
type Metrics interface {
	ConnectedSet(connected bool)
	SubscriptionsSet(n int)
	ReconnectsInc()
	MessagesInc(msgType string)
	HeartbeatsInc()
	ParseErrorsInc()
	ErrorsInc()
}

// Config configures a Manager. Zero values select the documented defaults;
// in particular the zero value of DisableAutoConnect means a connection
// attempt starts as soon as New returns.
type Config struct {
	URL                  string
	DisableAutoConnect   bool
	HeartbeatInterval    time.Duration
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int

	Dialer   Dialer
	Tokens   TokenSource
	Notifier Notifier
	Metrics  Metrics

	OnDecision       func(json.RawMessage)
	OnPositionUpdate func(json.RawMessage)
	OnAccountUpdate  func(json.RawMessage)
	OnStrategyStatus func(json.RawMessage)
	OnNotification   func(json.RawMessage)
	OnError          func(error)

	// OnReconnectExhausted fires once automatic reconnection gives up.
	// Callers that only watch IsConnected can leave it nil.
	OnReconnectExhausted func()
}

// Manager owns one realtime connection: its lifecycle state, channel
// subscriptions, heartbeat, and reconnection policy. All shared state is
// guarded by a single mutex; callbacks are always invoked outside it.
type Manager struct {
	cfg Config

	mu             sync.Mutex
	state          State
	conn           Conn
	gen            int // connection generation; events from older generations are dropped
	subs           []string
	subIdx         map[string]struct{}
	attempts       int
	userClosed     bool // Disconnect called: abnormal-close handling must not reconnect
	closed         bool // Close called: suppress all further work and callbacks
	reconnectTimer *time.Timer
	hbStop         chan struct{}
}

// New creates a Manager and, unless DisableAutoConnect is set, starts the
// first connection attempt immediately. Connection failures are reported via
// OnError, not returned here.
func New(cfg Config) *Manager {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if cfg.Dialer == nil {
		cfg.Dialer = NewWebSocketDialer()
	}

	m := &Manager{
		cfg:    cfg,
		subIdx: make(map[string]struct{}),
	}

	if !cfg.DisableAutoConnect {
		m.Connect()
	}
	return m
}

// Connect starts a connection attempt. It is a no-op while already
// connecting or connected, and returns immediately; the Connected transition
// is observed asynchronously through callbacks and IsConnected.
func (m *Manager) Connect() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	if m.state == StateConnecting || m.state == StateConnected {
		m.mu.Unlock()
		log.Debug().Str("state", m.state.String()).Msg("connect ignored, connection already in progress")
		return
	}

	// Force-close any stale handle before starting over.
	stale := m.conn
	m.conn = nil
	m.cancelReconnectLocked()
	m.userClosed = false
	m.state = StateConnecting
	m.gen++
	gen := m.gen
	m.mu.Unlock()

	if stale != nil {
		stale.Close()
	}

	wsURL, err := m.buildURL()
	if err != nil {
		// Endpoint is unusable; retrying cannot help.
		m.mu.Lock()
		if m.gen == gen {
			m.state = StateDisconnected
		}
		m.mu.Unlock()
		m.reportError(fmt.Errorf("invalid realtime endpoint: %w", err))
		return
	}

	go m.dial(gen, wsURL)
}

// buildURL appends the credential as a token query parameter when one is
// available. No credential, no parameter.
func (m *Manager) buildURL() (string, error) {
	if m.cfg.URL == "" {
		return "", errors.New("websocket URL is empty")
	}
	u, err := url.Parse(m.cfg.URL)
	if err != nil {
		return "", err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if m.cfg.Tokens != nil {
		if tok := m.cfg.Tokens.Token(); tok != "" {
			q := u.Query()
			q.Set("token", tok)
			u.RawQuery = q.Encode()
		}
	}
	return u.String(), nil
}

func (m *Manager) dial(gen int, wsURL string) {
	conn, err := m.cfg.Dialer.Dial(wsURL)

	m.mu.Lock()
	if m.closed || m.gen != gen || m.userClosed {
		m.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}

	if err != nil {
		m.state = StateDisconnected
		m.mu.Unlock()
		m.reportError(fmt.Errorf("websocket connection error: %w", err))
		m.scheduleReconnect(gen)
		return
	}

	m.conn = conn
	m.state = StateConnected
	m.attempts = 0

	// Re-announce every subscribed channel before anything else can be sent
	// on this connection. Iteration order is insertion order.
	for _, ch := range m.subs {
		m.writeLocked(directive{Type: "subscribe", Channel: ch})
	}
	resubscribed := len(m.subs)

	stop := make(chan struct{})
	m.hbStop = stop
	m.mu.Unlock()

	m.metricConnected(true)
	log.Info().Str("url", m.cfg.URL).Int("resubscribed", resubscribed).Msg("websocket connected")

	go m.heartbeat(gen, stop)
	go m.readLoop(gen, conn)
}

// Disconnect is the caller's explicit opt-out: it closes the connection,
// cancels the heartbeat and any pending reconnect, and suppresses automatic
// reconnection until the next Connect call.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.userClosed = true
	m.cancelReconnectLocked()
	m.stopHeartbeatLocked()

	conn := m.conn
	m.conn = nil
	if conn != nil {
		m.state = StateClosing
	} else {
		m.state = StateDisconnected
	}
	gen := m.gen
	m.mu.Unlock()

	if conn != nil {
		conn.Close()
		m.mu.Lock()
		if m.gen == gen && m.state == StateClosing {
			m.state = StateDisconnected
		}
		m.mu.Unlock()
	}

	m.metricConnected(false)
	log.Info().Msg("websocket disconnected by caller")
}

// Close tears the manager down: it cancels all timers, closes any live
// connection, and detaches the transport so no callback fires afterwards,
// even if a late event arrives from an already-closing socket.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.userClosed = true
	m.cancelReconnectLocked()
	m.stopHeartbeatLocked()
	conn := m.conn
	m.conn = nil
	m.state = StateDisconnected
	m.gen++ // orphan any in-flight transport events
	m.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	m.metricConnected(false)
	return nil
}

// Subscribe adds a channel to the subscription set regardless of connection
// state; the subscribe directive goes out now if connected, or on the next
// successful connection otherwise.
func (m *Manager) Subscribe(channel string) {
	m.mu.Lock()
	if _, ok := m.subIdx[channel]; !ok {
		m.subIdx[channel] = struct{}{}
		m.subs = append(m.subs, channel)
	}
	if m.state == StateConnected {
		m.writeLocked(directive{Type: "subscribe", Channel: channel})
	}
	n := len(m.subs)
	m.mu.Unlock()

	m.metricSubscriptions(n)
	log.Debug().Str("channel", channel).Msg("channel subscribed")
}

// Unsubscribe removes a channel from the subscription set. There is nothing
// to undo on the wire unless currently connected.
func (m *Manager) Unsubscribe(channel string) {
	m.mu.Lock()
	if _, ok := m.subIdx[channel]; ok {
		delete(m.subIdx, channel)
		for i, ch := range m.subs {
			if ch == channel {
				m.subs = append(m.subs[:i], m.subs[i+1:]...)
				break
			}
		}
	}
	if m.state == StateConnected {
		m.writeLocked(directive{Type: "unsubscribe", Channel: channel})
	}
	n := len(m.subs)
	m.mu.Unlock()

	m.metricSubscriptions(n)
	log.Debug().Str("channel", channel).Msg("channel unsubscribed")
}

// Send serializes and transmits an arbitrary payload if connected.
// Anywhere else in the lifecycle it is a silent no-op: nothing is queued.
func (m *Manager) Send(payload any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateConnected {
		return
	}
	m.writeLocked(payload)
}

// IsConnected reports whether the connection is currently established.
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateConnected
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SubscribedChannels returns the channels currently in the subscription set,
// in the order they were first subscribed.
func (m *Manager) SubscribedChannels() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.subs))
	copy(out, m.subs)
	return out
}

// writeLocked marshals and writes a payload on the current connection.
// Callers hold m.mu. Write failures are logged; the read loop is the one
// that notices and handles a dead connection.
func (m *Manager) writeLocked(payload any) {
	if m.conn == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		log.Debug().Err(err).Msg("failed to marshal outbound payload")
		return
	}
	if err := m.conn.WriteMessage(data); err != nil {
		log.Warn().Err(err).Msg("websocket write failed")
	}
}

func (m *Manager) readLoop(gen int, conn Conn) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			m.handleClose(gen, err)
			return
		}
		m.dispatch(gen, data)
	}
}

// handleClose runs when a connection's read loop ends. Closures from stale
// generations (replaced or torn-down transports) are ignored entirely.
func (m *Manager) handleClose(gen int, err error) {
	m.mu.Lock()
	if m.closed || m.gen != gen {
		m.mu.Unlock()
		return
	}
	wasUser := m.userClosed
	m.stopHeartbeatLocked()
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.state = StateDisconnected
	m.mu.Unlock()

	m.metricConnected(false)
	code, reason := closeInfo(err)
	log.Info().Int("code", code).Str("reason", reason).Msg("websocket closed")

	if wasUser {
		return
	}
	if !isNormalClose(err) {
		m.reportError(fmt.Errorf("websocket connection error: %w", err))
	}
	m.scheduleReconnect(gen)
}

// scheduleReconnect arms the reconnect timer after an abnormal closure,
// honoring the attempt bound. The counter is only reset by a successful
// Connected transition.
func (m *Manager) scheduleReconnect(gen int) {
	m.mu.Lock()
	if m.closed || m.userClosed || m.gen != gen {
		m.mu.Unlock()
		return
	}
	if m.attempts >= m.cfg.MaxReconnectAttempts {
		m.mu.Unlock()
		log.Warn().Int("attempts", m.cfg.MaxReconnectAttempts).Msg("reconnect attempts exhausted")
		if m.cfg.OnReconnectExhausted != nil {
			m.cfg.OnReconnectExhausted()
		}
		return
	}
	m.attempts++
	attempt := m.attempts
	m.cancelReconnectLocked()
	m.reconnectTimer = time.AfterFunc(m.cfg.ReconnectDelay, func() {
		m.mu.Lock()
		if m.closed || m.userClosed {
			m.mu.Unlock()
			return
		}
		m.mu.Unlock()
		m.Connect()
	})
	m.mu.Unlock()

	m.metricReconnects()
	log.Info().
		Int("attempt", attempt).
		Int("max", m.cfg.MaxReconnectAttempts).
		Dur("delay", m.cfg.ReconnectDelay).
		Msg("scheduling reconnect")
}

func (m *Manager) heartbeat(gen int, stop chan struct{}) {
	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.mu.Lock()
			if m.closed || m.gen != gen || m.state != StateConnected {
				m.mu.Unlock()
				return
			}
			m.writeLocked(directive{Type: "ping"})
			m.mu.Unlock()

			m.metricHeartbeats()
			log.Debug().Msg("heartbeat ping sent")
		}
	}
}

// dispatch decodes one inbound frame and routes it to the matching callback.
// Malformed frames are logged and dropped; they never reach OnError and never
// crash the handler.
func (m *Manager) dispatch(gen int, raw []byte) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		m.metricParseErrors()
		log.Debug().Err(err).Str("frame", string(raw)).Msg("failed to parse websocket message")
		return
	}

	m.mu.Lock()
	stale := m.closed || m.gen != gen
	m.mu.Unlock()
	if stale {
		return
	}

	m.metricMessages(env.Type)

	switch env.Type {
	case TypeDecision:
		invoke(m.cfg.OnDecision, env.Data)
	case TypePositionUpdate:
		invoke(m.cfg.OnPositionUpdate, env.Data)
	case TypeAccountUpdate:
		invoke(m.cfg.OnAccountUpdate, env.Data)
	case TypeStrategyStatus:
		invoke(m.cfg.OnStrategyStatus, env.Data)
	case TypeNotification:
		data := env.Data
		if len(data) == 0 {
			data = json.RawMessage(`{}`)
		}
		invoke(m.cfg.OnNotification, data)
		m.forwardNotification(env.Data)
	case TypeError:
		m.metricErrors()
		if m.cfg.OnError == nil {
			return
		}
		if len(env.Data) > 0 {
			m.cfg.OnError(&ServerError{Data: env.Data})
		} else {
			m.cfg.OnError(errors.New("websocket error"))
		}
	case TypePong:
		log.Debug().Msg("heartbeat pong received")
	case TypeSubscribed:
		log.Debug().Str("channel", env.Channel).Msg("subscription acknowledged")
	case TypeUnsubscribed:
		log.Debug().Str("channel", env.Channel).Msg("unsubscription acknowledged")
	default:
		log.Debug().Str("type", env.Type).Msg("unhandled websocket message type")
	}
}

// forwardNotification pushes the normalized record to the notification sink,
// applying the documented defaults for missing fields.
func (m *Manager) forwardNotification(data json.RawMessage) {
	if m.cfg.Notifier == nil {
		return
	}
	var n struct {
		Level   string `json:"level"`
		Title   string `json:"title"`
		Message string `json:"message"`
	}
	if len(data) > 0 {
		// Best effort; defaults cover anything missing.
		_ = json.Unmarshal(data, &n)
	}
	if n.Level == "" {
		n.Level = "info"
	}
	if n.Title == "" {
		n.Title = "Notification"
	}
	m.cfg.Notifier.Notify(n.Level, n.Title, n.Message)
}

func (m *Manager) reportError(err error) {
	m.metricErrors()
	log.Error().Err(err).Msg("websocket error")
	if m.cfg.OnError != nil {
		m.cfg.OnError(err)
	}
}

func (m *Manager) cancelReconnectLocked() {
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
}

func (m *Manager) stopHeartbeatLocked() {
	if m.hbStop != nil {
		close(m.hbStop)
		m.hbStop = nil
	}
}

func (m *Manager) metricConnected(connected bool) {
	if m.cfg.Metrics != nil {
		m.cfg.Metrics.ConnectedSet(connected)
	}
}

func (m *Manager) metricSubscriptions(n int) {
	if m.cfg.Metrics != nil {
		m.cfg.Metrics.SubscriptionsSet(n)
	}
}

func (m *Manager) metricReconnects() {
	if m.cfg.Metrics != nil {
		m.cfg.Metrics.ReconnectsInc()
	}
}

func (m *Manager) metricMessages(msgType string) {
	if m.cfg.Metrics != nil {
		m.cfg.Metrics.MessagesInc(msgType)
	}
}

func (m *Manager) metricHeartbeats() {
	if m.cfg.Metrics != nil {
		m.cfg.Metrics.HeartbeatsInc()
	}
}

func (m *Manager) metricParseErrors() {
	if m.cfg.Metrics != nil {
		m.cfg.Metrics.ParseErrorsInc()
	}
}

func (m *Manager) metricErrors() {
	if m.cfg.Metrics != nil {
		m.cfg.Metrics.ErrorsInc()
	}
}

func invoke(fn func(json.RawMessage), data json.RawMessage) {
	if fn != nil {
		fn(data)
	}
}
