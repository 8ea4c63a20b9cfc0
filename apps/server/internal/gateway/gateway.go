package gateway

import (
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"rapport-lite/apps/server/internal/auth"
	"rapport-lite/apps/server/internal/codec"
	"rapport-lite/apps/server/internal/scene"
	"rapport-lite/apps/server/internal/stage"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // TODO: Restrict in production
	},
}

// Connection represents a WebSocket client connection
type Connection struct {
	ID       string
	UserID   uint64
	Username string
	Conn     *websocket.Conn
	Send     chan []byte
	Gateway  *Gateway
	LastPing time.Time

	// Current scene association
	SceneID string
	Scene   *scene.Scene
}

// Gateway manages WebSocket connections
type Gateway struct {
	mu          sync.RWMutex
	connections map[string]*Connection
	userConns   map[uint64]*Connection // userID -> connection
	nextConnID  uint64
	stage       *stage.Stage
	auth        auth.Service

	// errSeq numbers error frames minted by the gateway itself; scene frames
	// carry the scene's own sequence. Atomic because sendError runs on pump
	// goroutines without holding mu.
	errSeq uint64
}

// New creates a new Gateway instance
func New(stg *stage.Stage, authService auth.Service) *Gateway {
	return &Gateway{
		connections: make(map[string]*Connection),
		userConns:   make(map[uint64]*Connection),
		stage:       stg,
		auth:        authService,
	}
}

// HandleWebSocket handles WebSocket upgrade and connection. The session token
// is resolved before the upgrade; unauthenticated sockets never reach the
// actor layer.
func (g *Gateway) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := sessionToken(r)
	if token == "" {
		http.Error(w, "missing session token", http.StatusUnauthorized)
		return
	}
	userID, username, ok := g.auth.ResolveSession(token)
	if !ok {
		http.Error(w, "invalid session token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[Gateway] Upgrade error: %v", err)
		return
	}

	g.mu.Lock()
	g.nextConnID++
	connID := fmt.Sprintf("conn_%d", g.nextConnID)

	// A reconnect replaces the previous socket for the same user.
	if prev := g.userConns[userID]; prev != nil {
		delete(g.connections, prev.ID)
		close(prev.Send)
	}

	c := &Connection{
		ID:       connID,
		UserID:   userID,
		Username: username,
		Conn:     conn,
		Send:     make(chan []byte, 256),
		Gateway:  g,
		LastPing: time.Now(),
	}
	g.connections[connID] = c
	g.userConns[userID] = c
	total := len(g.connections)
	g.mu.Unlock()

	log.Printf("[Gateway] Client connected: %s (user=%d %q), total: %d", connID, userID, username, total)

	go c.readPump()
	go c.writePump()
}

func sessionToken(r *http.Request) string {
	if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
		return token
	}
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(raw, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(raw, "Bearer "))
	}
	return ""
}

func (c *Connection) readPump() {
	defer func() {
		c.Gateway.removeConnection(c)
		c.notifySceneConnLost()
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(65536)
	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		c.LastPing = time.Now()
		return nil
	})

	for {
		messageType, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[Gateway] Read error: %v", err)
			}
			break
		}

		if messageType == websocket.TextMessage {
			c.handleMessage(message)
		}
	}
}

func (c *Connection) handleMessage(data []byte) {
	env, err := codec.DecodeClient(data)
	if err != nil {
		log.Printf("[Gateway] Failed to decode: %v", err)
		c.sendError(1, "invalid message format")
		return
	}

	log.Printf("[Gateway] Received from user %d: scene=%s type=%s", c.UserID, env.SceneID, env.Type)

	switch env.Type {
	case codec.ClientEnterScene:
		c.handleEnterScene(env)
	case codec.ClientLeaveScene:
		c.handleLeaveScene()
	case codec.ClientStartEpisode:
		c.handleStartEpisode(env)
	case codec.ClientSpawn:
		c.handleSpawn(env)
	case codec.ClientDespawn:
		c.handleDespawn(env)
	case codec.ClientAdjust:
		c.handleAdjust(env)
	case codec.ClientGetPair:
		c.handleGetPair(env)
	case codec.ClientResetScene:
		c.handleResetScene()
	default:
		log.Printf("[Gateway] Unknown message type: %s", env.Type)
		c.sendError(1, fmt.Sprintf("unknown message type %q", env.Type))
	}
}

func (c *Connection) handleEnterScene(env *codec.ClientEnvelope) {
	var sc *scene.Scene
	if env.SceneID != "" {
		sc = c.Gateway.stage.GetScene(env.SceneID)
		if sc == nil {
			c.sendError(2, fmt.Sprintf("scene %q not found", env.SceneID))
			return
		}
	} else {
		// Quick start: find or create a free-play scene.
		found, err := c.Gateway.stage.QuickStart(c.UserID, c.Gateway.broadcastToUser)
		if err != nil {
			c.sendError(2, err.Error())
			return
		}
		sc = found
	}

	c.SceneID = sc.ID
	c.Scene = sc

	if err := sc.SubmitEvent(scene.Event{
		Type:   scene.EventEnterScene,
		UserID: c.UserID,
		Name:   c.Username,
	}); err != nil {
		c.sendError(2, err.Error())
		return
	}

	if err := c.Gateway.stage.PushCampaignProgress(c.UserID, sc.ID, c.Gateway.broadcastToUser); err != nil {
		log.Printf("[Gateway] push campaign progress failed: user=%d err=%v", c.UserID, err)
	}
	log.Printf("[Gateway] User %d entered scene %s", c.UserID, sc.ID)
}

func (c *Connection) handleLeaveScene() {
	if c.Scene == nil {
		return
	}
	_ = c.Scene.SubmitEvent(scene.Event{
		Type:   scene.EventLeaveScene,
		UserID: c.UserID,
	})
	c.Scene = nil
	c.SceneID = ""
}

func (c *Connection) handleStartEpisode(env *codec.ClientEnvelope) {
	var req codec.StartEpisodeRequest
	if err := codec.DecodePayload(env, &req); err != nil {
		c.sendError(1, "invalid startEpisode payload")
		return
	}

	sc, _, err := c.Gateway.stage.StartEpisode(c.UserID, req.EpisodeID, c.Gateway.broadcastToUser)
	if err != nil {
		c.sendError(6, err.Error())
		return
	}

	c.SceneID = sc.ID
	c.Scene = sc

	if err := sc.SubmitEvent(scene.Event{
		Type:   scene.EventEnterScene,
		UserID: c.UserID,
		Name:   c.Username,
	}); err != nil {
		c.sendError(6, err.Error())
	}
}

func (c *Connection) handleSpawn(env *codec.ClientEnvelope) {
	if c.Scene == nil {
		c.sendError(3, "not in a scene")
		return
	}
	var req codec.SpawnRequest
	if err := codec.DecodePayload(env, &req); err != nil {
		c.sendError(1, "invalid spawn payload")
		return
	}

	if err := c.Scene.SubmitEvent(scene.Event{
		Type:        scene.EventSpawn,
		UserID:      c.UserID,
		CharacterID: req.CharacterID,
	}); err != nil {
		c.sendError(4, err.Error())
	}
}

func (c *Connection) handleDespawn(env *codec.ClientEnvelope) {
	if c.Scene == nil {
		c.sendError(3, "not in a scene")
		return
	}
	var req codec.DespawnRequest
	if err := codec.DecodePayload(env, &req); err != nil {
		c.sendError(1, "invalid despawn payload")
		return
	}

	if err := c.Scene.SubmitEvent(scene.Event{
		Type:   scene.EventDespawn,
		UserID: c.UserID,
		Ref:    req.Ref,
	}); err != nil {
		c.sendError(4, err.Error())
	}
}

func (c *Connection) handleAdjust(env *codec.ClientEnvelope) {
	if c.Scene == nil {
		c.sendError(3, "not in a scene")
		return
	}
	var req codec.AdjustRequest
	if err := codec.DecodePayload(env, &req); err != nil {
		c.sendError(1, "invalid adjust payload")
		return
	}

	if err := c.Scene.SubmitEvent(scene.Event{
		Type:    scene.EventAdjust,
		UserID:  c.UserID,
		FromRef: req.FromRef,
		ToRef:   req.ToRef,
		Delta:   req.Delta,
	}); err != nil {
		c.sendError(5, err.Error())
	}
}

func (c *Connection) handleGetPair(env *codec.ClientEnvelope) {
	if c.Scene == nil {
		c.sendError(3, "not in a scene")
		return
	}
	var req codec.GetPairRequest
	if err := codec.DecodePayload(env, &req); err != nil {
		c.sendError(1, "invalid getPair payload")
		return
	}

	if err := c.Scene.SubmitEvent(scene.Event{
		Type:    scene.EventGetPair,
		UserID:  c.UserID,
		FromRef: req.FromRef,
		ToRef:   req.ToRef,
	}); err != nil {
		c.sendError(5, err.Error())
	}
}

func (c *Connection) handleResetScene() {
	if c.Scene == nil {
		c.sendError(3, "not in a scene")
		return
	}
	if err := c.Scene.SubmitEvent(scene.Event{
		Type:   scene.EventReset,
		UserID: c.UserID,
	}); err != nil {
		c.sendError(5, err.Error())
	}
}

func (c *Connection) notifySceneConnLost() {
	if c.Scene == nil {
		return
	}
	_ = c.Scene.SubmitEvent(scene.Event{
		Type:   scene.EventConnLost,
		UserID: c.UserID,
	})
}

func (c *Connection) sendError(code int32, msg string) {
	_, data, err := codec.Wrap(c.SceneID, atomic.AddUint64(&c.Gateway.errSeq, 1), codec.ServerError, codec.ErrorMessage{
		Code:    code,
		Message: msg,
	})
	if err != nil {
		return
	}
	select {
	case c.Send <- data:
	default:
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (g *Gateway) removeConnection(c *Connection) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.connections[c.ID] != c {
		return // already replaced by a reconnect
	}
	delete(g.connections, c.ID)
	delete(g.userConns, c.UserID)
	log.Printf("[Gateway] Client disconnected: %s, total: %d", c.ID, len(g.connections))
}

// broadcastToUser sends a message to a specific user
func (g *Gateway) broadcastToUser(userID uint64, data []byte) {
	g.mu.RLock()
	c := g.userConns[userID]
	g.mu.RUnlock()

	if c != nil {
		select {
		case c.Send <- data:
		default:
			// Drop if buffer full
		}
	}
}

// Broadcast sends a message to all connections
func (g *Gateway) Broadcast(message []byte) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, c := range g.connections {
		select {
		case c.Send <- message:
		default:
			// Drop message if buffer full
		}
	}
}
