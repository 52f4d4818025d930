package api

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"trackfetch/backend"
)

// Server represents the HTTP API server
type Server struct {
	app          *fiber.App
	config       *backend.Config
	orchestrator *backend.Orchestrator
	resources    *backend.ResourceManager
	status       *backend.StatusChecker
	wsHub        *WebSocketHub
}

// NewServer creates a new API server instance
func NewServer(config *backend.Config, orchestrator *backend.Orchestrator, resources *backend.ResourceManager) *Server {
	app := fiber.New(fiber.Config{
		AppName:      "trackfetch",
		ServerHeader: "trackfetch",
		BodyLimit:    1024 * 1024,
	})

	wsHub := NewWebSocketHub()
	go wsHub.Run()

	server := &Server{
		app:          app,
		config:       config,
		orchestrator: orchestrator,
		resources:    resources,
		status:       backend.NewStatusChecker(config.Session.ProxyURL, 0),
		wsHub:        wsHub,
	}

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${method} ${path} (${latency})\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept",
		AllowMethods: "GET, POST, DELETE, OPTIONS",
	}))

	server.setupRoutes()

	return server
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.app.Get("/api/health", s.handleHealth)

	api := s.app.Group("/api")
	api.Get("/version", s.handleGetVersion)

	// Acquisition
	api.Post("/acquire", s.handleAcquire)

	// Artifacts
	api.Get("/artifacts/file", s.handleGetArtifact)
	api.Delete("/artifacts", s.handleDeleteArtifact)

	// Adapter chain and upstream status
	api.Get("/sources", s.handleGetSources)

	// WebSocket endpoint
	s.app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	s.app.Get("/ws", websocket.New(s.handleWebSocket))
}

// Listen starts the HTTP server
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown() error {
	s.wsHub.Close()
	return s.app.Shutdown()
}

// BroadcastAttemptEvent sends an attempt event to all connected WebSocket clients
func (s *Server) BroadcastAttemptEvent(event backend.AttemptEvent) {
	s.wsHub.Broadcast(event)
}

// WebSocketHub manages WebSocket connections
type WebSocketHub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan any
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mu         sync.RWMutex
	done       chan struct{}
	closeOnce  sync.Once
}

// NewWebSocketHub creates a new WebSocket hub
func NewWebSocketHub() *WebSocketHub {
	return &WebSocketHub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan any, 256),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
	}
}

// Run starts the WebSocket hub
func (h *WebSocketHub) Run() {
	for {
		select {
		case <-h.done:
			return
		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			total := len(h.clients)
			h.mu.Unlock()
			backend.Logger.Debug("websocket client connected", "total", total)
		case conn := <-h.unregister:
			h.remove(conn)
		case message := <-h.broadcast:
			h.mu.RLock()
			var failed []*websocket.Conn
			for conn := range h.clients {
				if err := conn.WriteJSON(message); err != nil {
					backend.Logger.Debug("websocket write failed", "err", err)
					failed = append(failed, conn)
				}
			}
			h.mu.RUnlock()
			for _, conn := range failed {
				h.remove(conn)
			}
		}
	}
}

func (h *WebSocketHub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		conn.Close()
	}
	total := len(h.clients)
	h.mu.Unlock()
	backend.Logger.Debug("websocket client disconnected", "total", total)
}

// Broadcast sends a message to all connected clients
func (h *WebSocketHub) Broadcast(message any) {
	select {
	case h.broadcast <- message:
	default:
		backend.Logger.Warn("websocket broadcast channel full, dropping message")
	}
}

// Close shuts down the hub
func (h *WebSocketHub) Close() {
	h.closeOnce.Do(func() {
		close(h.done)
		h.mu.Lock()
		for conn := range h.clients {
			conn.Close()
		}
		h.clients = make(map[*websocket.Conn]bool)
		h.mu.Unlock()
	})
}

// handleWebSocket handles WebSocket connections
func (s *Server) handleWebSocket(c *websocket.Conn) {
	select {
	case s.wsHub.register <- c:
	case <-s.wsHub.done:
		return
	}
	defer func() {
		select {
		case s.wsHub.unregister <- c:
		case <-s.wsHub.done:
		}
	}()

	for {
		if _, _, err := c.ReadMessage(); err != nil {
			break
		}
		// incoming messages are ignored; reading keeps the connection alive
	}
}
