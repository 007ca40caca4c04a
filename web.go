package main

import (
	"embed"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/skip2/go-qrcode"
)

//go:embed templates/*
var templatesFS embed.FS

//go:embed static/**
var staticFS embed.FS

// maskedValue replaces secrets in settings responses. The update handler
// drops entries carrying it so a masked round-trip never clobbers the
// stored secret.
const maskedValue = "••••••••"

// sensitiveKeys are never sent to the dashboard in the clear.
var sensitiveKeys = map[string]bool{
	ConfigKeyOctoPrintAPIKey: true,
	ConfigKeyWebhookPassword: true,
}

// WebServer handles HTTP requests using Gin
type WebServer struct {
	store  *Store
	engine *ReminderEngine
	router *gin.Engine
	wsHub  *WebSocketHub
	host   string
	port   string
}

// WebSocketHub manages WebSocket connections and broadcasts
type WebSocketHub struct {
	clients    map[*WebSocketClient]bool
	register   chan *WebSocketClient
	unregister chan *WebSocketClient
	broadcast  chan []byte
}

// WebSocketClient represents a WebSocket connection
type WebSocketClient struct {
	hub  *WebSocketHub
	conn *websocket.Conn
	send chan []byte
}

// WebSocketMessage represents the structure of messages sent to clients
type WebSocketMessage struct {
	Type           string        `json:"type"`
	Timestamp      time.Time     `json:"timestamp"`
	Status         *EngineStatus `json:"status,omitempty"`
	Message        string        `json:"message,omitempty"`
	JobName        string        `json:"job_name,omitempty"`
	Tier           string        `json:"tier,omitempty"`
	ElapsedSeconds int64         `json:"elapsed_seconds,omitempty"`
}

// NewWebServer creates a new web server with Gin
func NewWebServer(store *Store, engine *ReminderEngine, host, port string) *WebServer {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	// Add middleware
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	// Add custom recovery middleware for API routes to ensure JSON responses
	router.Use(func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				// Check if this is an API route
				if strings.HasPrefix(c.Request.URL.Path, "/api/") {
					c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
					c.Abort()
				} else {
					// For non-API routes, use default recovery behavior
					c.AbortWithStatus(http.StatusInternalServerError)
				}
			}
		}()
		c.Next()
	})

	// Create WebSocket hub
	wsHub := &WebSocketHub{
		clients:    make(map[*WebSocketClient]bool),
		register:   make(chan *WebSocketClient),
		unregister: make(chan *WebSocketClient),
		broadcast:  make(chan []byte),
	}

	ws := &WebServer{
		store:  store,
		engine: engine,
		router: router,
		wsHub:  wsHub,
		host:   host,
		port:   port,
	}

	// Start WebSocket hub
	go wsHub.run()

	ws.setupRoutes()
	return ws
}

// tierLabel renders a tier constant as dashboard text
func tierLabel(tier string) string {
	switch tier {
	case TierUnderMinute:
		return "Under a minute"
	case TierUnderHour:
		return "Under an hour"
	case TierUnderDay:
		return "Under a day"
	case TierOverDay:
		return "Over a day"
	default:
		return tier
	}
}

// setupRoutes configures all the routes
func (ws *WebServer) setupRoutes() {
	// Load HTML templates with custom functions from embedded filesystem
	tmpl := template.Must(template.New("").Funcs(template.FuncMap{
		"tierLabel": tierLabel,
		"formatTime": func(t time.Time) string {
			return t.Format("Jan 2 15:04")
		},
	}).ParseFS(templatesFS, "templates/*"))
	ws.router.SetHTMLTemplate(tmpl)

	// Static files (embedded in binary)
	// Use fs.Sub to strip the "static/" prefix from embedded paths
	staticSubFS, err := fs.Sub(staticFS, "static")
	if err != nil {
		log.Fatalf("Failed to create static filesystem: %v", err)
	}
	ws.router.StaticFS("/static", http.FS(staticSubFS))

	// Pages
	ws.router.GET("/", ws.dashboardHandler)
	ws.router.GET("/settings", ws.settingsPageHandler)
	ws.router.GET("/snooze", ws.quickSnoozeHandler)

	// API routes
	api := ws.router.Group("/api")
	{
		api.GET("/status", ws.statusHandler)
		api.GET("/settings", ws.getSettingsHandler)
		api.POST("/settings", ws.updateSettingsHandler)
		api.POST("/test", ws.testReminderHandler)
		api.GET("/history", ws.historyHandler)
		api.POST("/snooze", ws.snoozeHandler)
		api.DELETE("/snooze", ws.clearSnoozeHandler)
		api.GET("/discover", ws.discoverHandler)
		api.GET("/octoprint/test", ws.testOctoPrintHandler)
		api.GET("/qr/dashboard", ws.qrDashboardHandler)
		api.GET("/qr/snooze", ws.qrSnoozeHandler)
	}

	// WebSocket endpoint
	ws.router.GET("/ws/status", ws.websocketHandler)
}

// Start runs the HTTP server on the configured address
func (ws *WebServer) Start() error {
	addr := net.JoinHostPort(ws.host, ws.port)
	log.Printf("📁 Dashboard available at http://%s", addr)
	return ws.router.Run(addr)
}

// WebSocket hub methods

// run starts the WebSocket hub
func (h *WebSocketHub) run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			log.Printf("WebSocket client connected. Total clients: %d", len(h.clients))

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			log.Printf("WebSocket client disconnected. Total clients: %d", len(h.clients))

		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
		}
	}
}

// BroadcastStatus sends the current engine status to all connected clients
func (ws *WebServer) BroadcastStatus() {
	status := ws.engine.Status()

	message := WebSocketMessage{
		Type:      "status_update",
		Timestamp: time.Now(),
		Status:    &status,
	}

	ws.broadcast(message)
}

// BroadcastReminder pushes a reminder popup to all connected dashboards.
// This is the popup sink's delivery path.
func (ws *WebServer) BroadcastReminder(message string, meta ReminderMeta) {
	ws.broadcast(WebSocketMessage{
		Type:           "reminder",
		Timestamp:      time.Now(),
		Message:        message,
		JobName:        meta.JobName,
		Tier:           meta.Tier,
		ElapsedSeconds: meta.ElapsedSeconds,
	})
}

func (ws *WebServer) broadcast(message WebSocketMessage) {
	jsonData, err := json.Marshal(message)
	if err != nil {
		log.Printf("Error marshaling WebSocket message: %v", err)
		return
	}

	select {
	case ws.wsHub.broadcast <- jsonData:
	default:
		// No clients connected
	}
}

// websocketHandler handles WebSocket connections
func (ws *WebServer) websocketHandler(c *gin.Context) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true // Allow connections from any origin
		},
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	client := &WebSocketClient{
		hub:  ws.wsHub,
		conn: conn,
		send: make(chan []byte, 256),
	}

	client.hub.register <- client

	// Start goroutines for reading and writing
	go client.writePump()
	go client.readPump()
}

// WebSocket client methods

// readPump pumps messages from the WebSocket connection to the hub
func (c *WebSocketClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}
	}
}

// writePump pumps messages from the hub to the WebSocket connection
func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued messages to the current websocket message
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Page handlers

// dashboardHandler serves the main dashboard
func (ws *WebServer) dashboardHandler(c *gin.Context) {
	status := ws.engine.Status()

	history, err := ws.store.GetHistory(10)
	if err != nil {
		log.Printf("Warning: Failed to load history for dashboard: %v", err)
		history = nil
	}

	// Check if this is a first run
	isFirstRun, err := ws.store.IsFirstRun()
	if err != nil {
		isFirstRun = false
	}

	octoprintURL := ""
	if settings, err := ws.store.Snapshot(); err == nil {
		octoprintURL = settings.OctoPrintURL
	}

	c.HTML(http.StatusOK, "index.html", gin.H{
		"Status":       status,
		"History":      history,
		"IsFirstRun":   isFirstRun,
		"OctoPrintURL": octoprintURL,
	})
}

// settingsPageHandler serves the settings page
func (ws *WebServer) settingsPageHandler(c *gin.Context) {
	config, err := ws.store.GetAllConfig()
	if err != nil {
		c.HTML(http.StatusInternalServerError, "error.html", gin.H{
			"Error": "Failed to load settings",
		})
		return
	}

	c.HTML(http.StatusOK, "settings.html", gin.H{
		"Config": maskSecrets(config),
	})
}

// quickSnoozeHandler creates a snooze directly from a GET so a phone can
// trigger it by scanning a QR code
func (ws *WebServer) quickSnoozeHandler(c *gin.Context) {
	minutes, err := strconv.Atoi(c.DefaultQuery("minutes", "60"))
	if err != nil || minutes < 1 || minutes > MaxSnoozeMinutes {
		minutes = 60
	}

	session, err := ws.store.CreateSnooze(getClientIP(c.Request.RemoteAddr), time.Duration(minutes)*time.Minute)
	if err != nil {
		c.HTML(http.StatusInternalServerError, "error.html", gin.H{
			"Error": "Failed to create snooze",
		})
		return
	}

	ws.BroadcastStatus()

	c.HTML(http.StatusOK, "snooze.html", gin.H{
		"Minutes":   minutes,
		"ExpiresAt": session.ExpiresAt,
	})
}

// API handlers

// statusHandler returns current engine status as JSON
func (ws *WebServer) statusHandler(c *gin.Context) {
	c.JSON(http.StatusOK, ws.engine.Status())
}

// getSettingsHandler returns current settings with secrets masked
func (ws *WebServer) getSettingsHandler(c *gin.Context) {
	config, err := ws.store.GetAllConfig()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, maskSecrets(config))
}

// maskSecrets hides sensitive values in a settings map
func maskSecrets(config map[string]string) map[string]string {
	masked := make(map[string]string, len(config))
	for key, value := range config {
		if sensitiveKeys[key] && value != "" {
			masked[key] = maskedValue
			continue
		}
		masked[key] = value
	}
	return masked
}

// updateSettingsHandler validates and persists a settings update, then tells
// the engine to pick up the new values
func (ws *WebServer) updateSettingsHandler(c *gin.Context) {
	var updates map[string]string
	if err := c.ShouldBindJSON(&updates); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
		return
	}

	// Masked secrets coming back unchanged are not updates
	for key, value := range updates {
		if sensitiveKeys[key] && value == maskedValue {
			delete(updates, key)
		}
	}

	if _, err := ApplySettingsUpdate(ws.store, updates); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ws.engine.HandleEvent(PrinterEvent{Type: EventSettingsUpdated})
	ws.BroadcastStatus()

	c.JSON(http.StatusOK, gin.H{"message": "Settings updated successfully"})
}

// testReminderHandler sends a sample reminder through the live pipeline
func (ws *WebServer) testReminderHandler(c *gin.Context) {
	message, err := ws.engine.SendTestReminder()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":  "Test reminder sent",
		"rendered": message,
	})
}

// historyHandler returns recent reminder history
func (ws *WebServer) historyHandler(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	history, err := ws.store.GetHistory(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"history": history})
}

// snoozeHandler suppresses reminders for the requested number of minutes
func (ws *WebServer) snoozeHandler(c *gin.Context) {
	var req struct {
		Minutes int `json:"minutes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
		return
	}
	if req.Minutes < 1 || req.Minutes > MaxSnoozeMinutes {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("minutes must be between 1 and %d", MaxSnoozeMinutes),
		})
		return
	}

	session, err := ws.store.CreateSnooze(getClientIP(c.Request.RemoteAddr), time.Duration(req.Minutes)*time.Minute)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	ws.BroadcastStatus()

	c.JSON(http.StatusOK, gin.H{
		"message":    fmt.Sprintf("Reminders snoozed for %d minutes", req.Minutes),
		"expires_at": session.ExpiresAt,
	})
}

// clearSnoozeHandler removes any active snooze
func (ws *WebServer) clearSnoozeHandler(c *gin.Context) {
	if err := ws.store.ClearSnooze(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	ws.BroadcastStatus()

	c.JSON(http.StatusOK, gin.H{"message": "Snooze cleared"})
}

// discoverHandler scans the local network for OctoPrint instances
func (ws *WebServer) discoverHandler(c *gin.Context) {
	servers, err := DiscoverOctoPrint(c.Request.Context(), 5*time.Second)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if servers == nil {
		servers = []DiscoveredServer{}
	}

	c.JSON(http.StatusOK, gin.H{"servers": servers})
}

// testOctoPrintHandler checks connectivity to the configured OctoPrint server
func (ws *WebServer) testOctoPrintHandler(c *gin.Context) {
	settings, err := ws.store.Snapshot()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	client := NewOctoPrintTestClient(settings.OctoPrintURL, settings.OctoPrintAPIKey)
	version, err := client.GetVersion()
	if err != nil {
		c.JSON(http.StatusOK, gin.H{
			"connected": false,
			"error":     err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"connected": true,
		"server":    version.Server,
		"text":      version.Text,
	})
}

// qrDashboardHandler returns a QR code pointing a phone at the dashboard
func (ws *WebServer) qrDashboardHandler(c *gin.Context) {
	url := fmt.Sprintf("http://%s/", c.Request.Host)

	qrCode, err := qrcode.Encode(url, qrcode.Medium, 256)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"url":            url,
		"qr_code_base64": base64.StdEncoding.EncodeToString(qrCode),
	})
}

// qrSnoozeHandler returns a QR code that snoozes reminders when scanned
func (ws *WebServer) qrSnoozeHandler(c *gin.Context) {
	minutes, err := strconv.Atoi(c.DefaultQuery("minutes", "60"))
	if err != nil || minutes < 1 || minutes > MaxSnoozeMinutes {
		minutes = 60
	}

	url := fmt.Sprintf("http://%s/snooze?minutes=%d", c.Request.Host, minutes)

	qrCode, err := qrcode.Encode(url, qrcode.Medium, 256)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"url":            url,
		"minutes":        minutes,
		"qr_code_base64": base64.StdEncoding.EncodeToString(qrCode),
	})
}
