package handler

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/orgpulse/orgpulse_server/internal/pkg/jwt"
	"github.com/orgpulse/orgpulse_server/internal/pkg/ws"
)

const (
	// 读超时：pongWait 内没有任何帧（含 pong）视为断开
	pongWait   = 60 * time.Second
	pingPeriod = 45 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// TODO: 生产环境需要验证 Origin
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

type WebSocketHandler struct {
	hub       *ws.Hub
	jwtSecret string
}

func NewWebSocketHandler(hub *ws.Hub, jwtSecret string) *WebSocketHandler {
	return &WebSocketHandler{
		hub:       hub,
		jwtSecret: jwtSecret,
	}
}

// streamCommand 客户端下行指令：watch 收窄到单个运行，watch_all 恢复全量
type streamCommand struct {
	Action string `json:"action"`
	RunID  int64  `json:"run_id"`
}

// Handle WebSocket 连接处理，推送运行进度与触发通知。
// GET /api/v1/ws?token=xxx&run_id=N（run_id 可选，建连即只关注该运行）
func (h *WebSocketHandler) Handle(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	claims, err := jwt.ParseToken(token, h.jwtSecret)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("Failed to upgrade connection: %v", err)
		return
	}

	client := &ws.Client{
		TenantID: claims.TenantID,
		Conn:     conn,
	}
	if runID, err := strconv.ParseInt(c.Query("run_id"), 10, 64); err == nil && runID > 0 {
		client.Watch(runID)
	}

	h.hub.Register(client)
	go h.pingLoop(client)
	go h.readLoop(client)
}

// readLoop 消费客户端指令并维护读超时，连接断开时注销
func (h *WebSocketHandler) readLoop(client *ws.Client) {
	conn := client.Conn
	defer func() {
		h.hub.Unregister(client)
		conn.Close()
	}()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		var cmd streamCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			continue // 无法解析的帧直接忽略
		}
		switch cmd.Action {
		case "watch":
			if cmd.RunID > 0 {
				client.Watch(cmd.RunID)
			}
		case "watch_all":
			client.Watch(0)
		}
	}
}

// pingLoop 周期心跳，失联由 readLoop 的读超时收口
func (h *WebSocketHandler) pingLoop(client *ws.Client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for range ticker.C {
		if err := client.Ping(); err != nil {
			return
		}
	}
}
