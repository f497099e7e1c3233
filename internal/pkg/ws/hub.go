package ws

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Hub 按租户索引的连接集合，一个租户可以有多个连接
type Hub struct {
	clients map[int64]map[*Client]struct{}
	mu      sync.RWMutex
}

type Client struct {
	TenantID int64
	Conn     *websocket.Conn
	mu       sync.Mutex // 保护并发写入与订阅范围
	runID    int64      // 0 表示接收租户的全部消息
}

// Watch 限定该连接只接收指定运行的消息，runID 为 0 恢复全量订阅
func (c *Client) Watch(runID int64) {
	c.mu.Lock()
	c.runID = runID
	c.mu.Unlock()
}

// wants 消息是否落在该连接的订阅范围内。
// 不带运行上下文的消息（runID 为 0，如触发通知）发给所有连接。
func (c *Client) wants(runID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runID == 0 || runID == 0 || c.runID == runID
}

// Ping 发送心跳帧，与推送共用写锁
func (c *Client) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second))
}

type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[int64]map[*Client]struct{}),
	}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.TenantID] == nil {
		h.clients[client.TenantID] = make(map[*Client]struct{})
	}
	h.clients[client.TenantID][client] = struct{}{}

	log.Printf("Tenant %d connected, tenant_conns: %d", client.TenantID, len(h.clients[client.TenantID]))
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conns, ok := h.clients[client.TenantID]; ok {
		delete(conns, client)
		if len(conns) == 0 {
			delete(h.clients, client.TenantID)
		}
	}
	log.Printf("Tenant %d disconnected", client.TenantID)
}

// SendToTenant 向租户的连接推送消息。
// runID 非 0 时只发给订阅范围覆盖该运行的连接。
func (h *Hub) SendToTenant(tenantID, runID int64, msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	h.mu.RLock()
	conns, ok := h.clients[tenantID]
	if !ok {
		h.mu.RUnlock()
		return nil
	}
	// 复制一份引用，避免长时间持锁
	clients := make([]*Client, 0, len(conns))
	for c := range conns {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if !c.wants(runID) {
			continue
		}
		c.mu.Lock()
		err := c.Conn.WriteMessage(websocket.TextMessage, data)
		c.mu.Unlock()
		if err != nil {
			log.Printf("SendToTenant write error for tenant %d: %v", tenantID, err)
		}
	}
	return nil
}

// IsOnline 租户是否有在线连接
func (h *Hub) IsOnline(tenantID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conns, ok := h.clients[tenantID]
	return ok && len(conns) > 0
}

// ConnectionCount 在线连接总数
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := 0
	for _, conns := range h.clients {
		total += len(conns)
	}
	return total
}
