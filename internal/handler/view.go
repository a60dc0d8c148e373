package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"convoview/internal/config"
	"convoview/internal/model"
	"convoview/internal/service"
	"convoview/internal/transport"
	"convoview/internal/upstream"
	"convoview/internal/utils"
	"convoview/pkg/logger"

	"github.com/gin-gonic/gin"
)

// ViewHandler 面向展示层的网关：每个会话一个视图控制器，按需创建
type ViewHandler struct {
	cfg    *config.Config
	server *upstream.Server

	mu          sync.Mutex
	controllers map[string]*service.Controller
}

func NewViewHandler(cfg *config.Config, server *upstream.Server) *ViewHandler {
	return &ViewHandler{
		cfg:         cfg,
		server:      server,
		controllers: make(map[string]*service.Controller),
	}
}

// controller 取出或创建会话的视图控制器
func (h *ViewHandler) controller(sessionID string) (*service.Controller, error) {
	if _, err := h.server.GetSession(sessionID); err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if ctrl, ok := h.controllers[sessionID]; ok {
		return ctrl, nil
	}

	ctrl := service.NewController(h.server, service.NewFilter(h.cfg.View.VisibleTools), h.cfg.View.PageSize)
	if err := ctrl.Start(sessionID, nil); err != nil {
		return nil, err
	}
	h.controllers[sessionID] = ctrl
	return ctrl, nil
}

// CloseAll 拆除全部控制器，进程退出时调用
func (h *ViewHandler) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, ctrl := range h.controllers {
		ctrl.Close()
		delete(h.controllers, id)
	}
}

// GetView 视图快照
func (h *ViewHandler) GetView(c *gin.Context) {
	sessionID := c.Param("session_id")

	ctrl, err := h.controller(sessionID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, ctrl.Snapshot())
}

// StreamView 以 SSE 推送视图快照，每次视图变更推一帧
func (h *ViewHandler) StreamView(c *gin.Context) {
	sessionID := c.Param("session_id")

	ctrl, err := h.controller(sessionID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	updates, cancel := ctrl.Updates()
	defer cancel()

	sseWriter := utils.NewSSEWriter(c.Writer)
	if err := h.writeSnapshot(sseWriter, ctrl); err != nil {
		return
	}

	for {
		select {
		case _, ok := <-updates:
			if !ok {
				sseWriter.Close()
				return
			}
			if err := h.writeSnapshot(sseWriter, ctrl); err != nil {
				return
			}
		case <-c.Request.Context().Done():
			return
		}
	}
}

func (h *ViewHandler) writeSnapshot(w *utils.SSEWriter, ctrl *service.Controller) error {
	data, err := json.Marshal(ctrl.Snapshot())
	if err != nil {
		logger.Errorf("序列化视图快照失败: %v", err)
		return err
	}
	return w.Write("view", string(data))
}

// StreamEvents 把原始订阅事件按信封格式转发给远端客户端，
// 供浏览器侧自行做视图合并的场景使用
func (h *ViewHandler) StreamEvents(c *gin.Context) {
	sessionID := c.Param("session_id")

	if _, err := h.server.GetSession(sessionID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	sseWriter := utils.NewSSEWriter(c.Writer)
	frames := make(chan []byte, 64)

	push := func(evt transport.Event) {
		data, err := transport.EncodeEnvelope(evt)
		if err != nil {
			logger.Errorf("编码事件失败: %v", err)
			return
		}
		select {
		case frames <- data:
		default:
			logger.Warnf("事件流积压，丢弃会话 %s 的一帧", sessionID)
		}
	}

	msgSub := h.server.SubscribeMessages(sessionID, func(evt transport.BatchEvent) { push(evt) })
	defer msgSub.Unsubscribe()
	fragSub := h.server.SubscribeFragments(sessionID, func(evt transport.FragmentEvent) { push(evt) })
	defer fragSub.Unsubscribe()

	for {
		select {
		case frame := <-frames:
			if err := sseWriter.Write("event", string(frame)); err != nil {
				return
			}
		case <-c.Request.Context().Done():
			return
		}
	}
}

// LoadMore 向前翻一页历史
func (h *ViewHandler) LoadMore(c *gin.Context) {
	sessionID := c.Param("session_id")

	ctrl, err := h.controller(sessionID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	if err := ctrl.LoadMore(c.Request.Context()); err != nil {
		if errors.Is(err, service.ErrNoMoreHistory) {
			c.JSON(http.StatusOK, gin.H{"has_more": false})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, ctrl.Snapshot())
}

// Send 发送用户消息，触发上游的流式回复
func (h *ViewHandler) Send(c *gin.Context) {
	var req model.SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// 确保控制器已就位，发送后的片段和快照立即有去处
	if _, err := h.controller(req.SessionID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.server.SendMessage(c.Request.Context(), req.SessionID, req.Message)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, model.SendResponse{SessionID: req.SessionID, Message: *msg})
}

// Regenerate 编辑重发
func (h *ViewHandler) Regenerate(c *gin.Context) {
	var req model.RegenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctrl, err := h.controller(req.SessionID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	if err := ctrl.Regenerate(c.Request.Context(), req.MessageID, req.Message); err != nil {
		switch {
		case errors.Is(err, service.ErrTargetNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrNothingToRegenerate):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// CreateSession 新建会话
func (h *ViewHandler) CreateSession(c *gin.Context) {
	var req model.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		req.Title = ""
	}

	session, err := h.server.CreateSession(req.Title)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, session)
}

// GetSessionList 列出全部会话
func (h *ViewHandler) GetSessionList(c *gin.Context) {
	sessions, err := h.server.ListSessions()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	out := make([]model.SessionResponse, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, model.SessionResponse{
			SessionID:    s.ID,
			Title:        s.Title,
			CreatedAt:    s.CreatedAt,
			UpdatedAt:    s.UpdatedAt,
			MessageCount: h.server.MessageCount(s.ID),
		})
	}

	c.JSON(http.StatusOK, gin.H{"sessions": out})
}

// DeleteSession 删除会话并拆除其视图控制器
func (h *ViewHandler) DeleteSession(c *gin.Context) {
	sessionID := c.Param("session_id")

	if err := h.server.DeleteSession(sessionID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	h.mu.Lock()
	if ctrl, ok := h.controllers[sessionID]; ok {
		delete(h.controllers, sessionID)
		h.mu.Unlock()
		ctrl.Close()
	} else {
		h.mu.Unlock()
	}

	c.JSON(http.StatusOK, gin.H{"message": "Session deleted successfully"})
}
