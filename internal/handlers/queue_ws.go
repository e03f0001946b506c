package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"nexttrack/internal/errors"
	"nexttrack/internal/logger"
	"nexttrack/internal/metrics"
	"nexttrack/internal/models"
	"nexttrack/internal/services/orchestrator"
)

const (
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingPeriod     = (wsPongWait * 9) / 10
	wsMaxMessageSize = 256 * 1024
	wsSendBuffer     = 16
)

// 队列消息类型
const (
	QueueMessageRecommend      = "recommend"
	QueueMessageRecommendation = "recommendation"
	QueueMessageError          = "error"
	QueueMessagePing           = "ping"
	QueueMessagePong           = "pong"
)

// QueueRequest 客户端请求下一首
type QueueRequest struct {
	Type            string         `json:"type,omitempty"`
	PlaylistID      string         `json:"playlist_id,omitempty"`
	PlaylistToken   string         `json:"playlist_token,omitempty"`
	Signal          string         `json:"signal,omitempty"`
	Seed            *int64         `json:"seed,omitempty"`
	CandidateTracks []models.Track `json:"candidate_tracks,omitempty"`
}

// QueueMessage 服务端推送
type QueueMessage struct {
	Type           string                  `json:"type"`
	Recommendation *RecommendationResponse `json:"recommendation,omitempty"`
	Message        string                  `json:"message,omitempty"`
	Code           errors.ErrorCode        `json:"code,omitempty"`
}

// QueueHandler 通过WebSocket持续推荐下一首
type QueueHandler struct {
	recommender    RecommenderInterface
	allowedOrigins []string
	upgrader       websocket.Upgrader
	logger         *logger.Logger
}

// NewQueueHandler 创建队列处理器，allowedOrigins为空时接受任意来源
func NewQueueHandler(recommender RecommenderInterface, allowedOrigins []string) *QueueHandler {
	h := &QueueHandler{
		recommender:    recommender,
		allowedOrigins: allowedOrigins,
		logger:         logger.NewLogger("queue-websocket"),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin:      h.checkOrigin,
	}
	return h
}

func (h *QueueHandler) checkOrigin(r *http.Request) bool {
	if len(h.allowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.allowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// Serve 升级连接并处理请求，直到客户端断开
// @Router /ws/queue [get]
func (h *QueueHandler) Serve(c *gin.Context) {
	if h.recommender == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Success: false,
			Message: "Recommendation service is not available",
		})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		appErr := errors.ErrWebSocketConnection("Failed to upgrade connection", err)
		h.logger.LogAppError(appErr, "WebSocket upgrade failed")
		return
	}

	metrics.TrackWebSocketConnection(true)
	defer metrics.TrackWebSocketConnection(false)

	session := &queueSession{
		handler: h,
		conn:    conn,
		send:    make(chan QueueMessage, wsSendBuffer),
		done:    make(chan struct{}),
	}
	h.logger.Info("Queue client connected", logger.Fields{
		"remote_addr": c.Request.RemoteAddr,
	})

	go session.writePump()
	session.readPump(c.Request.Context())

	h.logger.Info("Queue client disconnected", logger.Fields{
		"remote_addr": c.Request.RemoteAddr,
	})
}

// RegisterRoutes 注册WebSocket路由
func (h *QueueHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/ws/queue", h.Serve)
}

// queueSession 单个连接：一个读循环处理请求，一个写循环负责发送和心跳
type queueSession struct {
	handler *QueueHandler
	conn    *websocket.Conn
	send    chan QueueMessage
	done    chan struct{}
}

func (s *queueSession) readPump(ctx context.Context) {
	defer func() {
		close(s.send)
		<-s.done
		_ = s.conn.Close()
	}()

	s.conn.SetReadLimit(wsMaxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		var req QueueRequest
		if err := s.conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				appErr := errors.NewAppError(errors.ErrorTypeWebSocket, errors.ErrCodeWebSocketMessage, "Failed to read queue message").
					WithCause(err)
				s.handler.logger.LogAppError(appErr, "Queue connection closed unexpectedly")
			}
			return
		}

		msgType := req.Type
		if msgType == "" {
			msgType = QueueMessageRecommend
		}
		metrics.RecordWebSocketMessage("in", msgType)

		var reply QueueMessage
		switch msgType {
		case QueueMessagePing:
			reply = QueueMessage{Type: QueueMessagePong}
		case QueueMessageRecommend:
			reply = s.handler.recommend(ctx, req)
		default:
			reply = QueueMessage{Type: QueueMessageError, Message: "unknown message type: " + msgType}
		}

		select {
		case s.send <- reply:
		case <-s.done:
			return
		}
	}
}

func (s *queueSession) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		close(s.done)
	}()

	for {
		select {
		case msg, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := s.conn.WriteJSON(msg); err != nil {
				s.handler.logger.WithError(err).WithField("type", msg.Type).Warn("Failed to write queue message")
				_ = s.conn.Close()
				for range s.send {
				}
				return
			}
			metrics.RecordWebSocketMessage("out", msg.Type)
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = s.conn.Close()
				for range s.send {
				}
				return
			}
		}
	}
}

func (h *QueueHandler) recommend(ctx context.Context, req QueueRequest) QueueMessage {
	start := time.Now()
	result, err := h.recommender.RecommendNext(ctx, orchestrator.Request{
		PlaylistID:      req.PlaylistID,
		PlaylistToken:   req.PlaylistToken,
		CandidateTracks: req.CandidateTracks,
		Signal:          req.Signal,
		Seed:            req.Seed,
	})
	if err != nil {
		msg := QueueMessage{Type: QueueMessageError, Message: err.Error()}
		if appErr, ok := errors.As(err); ok {
			msg.Message = appErr.Message
			if appErr.Details != "" {
				msg.Message += ": " + appErr.Details
			}
			msg.Code = appErr.Code
		}
		h.logger.Warn("Queue recommendation failed", logger.Fields{
			"playlist_id": req.PlaylistID,
			"error":       err.Error(),
		})
		return msg
	}

	resp := newRecommendationResponse(result, time.Since(start))
	return QueueMessage{Type: QueueMessageRecommendation, Recommendation: &resp}
}
