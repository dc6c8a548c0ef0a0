package controllers

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/kalyuugh/backend-go/internal/logger"
	"github.com/kalyuugh/backend-go/internal/services"
)

// chatRequest 聊天请求体
type chatRequest struct {
	Messages []services.ChatMessage `json:"messages" validate:"required,min=1"`
	Language string                 `json:"language"`
}

// storeChatRequest 手动持久化请求体
type storeChatRequest struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// ChatController 聊天控制器。
// Post以分块纯文本转发上游流，StoreChat提供手动持久化入口。
type ChatController struct {
	BaseController
	chatService  *services.ChatService
	storeService *services.StoreService
}

func (c *ChatController) Prepare() {
	c.chatService = services.GetChatService()
	c.storeService = services.GetStoreService()
}

// Post 处理流式聊天请求。
// 第一个字节送出之前的任何失败返回500纯文本；
// 流中途的上游错误通过断开连接传达，已送出的片段保持原样。
func (c *ChatController) Post() {
	var req chatRequest
	if err := json.Unmarshal(c.Ctx.Input.RequestBody, &req); err != nil {
		c.plainError(http.StatusBadRequest, "Invalid request")
		return
	}
	if err := validate.Struct(&req); err != nil {
		c.plainError(http.StatusBadRequest, "Invalid request")
		return
	}
	if c.chatService == nil {
		c.plainError(http.StatusInternalServerError, "Internal server error")
		return
	}

	ctx := c.Ctx.Request.Context()
	responseChan, err := c.chatService.StreamChat(ctx, req.Messages, req.Language)
	if err != nil {
		c.plainError(http.StatusInternalServerError, "Internal server error")
		return
	}

	w := c.Ctx.ResponseWriter
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if !ok {
		logger.Error("Response writer does not support flushing")
		c.plainError(http.StatusInternalServerError, "Internal server error")
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case resp, open := <-responseChan:
			if !open || resp.Done {
				return
			}
			if resp.Error != "" {
				// 状态码已经送出，只能通过断连告知客户端流不完整
				c.abortConnection()
				return
			}
			if _, err := w.Write([]byte(resp.Content)); err != nil {
				logger.Warn("Client write failed during stream", zap.Error(err))
				return
			}
			flusher.Flush()
		case <-ctx.Done():
			return
		}
	}
}

// StoreChat 手动持久化一对问答。业务失败也返回200，结果放在ok字段里。
func (c *ChatController) StoreChat() {
	var req storeChatRequest
	if err := json.Unmarshal(c.Ctx.Input.RequestBody, &req); err != nil {
		c.JSON(http.StatusOK, map[string]interface{}{"ok": false})
		return
	}
	if strings.TrimSpace(req.Question) == "" || strings.TrimSpace(req.Answer) == "" {
		logger.Warn("Store chat request missing question or answer")
		c.JSON(http.StatusOK, map[string]interface{}{"ok": false})
		return
	}
	if c.storeService == nil {
		c.JSON(http.StatusOK, map[string]interface{}{"ok": false})
		return
	}

	err := c.storeService.StoreExchange(c.Ctx.Request.Context(), req.Question, req.Answer, "")
	if err != nil {
		logger.Warn("Manual exchange store failed", zap.Error(err))
	}
	c.JSON(http.StatusOK, map[string]interface{}{"ok": err == nil})
}

func (c *ChatController) plainError(status int, message string) {
	c.Ctx.Output.SetStatus(status)
	c.Ctx.Output.Header("Content-Type", "text/plain; charset=utf-8")
	_ = c.Ctx.Output.Body([]byte(message))
}

// abortConnection 强行关闭底层连接，中断已开始的分块响应
func (c *ChatController) abortConnection() {
	hijacker, ok := c.Ctx.ResponseWriter.ResponseWriter.(http.Hijacker)
	if !ok {
		return
	}
	conn, _, err := hijacker.Hijack()
	if err != nil {
		return
	}
	_ = conn.Close()
}
