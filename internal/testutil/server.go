package testutil

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"

	"nexustodo/internal/service"
)

// DefaultToken is the bearer token the fake server accepts.
const DefaultToken = "default-token"

// Server is a fake task service and agent backed by a FakeService.
// Task routes live under /api and agent routes under /agent.
type Server struct {
	*httptest.Server
	Service *FakeService

	mu           sync.Mutex
	agentMissing bool
	headers      []http.Header
}

type apiError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func errorBody(code, message string) apiError {
	var e apiError
	e.Error.Code = code
	e.Error.Message = message
	return e
}

// NewServer starts a fake server that is closed when the test ends.
func NewServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s := &Server{Service: NewFakeService()}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(s.record)

	api := router.Group("/api")
	{
		api.POST("/device/register", s.register)

		tasks := api.Group("/tasks")
		tasks.Use(auth)
		{
			tasks.GET("", s.listTasks)
			tasks.POST("", s.createTask)
			tasks.PUT("/:taskId", s.updateTask)
			tasks.DELETE("/:taskId", s.deleteTask)
		}
	}

	agent := router.Group("/agent")
	agent.Use(s.agentAvailable, auth)
	{
		agent.GET("/chat/stream", s.chatStream)
		agent.POST("/chat", s.chat)
	}

	s.Server = httptest.NewServer(router)
	t.Cleanup(s.Close)
	return s
}

// APIBase returns the task service base URL.
func (s *Server) APIBase() string { return s.URL + "/api" }

// SetAgentMissing makes every agent route answer 404.
func (s *Server) SetAgentMissing(missing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agentMissing = missing
}

// Headers returns the request headers seen so far, in order.
func (s *Server) Headers() []http.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]http.Header(nil), s.headers...)
}

func (s *Server) record(c *gin.Context) {
	s.mu.Lock()
	s.headers = append(s.headers, c.Request.Header.Clone())
	s.mu.Unlock()
	c.Next()
}

func (s *Server) agentAvailable(c *gin.Context) {
	s.mu.Lock()
	missing := s.agentMissing
	s.mu.Unlock()
	if missing {
		c.String(http.StatusNotFound, "404 page not found")
		c.Abort()
		return
	}
	c.Next()
}

func auth(c *gin.Context) {
	if c.GetHeader("Authorization") != "Bearer "+DefaultToken {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody("UNAUTHORIZED", "authentication failed"))
		return
	}
	if c.GetHeader("X-User-ID") == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorBody("INVALID_REQUEST", "user id is required"))
		return
	}
	c.Next()
}

func (s *Server) register(c *gin.Context) {
	var req struct {
		DeviceID string `json:"deviceId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("INVALID_REQUEST", "device id is required"))
		return
	}
	id, err := s.Service.RegisterDevice(c.Request.Context(), req.DeviceID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorBody("INTERNAL_ERROR", err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"deviceId": id.DeviceID, "userId": id.UserID, "message": "device registered"})
}

func (s *Server) listTasks(c *gin.Context) {
	tasks, err := s.Service.ListTasks(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorBody("INTERNAL_ERROR", err.Error()))
		return
	}
	c.JSON(http.StatusOK, tasks)
}

func (s *Server) createTask(c *gin.Context) {
	var in service.TaskInput
	if err := c.ShouldBindJSON(&in); err != nil || in.Title == "" {
		c.JSON(http.StatusBadRequest, errorBody("INVALID_REQUEST", "title is required"))
		return
	}
	task, err := s.Service.CreateTask(c.Request.Context(), in)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorBody("INTERNAL_ERROR", err.Error()))
		return
	}
	c.JSON(http.StatusCreated, task)
}

func (s *Server) updateTask(c *gin.Context) {
	var patch service.TaskPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("INVALID_REQUEST", err.Error()))
		return
	}
	task, err := s.Service.UpdateTask(c.Request.Context(), c.Param("taskId"), patch)
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusNotFound, errorBody("TASK_NOT_FOUND", "task not found"))
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorBody("INTERNAL_ERROR", err.Error()))
		return
	}
	c.JSON(http.StatusOK, task)
}

func (s *Server) deleteTask(c *gin.Context) {
	err := s.Service.DeleteTask(c.Request.Context(), c.Param("taskId"))
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusNotFound, errorBody("TASK_NOT_FOUND", "task not found"))
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorBody("INTERNAL_ERROR", err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "task deleted"})
}

func (s *Server) chatStream(c *gin.Context) {
	req := service.ChatRequest{
		SessionID: c.Query("sessionId"),
		UserID:    c.Query("userId"),
		DeviceID:  c.Query("deviceId"),
		Message:   c.Query("message"),
	}
	body, err := s.Service.OpenChatStream(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorBody("AGENT_ERROR", err.Error()))
		return
	}
	defer body.Close()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, body)
	c.Writer.Flush()
}

func (s *Server) chat(c *gin.Context) {
	var body struct {
		SessionID string `json:"sessionId"`
		UserID    string `json:"userId"`
		DeviceID  string `json:"deviceId"`
		Messages  []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || len(body.Messages) == 0 {
		c.JSON(http.StatusBadRequest, errorBody("INVALID_REQUEST", "messages are required"))
		return
	}
	reply, err := s.Service.AgentChat(c.Request.Context(), service.ChatRequest{
		SessionID: body.SessionID,
		UserID:    body.UserID,
		DeviceID:  body.DeviceID,
		Message:   body.Messages[len(body.Messages)-1].Content,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorBody("AGENT_ERROR", err.Error()))
		return
	}
	c.JSON(http.StatusOK, reply)
}
