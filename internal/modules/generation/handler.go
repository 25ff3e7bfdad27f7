package generation

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/wsic/generator/internal/models"
	"github.com/wsic/generator/internal/modules/insertion"
	"github.com/wsic/generator/internal/pkg/pagination"
	"github.com/wsic/generator/internal/pkg/response"
	"github.com/wsic/generator/internal/pkg/taskqueue"
	"go.uber.org/zap"
)

// Response headers of POST /generate-topic.
const (
	HeaderReplayed  = "X-Generation-Replayed"
	HeaderRequestID = "X-Generation-Request-Id"
)

type checkTopicDTO struct {
	Topic  string `json:"topic"`
	UserID string `json:"user_id"`
}

type generateTopicDTO struct {
	Topic              string          `json:"topic"`
	Difficulty         string          `json:"difficulty"`
	UserID             string          `json:"user_id"`
	PublishImmediately *insertion.Flag `json:"publish_immediately"`
}

var difficulties = map[string]bool{
	models.DifficultyBeginner:     true,
	models.DifficultyIntermediate: true,
	models.DifficultyAdvanced:     true,
}

type Handler struct {
	svc    *Service
	logger *zap.Logger
}

func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger.Named("GenerationHandler")}
}

// RegisterRoutes mounts the scheduler endpoints behind guard and the
// read-only tracker endpoints without it.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, guard ...gin.HandlerFunc) {
	scheduled := rg.Group("", guard...)
	scheduled.POST("/check-topic", h.checkTopic)
	scheduled.POST("/generate-topic", h.generateTopic)

	g := rg.Group("/generation-requests")
	g.GET("", h.listRequests)
	g.GET("/:id", h.getRequest)
}

func (h *Handler) checkTopic(c *gin.Context) {
	var dto checkTopicDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		h.reject(c, "No JSON data provided")
		return
	}
	topic, userID, msg := validateIdentity(dto.Topic, dto.UserID)
	if msg != "" {
		h.reject(c, msg)
		return
	}

	check, err := h.svc.CheckTopic(c.Request.Context(), topic, userID)
	if err != nil {
		h.logger.Error("check topic failed", zap.String("topic", topic), zap.Error(err))
		response.InternalError(c, err)
		return
	}
	response.OK(c, check)
}

func (h *Handler) generateTopic(c *gin.Context) {
	var dto generateTopicDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		h.reject(c, "No JSON data provided")
		return
	}
	topic, userID, msg := validateIdentity(dto.Topic, dto.UserID)
	if msg != "" {
		h.reject(c, msg)
		return
	}
	difficulty := strings.ToLower(strings.TrimSpace(dto.Difficulty))
	if difficulty == "" {
		difficulty = models.DifficultyBeginner
	}
	if !difficulties[difficulty] {
		h.reject(c, "Difficulty must be one of beginner, intermediate, advanced")
		return
	}
	publish := true
	if dto.PublishImmediately != nil {
		publish = bool(*dto.PublishImmediately)
	}

	req := Request{Topic: topic, Difficulty: difficulty, UserID: userID, PublishImmediately: publish}
	result, err := h.svc.GenerateTopic(c.Request.Context(), req)
	if err != nil {
		h.fail(c, req, err)
		return
	}

	if result.Replayed {
		h.svc.metrics.ObserveRequest("replayed")
		c.Header(HeaderReplayed, "true")
	} else {
		h.svc.metrics.ObserveRequest("generated")
	}
	if result.TaskID != "" {
		c.Header(HeaderRequestID, result.TaskID)
	}
	response.OK(c, result)
}

func (h *Handler) fail(c *gin.Context, req Request, err error) {
	var invalid *InvalidTopicError
	var retryable *RetryableError
	switch {
	case errors.As(err, &invalid):
		h.svc.metrics.ObserveRequest("invalid_topic")
		response.NonRetryableWith(c, "Topic is invalid", gin.H{"validation": invalid.Check})
	case errors.Is(err, ErrInProgress):
		h.svc.metrics.ObserveRequest("in_progress")
		response.Conflict(c, err.Error())
	case errors.As(err, &retryable):
		h.svc.metrics.ObserveRequest("retry")
		h.logger.Warn("generation failed, requesting redelivery",
			zap.String("topic", req.Topic),
			zap.String("reason", retryable.Reason),
		)
		response.InternalErrorWith(c, retryable.Reason, gin.H{"result": retryable.Body})
	default:
		h.svc.metrics.ObserveRequest("error")
		h.logger.Error("generation failed", zap.String("topic", req.Topic), zap.Error(err))
		response.InternalError(c, err)
	}
}

func (h *Handler) reject(c *gin.Context, message string) {
	h.svc.metrics.ObserveRequest("input_error")
	response.NonRetryable(c, message)
}

func validateIdentity(topic, userID string) (string, string, string) {
	topic = strings.TrimSpace(topic)
	userID = strings.TrimSpace(userID)
	if topic == "" {
		return "", "", "Topic is required"
	}
	if userID == "" {
		return "", "", "User ID is required"
	}
	return topic, userID, ""
}

var statusFilter = pagination.Filter{
	Param: "status",
	Allowed: []string{
		string(taskqueue.TaskRunning),
		string(taskqueue.TaskCompleted),
		string(taskqueue.TaskFailed),
	},
}

func (h *Handler) listRequests(c *gin.Context) {
	tracker := h.svc.Tracker()
	if tracker == nil {
		response.ServiceUnavailable(c, "request tracking is disabled")
		return
	}
	q, err := pagination.Parse(c, statusFilter)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	var status *taskqueue.TaskStatus
	if q.Value != "" {
		st := taskqueue.TaskStatus(q.Value)
		status = &st
	}
	items, total, err := tracker.List(c.Request.Context(), q.Page, q.Size, status)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Paged(c, items, pagination.Meta(total, q))
}

func (h *Handler) getRequest(c *gin.Context) {
	tracker := h.svc.Tracker()
	if tracker == nil {
		response.ServiceUnavailable(c, "request tracking is disabled")
		return
	}
	task, err := tracker.GetByID(c.Request.Context(), c.Param("id"))
	if errors.Is(err, taskqueue.ErrTaskNotFound) {
		response.NotFoundMsg(c, "generation request not found")
		return
	}
	if err != nil {
		response.InternalError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}
