package notification

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/travel-notifications/internal/handler"
	"github.com/jwalitptl/travel-notifications/internal/middleware"
	notificationService "github.com/jwalitptl/travel-notifications/internal/service/notification"
	"github.com/jwalitptl/travel-notifications/internal/viewmodel"
	apperrors "github.com/jwalitptl/travel-notifications/pkg/errors"
)

type Handler struct {
	service notificationService.Service
}

func NewHandler(service notificationService.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	notifications := r.Group("/notifications")
	{
		notifications.GET("", h.GetFeed)
		notifications.DELETE("", h.ClearAll)
		notifications.POST("/reload", h.Reload)
		notifications.POST("/read-all", h.MarkAllSeen)
		notifications.POST("/:id/click", h.Click)
		notifications.POST("/:id/read", h.MarkSeen)
		notifications.GET("/toasts", h.Toasts)
		notifications.POST("/panel/open", h.OpenPanel)
		notifications.POST("/panel/close", h.ClosePanel)
		notifications.POST("/panel/toggle", h.TogglePanel)
		notifications.DELETE("/session", h.EndSession)
	}
}

type clearRequest struct {
	Confirm bool `form:"confirm"`
}

func (h *Handler) session(c *gin.Context) (*notificationService.Session, bool) {
	viewer, ok := middleware.ViewerFrom(c)
	if !ok {
		handler.Abort(c, http.StatusUnauthorized, "missing viewer")
		return nil, false
	}
	sess, err := h.service.Session(c.Request.Context(), viewer)
	if err != nil {
		_ = c.Error(apperrors.Unavailable("notifications unavailable", err))
		return nil, false
	}
	return sess, true
}

func (h *Handler) GetFeed(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	handler.OK(c, sess.Feed.Snapshot())
}

func (h *Handler) Reload(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	if err := sess.Feed.Reload(c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}
	handler.OK(c, sess.Feed.Snapshot())
}

func (h *Handler) Click(c *gin.Context) {
	h.withID(c, func(sess *notificationService.Session, id uuid.UUID) error {
		return sess.Feed.Click(c.Request.Context(), id)
	})
}

func (h *Handler) MarkSeen(c *gin.Context) {
	h.withID(c, func(sess *notificationService.Session, id uuid.UUID) error {
		return sess.Feed.MarkSeen(c.Request.Context(), id)
	})
}

func (h *Handler) MarkAllSeen(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	if err := sess.Feed.MarkAllSeen(c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}
	handler.OK(c, sess.Feed.Snapshot())
}

func (h *Handler) ClearAll(c *gin.Context) {
	var req clearRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		handler.Abort(c, http.StatusBadRequest, "invalid confirm flag")
		return
	}
	sess, ok := h.session(c)
	if !ok {
		return
	}
	if err := sess.Feed.ClearAll(c.Request.Context(), req.Confirm); err != nil {
		h.fail(c, err)
		return
	}
	handler.OK(c, sess.Feed.Snapshot())
}

func (h *Handler) Toasts(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	handler.OK(c, sess.Toasts.Drain())
}

func (h *Handler) OpenPanel(c *gin.Context) {
	h.panel(c, (*viewmodel.ViewModel).OpenPanel)
}

func (h *Handler) ClosePanel(c *gin.Context) {
	h.panel(c, (*viewmodel.ViewModel).ClosePanel)
}

func (h *Handler) TogglePanel(c *gin.Context) {
	h.panel(c, (*viewmodel.ViewModel).TogglePanel)
}

func (h *Handler) EndSession(c *gin.Context) {
	viewer, ok := middleware.ViewerFrom(c)
	if !ok {
		handler.Abort(c, http.StatusUnauthorized, "missing viewer")
		return
	}
	h.service.End(viewer.ID)
	c.Status(http.StatusNoContent)
}

func (h *Handler) panel(c *gin.Context, action func(*viewmodel.ViewModel)) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	action(sess.Feed)
	handler.OK(c, sess.Feed.Snapshot())
}

func (h *Handler) withID(c *gin.Context, action func(*notificationService.Session, uuid.UUID) error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		handler.Abort(c, http.StatusBadRequest, "invalid notification ID")
		return
	}
	sess, ok := h.session(c)
	if !ok {
		return
	}
	if err := action(sess, id); err != nil {
		h.fail(c, err)
		return
	}
	handler.OK(c, sess.Feed.Snapshot())
}

// fail hands the error to middleware.ErrorHandler with a status attached.
func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, viewmodel.ErrNotFound):
		err = apperrors.NotFound("notification", err)
	case errors.Is(err, viewmodel.ErrDisabled):
		err = apperrors.Forbidden("notifications are disabled", err)
	case errors.Is(err, viewmodel.ErrConfirmationRequired):
		err = apperrors.BadRequest("confirmation required", err)
	default:
		err = apperrors.Unavailable("notification backend unavailable", err)
	}
	_ = c.Error(err)
}
