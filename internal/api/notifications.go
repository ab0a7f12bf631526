package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// GET /notifications
func (h *Handler) Notifications(c echo.Context) error {
	items, err := h.Inbox.List(c.Request().Context(), userID(c))
	if err != nil {
		return h.fail(c, err)
	}
	unread := 0
	for _, n := range items {
		if n.ReadAt == nil {
			unread++
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"notifications": nonNil(items), "unread": unread})
}

// POST /notifications/:id/read
func (h *Handler) MarkNotificationRead(c echo.Context) error {
	if err := h.Inbox.MarkRead(c.Request().Context(), userID(c), c.Param("id")); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "notification marked as read"})
}
