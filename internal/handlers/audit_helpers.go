package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"community-chat/internal/chat"
	"community-chat/internal/middleware"
	"community-chat/internal/models"
	"community-chat/internal/observability"
	"community-chat/internal/telemetry"
)

func requestIDFromContext(c *gin.Context) string {
	if id := c.GetString(observability.RequestIDKey); id != "" {
		return id
	}

	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(observability.RequestIDKey, requestID)
	return requestID
}

func userIDFromContext(c *gin.Context) *string {
	if userID := c.GetString(middleware.UserIDKey); userID != "" {
		return &userID
	}
	if header := c.GetHeader("X-User-ID"); header != "" {
		return &header
	}
	return nil
}

func emitAudit(c *gin.Context, audit *telemetry.AuditEmitter, entry telemetry.Entry) {
	audit.Record(c.Request.Context(), entry, requestIDFromContext(c), userIDFromContext(c))
}

// principalOrAbort returns the authenticated principal or answers 401.
func principalOrAbort(c *gin.Context) (models.Principal, bool) {
	principal, ok := middleware.Principal(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return models.Principal{}, false
	}
	return principal, true
}

// respondError writes the scoped error message with the status of its code.
func respondError(c *gin.Context, err error) {
	chatErr := chat.AsError(err)
	c.JSON(statusFor(chatErr.Code), gin.H{"error": chatErr.Message})
}

func statusFor(code chat.Code) int {
	switch code {
	case chat.CodeNotFound:
		return http.StatusNotFound
	case chat.CodeUnauthorized:
		return http.StatusForbidden
	case chat.CodeInvalid:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func isInternal(err error) bool {
	var chatErr *chat.Error
	return !errors.As(err, &chatErr) || chatErr.Code == chat.CodeInternal
}
