package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"krayotmarket/internal/models"
	"krayotmarket/internal/services"
)

func (h *Handler) GetAccessibility(c *gin.Context) {
	sessionID := h.shopperSession(c)
	c.JSON(http.StatusOK, gin.H{"success": true, "settings": h.prefs.Accessibility(c.Request.Context(), sessionID)})
}

func (h *Handler) SetAccessibility(c *gin.Context) {
	sessionID := h.shopperSession(c)

	var s models.AccessibilitySettings
	if err := c.ShouldBindJSON(&s); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "בקשה לא תקינה"})
		return
	}
	saved, err := h.prefs.SetAccessibility(c.Request.Context(), sessionID, s)
	if err != nil {
		var ve *services.ValidationError
		if errors.As(err, &ve) {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": ve.Message})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "לא ניתן לשמור את ההגדרות"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "settings": saved})
}

func (h *Handler) ResetAccessibility(c *gin.Context) {
	sessionID := h.shopperSession(c)
	settings, err := h.prefs.ResetAccessibility(c.Request.Context(), sessionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "לא ניתן לאפס את ההגדרות"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "settings": settings})
}

func (h *Handler) AcceptTerms(c *gin.Context) {
	sessionID := h.shopperSession(c)
	if err := h.prefs.AcceptTerms(c.Request.Context(), sessionID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "לא ניתן לשמור"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
