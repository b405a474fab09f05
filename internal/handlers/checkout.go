package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"krayotmarket/internal/models"
	"krayotmarket/internal/payment"
	"krayotmarket/internal/services"
)

func (h *Handler) CheckoutPage(c *gin.Context) {
	sessionID := h.shopperSession(c)
	view := h.checkouts.Get(sessionID).Begin(c.Request.Context())

	c.HTML(http.StatusOK, "checkout.html", h.page(c, sessionID, "תשלום ומשלוח", gin.H{
		"checkout":      view,
		"trustedOrigin": h.trustedOrigin,
	}))
}

// checkoutJSON writes the checkout view, with a redirect once an order exists.
func checkoutJSON(c *gin.Context, view services.CheckoutView) {
	body := gin.H{"success": true, "checkout": view}
	if view.Step == services.StepDone && view.OrderID != "" {
		body["redirect"] = "/order-confirmation/" + view.OrderID
		body["order_id"] = view.OrderID
	}
	c.JSON(http.StatusOK, body)
}

// checkoutError maps orchestrator errors to responses. The view is always
// included so the page can re-render.
func checkoutError(c *gin.Context, view services.CheckoutView, err error) {
	body := gin.H{"success": false, "checkout": view}
	var ve *services.ValidationError
	switch {
	case errors.As(err, &ve):
		body["error"] = ve.Message
		body["field"] = ve.Field
		c.JSON(http.StatusBadRequest, body)
	case errors.Is(err, services.ErrEmptyCart):
		body["error"] = "אין מוצרים בסל"
		c.JSON(http.StatusBadRequest, body)
	case errors.Is(err, services.ErrOrderInProgress):
		body["error"] = "ההזמנה נשלחת, נא להמתין"
		c.JSON(http.StatusConflict, body)
	case errors.Is(err, services.ErrWrongStep), errors.Is(err, services.ErrNoSession):
		body["error"] = "הפעולה אינה זמינה בשלב זה"
		c.JSON(http.StatusConflict, body)
	default:
		body["error"] = view.Error
		if view.Error == "" {
			body["error"] = "שגיאה בשליחת ההזמנה"
		}
		c.JSON(http.StatusBadGateway, body)
	}
}

func (h *Handler) UpdateCheckoutForm(c *gin.Context) {
	sessionID := h.shopperSession(c)

	var form models.CheckoutForm
	if err := c.ShouldBind(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "בקשה לא תקינה"})
		return
	}
	view, err := h.checkouts.Get(sessionID).UpdateForm(c.Request.Context(), form)
	if err != nil {
		checkoutError(c, view, err)
		return
	}
	checkoutJSON(c, view)
}

func (h *Handler) RefreshCheckout(c *gin.Context) {
	sessionID := h.shopperSession(c)
	checkoutJSON(c, h.checkouts.Get(sessionID).RefreshAvailability(c.Request.Context()))
}

func (h *Handler) SubmitCheckout(c *gin.Context) {
	sessionID := h.shopperSession(c)

	var form models.CheckoutForm
	if err := c.ShouldBind(&form); err != nil {
		log.Printf("SubmitCheckout - Bind error: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "בקשה לא תקינה"})
		return
	}

	view, err := h.checkouts.Get(sessionID).Submit(c.Request.Context(), form)
	if err != nil {
		log.Printf("SubmitCheckout - Session %s: %v", sessionID, err)
		checkoutError(c, view, err)
		return
	}
	checkoutJSON(c, view)
}

// CardState is polled by the page while the payment session is opening.
func (h *Handler) CardState(c *gin.Context) {
	sessionID := h.shopperSession(c)
	checkoutJSON(c, h.checkouts.Get(sessionID).View(c.Request.Context()))
}

func (h *Handler) CardFrameLoaded(c *gin.Context) {
	sessionID := h.shopperSession(c)
	co := h.checkouts.Get(sessionID)

	msg, delay, err := co.FrameLoaded()
	if err != nil {
		checkoutError(c, co.View(c.Request.Context()), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"message":  msg,
		"delay_ms": delay.Milliseconds(),
		"target":   h.trustedOrigin,
	})
}

func (h *Handler) CardPay(c *gin.Context) {
	sessionID := h.shopperSession(c)
	co := h.checkouts.Get(sessionID)

	var req payment.TransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "בקשה לא תקינה"})
		return
	}
	msg, err := co.Pay(req)
	if err != nil {
		checkoutError(c, co.View(c.Request.Context()), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": msg, "target": h.trustedOrigin})
}

// CardMessage receives a frame message relayed by the page. Origin is the
// value the page read from the browser's MessageEvent and is not verified
// here, so the trusted-origin check in ReceiveResult only filters what an
// honest page relays. It does not authenticate the payment result.
func (h *Handler) CardMessage(c *gin.Context) {
	sessionID := h.shopperSession(c)

	var in payment.Inbound
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "בקשה לא תקינה"})
		return
	}
	view, err := h.checkouts.Get(sessionID).HandleMessage(c.Request.Context(), in)
	if err != nil {
		checkoutError(c, view, err)
		return
	}
	checkoutJSON(c, view)
}

func (h *Handler) CancelCheckout(c *gin.Context) {
	sessionID := h.shopperSession(c)
	checkoutJSON(c, h.checkouts.Get(sessionID).Cancel(c.Request.Context()))
}
