package handlers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *Handler) HomePage(c *gin.Context) {
	sessionID := h.shopperSession(c)
	ctx := c.Request.Context()

	if err := h.catalog.EnsureLoaded(ctx); err != nil {
		log.Printf("HomePage - Catalog unavailable: %v", err)
	}
	slides, err := h.backend.Carousel(ctx)
	if err != nil {
		log.Printf("HomePage - Error getting carousel: %v", err)
	}

	c.HTML(http.StatusOK, "home.html", h.page(c, sessionID, "קריות מרקט", gin.H{
		"categories": h.catalog.Categories(),
		"slides":     slides,
	}))
}

func (h *Handler) CategoryPage(c *gin.Context) {
	sessionID := h.shopperSession(c)
	if err := h.catalog.EnsureLoaded(c.Request.Context()); err != nil {
		log.Printf("CategoryPage - Catalog unavailable: %v", err)
	}

	category, ok := h.catalog.Category(c.Param("id"))
	if !ok {
		c.Redirect(http.StatusSeeOther, "/")
		return
	}
	c.HTML(http.StatusOK, "category.html", h.page(c, sessionID, category.Name, gin.H{
		"category": category,
	}))
}

func (h *Handler) SubcategoryPage(c *gin.Context) {
	sessionID := h.shopperSession(c)
	if err := h.catalog.EnsureLoaded(c.Request.Context()); err != nil {
		log.Printf("SubcategoryPage - Catalog unavailable: %v", err)
	}

	sub, category, ok := h.catalog.Subcategory(c.Param("id"))
	if !ok {
		c.Redirect(http.StatusSeeOther, "/")
		return
	}
	c.HTML(http.StatusOK, "subcategory.html", h.page(c, sessionID, sub.Name, gin.H{
		"category":    category,
		"subcategory": sub,
	}))
}

// Cart handlers
func (h *Handler) CartPage(c *gin.Context) {
	sessionID := h.shopperSession(c)
	cart := h.cartService.Cart(c.Request.Context(), sessionID)
	pricing := h.cartService.Pricing()

	c.HTML(http.StatusOK, "cart.html", h.page(c, sessionID, "סל הקניות", gin.H{
		"cart":            cart,
		"freeShippingMin": pricing.FreeShippingMin,
	}))
}

type cartRequest struct {
	ProductID *string `json:"product_id" form:"product_id"`
	Quantity  int     `json:"quantity" form:"quantity"`
}

func (h *Handler) AddToCart(c *gin.Context) {
	sessionID := h.shopperSession(c)

	var req cartRequest
	if err := c.ShouldBind(&req); err != nil || req.ProductID == nil {
		log.Printf("AddToCart - Bind error: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "בקשה לא תקינה"})
		return
	}

	ctx := c.Request.Context()
	if err := h.catalog.EnsureLoaded(ctx); err != nil {
		log.Printf("AddToCart - Catalog unavailable: %v", err)
	}
	product, ok := h.catalog.Product(*req.ProductID)
	if !ok {
		log.Printf("AddToCart - Product not found: %s", *req.ProductID)
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "המוצר לא נמצא"})
		return
	}

	cart, err := h.cartService.Add(ctx, sessionID, product)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "לא ניתן לעדכן את הסל"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "cart": cart})
}

// UpdateCartItem sets a quantity. A null product_id addresses the test item.
func (h *Handler) UpdateCartItem(c *gin.Context) {
	sessionID := h.shopperSession(c)

	var req cartRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "בקשה לא תקינה"})
		return
	}

	cart, err := h.cartService.SetQuantity(c.Request.Context(), sessionID, req.ProductID, req.Quantity)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "לא ניתן לעדכן את הסל"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "cart": cart})
}

func (h *Handler) RemoveFromCart(c *gin.Context) {
	sessionID := h.shopperSession(c)

	var req cartRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "בקשה לא תקינה"})
		return
	}

	cart, err := h.cartService.Remove(c.Request.Context(), sessionID, req.ProductID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "לא ניתן לעדכן את הסל"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "cart": cart})
}

func (h *Handler) ClearCart(c *gin.Context) {
	sessionID := h.shopperSession(c)
	ctx := c.Request.Context()
	if err := h.cartService.Clear(ctx, sessionID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "לא ניתן לרוקן את הסל"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "cart": h.cartService.Cart(ctx, sessionID)})
}

func (h *Handler) GetCartCount(c *gin.Context) {
	sessionID, _ := c.Cookie(sessionCookie)
	if sessionID == "" {
		c.JSON(http.StatusOK, gin.H{"count": 0})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": h.cartService.Cart(c.Request.Context(), sessionID).Count})
}

// TestPayment replaces the cart with the 5 shekel test item and goes to
// checkout.
func (h *Handler) TestPayment(c *gin.Context) {
	sessionID := h.shopperSession(c)
	if _, err := h.cartService.ReplaceWithTestItem(c.Request.Context(), sessionID); err != nil {
		log.Printf("TestPayment - Error: %v", err)
		c.Redirect(http.StatusSeeOther, "/cart")
		return
	}
	log.Printf("TestPayment - Session %s: test item in cart", sessionID)
	c.Redirect(http.StatusSeeOther, "/checkout")
}

func (h *Handler) OrderConfirmationPage(c *gin.Context) {
	sessionID := h.shopperSession(c)
	c.HTML(http.StatusOK, "order_confirmation.html", h.page(c, sessionID, "ההזמנה התקבלה", gin.H{
		"orderId": c.Param("orderId"),
	}))
}
