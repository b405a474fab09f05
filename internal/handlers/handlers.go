package handlers

import (
	"context"
	"html/template"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"krayotmarket/internal/backend"
	"krayotmarket/internal/models"
	"krayotmarket/internal/services"
	"krayotmarket/internal/slots"
)

const (
	sessionCookie = "user_session"
	adminCookie   = "admin_session"
)

// Backend is what the handlers call directly on the business API. Shopper
// checkout goes through services instead.
type Backend interface {
	Carousel(ctx context.Context) ([]models.CarouselSlide, error)
	Categories(ctx context.Context) ([]models.Category, error)
	Subcategories(ctx context.Context, categoryID string) ([]models.Subcategory, error)
	ListOrders(ctx context.Context) ([]models.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID string, status models.OrderStatus) error
	ListProducts(ctx context.Context) ([]models.Product, error)
	CreateProduct(ctx context.Context, p models.ProductForm, image *backend.Upload) (models.Product, error)
	UpdateProduct(ctx context.Context, id string, p models.ProductForm, image *backend.Upload) error
	DeleteProduct(ctx context.Context, id string) error
	CreateCategory(ctx context.Context, f models.CategoryForm, image *backend.Upload) error
	UpdateCategory(ctx context.Context, id string, f models.CategoryForm, image *backend.Upload) error
	DeleteCategory(ctx context.Context, id string) error
	CreateSubcategory(ctx context.Context, f models.CategoryForm, image *backend.Upload) error
	UpdateSubcategory(ctx context.Context, id string, f models.CategoryForm, image *backend.Upload) error
	DeleteSubcategory(ctx context.Context, id string) error
	CreateCarouselSlide(ctx context.Context, link string, image *backend.Upload) error
	DeleteCarouselSlide(ctx context.Context, id string) error
}

// Deps wires a Handler.
type Deps struct {
	Backend       Backend
	Catalog       *services.Catalog
	Cart          *services.CartService
	Checkouts     *services.CheckoutRegistry
	Preferences   *services.Preferences
	Admin         *services.AdminGate
	TrustedOrigin string
	SecureCookies bool
	CartTTL       time.Duration
	AdminTTL      time.Duration
}

// Handler serves the storefront and the admin console.
type Handler struct {
	backend       Backend
	catalog       *services.Catalog
	cartService   *services.CartService
	checkouts     *services.CheckoutRegistry
	prefs         *services.Preferences
	admin         *services.AdminGate
	trustedOrigin string
	secure        bool
	cartMaxAge    int
	adminMaxAge   int
}

func NewHandler(d Deps) *Handler {
	h := &Handler{
		backend:       d.Backend,
		catalog:       d.Catalog,
		cartService:   d.Cart,
		checkouts:     d.Checkouts,
		prefs:         d.Preferences,
		admin:         d.Admin,
		trustedOrigin: d.TrustedOrigin,
		secure:        d.SecureCookies,
		cartMaxAge:    int(d.CartTTL.Seconds()),
		adminMaxAge:   int(d.AdminTTL.Seconds()),
	}
	if h.cartMaxAge <= 0 {
		h.cartMaxAge = 3600 * 24 * 30
	}
	if h.adminMaxAge <= 0 {
		h.adminMaxAge = 3600 * 12
	}
	return h
}

// RegisterRoutes installs every route on r.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	r.GET("/", h.HomePage)
	r.GET("/category/:id", h.CategoryPage)
	r.GET("/subcategory/:id", h.SubcategoryPage)

	// Cart
	r.GET("/cart", h.CartPage)
	r.POST("/cart/add", h.AddToCart)
	r.POST("/cart/update", h.UpdateCartItem)
	r.POST("/cart/remove", h.RemoveFromCart)
	r.POST("/cart/clear", h.ClearCart)
	r.GET("/cart/count", h.GetCartCount)
	r.GET("/test-payment", h.TestPayment)

	r.GET("/checkout", h.CheckoutPage)
	r.POST("/checkout/form", h.UpdateCheckoutForm)
	r.POST("/checkout/refresh", h.RefreshCheckout)
	r.POST("/checkout/submit", h.SubmitCheckout)
	r.GET("/checkout/card", h.CardState)
	r.POST("/checkout/card/loaded", h.CardFrameLoaded)
	r.POST("/checkout/card/pay", h.CardPay)
	r.POST("/checkout/card/message", h.CardMessage)
	r.POST("/checkout/cancel", h.CancelCheckout)
	r.GET("/order-confirmation/:orderId", h.OrderConfirmationPage)

	r.GET("/preferences/accessibility", h.GetAccessibility)
	r.POST("/preferences/accessibility", h.SetAccessibility)
	r.POST("/preferences/accessibility/reset", h.ResetAccessibility)
	r.POST("/terms/accept", h.AcceptTerms)

	// Admin authentication (unguarded)
	r.GET("/admin/login", h.AdminLoginPage)
	r.POST("/admin/login", h.AdminLogin)
	r.GET("/admin/logout", h.AdminLogout)

	admin := r.Group("/admin")
	admin.Use(h.AuthMiddleware())
	{
		admin.GET("", h.AdminPage)
		admin.GET("/orders", h.AdminGetOrders)
		admin.PATCH("/orders/:id", h.AdminUpdateOrderStatus)

		admin.GET("/products", h.AdminProducts)
		admin.POST("/products", h.AdminCreateProduct)
		admin.PUT("/products/:id", h.AdminUpdateProduct)
		admin.DELETE("/products/:id", h.AdminDeleteProduct)

		admin.GET("/categories", h.AdminCategories)
		admin.POST("/categories", h.AdminCreateCategory)
		admin.PUT("/categories/:id", h.AdminUpdateCategory)
		admin.DELETE("/categories/:id", h.AdminDeleteCategory)
		admin.POST("/subcategories", h.AdminCreateSubcategory)
		admin.PUT("/subcategories/:id", h.AdminUpdateSubcategory)
		admin.DELETE("/subcategories/:id", h.AdminDeleteSubcategory)

		admin.GET("/carousel", h.AdminCarousel)
		admin.POST("/carousel", h.AdminCreateCarouselSlide)
		admin.DELETE("/carousel/:id", h.AdminDeleteCarouselSlide)
	}
}

// shopperSession returns the shopper's session id, issuing a cookie on
// first visit. Cookies that are not ours are replaced.
func (h *Handler) shopperSession(c *gin.Context) string {
	sessionID, _ := c.Cookie(sessionCookie)
	if _, err := uuid.Parse(sessionID); err != nil {
		sessionID = uuid.New().String()
		c.SetCookie(sessionCookie, sessionID, h.cartMaxAge, "/", "", h.secure, true)
	}
	return sessionID
}

// page merges the data every template needs into data.
func (h *Handler) page(c *gin.Context, sessionID, title string, data gin.H) gin.H {
	ctx := c.Request.Context()
	if data == nil {
		data = gin.H{}
	}
	data["title"] = title
	data["cartCount"] = h.cartService.Cart(ctx, sessionID).Count
	data["a11y"] = h.prefs.Accessibility(ctx, sessionID)
	data["termsAccepted"] = h.prefs.TermsAccepted(ctx, sessionID)
	data["current_url"] = c.Request.URL.Path
	return data
}

// TemplateFuncs are available in every page template.
var TemplateFuncs = template.FuncMap{
	"money": func(d decimal.Decimal) string {
		return "₪" + d.StringFixed(2)
	},
	"slotLabel": func(key string) string {
		if key == "" {
			return "מיידי"
		}
		return slots.FormatKey(key)
	},
	"months": func() []int {
		return []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	},
	"deref": func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	},
}
