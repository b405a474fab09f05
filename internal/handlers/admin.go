package handlers

import (
	"errors"
	"log"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"krayotmarket/internal/backend"
	"krayotmarket/internal/models"
	"krayotmarket/internal/services"
)

// AuthMiddleware lets only holders of a live admin token through. Page
// requests are sent to the login form; API requests get 401.
func (h *Handler) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie(adminCookie)
		if h.admin.Authenticated(c.Request.Context(), token) {
			c.Next()
			return
		}
		if c.Request.Method == http.MethodGet && c.NegotiateFormat(gin.MIMEHTML, gin.MIMEJSON) == gin.MIMEHTML {
			c.Redirect(http.StatusSeeOther, "/admin/login")
		} else {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "נדרשת התחברות"})
		}
		c.Abort()
	}
}

func (h *Handler) AdminLoginPage(c *gin.Context) {
	c.HTML(http.StatusOK, "admin_login.html", gin.H{"title": "כניסת מנהל"})
}

func (h *Handler) AdminLogin(c *gin.Context) {
	token, err := h.admin.Login(c.Request.Context(), c.PostForm("password"), c.ClientIP())
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, services.ErrBadPassword) {
			status = http.StatusUnauthorized
		}
		c.HTML(status, "admin_login.html", gin.H{
			"title": "כניסת מנהל",
			"error": "סיסמה שגויה",
		})
		return
	}
	c.SetCookie(adminCookie, token, h.adminMaxAge, "/admin", "", h.secure, true)
	c.Redirect(http.StatusSeeOther, "/admin")
}

func (h *Handler) AdminLogout(c *gin.Context) {
	token, _ := c.Cookie(adminCookie)
	h.admin.Logout(c.Request.Context(), token, c.ClientIP())
	c.SetCookie(adminCookie, "", -1, "/admin", "", h.secure, true)
	c.Redirect(http.StatusSeeOther, "/admin/login")
}

// splitOrders separates open orders from supplied ones, keeping order.
func splitOrders(orders []models.Order) (open, supplied []models.Order) {
	open, supplied = []models.Order{}, []models.Order{}
	for _, o := range orders {
		if o.Status == models.OrderSupplied {
			supplied = append(supplied, o)
		} else {
			open = append(open, o)
		}
	}
	return open, supplied
}

// AdminPage is the orders dashboard.
func (h *Handler) AdminPage(c *gin.Context) {
	orders, err := h.backend.ListOrders(c.Request.Context())
	data := gin.H{"title": "ניהול הזמנות"}
	if err != nil {
		log.Printf("AdminPage - Error getting orders: %v", err)
		data["error"] = "לא ניתן לטעון הזמנות"
	}
	data["notSupplied"], data["supplied"] = splitOrders(orders)
	c.HTML(http.StatusOK, "admin.html", data)
}

func (h *Handler) AdminGetOrders(c *gin.Context) {
	orders, err := h.backend.ListOrders(c.Request.Context())
	if err != nil {
		log.Printf("AdminGetOrders - Error getting orders: %v", err)
		adminBackendError(c, err, "לא ניתן לטעון הזמנות")
		return
	}
	open, supplied := splitOrders(orders)
	c.JSON(http.StatusOK, gin.H{"success": true, "not_supplied": open, "supplied": supplied})
}

func (h *Handler) AdminUpdateOrderStatus(c *gin.Context) {
	var req struct {
		Status models.OrderStatus `json:"order_status"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || !req.Status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "סטטוס לא תקין"})
		return
	}

	orderID := c.Param("id")
	if err := h.backend.UpdateOrderStatus(c.Request.Context(), orderID, req.Status); err != nil {
		log.Printf("AdminUpdateOrderStatus - Order %s: %v", orderID, err)
		adminBackendError(c, err, "עדכון ההזמנה נכשל")
		return
	}
	log.Printf("AdminUpdateOrderStatus - Order %s is now %s", orderID, req.Status)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// filterProducts keeps products in the given category and subcategory;
// empty filters match everything.
func filterProducts(products []models.Product, categoryID, subcategoryID string) []models.Product {
	out := make([]models.Product, 0, len(products))
	for _, p := range products {
		if categoryID != "" && p.CategoryID != categoryID {
			continue
		}
		if subcategoryID != "" && p.SubcategoryID != subcategoryID {
			continue
		}
		out = append(out, p)
	}
	return out
}

func (h *Handler) AdminProducts(c *gin.Context) {
	ctx := c.Request.Context()
	products, err := h.backend.ListProducts(ctx)
	if err != nil {
		log.Printf("AdminProducts - Error getting products: %v", err)
	}
	products = filterProducts(products, c.Query("category_id"), c.Query("subcategory_id"))

	if c.NegotiateFormat(gin.MIMEHTML, gin.MIMEJSON) == gin.MIMEJSON {
		if err != nil {
			adminBackendError(c, err, "לא ניתן לטעון מוצרים")
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "products": products})
		return
	}

	if lerr := h.catalog.EnsureLoaded(ctx); lerr != nil {
		log.Printf("AdminProducts - Catalog unavailable: %v", lerr)
	}
	categoryID := c.Query("category_id")
	data := gin.H{
		"title":         "ניהול מוצרים",
		"products":      products,
		"tree":          h.catalog.Categories(),
		"categoryID":    categoryID,
		"subcategoryID": c.Query("subcategory_id"),
	}
	if cats, cerr := h.backend.Categories(ctx); cerr == nil {
		data["categories"] = cats
	} else {
		log.Printf("AdminProducts - Error getting categories: %v", cerr)
	}
	if categoryID != "" {
		if subs, serr := h.backend.Subcategories(ctx, categoryID); serr == nil {
			data["subcategories"] = subs
		} else {
			log.Printf("AdminProducts - Error getting subcategories: %v", serr)
		}
	}
	if err != nil {
		data["error"] = "לא ניתן לטעון מוצרים"
	}
	c.HTML(http.StatusOK, "admin_products.html", data)
}

// productForm reads and validates the product fields before any backend
// call: name and subcategory are required, price must be a number >= 0.
func productForm(c *gin.Context) (models.ProductForm, string) {
	f := models.ProductForm{
		SubcategoryID: strings.TrimSpace(c.PostForm("subcategory_id")),
		Name:          strings.TrimSpace(c.PostForm("name_he")),
		Description:   strings.TrimSpace(c.PostForm("description_he")),
		Price:         strings.TrimSpace(c.PostForm("price")),
		Hidden:        formBool(c.PostForm("hidden")),
	}
	if f.Name == "" {
		return f, "נא למלא שם מוצר"
	}
	if f.SubcategoryID == "" {
		return f, "נא לבחור תת-קטגוריה"
	}
	price, err := decimal.NewFromString(f.Price)
	if err != nil || price.IsNegative() {
		return f, "מחיר לא תקין"
	}
	f.Price = price.String()
	return f, ""
}

func formBool(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

// imageUpload returns the optional "image" file under a fresh unique name.
// The caller closes it.
func imageUpload(c *gin.Context) (*backend.Upload, multipart.File, error) {
	header, err := c.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	file, err := header.Open()
	if err != nil {
		return nil, nil, err
	}
	return &backend.Upload{
		Filename:    uuid.New().String() + strings.ToLower(filepath.Ext(header.Filename)),
		ContentType: header.Header.Get("Content-Type"),
		Body:        file,
	}, file, nil
}

// withImage runs fn with the request's optional image.
func withImage(c *gin.Context, fn func(*backend.Upload) error) error {
	upload, file, err := imageUpload(c)
	if err != nil {
		return err
	}
	if file != nil {
		defer file.Close()
	}
	return fn(upload)
}

// refreshCatalog refetches the shopper catalog after an admin write.
func (h *Handler) refreshCatalog(c *gin.Context) {
	if err := h.catalog.Load(c.Request.Context()); err != nil {
		log.Printf("refreshCatalog - %v", err)
	}
}

func adminBackendError(c *gin.Context, err error, fallback string) {
	var api *backend.APIError
	if errors.As(err, &api) && api.Message != "" {
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "error": api.Message})
		return
	}
	c.JSON(http.StatusBadGateway, gin.H{"success": false, "error": fallback})
}

func (h *Handler) AdminCreateProduct(c *gin.Context) {
	form, problem := productForm(c)
	if problem != "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": problem})
		return
	}

	var created models.Product
	err := withImage(c, func(img *backend.Upload) error {
		var err error
		created, err = h.backend.CreateProduct(c.Request.Context(), form, img)
		return err
	})
	if err != nil {
		log.Printf("AdminCreateProduct - %v", err)
		adminBackendError(c, err, "הוספת המוצר נכשלה")
		return
	}
	h.refreshCatalog(c)
	c.JSON(http.StatusOK, gin.H{"success": true, "product": created})
}

func (h *Handler) AdminUpdateProduct(c *gin.Context) {
	form, problem := productForm(c)
	if problem != "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": problem})
		return
	}

	err := withImage(c, func(img *backend.Upload) error {
		return h.backend.UpdateProduct(c.Request.Context(), c.Param("id"), form, img)
	})
	if err != nil {
		log.Printf("AdminUpdateProduct - %v", err)
		adminBackendError(c, err, "עדכון המוצר נכשל")
		return
	}
	h.refreshCatalog(c)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) AdminDeleteProduct(c *gin.Context) {
	if err := h.backend.DeleteProduct(c.Request.Context(), c.Param("id")); err != nil {
		log.Printf("AdminDeleteProduct - %v", err)
		adminBackendError(c, err, "מחיקת המוצר נכשלה")
		return
	}
	h.refreshCatalog(c)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) AdminCategories(c *gin.Context) {
	if err := h.catalog.Load(c.Request.Context()); err != nil {
		log.Printf("AdminCategories - %v", err)
	}
	if c.NegotiateFormat(gin.MIMEHTML, gin.MIMEJSON) == gin.MIMEJSON {
		c.JSON(http.StatusOK, gin.H{"success": true, "categories": h.catalog.Categories()})
		return
	}
	c.HTML(http.StatusOK, "admin_categories.html", gin.H{
		"title":      "ניהול קטגוריות",
		"categories": h.catalog.Categories(),
	})
}

func categoryForm(c *gin.Context, needsParent bool) (models.CategoryForm, string) {
	var f models.CategoryForm
	if err := c.ShouldBind(&f); err != nil {
		return f, "בקשה לא תקינה"
	}
	f.Name = strings.TrimSpace(f.Name)
	if f.Name == "" {
		return f, "נא למלא שם"
	}
	if needsParent && f.CategoryID == "" {
		return f, "נא לבחור קטגוריה"
	}
	return f, ""
}

// catalogWrite validates, calls the backend with the optional image and
// refreshes the catalog.
func (h *Handler) catalogWrite(c *gin.Context, needsParent bool, failMsg string, call func(models.CategoryForm, *backend.Upload) error) {
	form, problem := categoryForm(c, needsParent)
	if problem != "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": problem})
		return
	}
	err := withImage(c, func(img *backend.Upload) error { return call(form, img) })
	if err != nil {
		log.Printf("catalogWrite - %v", err)
		adminBackendError(c, err, failMsg)
		return
	}
	h.refreshCatalog(c)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) AdminCreateCategory(c *gin.Context) {
	h.catalogWrite(c, false, "הוספת הקטגוריה נכשלה", func(f models.CategoryForm, img *backend.Upload) error {
		return h.backend.CreateCategory(c.Request.Context(), f, img)
	})
}

func (h *Handler) AdminUpdateCategory(c *gin.Context) {
	h.catalogWrite(c, false, "עדכון הקטגוריה נכשל", func(f models.CategoryForm, img *backend.Upload) error {
		return h.backend.UpdateCategory(c.Request.Context(), c.Param("id"), f, img)
	})
}

func (h *Handler) AdminDeleteCategory(c *gin.Context) {
	if err := h.backend.DeleteCategory(c.Request.Context(), c.Param("id")); err != nil {
		adminBackendError(c, err, "מחיקת הקטגוריה נכשלה")
		return
	}
	h.refreshCatalog(c)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) AdminCreateSubcategory(c *gin.Context) {
	h.catalogWrite(c, true, "הוספת תת-הקטגוריה נכשלה", func(f models.CategoryForm, img *backend.Upload) error {
		return h.backend.CreateSubcategory(c.Request.Context(), f, img)
	})
}

func (h *Handler) AdminUpdateSubcategory(c *gin.Context) {
	h.catalogWrite(c, true, "עדכון תת-הקטגוריה נכשל", func(f models.CategoryForm, img *backend.Upload) error {
		return h.backend.UpdateSubcategory(c.Request.Context(), c.Param("id"), f, img)
	})
}

func (h *Handler) AdminDeleteSubcategory(c *gin.Context) {
	if err := h.backend.DeleteSubcategory(c.Request.Context(), c.Param("id")); err != nil {
		adminBackendError(c, err, "מחיקת תת-הקטגוריה נכשלה")
		return
	}
	h.refreshCatalog(c)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) AdminCarousel(c *gin.Context) {
	slides, err := h.backend.Carousel(c.Request.Context())
	if c.NegotiateFormat(gin.MIMEHTML, gin.MIMEJSON) == gin.MIMEJSON {
		if err != nil {
			adminBackendError(c, err, "לא ניתן לטעון תמונות")
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "slides": slides})
		return
	}
	data := gin.H{"title": "קרוסלה", "slides": slides}
	if err != nil {
		log.Printf("AdminCarousel - %v", err)
		data["error"] = "לא ניתן לטעון תמונות"
	}
	c.HTML(http.StatusOK, "admin_carousel.html", data)
}

func (h *Handler) AdminCreateCarouselSlide(c *gin.Context) {
	upload, file, err := imageUpload(c)
	if err != nil || upload == nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "נא לבחור תמונה"})
		return
	}
	defer file.Close()

	if err := h.backend.CreateCarouselSlide(c.Request.Context(), strings.TrimSpace(c.PostForm("link")), upload); err != nil {
		log.Printf("AdminCreateCarouselSlide - %v", err)
		adminBackendError(c, err, "העלאת התמונה נכשלה")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) AdminDeleteCarouselSlide(c *gin.Context) {
	if err := h.backend.DeleteCarouselSlide(c.Request.Context(), c.Param("id")); err != nil {
		adminBackendError(c, err, "מחיקת התמונה נכשלה")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
