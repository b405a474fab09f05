package backend

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"krayotmarket/internal/models"
)

// ListOrders returns every order, newest first as the backend sorts them.
func (c *Client) ListOrders(ctx context.Context) ([]models.Order, error) {
	var orders []models.Order
	if err := c.getJSON(ctx, "/admin/orders", &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// UpdateOrderStatus marks an order supplied or not supplied.
func (c *Client) UpdateOrderStatus(ctx context.Context, orderID string, status models.OrderStatus) error {
	body := map[string]models.OrderStatus{"order_status": status}
	return c.sendJSON(ctx, http.MethodPatch, "/admin/orders/"+url.PathEscape(orderID), body, nil)
}

// ListProducts returns every product including hidden ones.
func (c *Client) ListProducts(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	if err := c.getJSON(ctx, "/admin/products", &products); err != nil {
		return nil, err
	}
	return products, nil
}

func productFields(p models.ProductForm) map[string]string {
	return map[string]string{
		"subcategory_id": p.SubcategoryID,
		"name_he":        p.Name,
		"description_he": p.Description,
		"price":          p.Price,
		"hidden":         strconv.FormatBool(p.Hidden),
	}
}

// CreateProduct adds a product with an optional image.
func (c *Client) CreateProduct(ctx context.Context, p models.ProductForm, image *Upload) (models.Product, error) {
	var created models.Product
	fields := productFields(p)
	if p.Description == "" {
		delete(fields, "description_he")
	}
	delete(fields, "hidden")
	err := c.sendMultipart(ctx, http.MethodPost, "/admin/products", fields, image, &created)
	return created, err
}

// UpdateProduct replaces a product's fields and, when given, its image.
func (c *Client) UpdateProduct(ctx context.Context, id string, p models.ProductForm, image *Upload) error {
	return c.sendMultipart(ctx, http.MethodPatch, "/admin/products/"+url.PathEscape(id), productFields(p), image, nil)
}

// DeleteProduct removes a product.
func (c *Client) DeleteProduct(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/admin/products/"+url.PathEscape(id), nil, "", nil)
}

func categoryFields(f models.CategoryForm) map[string]string {
	fields := map[string]string{
		"name_he":    f.Name,
		"sort_order": strconv.Itoa(f.SortOrder),
	}
	if f.Icon != "" {
		fields["icon"] = f.Icon
	}
	if f.CategoryID != "" {
		fields["category_id"] = f.CategoryID
	}
	return fields
}

// CreateCategory adds a top-level category.
func (c *Client) CreateCategory(ctx context.Context, f models.CategoryForm, image *Upload) error {
	return c.sendMultipart(ctx, http.MethodPost, "/admin/categories", categoryFields(f), image, nil)
}

// UpdateCategory edits a category.
func (c *Client) UpdateCategory(ctx context.Context, id string, f models.CategoryForm, image *Upload) error {
	return c.sendMultipart(ctx, http.MethodPatch, "/admin/categories/"+url.PathEscape(id), categoryFields(f), image, nil)
}

// DeleteCategory removes a category.
func (c *Client) DeleteCategory(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/admin/categories/"+url.PathEscape(id), nil, "", nil)
}

// CreateSubcategory adds a subcategory under f.CategoryID.
func (c *Client) CreateSubcategory(ctx context.Context, f models.CategoryForm, image *Upload) error {
	return c.sendMultipart(ctx, http.MethodPost, "/admin/subcategories", categoryFields(f), image, nil)
}

// UpdateSubcategory edits a subcategory.
func (c *Client) UpdateSubcategory(ctx context.Context, id string, f models.CategoryForm, image *Upload) error {
	return c.sendMultipart(ctx, http.MethodPatch, "/admin/subcategories/"+url.PathEscape(id), categoryFields(f), image, nil)
}

// DeleteSubcategory removes a subcategory.
func (c *Client) DeleteSubcategory(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/admin/subcategories/"+url.PathEscape(id), nil, "", nil)
}

// CreateCarouselSlide uploads a homepage slide.
func (c *Client) CreateCarouselSlide(ctx context.Context, link string, image *Upload) error {
	fields := map[string]string{}
	if link != "" {
		fields["link"] = link
	}
	return c.sendMultipart(ctx, http.MethodPost, "/admin/carousel", fields, image, nil)
}

// DeleteCarouselSlide removes a homepage slide.
func (c *Client) DeleteCarouselSlide(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/admin/carousel/"+url.PathEscape(id), nil, "", nil)
}
