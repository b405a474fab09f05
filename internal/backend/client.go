// Package backend is the REST client for the store's business API. The API
// owns persistence, inventory and order creation.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"krayotmarket/internal/models"
)

// APIError is a non-success response. Message carries the server's "error"
// field when it sent one.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.Status, e.Message)
}

// ShopperMessage is the text shown next to the failed action.
func (e *APIError) ShopperMessage() string {
	return e.Message
}

// Client talks to <base>/api.
type Client struct {
	base string
	http *http.Client
}

// NewClient builds a client for baseURL. A nil httpClient gets a plain client
// with a 15 second timeout.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		base: strings.TrimRight(baseURL, "/") + "/api",
		http: httpClient,
	}
}

// Upload is an optional image attached to a multipart admin request.
type Upload struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s %s: reading body: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var payload struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
			apiErr.Message = payload.Error
		}
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s %s: decoding response: %w", method, path, err)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, "", out)
}

func (c *Client) sendJSON(ctx context.Context, method, path string, in, out interface{}) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return c.do(ctx, method, path, bytes.NewReader(raw), "application/json", out)
}

func (c *Client) sendMultipart(ctx context.Context, method, path string, fields map[string]string, upload *Upload, out interface{}) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return err
		}
	}
	if upload != nil && upload.Body != nil {
		part, err := w.CreateFormFile("image", upload.Filename)
		if err != nil {
			return err
		}
		if _, err := io.Copy(part, upload.Body); err != nil {
			return err
		}
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.do(ctx, method, path, &buf, w.FormDataContentType(), out)
}

// --- Shopper endpoints ---

// Store returns the full category → subcategory → product tree.
func (c *Client) Store(ctx context.Context) ([]models.Category, error) {
	var tree []models.Category
	if err := c.getJSON(ctx, "/store", &tree); err != nil {
		return nil, err
	}
	return tree, nil
}

// Categories returns the flat category list.
func (c *Client) Categories(ctx context.Context) ([]models.Category, error) {
	var cats []models.Category
	if err := c.getJSON(ctx, "/categories", &cats); err != nil {
		return nil, err
	}
	return cats, nil
}

// Subcategories returns the subcategories of one category.
func (c *Client) Subcategories(ctx context.Context, categoryID string) ([]models.Subcategory, error) {
	var subs []models.Subcategory
	path := "/subcategories?category_id=" + url.QueryEscape(categoryID)
	if err := c.getJSON(ctx, path, &subs); err != nil {
		return nil, err
	}
	return subs, nil
}

// Carousel returns the homepage slides.
func (c *Client) Carousel(ctx context.Context) ([]models.CarouselSlide, error) {
	var slides []models.CarouselSlide
	if err := c.getJSON(ctx, "/carousel", &slides); err != nil {
		return nil, err
	}
	return slides, nil
}

// CreateOrder posts the payload and returns the new order id.
func (c *Client) CreateOrder(ctx context.Context, payload models.OrderPayload) (string, error) {
	var resp struct {
		OrderID string `json:"orderId"`
	}
	if err := c.sendJSON(ctx, http.MethodPost, "/orders", payload, &resp); err != nil {
		return "", err
	}
	if resp.OrderID == "" {
		return "", fmt.Errorf("order created without an id")
	}
	return resp.OrderID, nil
}

// ExpressAvailable reports whether express delivery currently has capacity.
func (c *Client) ExpressAvailable(ctx context.Context) (bool, error) {
	var resp struct {
		Available bool `json:"available"`
	}
	if err := c.getJSON(ctx, "/checkout/express-available", &resp); err != nil {
		return false, err
	}
	return resp.Available, nil
}

// DeliverySlotCounts returns placed-order counts keyed by slot value.
func (c *Client) DeliverySlotCounts(ctx context.Context) (map[string]int, error) {
	counts := map[string]int{}
	if err := c.getJSON(ctx, "/checkout/delivery-slot-counts", &counts); err != nil {
		return nil, err
	}
	if counts == nil {
		counts = map[string]int{}
	}
	return counts, nil
}

// PaymentInitRequest asks the backend to open a hosted card payment.
type PaymentInitRequest struct {
	Amount        decimal.Decimal    `json:"amount"`
	DeliveryFee   decimal.Decimal    `json:"delivery_fee"`
	CustomerName  string             `json:"customer_name"`
	Items         []models.OrderLine `json:"items"`
	ReturnBaseURL string             `json:"return_base_url"`
}

// InitiateCardPayment opens a payment session with the provider through the
// backend.
func (c *Client) InitiateCardPayment(ctx context.Context, req PaymentInitRequest) (models.PaymentSession, error) {
	var session models.PaymentSession
	if err := c.sendJSON(ctx, http.MethodPost, "/payments/card/init", req, &session); err != nil {
		return models.PaymentSession{}, err
	}
	if session.LowProfileID == "" {
		return models.PaymentSession{}, fmt.Errorf("payment session initiated without an id")
	}
	return session, nil
}
