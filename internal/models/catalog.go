package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Category is a top-level store section as returned by the backend store tree.
type Category struct {
	ID            string        `json:"id"`
	Name          string        `json:"name_he"`
	Icon          string        `json:"icon,omitempty"`
	Image         string        `json:"image_url,omitempty"`
	SortOrder     int           `json:"sort_order,omitempty"`
	Subcategories []Subcategory `json:"subcategories"`
}

// Subcategory groups products inside a category.
type Subcategory struct {
	ID         string    `json:"id"`
	CategoryID string    `json:"category_id,omitempty"`
	Name       string    `json:"name_he"`
	Image      string    `json:"image_url,omitempty"`
	SortOrder  int       `json:"sort_order,omitempty"`
	Products   []Product `json:"products"`
}

// Product is a sellable item. Hidden products stay in the admin console but are
// not offered to shoppers.
type Product struct {
	ID              string          `json:"id"`
	SubcategoryID   string          `json:"subcategory_id,omitempty"`
	CategoryID      string          `json:"category_id,omitempty"`
	Name            string          `json:"name_he"`
	Description     string          `json:"description_he,omitempty"`
	Price           decimal.Decimal `json:"price"`
	Image           string          `json:"image_url,omitempty"`
	Hidden          bool            `json:"hidden"`
	CategoryName    string          `json:"category_name,omitempty"`
	SubcategoryName string          `json:"subcategory_name,omitempty"`
}

// CarouselSlide is one homepage carousel image.
type CarouselSlide struct {
	ID        string    `json:"id"`
	Image     string    `json:"image_url"`
	Link      string    `json:"link,omitempty"`
	SortOrder int       `json:"sort_order,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// ProductForm holds the admin product create/update fields.
type ProductForm struct {
	SubcategoryID string `form:"subcategory_id"`
	Name          string `form:"name_he"`
	Description   string `form:"description_he"`
	Price         string `form:"price"`
	Hidden        bool   `form:"hidden"`
}

// CategoryForm holds the admin category and subcategory fields.
type CategoryForm struct {
	CategoryID string `form:"category_id"`
	Name       string `form:"name_he"`
	Icon       string `form:"icon"`
	SortOrder  int    `form:"sort_order"`
}
