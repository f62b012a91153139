package models

import (
	"time"

	"github.com/google/uuid"
)

type Category struct {
	ID        uuid.UUID `json:"id" db:"id"`
	HotelID   uuid.UUID `json:"hotel_id" db:"hotel_id"`
	Name      string    `json:"name" db:"name"`
	SortOrder int       `json:"sort_order" db:"sort_order"`
	Items     []Item    `json:"items,omitempty" db:"-"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type Item struct {
	ID          uuid.UUID `json:"id" db:"id"`
	CategoryID  uuid.UUID `json:"category_id" db:"category_id"`
	Name        string    `json:"name" db:"name"`
	Description *string   `json:"description,omitempty" db:"description"`
	Price       int       `json:"price" db:"price"`
	ImageURL    *string   `json:"image_url,omitempty" db:"image_url"`
	IsVeg       bool      `json:"is_veg" db:"is_veg"`
	IsPopular   bool      `json:"is_popular" db:"is_popular"`
	IsAvailable bool      `json:"is_available" db:"is_available"`
	SortOrder   int       `json:"sort_order" db:"sort_order"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
