package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Product is a catalog entry.
type Product struct {
	ID                     primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	Name                   string             `bson:"name" json:"name"`
	Description            string             `bson:"description" json:"description"`
	Category               string             `bson:"category" json:"category"`
	SubCategory            string             `bson:"subCategory" json:"subCategory"`
	Brand                  string             `bson:"brand" json:"brand"`
	Price                  float64            `bson:"price" json:"price"`
	OriginalPrice          *float64           `bson:"originalPrice,omitempty" json:"originalPrice,omitempty"`
	Rating                 float64            `bson:"rating" json:"rating"`
	NumReviews             int                `bson:"numReviews" json:"numReviews"`
	Image                  string             `bson:"image" json:"image"`
	IsPrescriptionRequired bool               `bson:"isPrescriptionRequired" json:"isPrescriptionRequired"`
	CountInStock           int                `bson:"countInStock" json:"countInStock"`
	Tags                   []string           `bson:"tags" json:"tags"`
	CreatedAt              time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt              time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// OrderItem is a point-in-time copy of a product's display fields.
type OrderItem struct {
	Name              string             `bson:"name" json:"name"`
	Qty               int                `bson:"qty" json:"qty"`
	Image             string             `bson:"image" json:"image"`
	Price             float64            `bson:"price" json:"price"`
	Product           primitive.ObjectID `bson:"product" json:"product"`
	PrescriptionImage string             `bson:"prescriptionImage,omitempty" json:"prescriptionImage,omitempty"`
}

// ShippingAddress is snapshotted at order time.
type ShippingAddress struct {
	Address    string `bson:"address" json:"address"`
	City       string `bson:"city" json:"city"`
	PostalCode string `bson:"postalCode" json:"postalCode"`
	Country    string `bson:"country" json:"country"`
	Phone      string `bson:"phone,omitempty" json:"phone,omitempty"`
	Name       string `bson:"name,omitempty" json:"name,omitempty"`
	Email      string `bson:"email,omitempty" json:"email,omitempty"`
}

// PaymentResult is reserved for a payment gateway callback.
type PaymentResult struct {
	ID           string `bson:"id,omitempty" json:"id,omitempty"`
	Status       string `bson:"status,omitempty" json:"status,omitempty"`
	UpdateTime   string `bson:"update_time,omitempty" json:"update_time,omitempty"`
	EmailAddress string `bson:"email_address,omitempty" json:"email_address,omitempty"`
}

// Order is a placed customer order. User is nil for guest orders.
type Order struct {
	ID              primitive.ObjectID  `bson:"_id,omitempty" json:"_id"`
	User            *primitive.ObjectID `bson:"user" json:"user"`
	OrderItems      []OrderItem         `bson:"orderItems" json:"orderItems"`
	ShippingAddress ShippingAddress     `bson:"shippingAddress" json:"shippingAddress"`
	PaymentMethod   string              `bson:"paymentMethod" json:"paymentMethod"`
	PaymentResult   *PaymentResult      `bson:"paymentResult,omitempty" json:"paymentResult,omitempty"`
	TotalPrice      float64             `bson:"totalPrice" json:"totalPrice"`
	IsPaid          bool                `bson:"isPaid" json:"isPaid"`
	PaidAt          *time.Time          `bson:"paidAt,omitempty" json:"paidAt,omitempty"`
	IsDelivered     bool                `bson:"isDelivered" json:"isDelivered"`
	DeliveredAt     *time.Time          `bson:"deliveredAt,omitempty" json:"deliveredAt,omitempty"`
	Status          OrderStatus         `bson:"status" json:"status"`
	CreatedAt       time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time           `bson:"updatedAt" json:"updatedAt"`
}

// OrderStatus is the admin-facing lifecycle state of an order.
type OrderStatus string

// Order statuses
const (
	OrderStatusPending   OrderStatus = "Pending"
	OrderStatusConfirmed OrderStatus = "Confirmed"
	OrderStatusShipped   OrderStatus = "Shipped"
	OrderStatusDelivered OrderStatus = "Delivered"
	OrderStatusCancelled OrderStatus = "Cancelled"
)

// Valid reports whether s is one of the known order statuses.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// Order defaults
const (
	DefaultPaymentMethod = "COD"
	DefaultCountry       = "India"
)
