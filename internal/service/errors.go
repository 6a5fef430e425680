package service

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyOrder        = errors.New("no items in order")
	ErrOrderNotFound     = errors.New("order not found")
	ErrProductNotFound   = errors.New("product not found")
	ErrInvalidStatus     = errors.New("invalid order status")
	ErrRequestInProgress = errors.New("request with this idempotency key is in progress")
)

// ProductNotFoundError names an order item whose product does not exist.
type ProductNotFoundError struct {
	Name string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product not found: %s", e.Name)
}

// Message is the text shown to the caller.
func (e *ProductNotFoundError) Message() string {
	return fmt.Sprintf("Product not found: %s", e.Name)
}

func (e *ProductNotFoundError) Is(target error) bool {
	return target == ErrProductNotFound
}

// InsufficientStockError reports an order item asking for more units than remain.
type InsufficientStockError struct {
	Name      string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("not enough stock for %s: available %d, requested %d", e.Name, e.Available, e.Requested)
}

// Message is the text shown to the caller.
func (e *InsufficientStockError) Message() string {
	return fmt.Sprintf("Not enough stock for %s. Available: %d, Requested: %d", e.Name, e.Available, e.Requested)
}
