package cart

import "github.com/shopspring/decimal"

// Request and response bodies of the cart REST API.

// LoginRequest represents login credentials.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse carries the bearer token issued at login.
type LoginResponse struct {
	Token string `json:"token"`
}

// PageResponse is one page of the server cart.
type PageResponse struct {
	Items []Line `json:"items"`
}

// AddRequest adds a product to the server cart.
type AddRequest struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Image     string          `json:"image,omitempty"`
}

// OrderRequest submits resolved lines with their aggregate total.
type OrderRequest struct {
	Lines []OrderLine     `json:"lines"`
	Total decimal.Decimal `json:"total"`
}
