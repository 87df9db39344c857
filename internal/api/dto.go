package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Troha7/E-store/internal/entity"
	"github.com/Troha7/E-store/internal/service"
)

type createOrderRequest struct {
	UserID int64 `json:"user_id"`
}

type itemRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type updateOrderRequest struct {
	Date     *time.Time    `json:"date"`
	Products []itemRequest `json:"products"`
}

type productRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
}

type userRequest struct {
	Username  string          `json:"username"`
	Email     string          `json:"email"`
	Password  string          `json:"password"`
	Role      entity.UserRole `json:"role"`
	FirstName string          `json:"first_name"`
	LastName  string          `json:"last_name"`
	Phone     string          `json:"phone"`
}

type addressRequest struct {
	City   string `json:"city"`
	Street string `json:"street"`
	House  string `json:"house"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type lineItemResponse struct {
	ID        int64           `json:"id"`
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

type orderResponse struct {
	ID         int64              `json:"id"`
	UserID     int64              `json:"user_id"`
	Date       time.Time          `json:"date"`
	Status     entity.OrderStatus `json:"status"`
	Version    int64              `json:"version"`
	Products   []lineItemResponse `json:"products"`
	TotalPrice decimal.Decimal    `json:"total_price"`
}

type addItemResponse struct {
	Item  lineItemResponse `json:"item"`
	Order orderResponse    `json:"order"`
}

type acceptResponse struct {
	Accepted orderResponse `json:"accepted"`
	Active   orderResponse `json:"active"`
}

type productResponse struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
}

type userResponse struct {
	ID        int64            `json:"id"`
	Username  string           `json:"username"`
	Email     string           `json:"email"`
	Role      entity.UserRole  `json:"role"`
	FirstName string           `json:"first_name"`
	LastName  string           `json:"last_name"`
	Phone     string           `json:"phone"`
	Address   *addressResponse `json:"address,omitempty"`
}

type addressResponse struct {
	ID     int64  `json:"id"`
	City   string `json:"city"`
	Street string `json:"street"`
	House  string `json:"house"`
}

func (r itemRequest) toItem() service.ItemRequest {
	return service.ItemRequest{ProductID: r.ProductID, Quantity: r.Quantity}
}

func (r updateOrderRequest) toCommand() service.UpdateOrderCommand {
	items := make([]service.ItemRequest, 0, len(r.Products))
	for _, p := range r.Products {
		items = append(items, p.toItem())
	}
	return service.UpdateOrderCommand{Date: r.Date, Items: items}
}

func (r productRequest) toProduct() *entity.Product {
	return &entity.Product{Name: r.Name, Description: r.Description, Price: r.Price}
}

func toLineItemResponse(item entity.LineItem) lineItemResponse {
	return lineItemResponse{
		ID:        item.ID,
		ProductID: item.ProductID,
		Name:      item.Product.Name,
		Price:     item.Product.Price,
		Quantity:  item.Quantity,
		Subtotal:  item.Subtotal(),
	}
}

func toOrderResponse(view *entity.OrderView) orderResponse {
	products := make([]lineItemResponse, 0, len(view.Items))
	for _, item := range view.Items {
		products = append(products, toLineItemResponse(item))
	}
	return orderResponse{
		ID:         view.ID,
		UserID:     view.UserID,
		Date:       view.Date,
		Status:     view.Status,
		Version:    view.Version,
		Products:   products,
		TotalPrice: view.TotalPrice,
	}
}

func toOrderResponses(views []entity.OrderView) []orderResponse {
	out := make([]orderResponse, 0, len(views))
	for i := range views {
		out = append(out, toOrderResponse(&views[i]))
	}
	return out
}

func toProductResponse(p *entity.Product) productResponse {
	return productResponse{ID: p.ID, Name: p.Name, Description: p.Description, Price: p.Price}
}

func toProductResponses(products []entity.Product) []productResponse {
	out := make([]productResponse, 0, len(products))
	for i := range products {
		out = append(out, toProductResponse(&products[i]))
	}
	return out
}

func (r userRequest) toUser() *entity.User {
	return &entity.User{
		Username:  r.Username,
		Email:     r.Email,
		Role:      r.Role,
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Phone:     r.Phone,
	}
}

func (r addressRequest) toAddress() *entity.Address {
	return &entity.Address{City: r.City, Street: r.Street, House: r.House}
}

func toUserResponse(u *entity.User) userResponse {
	resp := userResponse{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Role:      u.Role,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Phone:     u.Phone,
	}
	if u.Address != nil {
		address := toAddressResponse(u.Address)
		resp.Address = &address
	}
	return resp
}

func toUserResponses(users []entity.User) []userResponse {
	out := make([]userResponse, 0, len(users))
	for i := range users {
		out = append(out, toUserResponse(&users[i]))
	}
	return out
}

func toAddressResponse(a *entity.Address) addressResponse {
	return addressResponse{ID: a.ID, City: a.City, Street: a.Street, House: a.House}
}
