package dto

import (
	"time"

	"github.com/jhoicas/merma-api/internal/domain/entity"
)

// CreateProductRequest entrada para crear un producto. ID vacío = se genera.
type CreateProductRequest struct {
	ID    string `json:"id"`
	Name  string `json:"name" validate:"required,min=1,max=200"`
	Group string `json:"group"`
	Unit  string `json:"unit"`
}

// ProductResponse salida de un producto.
type ProductResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Group     string    `json:"group"`
	Unit      string    `json:"unit"`
	CreatedAt time.Time `json:"created_at"`
}

// ProductListResponse lista paginada de productos.
type ProductListResponse struct {
	Items []ProductResponse `json:"items"`
	Page  PageResponse      `json:"page"`
}

// ProductFromEntity arma la respuesta de un producto.
func ProductFromEntity(p *entity.Product) *ProductResponse {
	if p == nil {
		return nil
	}
	return &ProductResponse{ID: p.ID, Name: p.Name, Group: p.Group, Unit: p.Unit, CreatedAt: p.CreatedAt}
}
