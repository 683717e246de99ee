package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jhoicas/merma-api/internal/application/dto"
	"github.com/jhoicas/merma-api/internal/domain"
	"github.com/jhoicas/merma-api/internal/domain/entity"
	"github.com/jhoicas/merma-api/internal/domain/repository"
)

// ProductUseCase casos de uso del catálogo de productos. Los saldos se manejan vía movimientos.
type ProductUseCase struct {
	repo repository.ProductRepository
}

// NewProductUseCase construye el caso de uso.
func NewProductUseCase(repo repository.ProductRepository) *ProductUseCase {
	return &ProductUseCase{repo: repo}
}

// Create crea un nuevo producto. Si no trae ID se genera uno.
func (uc *ProductUseCase) Create(ctx context.Context, in dto.CreateProductRequest) (*dto.ProductResponse, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := dto.Validate(in); err != nil {
		return nil, err
	}
	id := strings.TrimSpace(in.ID)
	if id == "" {
		id = uuid.New().String()
	}
	existing, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, domain.ErrDuplicate
	}
	product := &entity.Product{
		ID:        id,
		Name:      in.Name,
		Group:     in.Group,
		Unit:      in.Unit,
		CreatedAt: time.Now().UTC(),
	}
	if err := uc.repo.Create(ctx, product); err != nil {
		return nil, err
	}
	return dto.ProductFromEntity(product), nil
}

// Ensure crea el producto si no existe (importación de movimientos).
func (uc *ProductUseCase) Ensure(ctx context.Context, id, name string) error {
	existing, err := uc.repo.GetByID(ctx, id)
	if err != nil || existing != nil {
		return err
	}
	if name == "" {
		name = id
	}
	_, err = uc.Create(ctx, dto.CreateProductRequest{ID: id, Name: name})
	return err
}

// GetByID obtiene un producto por ID; (nil, nil) si no existe.
func (uc *ProductUseCase) GetByID(ctx context.Context, id string) (*dto.ProductResponse, error) {
	product, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return dto.ProductFromEntity(product), nil
}

// List lista productos con paginación.
func (uc *ProductUseCase) List(ctx context.Context, limit, offset int) (*dto.ProductListResponse, error) {
	list, err := uc.repo.List(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	items := make([]dto.ProductResponse, 0, len(list))
	for _, p := range list {
		items = append(items, *dto.ProductFromEntity(p))
	}
	return &dto.ProductListResponse{
		Items: items,
		Page:  dto.PageResponse{Limit: limit, Offset: offset},
	}, nil
}
