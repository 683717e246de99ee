// Package memory implementa los puertos de persistencia en memoria (pruebas y corridas en seco).
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jhoicas/merma-api/internal/domain"
	"github.com/jhoicas/merma-api/internal/domain/entity"
	"github.com/jhoicas/merma-api/internal/domain/ledger"
	"github.com/jhoicas/merma-api/internal/domain/repository"
)

var (
	_ repository.ProductRepository     = (*Store)(nil)
	_ repository.MovementRepository    = (*MovementStore)(nil)
	_ repository.BatchRepository       = (*Store)(nil)
	_ repository.CoefficientRepository = (*CoefficientStore)(nil)
	_ repository.CalculationRepository = (*CalculationStore)(nil)
)

// Store guarda productos y snapshots del ledger.
type Store struct {
	mu        sync.RWMutex
	products  map[string]entity.Product
	snapshots map[string]ledger.Snapshot
}

// NewStore crea un almacén vacío.
func NewStore() *Store {
	return &Store{
		products:  make(map[string]entity.Product),
		snapshots: make(map[string]ledger.Snapshot),
	}
}

func (s *Store) Create(_ context.Context, product *entity.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[product.ID]; ok {
		return domain.ErrDuplicate
	}
	s.products[product.ID] = *product
	return nil
}

func (s *Store) GetByID(_ context.Context, id string) (*entity.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *Store) List(_ context.Context, limit, offset int) ([]*entity.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.products))
	for id := range s.products {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var out []*entity.Product
	for i, id := range ids {
		if i < offset {
			continue
		}
		if limit > 0 && len(out) >= limit {
			break
		}
		p := s.products[id]
		out = append(out, &p)
	}
	return out, nil
}

func (s *Store) LoadSnapshot(_ context.Context, productID string) (*ledger.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[productID]
	if !ok {
		return nil, nil
	}
	cp := copySnapshot(snap)
	return &cp, nil
}

func (s *Store) SaveSnapshot(_ context.Context, snap ledger.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snap.ProductID] = copySnapshot(snap)
	return nil
}

func (s *Store) ListProductIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.snapshots))
	for id := range s.snapshots {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func copySnapshot(s ledger.Snapshot) ledger.Snapshot {
	return ledger.Snapshot{
		ProductID:   s.ProductID,
		Batches:     append([]entity.Batch(nil), s.Batches...),
		Sales:       append([]entity.Sale(nil), s.Sales...),
		Adjustments: append([]entity.Adjustment(nil), s.Adjustments...),
		Events:      append([]entity.ReconciliationEvent(nil), s.Events...),
		LastDate:    s.LastDate,
	}
}

// MovementStore es el registro de movimientos.
type MovementStore struct {
	mu        sync.RWMutex
	movements []entity.Movement
}

// NewMovementStore crea el registro vacío.
func NewMovementStore() *MovementStore { return &MovementStore{} }

func (s *MovementStore) CreateMany(_ context.Context, movements []entity.Movement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.movements = append(s.movements, movements...)
	return nil
}

func (s *MovementStore) ListByProduct(_ context.Context, productID string, from, to *time.Time) ([]entity.Movement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []entity.Movement
	for _, m := range s.movements {
		if m.ProductID != productID {
			continue
		}
		if from != nil && m.Date.Before(*from) {
			continue
		}
		if to != nil && m.Date.After(*to) {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// CoefficientStore guarda los coeficientes vigentes.
type CoefficientStore struct {
	mu     sync.RWMutex
	coeffs map[string]entity.ShrinkageCoefficients
}

// NewCoefficientStore crea el almacén vacío.
func NewCoefficientStore() *CoefficientStore {
	return &CoefficientStore{coeffs: make(map[string]entity.ShrinkageCoefficients)}
}

func (s *CoefficientStore) Get(_ context.Context, productID string) (*entity.ShrinkageCoefficients, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.coeffs[productID]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *CoefficientStore) Save(_ context.Context, c entity.ShrinkageCoefficients) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.coeffs[c.ProductID] = c
	return nil
}

func (s *CoefficientStore) List(_ context.Context) ([]entity.ShrinkageCoefficients, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]entity.ShrinkageCoefficients, 0, len(s.coeffs))
	for _, c := range s.coeffs {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

// CalculationStore agrega cálculos.
type CalculationStore struct {
	mu    sync.RWMutex
	calcs []entity.ShrinkageCalculation
}

// NewCalculationStore crea el almacén vacío.
func NewCalculationStore() *CalculationStore { return &CalculationStore{} }

func (s *CalculationStore) SaveAll(_ context.Context, calcs []entity.ShrinkageCalculation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calcs = append(s.calcs, calcs...)
	return nil
}

// ListByProduct devuelve los cálculos más recientes primero.
func (s *CalculationStore) ListByProduct(_ context.Context, productID string, limit int) ([]entity.ShrinkageCalculation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []entity.ShrinkageCalculation
	for i := len(s.calcs) - 1; i >= 0; i-- {
		if s.calcs[i].ProductID != productID {
			continue
		}
		out = append(out, s.calcs[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// TxRunner pasa los repositorios en memoria tal cual; las escrituras en memoria no fallan.
type TxRunner struct {
	Movements *MovementStore
	Batches   *Store
}

func (r TxRunner) Run(_ context.Context, fn func(repository.MovementRepository, repository.BatchRepository) error) error {
	return fn(r.Movements, r.Batches)
}
