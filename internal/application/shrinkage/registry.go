package shrinkage

import (
	"context"
	"fmt"
	"sync"

	"github.com/jhoicas/merma-api/internal/domain/ledger"
	"github.com/jhoicas/merma-api/internal/domain/repository"
)

// Registry mantiene un ledger por producto. El mutex del registro protege solo el mapa;
// cada producto tiene su propio candado, así productos distintos avanzan en paralelo
// y los movimientos de un mismo producto se aplican en serie.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*ledgerEntry
	batches repository.BatchRepository
	opts    ledger.Options
}

type ledgerEntry struct {
	mu sync.Mutex
	l  *ledger.Ledger
}

// NewRegistry crea el registro; los ledgers se restauran desde batches la primera vez que se usan.
func NewRegistry(batches repository.BatchRepository, opts ledger.Options) *Registry {
	return &Registry{entries: make(map[string]*ledgerEntry), batches: batches, opts: opts}
}

func (r *Registry) entry(productID string) *ledgerEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[productID]
	if !ok {
		e = &ledgerEntry{}
		r.entries[productID] = e
	}
	return e
}

// Update bloquea el ledger del producto y llama fn. Si fn devuelve un ledger no nulo, reemplaza al vigente.
func (r *Registry) Update(ctx context.Context, productID string, fn func(l *ledger.Ledger) (*ledger.Ledger, error)) error {
	e := r.entry(productID)
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := r.load(ctx, productID, e); err != nil {
		return err
	}
	next, err := fn(e.l)
	if err != nil {
		return err
	}
	if next != nil {
		e.l = next
	}
	return nil
}

// View bloquea el ledger del producto mientras fn lo lee.
func (r *Registry) View(ctx context.Context, productID string, fn func(l *ledger.Ledger) error) error {
	e := r.entry(productID)
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := r.load(ctx, productID, e); err != nil {
		return err
	}
	return fn(e.l)
}

func (r *Registry) load(ctx context.Context, productID string, e *ledgerEntry) error {
	if e.l != nil {
		return nil
	}
	snap, err := r.batches.LoadSnapshot(ctx, productID)
	if err != nil {
		return fmt.Errorf("cargar ledger %s: %w", productID, err)
	}
	if snap == nil {
		e.l = ledger.New(productID, r.opts)
		return nil
	}
	l, err := ledger.Restore(*snap, r.opts)
	if err != nil {
		return fmt.Errorf("restaurar ledger %s: %w", productID, err)
	}
	e.l = l
	return nil
}
