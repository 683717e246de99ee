// Package bolt persiste el estado en un único archivo bbolt, pensado para corridas de la CLI.
// Cada agregado se guarda como JSON en su propio bucket. Movimientos y cálculos van en un
// sub-bucket por producto, con claves de secuencia en big endian.
package bolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"github.com/jhoicas/merma-api/internal/domain"
	"github.com/jhoicas/merma-api/internal/domain/entity"
	"github.com/jhoicas/merma-api/internal/domain/ledger"
	"github.com/jhoicas/merma-api/internal/domain/repository"
)

var (
	bucketProducts     = []byte("products")
	bucketSnapshots    = []byte("snapshots")
	bucketMovements    = []byte("movements")
	bucketCoefficients = []byte("coefficients")
	bucketCalculations = []byte("calculations")
)

var (
	_ repository.ProductRepository     = (*ProductRepo)(nil)
	_ repository.BatchRepository       = (*BatchRepo)(nil)
	_ repository.MovementRepository    = (*MovementRepo)(nil)
	_ repository.CoefficientRepository = (*CoefficientRepo)(nil)
	_ repository.CalculationRepository = (*CalculationRepo)(nil)
)

// Open abre (o crea) el archivo y sus buckets.
func Open(path string) (*bbolt.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("crear directorio de %s: %w", path, err)
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{
		Timeout:      time.Second,
		FreelistType: bbolt.FreelistMapType,
	})
	if err != nil {
		return nil, fmt.Errorf("abrir bolt: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketProducts, bucketSnapshots, bucketMovements, bucketCoefficients, bucketCalculations} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("crear bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func put(tx *bbolt.Tx, bucket []byte, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("serializar %s/%s: %w", bucket, key, err)
	}
	return tx.Bucket(bucket).Put([]byte(key), data)
}

func seqKey(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)
	return k
}

// appendTo agrega v al sub-bucket de productID dentro de bucket.
func appendTo(tx *bbolt.Tx, bucket []byte, productID string, v any) error {
	b, err := tx.Bucket(bucket).CreateBucketIfNotExists([]byte(productID))
	if err != nil {
		return fmt.Errorf("bucket %s/%s: %w", bucket, productID, err)
	}
	seq, err := b.NextSequence()
	if err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("serializar %s/%s: %w", bucket, productID, err)
	}
	return b.Put(seqKey(seq), data)
}

// productBucket devuelve el sub-bucket del producto o nil si nunca se escribió.
func productBucket(tx *bbolt.Tx, bucket []byte, productID string) *bbolt.Bucket {
	return tx.Bucket(bucket).Bucket([]byte(productID))
}

// ProductRepo guarda productos.
type ProductRepo struct{ db *bbolt.DB }

// NewProductRepository construye el adaptador.
func NewProductRepository(db *bbolt.DB) *ProductRepo { return &ProductRepo{db: db} }

func (r *ProductRepo) Create(_ context.Context, p *entity.Product) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketProducts).Get([]byte(p.ID)) != nil {
			return domain.ErrDuplicate
		}
		return put(tx, bucketProducts, p.ID, p)
	})
}

func (r *ProductRepo) GetByID(_ context.Context, id string) (*entity.Product, error) {
	var out *entity.Product
	err := r.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketProducts).Get([]byte(id))
		if data == nil {
			return nil
		}
		var p entity.Product
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("leer producto %s: %w", id, err)
		}
		out = &p
		return nil
	})
	return out, err
}

func (r *ProductRepo) List(_ context.Context, limit, offset int) ([]*entity.Product, error) {
	var out []*entity.Product
	err := r.db.View(func(tx *bbolt.Tx) error {
		i := 0
		return tx.Bucket(bucketProducts).ForEach(func(_, v []byte) error {
			defer func() { i++ }()
			if i < offset || (limit > 0 && len(out) >= limit) {
				return nil
			}
			var p entity.Product
			if err := json.Unmarshal(v, &p); err != nil {
				return err
			}
			out = append(out, &p)
			return nil
		})
	})
	return out, err
}

// BatchRepo guarda el snapshot del ledger de cada producto.
type BatchRepo struct{ db *bbolt.DB }

// NewBatchRepository construye el adaptador.
func NewBatchRepository(db *bbolt.DB) *BatchRepo { return &BatchRepo{db: db} }

func (r *BatchRepo) LoadSnapshot(_ context.Context, productID string) (*ledger.Snapshot, error) {
	var out *ledger.Snapshot
	err := r.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketSnapshots).Get([]byte(productID))
		if data == nil {
			return nil
		}
		var s ledger.Snapshot
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("leer snapshot %s: %w", productID, err)
		}
		out = &s
		return nil
	})
	return out, err
}

func (r *BatchRepo) SaveSnapshot(_ context.Context, s ledger.Snapshot) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		return put(tx, bucketSnapshots, s.ProductID, s)
	})
}

func (r *BatchRepo) ListProductIDs(_ context.Context) ([]string, error) {
	var ids []string
	err := r.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSnapshots).ForEach(func(k, _ []byte) error {
			ids = append(ids, string(k))
			return nil
		})
	})
	return ids, err
}

// MovementRepo es el registro de movimientos.
type MovementRepo struct{ db *bbolt.DB }

// NewMovementRepository construye el adaptador.
func NewMovementRepository(db *bbolt.DB) *MovementRepo { return &MovementRepo{db: db} }

func (r *MovementRepo) CreateMany(_ context.Context, movements []entity.Movement) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		for _, m := range movements {
			if err := appendTo(tx, bucketMovements, m.ProductID, m); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *MovementRepo) ListByProduct(_ context.Context, productID string, from, to *time.Time) ([]entity.Movement, error) {
	var out []entity.Movement
	err := r.db.View(func(tx *bbolt.Tx) error {
		b := productBucket(tx, bucketMovements, productID)
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var m entity.Movement
			if err := json.Unmarshal(v, &m); err != nil {
				return fmt.Errorf("leer movimiento %s/%d: %w", productID, binary.BigEndian.Uint64(k), err)
			}
			if from != nil && m.Date.Before(*from) {
				continue
			}
			if to != nil && m.Date.After(*to) {
				continue
			}
			out = append(out, m)
		}
		return nil
	})
	return out, err
}

// CoefficientRepo guarda los coeficientes vigentes.
type CoefficientRepo struct{ db *bbolt.DB }

// NewCoefficientRepository construye el adaptador.
func NewCoefficientRepository(db *bbolt.DB) *CoefficientRepo { return &CoefficientRepo{db: db} }

func (r *CoefficientRepo) Get(_ context.Context, productID string) (*entity.ShrinkageCoefficients, error) {
	var out *entity.ShrinkageCoefficients
	err := r.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketCoefficients).Get([]byte(productID))
		if data == nil {
			return nil
		}
		var c entity.ShrinkageCoefficients
		if err := json.Unmarshal(data, &c); err != nil {
			return fmt.Errorf("leer coeficientes %s: %w", productID, err)
		}
		out = &c
		return nil
	})
	return out, err
}

func (r *CoefficientRepo) Save(_ context.Context, c entity.ShrinkageCoefficients) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		return put(tx, bucketCoefficients, c.ProductID, c)
	})
}

func (r *CoefficientRepo) List(_ context.Context) ([]entity.ShrinkageCoefficients, error) {
	var out []entity.ShrinkageCoefficients
	err := r.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketCoefficients).ForEach(func(_, v []byte) error {
			var c entity.ShrinkageCoefficients
			if err := json.Unmarshal(v, &c); err != nil {
				return err
			}
			out = append(out, c)
			return nil
		})
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, err
}

// CalculationRepo agrega cálculos de pronóstico.
type CalculationRepo struct{ db *bbolt.DB }

// NewCalculationRepository construye el adaptador.
func NewCalculationRepository(db *bbolt.DB) *CalculationRepo { return &CalculationRepo{db: db} }

func (r *CalculationRepo) SaveAll(_ context.Context, calcs []entity.ShrinkageCalculation) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		for _, c := range calcs {
			if err := appendTo(tx, bucketCalculations, c.ProductID, c); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListByProduct devuelve los cálculos más recientes primero.
func (r *CalculationRepo) ListByProduct(_ context.Context, productID string, limit int) ([]entity.ShrinkageCalculation, error) {
	var out []entity.ShrinkageCalculation
	err := r.db.View(func(tx *bbolt.Tx) error {
		b := productBucket(tx, bucketCalculations, productID)
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var calc entity.ShrinkageCalculation
			if err := json.Unmarshal(v, &calc); err != nil {
				return err
			}
			out = append(out, calc)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
		return nil
	})
	return out, err
}

// TxRunner entrega repositorios sobre el mismo archivo; cada escritura es su propia transacción bbolt.
type TxRunner struct{ db *bbolt.DB }

// NewTxRunner construye el runner.
func NewTxRunner(db *bbolt.DB) *TxRunner { return &TxRunner{db: db} }

func (r *TxRunner) Run(_ context.Context, fn func(repository.MovementRepository, repository.BatchRepository) error) error {
	return fn(NewMovementRepository(r.db), NewBatchRepository(r.db))
}
