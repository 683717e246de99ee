package postgres

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/merma-api/internal/domain"
	"github.com/jhoicas/merma-api/pkg/config"
)

func TestMapPgError(t *testing.T) {
	err := mapPgError("insert product", fmt.Errorf("exec: %w", &pgconn.PgError{Code: "23505", ConstraintName: "products_pkey"}))
	assert.ErrorIs(t, err, domain.ErrDuplicate)

	err = mapPgError("copy movements", &pgconn.PgError{Code: "23503", ConstraintName: "movements_product_id_fkey"})
	assert.ErrorIs(t, err, domain.ErrUnknownProduct)

	cause := errors.New("connection refused")
	err = mapPgError("list products", cause)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, domain.ErrDuplicate)
}

func TestPoolConfig(t *testing.T) {
	pc, err := poolConfig(config.DBConfig{
		Host: "db", Port: 5432, User: "merma", Password: "p@ss:word", DBName: "merma", SSLMode: "disable", MaxConns: 4,
	})
	require.NoError(t, err)
	assert.Equal(t, "db", pc.ConnConfig.Host)
	assert.Equal(t, "p@ss:word", pc.ConnConfig.Password)
	assert.Equal(t, int32(4), pc.MaxConns)
	assert.Equal(t, int32(2), pc.MinConns)
	assert.Equal(t, "UTC", pc.ConnConfig.RuntimeParams["timezone"])
	assert.Equal(t, applicationName, pc.ConnConfig.RuntimeParams["application_name"])
	assert.NotNil(t, pc.AfterConnect)

	pc, err = poolConfig(config.DBConfig{DatabaseURL: "postgres://u:p@remote:6543/x?sslmode=require&application_name=otro"})
	require.NoError(t, err)
	assert.Equal(t, "remote", pc.ConnConfig.Host)
	assert.Equal(t, uint16(6543), pc.ConnConfig.Port)
	assert.Equal(t, "otro", pc.ConnConfig.RuntimeParams["application_name"])
	assert.Equal(t, int32(25), pc.MaxConns)

	_, err = poolConfig(config.DBConfig{DatabaseURL: "postgres://%zz"})
	assert.Error(t, err)
}

func TestMigrations_CreanTablasDelLedger(t *testing.T) {
	script, err := migrationsFS.ReadFile("migrations/0001_init.sql")
	require.NoError(t, err)
	for _, table := range []string{
		"products", "movements", "ledger_state", "batches", "batch_sales", "batch_adjustments",
		"reconciliation_events", "shrinkage_coefficients", "shrinkage_calculations",
	} {
		assert.True(t, strings.Contains(string(script), "CREATE TABLE IF NOT EXISTS "+table+" "), table)
	}
	for _, col := range calculationColumns {
		assert.Contains(t, string(script), col)
	}
}
