package db

import (
	"context"

	"gorm.io/gorm"
)

// TxRunner executes a function inside a database transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type gormRunner struct {
	conn *gorm.DB
}

// NewRunner adapts a raw GORM connection into a TxRunner. The api binary
// uses Client directly; workers and tests that already hold a *gorm.DB use
// this adapter instead.
func NewRunner(conn *gorm.DB) TxRunner {
	return gormRunner{conn: conn}
}

func (r gormRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.conn.WithContext(ctx).Transaction(fn)
}
