package store

import (
	"context"
	"database/sql"
	"errors"
	"sync"
)

// Accessor hands out physical connections against one logical handle.
//
// Reads each get their own connection and never wait on each other or on
// writers. Writes hold the write lock for their whole duration, so they are
// serialized against each other but not against reads. Every connection is
// closed when its statement finishes; nothing is reused between statements.
type Accessor struct {
	db *sql.DB

	// anchor stays open for the handle's lifetime. It keeps shared in-memory
	// targets alive while statement connections come and go.
	anchor *sql.Conn

	mu sync.Mutex
}

func openAccessor(driver, dsn string) (*Accessor, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, &ConnectionError{Op: "open", Err: err}
	}
	// Released connections are closed instead of pooled.
	db.SetMaxIdleConns(0)

	ctx := context.Background()
	anchor, err := db.Conn(ctx)
	if err != nil {
		_ = db.Close()
		return nil, &ConnectionError{Op: "connect", Err: err}
	}
	if err := anchor.PingContext(ctx); err != nil {
		_ = anchor.Close()
		_ = db.Close()
		return nil, &ConnectionError{Op: "ping", Err: err}
	}
	return &Accessor{db: db, anchor: anchor}, nil
}

func (a *Accessor) conn() (*sql.Conn, error) {
	c, err := a.db.Conn(context.Background())
	if err != nil {
		return nil, &ConnectionError{Op: "connect", Err: err}
	}
	return c, nil
}

// Read runs fn on a fresh connection without taking the write lock.
func (a *Accessor) Read(fn func(*sql.Conn) error) error {
	c, err := a.conn()
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(c)
}

// Write runs fn on a fresh connection inside the write section.
func (a *Accessor) Write(fn func(*sql.Conn) error) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	c, err := a.conn()
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(c)
}

// WriteTx is Write with fn wrapped in a transaction. The transaction is
// rolled back if fn returns an error or panics.
func (a *Accessor) WriteTx(fn func(*sql.Tx) error) error {
	return a.Write(func(c *sql.Conn) (err error) {
		tx, err := c.BeginTx(context.Background(), nil)
		if err != nil {
			return &ExecutionError{Statement: "BEGIN", Err: err}
		}
		committed := false
		defer func() {
			if !committed {
				if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) && err != nil {
					err = errors.Join(err, rbErr)
				}
			}
		}()

		if err := fn(tx); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return &ExecutionError{Statement: "COMMIT", Err: err}
		}
		committed = true
		return nil
	})
}

// Close releases the anchor connection and the handle.
func (a *Accessor) Close() error {
	return errors.Join(a.anchor.Close(), a.db.Close())
}
