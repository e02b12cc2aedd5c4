package memvec

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// FlushCallback runs after every successful background flush. It is invoked
// from the flush goroutine; keep it short or dispatch your own work.
type FlushCallback func(db *VectorDB)

// EnableAutoFlush starts a background goroutine that snapshots every index
// into dir each interval. cb may be nil. Enabling twice without disabling
// in between is an error.
func (db *VectorDB) EnableAutoFlush(interval time.Duration, dir string, cb FlushCallback) error {
	if interval <= 0 {
		return fmt.Errorf("%w: flush interval must be positive", ErrInvalidParam)
	}
	if dir == "" {
		return fmt.Errorf("%w: empty flush directory", ErrInvalidParam)
	}

	db.flushMu.Lock()
	defer db.flushMu.Unlock()

	if db.flushEnabled {
		return fmt.Errorf("%w: auto-flush already enabled", ErrInvalidParam)
	}

	db.flushDir = dir
	db.flushInterval = interval
	db.flushCallback = cb
	db.flushEnabled = true
	db.flushStop = make(chan struct{})

	db.flushWG.Add(1)
	go db.flushLoop(db.flushStop, interval)

	db.logger.InfoContext(context.Background(), "auto-flush enabled",
		"dir", dir,
		"interval", interval,
	)

	return nil
}

// DisableAutoFlush stops the background flush goroutine and waits for it to
// exit. No final flush is performed. Calling it when auto-flush is not
// enabled is a no-op.
func (db *VectorDB) DisableAutoFlush() {
	db.flushMu.Lock()
	if !db.flushEnabled {
		db.flushMu.Unlock()
		return
	}
	db.flushEnabled = false
	close(db.flushStop)
	db.flushMu.Unlock()

	db.flushWG.Wait()

	db.logger.InfoContext(context.Background(), "auto-flush disabled")
}

// FlushNow performs a single flush cycle synchronously, using the directory
// configured by EnableAutoFlush. Unlike the background path it also returns
// mirror errors. Auto-flush does not need to be running, but a directory
// must have been configured.
func (db *VectorDB) FlushNow() error {
	db.flushMu.Lock()
	dir := db.flushDir
	cb := db.flushCallback
	db.flushMu.Unlock()

	if dir == "" {
		return fmt.Errorf("%w: no flush directory configured", ErrInvalidParam)
	}

	if err := db.SaveAll(dir); err != nil {
		return err
	}
	if cb != nil {
		cb(db)
	}

	return db.mirrorSnapshots(context.Background(), dir)
}

// flushLoop runs one flush per interval until the stop channel closes.
func (db *VectorDB) flushLoop(stop <-chan struct{}, interval time.Duration) {
	defer db.flushWG.Done()

	for {
		select {
		case <-stop:
			return
		case <-time.After(interval):
			db.flushOnce()
		}
	}
}

// flushOnce is the background flush body. Errors are logged, never
// propagated: the goroutine keeps running so a transient disk failure does
// not silently end persistence.
func (db *VectorDB) flushOnce() {
	db.flushMu.Lock()
	dir := db.flushDir
	cb := db.flushCallback
	db.flushMu.Unlock()

	if err := db.SaveAll(dir); err != nil {
		return
	}
	if cb != nil {
		cb(db)
	}

	if err := db.mirrorSnapshots(context.Background(), dir); err != nil {
		db.logger.ErrorContext(context.Background(), "flush mirror failed",
			"dir", dir,
			"error", err,
		)
	}
}

// mirrorSnapshots uploads every snapshot and sidecar file in dir to the
// configured blob store. It is a no-op without a mirror.
func (db *VectorDB) mirrorSnapshots(ctx context.Context, dir string) error {
	if db.mirror == nil {
		return nil
	}

	for _, pattern := range []string{"*.index", "*.index.meta"} {
		paths, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return fmt.Errorf("scan flush dir: %w", err)
		}
		for _, path := range paths {
			if err := db.mirrorFile(ctx, path); err != nil {
				return err
			}
		}
	}

	return nil
}

func (db *VectorDB) mirrorFile(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s for mirroring: %w", path, err)
	}
	defer f.Close()

	name := filepath.Base(path)
	if err := db.mirror.Put(ctx, name, bufio.NewReader(f)); err != nil {
		return fmt.Errorf("mirror %s: %w", name, err)
	}

	return nil
}
