package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/chainvault/internal/fault"
	"github.com/roach88/chainvault/internal/fifo"
	"github.com/roach88/chainvault/internal/future"
	"github.com/roach88/chainvault/internal/ir"
)

// Chain is the append-only, hash-linked block log.
//
// All appends go through a FIFO queue served by one writer goroutine, which
// is the only code that computes prev hashes and advances the tail.
//
// Thread-safety model:
//   - AddBlock, ReadBlock, IsValid, VerifyBlock, Walk: safe from any goroutine
//   - Close: safe to call more than once
type Chain struct {
	store  BlockStore
	now    func() time.Time
	logger *slog.Logger
	queue  *fifo.Queue[appendRequest]

	mu            sync.RWMutex
	tail          string
	height        int64
	lastTimestamp int64

	closeOnce sync.Once
	done      chan struct{}
}

// Option configures a Chain.
type Option func(*Chain)

// WithClock sets the time source used for block timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Chain) {
		c.now = now
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Chain) {
		c.logger = logger
	}
}

// Open loads the chain persisted in store, writing a genesis block first if
// the store is empty, and starts the writer goroutine.
//
// The Chain owns store from here on; Close closes it.
func Open(ctx context.Context, store BlockStore, opts ...Option) (*Chain, error) {
	c := &Chain{
		store:  store,
		now:    time.Now,
		logger: slog.Default(),
		queue:  fifo.New[appendRequest](),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tail, err := store.GetTail()
	if err != nil {
		return nil, fmt.Errorf("open chain: %w", err)
	}

	if tail == "" {
		c.tail = ir.GenesisPrevHash
		c.height = -1
		genesis := ir.NewBlockData(ir.BlockGenesis, ir.IRObject{
			"format": ir.IRString(ir.FormatVersion),
		})
		res := c.append(genesis)
		if res.Error != nil {
			return nil, fmt.Errorf("open chain: write genesis: %w", res.Error)
		}
		c.logger.Info("chain created", "genesis", res.Value.Hash)
	} else {
		raw, err := store.GetBlock(tail)
		if err != nil {
			return nil, fmt.Errorf("open chain: read tail %s: %w", tail, err)
		}
		b, err := decodeBlock(raw)
		if err != nil {
			return nil, fault.Wrap(fault.KindIntegrity, "chain.Open", err)
		}
		c.tail = tail
		c.height = b.ID
		c.lastTimestamp = b.Timestamp
		c.logger.Info("chain opened", "tail", tail, "height", b.ID)
	}

	go c.run()
	return c, nil
}

// appendRequest is one pending AddBlock call.
type appendRequest struct {
	data  ir.BlockData
	reply chan future.Result[Receipt] // buffered, size 1
}

// run is the writer loop. It serves queued appends in FIFO order and
// returns once the queue is closed and drained.
func (c *Chain) run() {
	defer close(c.done)
	c.queue.Serve(func(req appendRequest) {
		req.reply <- c.append(req.data)
	})
}

// append links data onto the tail and persists it.
// Called only from Open (before run starts) and from run.
func (c *Chain) append(data ir.BlockData) future.Result[Receipt] {
	c.mu.RLock()
	prev, id, last := c.tail, c.height+1, c.lastTimestamp
	c.mu.RUnlock()

	ts := c.now().UnixMilli()
	if ts < last {
		ts = last
	}

	b := Block{ID: id, Data: data, PrevHash: prev, Timestamp: ts}
	hash, err := b.ComputeHash()
	if err != nil {
		return future.Err[Receipt](fault.Wrap(fault.KindInvalidArgument, "chain.AddBlock", err))
	}
	b.Hash = hash

	encoded, err := encodeBlock(b)
	if err != nil {
		return future.Err[Receipt](err)
	}
	if err := c.store.PutBlock(hash, encoded); err != nil {
		return future.Err[Receipt](fmt.Errorf("persist block %d: %w", id, err))
	}
	// A crash here leaves an unreferenced block; the tail still names the
	// previous block, so the chain stays consistent.
	if err := c.store.SetTail(hash); err != nil {
		return future.Err[Receipt](fmt.Errorf("advance tail to %s: %w", hash, err))
	}

	c.mu.Lock()
	c.tail, c.height, c.lastTimestamp = hash, id, ts
	c.mu.Unlock()

	c.logger.Debug("block appended", "id", id, "type", data.Type, "hash", hash)
	return future.Ok(Receipt{ID: id, Hash: hash, PrevHash: prev, Timestamp: ts})
}

// AddBlock appends data as a new block and returns its receipt once it is
// durable. Concurrent callers are served in the order they were queued.
//
// If ctx is cancelled while waiting, AddBlock returns ctx.Err() but the
// block may still be appended: the request has already been queued.
func (c *Chain) AddBlock(ctx context.Context, data ir.BlockData) (Receipt, error) {
	if data.Body == nil {
		data.Body = ir.IRObject{}
	}
	if err := data.Validate(); err != nil {
		return Receipt{}, fault.Wrap(fault.KindInvalidArgument, "chain.AddBlock", err)
	}

	req := appendRequest{data: data, reply: make(chan future.Result[Receipt], 1)}
	if !c.queue.Enqueue(req) {
		return Receipt{}, fault.New(fault.KindClosed, "chain.AddBlock", "chain is closed")
	}

	select {
	case res := <-req.reply:
		return res.Get()
	case <-ctx.Done():
		return Receipt{}, ctx.Err()
	}
}

// ReadBlock returns the block stored under hash without verifying it.
func (c *Chain) ReadBlock(ctx context.Context, hash string) (Block, error) {
	if err := ctx.Err(); err != nil {
		return Block{}, err
	}
	raw, err := c.store.GetBlock(hash)
	if errors.Is(err, ErrBlockNotFound) {
		return Block{}, fault.NotFound("chain.ReadBlock", "block "+hash)
	}
	if err != nil {
		return Block{}, fmt.Errorf("read block %s: %w", hash, err)
	}
	b, err := decodeBlock(raw)
	if err != nil {
		return Block{}, fault.Wrap(fault.KindIntegrity, "chain.ReadBlock", err)
	}
	return b, nil
}

// TailHash returns the hash of the most recently appended block.
func (c *Chain) TailHash() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tail
}

// Height returns the id of the tail block. A chain holding only its
// genesis block has height 0.
func (c *Chain) Height() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.height
}

// Close stops accepting appends, waits for queued appends to finish and
// closes the block store.
func (c *Chain) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.queue.Close()
		<-c.done
		err = c.store.Close()
		c.logger.Debug("chain closed", "tail", c.TailHash())
	})
	return err
}
