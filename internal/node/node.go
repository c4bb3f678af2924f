// Package node assembles a chainvault instance from its configuration:
// key pair, chain and block store backend, record store, contract runtime
// and the registry of bundled contracts.
package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/roach88/chainvault/internal/chain"
	"github.com/roach88/chainvault/internal/config"
	"github.com/roach88/chainvault/internal/contract"
	"github.com/roach88/chainvault/internal/contracts"
	"github.com/roach88/chainvault/internal/contracts/curve"
	"github.com/roach88/chainvault/internal/seal"
	"github.com/roach88/chainvault/internal/store"
)

// Node owns every open component. Close releases them in reverse order.
type Node struct {
	Config   *config.Config
	Keys     *seal.KeyPair
	Chain    *chain.Chain
	Store    *store.Store
	Runtime  *contract.Runtime
	Registry *contract.Registry

	logger *slog.Logger
}

type options struct {
	logger     *slog.Logger
	now        func() time.Time
	keys       *seal.KeyPair
	blocks     chain.BlockStore
	markets    curve.Markets
	runtimeOps []contract.RuntimeOption
}

// Option configures Open.
type Option func(*options)

// WithLogger sets the logger handed to every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithClock sets the time source for block and record timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithKeys uses kp instead of loading keys from the configured directory.
func WithKeys(kp *seal.KeyPair) Option {
	return func(o *options) { o.keys = kp }
}

// WithBlockStore uses bs instead of the configured chain backend.
func WithBlockStore(bs chain.BlockStore) Option {
	return func(o *options) { o.blocks = bs }
}

// WithMarkets sets the bonding-curve markets. Defaults to
// curve.DefaultMarkets().
func WithMarkets(m curve.Markets) Option {
	return func(o *options) { o.markets = m }
}

// WithRuntimeOptions passes extra options to the contract runtime.
func WithRuntimeOptions(opts ...contract.RuntimeOption) Option {
	return func(o *options) { o.runtimeOps = append(o.runtimeOps, opts...) }
}

// Open builds a node from cfg, creating the data directory, key pair and
// chain genesis on first use.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (_ *Node, err error) {
	o := options{logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	n := &Node{Config: cfg, logger: o.logger}
	defer func() {
		if err != nil {
			n.Close()
		}
	}()

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	n.Keys = o.keys
	if n.Keys == nil {
		if n.Keys, err = seal.LoadOrGenerate(cfg.KeysDir(), cfg.Keys.Bits); err != nil {
			return nil, fmt.Errorf("load keys: %w", err)
		}
	}

	blocks := o.blocks
	if blocks == nil {
		if blocks, err = OpenBlockStore(cfg); err != nil {
			return nil, err
		}
	}
	if n.Chain, err = chain.Open(ctx, blocks, chain.WithClock(o.now), chain.WithLogger(o.logger)); err != nil {
		blocks.Close()
		return nil, err
	}

	if n.Store, err = store.Open(cfg.DatabasePath(), n.Chain, n.Keys,
		store.WithCompression(cfg.Storage.Compress),
		store.WithClock(o.now),
		store.WithLogger(o.logger),
	); err != nil {
		return nil, err
	}

	rtOpts := []contract.RuntimeOption{
		contract.WithDedupWindow(cfg.DedupWindow()),
		contract.WithMaxWrites(cfg.Runtime.MaxWrites),
		contract.WithLogger(o.logger),
	}
	n.Runtime = contract.NewRuntime(append(rtOpts, o.runtimeOps...)...)

	if n.Registry, err = contracts.Registry(o.markets); err != nil {
		return nil, err
	}

	o.logger.Debug("node opened",
		"data_dir", cfg.DataDir,
		"backend", cfg.Chain.Backend,
		"height", n.Chain.Height(),
	)
	return n, nil
}

// OpenBlockStore opens the block store named by cfg.Chain.Backend.
func OpenBlockStore(cfg *config.Config) (chain.BlockStore, error) {
	switch cfg.Chain.Backend {
	case config.BackendFile, "":
		return chain.NewFileStore(cfg.ChainPath())
	case config.BackendLevelDB:
		return chain.NewLevelDBStore(cfg.ChainPath())
	case config.BackendMemory:
		return chain.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown chain backend %q", cfg.Chain.Backend)
	}
}

// Capabilities returns the write paths contracts are bound to.
func (n *Node) Capabilities() contract.Capabilities {
	return contract.Capabilities{Storage: n.Store, Chain: n.Chain}
}

// Contract binds the registered contract name.
func (n *Node) Contract(name string) (*contract.SmartContract, error) {
	def, err := n.Registry.Lookup(name)
	if err != nil {
		return nil, err
	}
	return contract.New(n.Runtime, def, n.Capabilities()), nil
}

// LoadContract rebuilds the contract recorded at the definition block hash.
func (n *Node) LoadContract(ctx context.Context, hash string) (*contract.SmartContract, error) {
	return contract.Load(ctx, hash, n.Registry, n.Runtime, n.Capabilities())
}

// SaveDefinitions records every registered contract on the chain, returning
// the definition block hash per contract name.
func (n *Node) SaveDefinitions(ctx context.Context) (map[string]string, error) {
	hashes := make(map[string]string)
	for _, def := range n.Registry.List() {
		r, err := contract.Save(ctx, n.Chain, def)
		if err != nil {
			return hashes, fmt.Errorf("save %s: %w", def.Name, err)
		}
		hashes[def.Name] = r.Hash
	}
	return hashes, nil
}

// Close stops the runtime, then closes the store and the chain.
func (n *Node) Close() error {
	if n.Runtime != nil {
		n.Runtime.Close()
	}
	var errs []error
	if n.Store != nil {
		errs = append(errs, n.Store.Close())
	}
	if n.Chain != nil {
		errs = append(errs, n.Chain.Close())
	}
	return errors.Join(errs...)
}
