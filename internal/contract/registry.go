package contract

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/roach88/chainvault/internal/chain"
	"github.com/roach88/chainvault/internal/fault"
	"github.com/roach88/chainvault/internal/ir"
)

// Definition names a procedure and labels its logic version. The pair
// (Name, Version) determines the code reference recorded on the chain.
type Definition struct {
	Name        string
	Version     string
	Description string
	Procedure   Procedure
}

// CodeRef returns the content-addressable reference of the logic.
func (d Definition) CodeRef() string {
	return ir.CodeRef(d.Name, d.Version)
}

// Registry maps contract names and code references to definitions.
//
// Thread-safety: all methods are safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Definition
	byRef  map[string]Definition
}

// NewRegistry creates a registry holding defs.
func NewRegistry(defs ...Definition) (*Registry, error) {
	r := &Registry{
		byName: make(map[string]Definition),
		byRef:  make(map[string]Definition),
	}
	for _, d := range defs {
		if err := r.Register(d); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds def. Names must be unique.
func (r *Registry) Register(def Definition) error {
	const op = "contract.Register"
	if def.Name == "" || def.Version == "" {
		return fault.New(fault.KindInvalidArgument, op, "definition needs a name and a version")
	}
	if def.Procedure == nil {
		return fault.New(fault.KindInvalidArgument, op, fmt.Sprintf("definition %q has no procedure", def.Name))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.byName[def.Name]; dup {
		return fault.New(fault.KindInvalidArgument, op, fmt.Sprintf("contract %q already registered", def.Name))
	}
	r.byName[def.Name] = def
	r.byRef[def.CodeRef()] = def
	return nil
}

// Lookup returns the definition registered under name.
func (r *Registry) Lookup(name string) (Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.byName[name]
	if !ok {
		return Definition{}, fault.NotFound("contract.Lookup", fmt.Sprintf("contract %q", name))
	}
	return def, nil
}

// Resolve returns the definition whose logic has the given code reference.
func (r *Registry) Resolve(codeRef string) (Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.byRef[codeRef]
	if !ok {
		return Definition{}, fault.NotFound("contract.Resolve", "logic "+codeRef)
	}
	return def, nil
}

// List returns all definitions ordered by name.
func (r *Registry) List() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]Definition, 0, len(r.byName))
	for _, d := range r.byName {
		defs = append(defs, d)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Save records def's identity, its name plus the code reference of its
// logic, as a contract-definition block.
func Save(ctx context.Context, ch Chain, def Definition) (chain.Receipt, error) {
	if def.Name == "" || def.Version == "" {
		return chain.Receipt{}, fault.New(fault.KindInvalidArgument, "contract.Save", "definition needs a name and a version")
	}
	return ch.AddBlock(ctx, ir.ContractDefinition(def.Name, def.Version, def.CodeRef()))
}

// Load rebuilds the contract recorded in the contract-definition block at
// hash, resolving its logic through reg and binding it to caps on rt.
//
// Fails with NOT_FOUND if the block or its logic is unknown,
// INVALID_ARGUMENT if the block is not a contract definition, and
// INTEGRITY_VIOLATION if the block fails verification or its code
// reference does not match its name and version.
func Load(ctx context.Context, hash string, reg *Registry, rt *Runtime, caps Capabilities) (*SmartContract, error) {
	const op = "contract.Load"
	if caps.Chain == nil {
		return nil, fault.New(fault.KindInvalidArgument, op, "no chain capability")
	}

	block, err := caps.Chain.ReadBlock(ctx, hash)
	if err != nil {
		return nil, err
	}
	if block.Data.Type != ir.BlockContractDefinition {
		return nil, fault.New(fault.KindInvalidArgument, op,
			fmt.Sprintf("block %s is %s, not a contract definition", hash, block.Data.Type))
	}
	if !caps.Chain.VerifyBlock(ctx, hash) {
		return nil, fault.New(fault.KindIntegrity, op, "definition block "+hash+" failed verification")
	}

	name, _ := block.Data.Body.String("name")
	version, _ := block.Data.Body.String("version")
	codeRef, _ := block.Data.Body.String("code_ref")
	if codeRef != ir.CodeRef(name, version) {
		return nil, fault.New(fault.KindIntegrity, op,
			fmt.Sprintf("definition block %s: code_ref does not match %s@%s", hash, name, version))
	}

	def, err := reg.Resolve(codeRef)
	if err != nil {
		return nil, err
	}
	c := New(rt, def, caps)
	c.definition = hash
	return c, nil
}
