// Package contracts collects the bundled contract procedures.
package contracts

import (
	"github.com/roach88/chainvault/internal/contract"
	"github.com/roach88/chainvault/internal/contracts/chat"
	"github.com/roach88/chainvault/internal/contracts/curve"
	"github.com/roach88/chainvault/internal/contracts/token"
	"github.com/roach88/chainvault/internal/contracts/wishlist"
)

// Bundled returns every bundled definition, pricing curve markets with
// markets (curve.DefaultMarkets when nil).
func Bundled(markets curve.Markets) ([]contract.Definition, error) {
	if markets == nil {
		markets = curve.DefaultMarkets()
	}
	curves, err := curve.Definitions(markets)
	if err != nil {
		return nil, err
	}
	defs := token.Definitions()
	defs = append(defs, curves...)
	defs = append(defs, wishlist.Definitions()...)
	defs = append(defs, chat.Definitions()...)
	return defs, nil
}

// Registry returns a registry holding Bundled(markets).
func Registry(markets curve.Markets) (*contract.Registry, error) {
	defs, err := Bundled(markets)
	if err != nil {
		return nil, err
	}
	return contract.NewRegistry(defs...)
}
