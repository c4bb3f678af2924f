// Package token implements balance-keeping contracts: transfer, mint, burn
// and a read-only balance query.
//
// Balances live in records "bal:<account>" = {"balance": n}; the supply of
// a token lives in "supply:<token>" = {"supply": n}. Every mutating
// procedure appends one audit block describing the movement.
package token

import (
	"context"
	"math"

	"github.com/holiman/uint256"

	"github.com/roach88/chainvault/internal/contract"
	"github.com/roach88/chainvault/internal/ir"
	"github.com/roach88/chainvault/internal/store"
)

// Version labels the logic of every procedure in this package.
const Version = "v1"

// DefaultToken is the token whose supply mint and burn track when no
// "token" argument is given.
const DefaultToken = "native"

// Contract names.
const (
	TransferName = "token.transfer"
	MintName     = "token.mint"
	BurnName     = "token.burn"
	BalanceName  = "token.balance"
)

// BalanceKey returns the record id holding account's balance.
func BalanceKey(account string) string { return "bal:" + account }

// SupplyKey returns the record id holding the supply of token.
func SupplyKey(token string) string { return "supply:" + token }

// Definitions returns the token procedures for registration.
func Definitions() []contract.Definition {
	return []contract.Definition{
		{Name: TransferName, Version: Version, Description: "move amount from one account to another", Procedure: Transfer},
		{Name: MintName, Version: Version, Description: "credit amount to an account and grow supply", Procedure: Mint},
		{Name: BurnName, Version: Version, Description: "debit amount from an account and shrink supply", Procedure: Burn},
		{Name: BalanceName, Version: Version, Description: "read an account balance", Procedure: Balance},
	}
}

// Transfer moves "amount" from "from" to "to".
func Transfer(ctx context.Context, call *contract.Call) (ir.IRObject, error) {
	from, err := contract.RequireString(call.Args, "from")
	if err != nil {
		return nil, err
	}
	to, err := contract.RequireString(call.Args, "to")
	if err != nil {
		return nil, err
	}
	amount, err := contract.RequirePositive(call.Args, "amount")
	if err != nil {
		return nil, err
	}
	if from == to {
		return nil, contract.Reject("cannot transfer to the same account %q", from)
	}

	fromBal, err := readInt(ctx, call.View, BalanceKey(from), "balance")
	if err != nil {
		return nil, err
	}
	toBal, err := readInt(ctx, call.View, BalanceKey(to), "balance")
	if err != nil {
		return nil, err
	}

	newFrom, ok := sub(fromBal, amount)
	if !ok {
		return nil, contract.Reject("insufficient balance: %s has %d, needs %d", from, fromBal, amount)
	}
	newTo, ok := add(toBal, amount)
	if !ok {
		return nil, contract.Reject("balance of %s would overflow", to)
	}

	if err := writeInt(ctx, call.Storage, BalanceKey(from), "balance", newFrom); err != nil {
		return nil, err
	}
	if err := writeInt(ctx, call.Storage, BalanceKey(to), "balance", newTo); err != nil {
		return nil, err
	}
	if _, err := call.Chain.AddBlock(ctx, ir.NewBlockData(ir.BlockTokenTransfer, ir.IRObject{
		"from":         ir.IRString(from),
		"to":           ir.IRString(to),
		"amount":       ir.IRInt(amount),
		"execution_id": ir.IRString(call.ExecutionID),
	})); err != nil {
		return nil, err
	}

	return ir.IRObject{
		"from": ir.IRObject{"account": ir.IRString(from), "balance": ir.IRInt(newFrom)},
		"to":   ir.IRObject{"account": ir.IRString(to), "balance": ir.IRInt(newTo)},
	}, nil
}

// Mint credits "amount" to "account" and grows the supply of "token".
func Mint(ctx context.Context, call *contract.Call) (ir.IRObject, error) {
	return adjust(ctx, call, ir.BlockTokenMint, add)
}

// Burn debits "amount" from "account" and shrinks the supply of "token".
func Burn(ctx context.Context, call *contract.Call) (ir.IRObject, error) {
	return adjust(ctx, call, ir.BlockTokenBurn, sub)
}

// Balance returns the balance of "account"; an unknown account has zero.
func Balance(ctx context.Context, call *contract.Call) (ir.IRObject, error) {
	account, err := contract.RequireString(call.Args, "account")
	if err != nil {
		return nil, err
	}
	bal, err := readInt(ctx, call.View, BalanceKey(account), "balance")
	if err != nil {
		return nil, err
	}
	return ir.IRObject{"account": ir.IRString(account), "balance": ir.IRInt(bal)}, nil
}

func adjust(ctx context.Context, call *contract.Call, kind ir.BlockType, op func(a, b int64) (int64, bool)) (ir.IRObject, error) {
	account, err := contract.RequireString(call.Args, "account")
	if err != nil {
		return nil, err
	}
	amount, err := contract.RequirePositive(call.Args, "amount")
	if err != nil {
		return nil, err
	}
	token, err := contract.OptionalString(call.Args, "token", DefaultToken)
	if err != nil {
		return nil, err
	}

	bal, err := readInt(ctx, call.View, BalanceKey(account), "balance")
	if err != nil {
		return nil, err
	}
	supply, err := readInt(ctx, call.View, SupplyKey(token), "supply")
	if err != nil {
		return nil, err
	}

	newBal, ok := op(bal, amount)
	if !ok {
		return nil, contract.Reject("cannot apply %s of %d to %s: balance %d", kind, amount, account, bal)
	}
	newSupply, ok := op(supply, amount)
	if !ok {
		return nil, contract.Reject("cannot apply %s of %d to %s supply %d", kind, amount, token, supply)
	}

	if err := writeInt(ctx, call.Storage, BalanceKey(account), "balance", newBal); err != nil {
		return nil, err
	}
	if err := writeInt(ctx, call.Storage, SupplyKey(token), "supply", newSupply); err != nil {
		return nil, err
	}
	if _, err := call.Chain.AddBlock(ctx, ir.NewBlockData(kind, ir.IRObject{
		"account":      ir.IRString(account),
		"token":        ir.IRString(token),
		"amount":       ir.IRInt(amount),
		"execution_id": ir.IRString(call.ExecutionID),
	})); err != nil {
		return nil, err
	}

	return ir.IRObject{
		"account": ir.IRString(account),
		"balance": ir.IRInt(newBal),
		"token":   ir.IRString(token),
		"supply":  ir.IRInt(newSupply),
	}, nil
}

func readInt(ctx context.Context, view contract.ReadView, key, field string) (int64, error) {
	obj, err := view.GetObject(ctx, key)
	if err != nil {
		return 0, err
	}
	if _, present := obj[field]; !present {
		return 0, nil
	}
	n, ok := obj.Int(field)
	if !ok || n < 0 {
		return 0, contract.Reject("record %s has a malformed %s", key, field)
	}
	return n, nil
}

func writeInt(ctx context.Context, s contract.Storage, key, field string, n int64) error {
	_, err := s.SaveData(ctx, key, ir.IRObject{field: ir.IRInt(n)}, store.SaveOptions{})
	return err
}

var maxAmount = uint256.NewInt(math.MaxInt64)

// add returns a+b for non-negative amounts, or false if the sum does not
// fit a stored integer.
func add(a, b int64) (int64, bool) {
	sum, overflow := new(uint256.Int).AddOverflow(uint256.NewInt(uint64(a)), uint256.NewInt(uint64(b)))
	if overflow || sum.Gt(maxAmount) {
		return 0, false
	}
	return int64(sum.Uint64()), true
}

// sub returns a-b for non-negative amounts, or false if b exceeds a.
func sub(a, b int64) (int64, bool) {
	diff, underflow := new(uint256.Int).SubOverflow(uint256.NewInt(uint64(a)), uint256.NewInt(uint64(b)))
	if underflow {
		return 0, false
	}
	return int64(diff.Uint64()), true
}
