// Package wishlist lets an owner publish items that others reserve and
// release. Each item is the record "wish:<owner>:<item>" whose status moves
// open -> reserved -> open.
package wishlist

import (
	"context"

	"github.com/roach88/chainvault/internal/contract"
	"github.com/roach88/chainvault/internal/ir"
	"github.com/roach88/chainvault/internal/store"
)

const Version = "v1"

// Contract names.
const (
	AddName     = "wishlist.add"
	ReserveName = "wishlist.reserve"
	ReleaseName = "wishlist.release"
)

// Item statuses.
const (
	StatusOpen     = "open"
	StatusReserved = "reserved"
)

// Key returns the record id of owner's item.
func Key(owner, item string) string { return "wish:" + owner + ":" + item }

func Definitions() []contract.Definition {
	return []contract.Definition{
		{Name: AddName, Version: Version, Description: "publish an open wishlist item", Procedure: Add},
		{Name: ReserveName, Version: Version, Description: "reserve an open item", Procedure: Reserve},
		{Name: ReleaseName, Version: Version, Description: "release a reservation", Procedure: Release},
	}
}

type target struct {
	owner, item, key string
}

func targetOf(args ir.IRObject) (target, error) {
	owner, err := contract.RequireString(args, "owner")
	if err != nil {
		return target{}, err
	}
	item, err := contract.RequireString(args, "item")
	if err != nil {
		return target{}, err
	}
	return target{owner: owner, item: item, key: Key(owner, item)}, nil
}

// Add publishes "item" on "owner"'s wishlist with an optional "note".
func Add(ctx context.Context, call *contract.Call) (ir.IRObject, error) {
	tg, err := targetOf(call.Args)
	if err != nil {
		return nil, err
	}
	note, err := contract.OptionalString(call.Args, "note", "")
	if err != nil {
		return nil, err
	}
	exists, err := call.View.Has(ctx, tg.key)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, contract.Reject("item %q is already on %s's wishlist", tg.item, tg.owner)
	}

	rec := ir.IRObject{
		"owner":  ir.IRString(tg.owner),
		"item":   ir.IRString(tg.item),
		"status": ir.IRString(StatusOpen),
	}
	if note != "" {
		rec["note"] = ir.IRString(note)
	}
	if _, err := call.Storage.SaveData(ctx, tg.key, rec, store.SaveOptions{}); err != nil {
		return nil, err
	}
	return rec, nil
}

// Reserve marks an open item as reserved by "by".
func Reserve(ctx context.Context, call *contract.Call) (ir.IRObject, error) {
	tg, err := targetOf(call.Args)
	if err != nil {
		return nil, err
	}
	by, err := contract.RequireString(call.Args, "by")
	if err != nil {
		return nil, err
	}
	rec, err := load(ctx, call.View, tg)
	if err != nil {
		return nil, err
	}
	if by == tg.owner {
		return nil, contract.Reject("%s cannot reserve their own item", by)
	}
	if status, _ := rec.String("status"); status != StatusOpen {
		holder, _ := rec.String("reserved_by")
		return nil, contract.Reject("item %q is already reserved by %s", tg.item, holder)
	}

	rec["status"] = ir.IRString(StatusReserved)
	rec["reserved_by"] = ir.IRString(by)
	return commit(ctx, call, tg, rec, ir.BlockWishlistReserve, by)
}

// Release returns a reserved item to open. Only the reserver may release.
func Release(ctx context.Context, call *contract.Call) (ir.IRObject, error) {
	tg, err := targetOf(call.Args)
	if err != nil {
		return nil, err
	}
	by, err := contract.RequireString(call.Args, "by")
	if err != nil {
		return nil, err
	}
	rec, err := load(ctx, call.View, tg)
	if err != nil {
		return nil, err
	}
	if status, _ := rec.String("status"); status != StatusReserved {
		return nil, contract.Reject("item %q is not reserved", tg.item)
	}
	if holder, _ := rec.String("reserved_by"); holder != by {
		return nil, contract.Reject("item %q is reserved by %s, not %s", tg.item, holder, by)
	}

	rec["status"] = ir.IRString(StatusOpen)
	delete(rec, "reserved_by")
	return commit(ctx, call, tg, rec, ir.BlockWishlistRelease, by)
}

func load(ctx context.Context, view contract.ReadView, tg target) (ir.IRObject, error) {
	exists, err := view.Has(ctx, tg.key)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, contract.Reject("item %q is not on %s's wishlist", tg.item, tg.owner)
	}
	return view.GetObject(ctx, tg.key)
}

func commit(ctx context.Context, call *contract.Call, tg target, rec ir.IRObject, kind ir.BlockType, by string) (ir.IRObject, error) {
	if _, err := call.Storage.SaveData(ctx, tg.key, rec, store.SaveOptions{}); err != nil {
		return nil, err
	}
	if _, err := call.Chain.AddBlock(ctx, ir.NewBlockData(kind, ir.IRObject{
		"owner":        ir.IRString(tg.owner),
		"item":         ir.IRString(tg.item),
		"by":           ir.IRString(by),
		"execution_id": ir.IRString(call.ExecutionID),
	})); err != nil {
		return nil, err
	}
	return rec, nil
}
