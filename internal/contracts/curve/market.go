package curve

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/roach88/chainvault/internal/contract"
	"github.com/roach88/chainvault/internal/ir"
	"github.com/roach88/chainvault/internal/store"
)

// Version labels the logic of the curve procedures.
const Version = "v1"

// Micro is the number of stored units per whole token or payment unit.
// Stored values are integers; curve math runs on value / Micro.
const Micro = 1_000_000

// Contract names.
const (
	BuyName   = "curve.buy"
	SellName  = "curve.sell"
	QuoteName = "curve.quote"
)

// StateKey returns the record id holding a market's supply and reserve.
func StateKey(market string) string { return "curve:" + market }

// HoldingKey returns the record id holding an account's tokens in a market.
func HoldingKey(market, account string) string { return "holding:" + market + ":" + account }

// Markets maps market names to their pricing curves.
type Markets map[string]Curve

// DefaultMarkets returns one market per curve shape.
func DefaultMarkets() Markets {
	return Markets{
		"linear":      Linear{K: 1},
		"polynomial":  Polynomial{K: 0.5, N: 2},
		"exponential": Exponential{K: 1, R: 0.01},
	}
}

// Names returns the market names in order.
func (m Markets) Names() []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Definitions returns the buy, sell and quote procedures over markets.
func Definitions(markets Markets) ([]contract.Definition, error) {
	for name, c := range markets {
		if err := Validate(c); err != nil {
			return nil, fmt.Errorf("market %s: %w", name, err)
		}
	}
	p := procedures{markets: markets}
	return []contract.Definition{
		{Name: BuyName, Version: Version, Description: "spend payment on tokens at the curve price", Procedure: p.buy},
		{Name: SellName, Version: Version, Description: "return tokens for a refund from the reserve", Procedure: p.sell},
		{Name: QuoteName, Version: Version, Description: "price a purchase without executing it", Procedure: p.quote},
	}, nil
}

type procedures struct {
	markets Markets
}

type marketState struct {
	supply  int64
	reserve int64
}

func (p procedures) market(args ir.IRObject) (string, Curve, error) {
	name, err := contract.RequireString(args, "market")
	if err != nil {
		return "", nil, err
	}
	c, ok := p.markets[name]
	if !ok {
		return "", nil, contract.Reject("unknown market %q", name)
	}
	return name, c, nil
}

func (p procedures) buy(ctx context.Context, call *contract.Call) (ir.IRObject, error) {
	market, c, err := p.market(call.Args)
	if err != nil {
		return nil, err
	}
	buyer, err := contract.RequireString(call.Args, "account")
	if err != nil {
		return nil, err
	}
	payment, err := contract.RequirePositive(call.Args, "payment")
	if err != nil {
		return nil, err
	}

	st, err := loadState(ctx, call.View, market)
	if err != nil {
		return nil, err
	}
	held, err := loadHolding(ctx, call.View, market, buyer)
	if err != nil {
		return nil, err
	}

	tokens, err := TokensForPayment(c, fromMicro(st.supply), fromMicro(payment))
	if err != nil {
		return nil, contract.Reject("market %s: %v", market, err)
	}
	minted := toMicro(tokens)
	if minted <= 0 {
		return nil, contract.Reject("payment %d buys no tokens on market %s", payment, market)
	}
	if minted > math.MaxInt64-st.supply || payment > math.MaxInt64-st.reserve {
		return nil, contract.Reject("market %s would overflow", market)
	}

	st.supply += minted
	st.reserve += payment
	held += minted
	if err := saveHolding(ctx, call.Storage, market, buyer, held); err != nil {
		return nil, err
	}
	if err := saveState(ctx, call.Storage, market, st); err != nil {
		return nil, err
	}
	if _, err := call.Chain.AddBlock(ctx, ir.NewBlockData(ir.BlockCurveBuy, ir.IRObject{
		"market":       ir.IRString(market),
		"account":      ir.IRString(buyer),
		"payment":      ir.IRInt(payment),
		"tokens":       ir.IRInt(minted),
		"supply":       ir.IRInt(st.supply),
		"execution_id": ir.IRString(call.ExecutionID),
	})); err != nil {
		return nil, err
	}

	return ir.IRObject{
		"tokens":  ir.IRInt(minted),
		"holding": ir.IRInt(held),
		"supply":  ir.IRInt(st.supply),
		"reserve": ir.IRInt(st.reserve),
	}, nil
}

func (p procedures) sell(ctx context.Context, call *contract.Call) (ir.IRObject, error) {
	market, c, err := p.market(call.Args)
	if err != nil {
		return nil, err
	}
	seller, err := contract.RequireString(call.Args, "account")
	if err != nil {
		return nil, err
	}
	tokens, err := contract.RequirePositive(call.Args, "tokens")
	if err != nil {
		return nil, err
	}

	st, err := loadState(ctx, call.View, market)
	if err != nil {
		return nil, err
	}
	held, err := loadHolding(ctx, call.View, market, seller)
	if err != nil {
		return nil, err
	}
	if tokens > held {
		return nil, contract.Reject("insufficient holding: %s has %d, sells %d", seller, held, tokens)
	}
	if tokens > st.supply {
		return nil, contract.Reject("market %s supply %d is below %d", market, st.supply, tokens)
	}

	refund := toMicro(Refund(c, fromMicro(st.supply), fromMicro(tokens)))
	if refund > st.reserve {
		refund = st.reserve
	}

	st.supply -= tokens
	st.reserve -= refund
	held -= tokens
	if err := saveHolding(ctx, call.Storage, market, seller, held); err != nil {
		return nil, err
	}
	if err := saveState(ctx, call.Storage, market, st); err != nil {
		return nil, err
	}
	if _, err := call.Chain.AddBlock(ctx, ir.NewBlockData(ir.BlockCurveSell, ir.IRObject{
		"market":       ir.IRString(market),
		"account":      ir.IRString(seller),
		"tokens":       ir.IRInt(tokens),
		"refund":       ir.IRInt(refund),
		"supply":       ir.IRInt(st.supply),
		"execution_id": ir.IRString(call.ExecutionID),
	})); err != nil {
		return nil, err
	}

	return ir.IRObject{
		"refund":  ir.IRInt(refund),
		"holding": ir.IRInt(held),
		"supply":  ir.IRInt(st.supply),
		"reserve": ir.IRInt(st.reserve),
	}, nil
}

func (p procedures) quote(ctx context.Context, call *contract.Call) (ir.IRObject, error) {
	market, c, err := p.market(call.Args)
	if err != nil {
		return nil, err
	}
	payment, err := contract.RequirePositive(call.Args, "payment")
	if err != nil {
		return nil, err
	}
	st, err := loadState(ctx, call.View, market)
	if err != nil {
		return nil, err
	}
	tokens, err := TokensForPayment(c, fromMicro(st.supply), fromMicro(payment))
	if err != nil {
		return nil, contract.Reject("market %s: %v", market, err)
	}
	return ir.IRObject{
		"market": ir.IRString(market),
		"curve":  ir.IRString(c.String()),
		"tokens": ir.IRInt(toMicro(tokens)),
		"price":  ir.IRInt(toMicro(c.Price(fromMicro(st.supply)))),
		"supply": ir.IRInt(st.supply),
	}, nil
}

func fromMicro(n int64) float64 { return float64(n) / Micro }

func toMicro(f float64) int64 {
	v := math.Round(f * Micro)
	if v >= math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(v)
}

func loadState(ctx context.Context, view contract.ReadView, market string) (marketState, error) {
	obj, err := view.GetObject(ctx, StateKey(market))
	if err != nil {
		return marketState{}, err
	}
	supply, _ := obj.Int("supply")
	reserve, _ := obj.Int("reserve")
	return marketState{supply: supply, reserve: reserve}, nil
}

func saveState(ctx context.Context, s contract.Storage, market string, st marketState) error {
	_, err := s.SaveData(ctx, StateKey(market), ir.IRObject{
		"supply":  ir.IRInt(st.supply),
		"reserve": ir.IRInt(st.reserve),
	}, store.SaveOptions{})
	return err
}

func loadHolding(ctx context.Context, view contract.ReadView, market, account string) (int64, error) {
	obj, err := view.GetObject(ctx, HoldingKey(market, account))
	if err != nil {
		return 0, err
	}
	n, _ := obj.Int("tokens")
	return n, nil
}

func saveHolding(ctx context.Context, s contract.Storage, market, account string, n int64) error {
	_, err := s.SaveData(ctx, HoldingKey(market, account), ir.IRObject{"tokens": ir.IRInt(n)}, store.SaveOptions{})
	return err
}
