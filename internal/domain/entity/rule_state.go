package entity

import (
	"math"
	"time"
)

// Market distinguishes spot vs. leveraged contract trading semantics.
type Market string

const (
	MarketSpot     Market = "spot"
	MarketContract Market = "contract"
)

// OrderSide is the side of an accepted order.
type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

// PositionSide is null for spot positions; long/short for contract
// positions.
type PositionSide string

const (
	PositionNone  PositionSide = ""
	PositionLong  PositionSide = "long"
	PositionShort PositionSide = "short"
)

// RuleRequirements is the user-elicited strategy specification a Rule
// Collector session produces via save_rule.
type RuleRequirements struct {
	Market          Market
	Symbols         []string
	Timeframe       string
	EntryRules      string
	TakeProfit      string
	StopLoss        string
	MaxPositionRatio float64
	TotalCapital    float64
}

// RuntimeStatus is the live position state of one rule.
type RuntimeStatus struct {
	IsHolding     bool
	EntryPrice    float64
	Quantity      float64
	PositionSide  PositionSide
	PositionValue float64
	LastUpdate    time.Time
}

// RuleState is the Executor-owned aggregate of a strategy's requirements
// plus its live runtime status.
type RuleState struct {
	ruleID       string
	requirements RuleRequirements
	runtime      RuntimeStatus
	active       RuleActivity
}

// RuleActivity is whether the Executor's scheduler currently runs this
// rule's polling loop.
type RuleActivity string

const (
	RuleRunning RuleActivity = "running"
	RuleStopped RuleActivity = "stopped"
)

// NewRuleState creates a flat (not-holding) rule state.
func NewRuleState(ruleID string, req RuleRequirements) (*RuleState, error) {
	if ruleID == "" {
		return nil, ErrInvalidRuleID
	}
	return &RuleState{
		ruleID:       ruleID,
		requirements: req,
		runtime:      RuntimeStatus{LastUpdate: time.Now()},
		active:       RuleStopped,
	}, nil
}

// ReconstructRuleState rehydrates a RuleState from persistence.
func ReconstructRuleState(ruleID string, req RuleRequirements, runtime RuntimeStatus, active RuleActivity) *RuleState {
	return &RuleState{ruleID: ruleID, requirements: req, runtime: runtime, active: active}
}

func (r *RuleState) RuleID() string               { return r.ruleID }
func (r *RuleState) Requirements() RuleRequirements { return r.requirements }
func (r *RuleState) Runtime() RuntimeStatus        { return r.runtime }
func (r *RuleState) Active() RuleActivity          { return r.active }

func (r *RuleState) Start() { r.active = RuleRunning }
func (r *RuleState) Stop()  { r.active = RuleStopped }

// ApplySpotBuy opens a spot position iff not already holding. Returns
// false (a no-op, not an error) if the precondition fails — the caller
// treats a rejected order as "no order placed", not a fatal error.
func (r *RuleState) ApplySpotBuy(price float64) bool {
	if r.runtime.IsHolding {
		return false
	}
	qty := math.Floor(r.requirements.TotalCapital * r.requirements.MaxPositionRatio / price)
	r.runtime.IsHolding = true
	r.runtime.EntryPrice = price
	r.runtime.Quantity = qty
	r.runtime.PositionSide = PositionNone
	r.runtime.PositionValue = qty * price
	r.runtime.LastUpdate = time.Now()
	return true
}

// ApplySpotSell closes a spot position iff currently holding.
func (r *RuleState) ApplySpotSell() (qty float64, ok bool) {
	if !r.runtime.IsHolding {
		return 0, false
	}
	qty = r.runtime.Quantity
	r.runtime.IsHolding = false
	r.runtime.EntryPrice = 0
	r.runtime.Quantity = 0
	r.runtime.PositionValue = 0
	r.runtime.LastUpdate = time.Now()
	return qty, true
}

// ApplyContractBuy opens a long if flat, closes a short if short,
// no-ops if already long (§4.4).
func (r *RuleState) ApplyContractBuy(price, quantity float64) (closedQty float64, action string, ok bool) {
	switch {
	case !r.runtime.IsHolding:
		r.runtime.IsHolding = true
		r.runtime.PositionSide = PositionLong
		r.runtime.EntryPrice = price
		r.runtime.Quantity = quantity
		r.runtime.PositionValue = quantity * price
		r.runtime.LastUpdate = time.Now()
		return 0, "open_long", true
	case r.runtime.PositionSide == PositionShort:
		closedQty = r.runtime.Quantity
		r.runtime.IsHolding = false
		r.runtime.PositionSide = PositionNone
		r.runtime.EntryPrice = 0
		r.runtime.Quantity = 0
		r.runtime.PositionValue = 0
		r.runtime.LastUpdate = time.Now()
		return closedQty, "close_short", true
	default:
		return 0, "", false
	}
}

// ApplyContractSell opens a short if flat, closes a long if long,
// no-ops if already short (§4.4).
func (r *RuleState) ApplyContractSell(price, quantity float64) (closedQty float64, action string, ok bool) {
	switch {
	case !r.runtime.IsHolding:
		r.runtime.IsHolding = true
		r.runtime.PositionSide = PositionShort
		r.runtime.EntryPrice = price
		r.runtime.Quantity = quantity
		r.runtime.PositionValue = quantity * price
		r.runtime.LastUpdate = time.Now()
		return 0, "open_short", true
	case r.runtime.PositionSide == PositionLong:
		closedQty = r.runtime.Quantity
		r.runtime.IsHolding = false
		r.runtime.PositionSide = PositionNone
		r.runtime.EntryPrice = 0
		r.runtime.Quantity = 0
		r.runtime.PositionValue = 0
		r.runtime.LastUpdate = time.Now()
		return closedQty, "close_long", true
	default:
		return 0, "", false
	}
}

// RuleDecision is the structured parse of the agent's terminal reply during
// one RuleExecutor evaluation (§4.4, §9 — fixed shape, no richer
// intermediate folded in).
type RuleDecision struct {
	Action     string  `json:"action"` // buy | sell | hold
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence"`
}

// Order is one accepted order placed by the Executor (§6 external orders
// table).
type Order struct {
	RuleID    string
	Symbol    string
	Side      OrderSide
	Price     float64
	Amount    float64
	Status    string
	PnL       float64
	CreatedAt time.Time
}

// NewOrder records an accepted order.
func NewOrder(ruleID, symbol string, side OrderSide, price, amount, pnl float64) Order {
	return Order{
		RuleID:    ruleID,
		Symbol:    symbol,
		Side:      side,
		Price:     price,
		Amount:    amount,
		Status:    "filled",
		PnL:       pnl,
		CreatedAt: time.Now(),
	}
}
