package ledger

import (
	"fmt"
	"time"

	"github.com/dmaloney/wheelhouse/internal/chain"
	"github.com/dmaloney/wheelhouse/internal/num"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// SpotFunc looks up the closing price of a symbol for the day being
// processed. ok=false means no price is available; the ledger treats that
// as a hold and never fails the day.
type SpotFunc func(symbol string) (price float64, ok bool)

// slot holds everything the ledger tracks for one symbol: the lifecycle
// machine, at most one short put or short call, and at most one stock
// position.
type slot[T num.Real[T]] struct {
	machine *StateMachine
	put     *Position[T]
	call    *Position[T]
	stock   *Position[T]
}

// Ledger is the accounting core of a single simulation run. It is not safe
// for concurrent use; a run is strictly sequential and each sweep worker
// owns its own ledger.
type Ledger[T num.Real[T]] struct {
	cash             T
	premiumCollected T
	assignments      int
	slots            map[string]*slot[T]
	symbols          []string // slot creation order, for deterministic replay
	trades           []Trade
	logger           *logrus.Logger
}

// New creates a ledger holding the initial capital in cash.
func New[T num.Real[T]](initialCapital float64, logger *logrus.Logger) *Ledger[T] {
	var zero T
	return &Ledger[T]{
		cash:   zero.Of(initialCapital),
		slots:  make(map[string]*slot[T]),
		logger: logger,
	}
}

func (l *Ledger[T]) of(v float64) T {
	var zero T
	return zero.Of(v)
}

func (l *Ledger[T]) slotFor(symbol string) *slot[T] {
	s, ok := l.slots[symbol]
	if !ok {
		s = &slot[T]{machine: NewStateMachine()}
		l.slots[symbol] = s
		l.symbols = append(l.symbols, symbol)
	}
	return s
}

// Cash returns the current cash balance.
func (l *Ledger[T]) Cash() T { return l.cash }

// PremiumCollected returns the net option premium retained so far: credits
// from sells and roll reopens, minus buy-back debits from rolls and early
// closes. It reconciles with the per-symbol premium tallies in the report.
func (l *Ledger[T]) PremiumCollected() T { return l.premiumCollected }

// Assignments returns how many puts were assigned.
func (l *Ledger[T]) Assignments() int { return l.assignments }

// State returns the wheel state of a symbol slot.
func (l *Ledger[T]) State(symbol string) SlotState {
	if s, ok := l.slots[symbol]; ok {
		return s.machine.CurrentState()
	}
	return StateFlat
}

// Trades returns a copy of the append-only trade log.
func (l *Ledger[T]) Trades() []Trade {
	out := make([]Trade, len(l.trades))
	copy(out, l.trades)
	return out
}

// OpenPositions returns copies of every open position in slot order.
func (l *Ledger[T]) OpenPositions() []Position[T] {
	var out []Position[T]
	for _, sym := range l.symbols {
		s := l.slots[sym]
		for _, p := range []*Position[T]{s.put, s.call, s.stock} {
			if p != nil {
				out = append(out, *p)
			}
		}
	}
	return out
}

// Stock returns a copy of the open stock position for the symbol.
func (l *Ledger[T]) Stock(symbol string) (Position[T], bool) {
	if s, ok := l.slots[symbol]; ok && s.stock != nil {
		return *s.stock, true
	}
	var zero Position[T]
	return zero, false
}

// UncoveredStocks returns copies of stock positions with no call written,
// in slot order.
func (l *Ledger[T]) UncoveredStocks() []Position[T] {
	var out []Position[T]
	for _, sym := range l.symbols {
		s := l.slots[sym]
		if s.stock != nil && s.call == nil {
			out = append(out, *s.stock)
		}
	}
	return out
}

// ShortOptions returns copies of every open short option in slot order,
// puts before calls within a slot.
func (l *Ledger[T]) ShortOptions() []Position[T] {
	var out []Position[T]
	for _, sym := range l.symbols {
		s := l.slots[sym]
		if s.put != nil {
			out = append(out, *s.put)
		}
		if s.call != nil {
			out = append(out, *s.call)
		}
	}
	return out
}

func (l *Ledger[T]) append(t Trade) {
	l.trades = append(l.trades, t)
}

// SellPut opens a cash-secured put: premium is credited immediately at the
// bid, and the slot moves FLAT -> SHORT_PUT.
func (l *Ledger[T]) SellPut(date time.Time, ct chain.Contract, contracts int) error {
	if ct.Class != chain.ClassPut {
		return fmt.Errorf("sell put: contract is a %s", ct.Class)
	}
	if contracts <= 0 {
		return fmt.Errorf("sell put: contracts must be > 0 (got %d)", contracts)
	}

	s := l.slotFor(ct.Symbol)
	if err := s.machine.Transition(StateShortPut, ConditionPutSold); err != nil {
		return fmt.Errorf("sell put %s: %w", ct.Symbol, err)
	}

	qty := contracts * sharesPerContract
	premium := l.of(ct.Bid)
	credit := premium.Mul(l.of(float64(qty)))
	l.cash = l.cash.Add(credit)
	l.premiumCollected = l.premiumCollected.Add(credit)

	s.put = &Position[T]{
		ID:              uuid.NewString(),
		Symbol:          ct.Symbol,
		Kind:            KindShortPut,
		Strike:          ct.Strike,
		Expiration:      ct.Expiration,
		Quantity:        qty,
		PremiumPerShare: premium,
		EntryDate:       date,
	}
	l.append(Trade{Date: date, Symbol: ct.Symbol, Action: ActionSellPut, Price: ct.Bid, Quantity: contracts})

	l.logger.WithFields(logrus.Fields{
		"symbol":  ct.Symbol,
		"strike":  ct.Strike,
		"premium": ct.Bid,
		"expiry":  ct.Expiration.Format("2006-01-02"),
	}).Info("SELL PUT")
	return nil
}

// SellCall opens a covered call against the slot's stock position. The
// stock persists underneath; the slot moves LONG_STOCK -> COVERED.
func (l *Ledger[T]) SellCall(date time.Time, ct chain.Contract) error {
	if ct.Class != chain.ClassCall {
		return fmt.Errorf("sell call: contract is a %s", ct.Class)
	}
	s := l.slotFor(ct.Symbol)
	if s.stock == nil {
		return fmt.Errorf("sell call %s: no stock position to cover", ct.Symbol)
	}
	contracts := s.stock.Quantity / sharesPerContract
	if contracts <= 0 {
		return fmt.Errorf("sell call %s: fewer than %d shares held", ct.Symbol, sharesPerContract)
	}
	if err := s.machine.Transition(StateCovered, ConditionCallSold); err != nil {
		return fmt.Errorf("sell call %s: %w", ct.Symbol, err)
	}

	qty := contracts * sharesPerContract
	premium := l.of(ct.Bid)
	credit := premium.Mul(l.of(float64(qty)))
	l.cash = l.cash.Add(credit)
	l.premiumCollected = l.premiumCollected.Add(credit)

	s.call = &Position[T]{
		ID:              uuid.NewString(),
		Symbol:          ct.Symbol,
		Kind:            KindShortCall,
		Strike:          ct.Strike,
		Expiration:      ct.Expiration,
		Quantity:        qty,
		PremiumPerShare: premium,
		EntryDate:       date,
	}
	l.append(Trade{Date: date, Symbol: ct.Symbol, Action: ActionSellCall, Price: ct.Bid, Quantity: contracts})

	l.logger.WithFields(logrus.Fields{
		"symbol":  ct.Symbol,
		"strike":  ct.Strike,
		"premium": ct.Bid,
	}).Info("SELL CALL")
	return nil
}

// ProcessExpirations settles every open option whose expiration has passed
// or arrived, using that day's spot price. A symbol with no spot available
// is skipped and re-evaluated the next day.
func (l *Ledger[T]) ProcessExpirations(date time.Time, spot SpotFunc) {
	for _, sym := range l.symbols {
		s := l.slots[sym]
		if s.put != nil && !date.Before(s.put.Expiration) {
			if price, ok := spot(sym); ok {
				l.settlePut(date, s, price)
			} else {
				l.logger.WithField("symbol", sym).Debug("no spot price at put expiration, holding")
			}
		}
		if s.call != nil && !date.Before(s.call.Expiration) {
			if price, ok := spot(sym); ok {
				l.settleCall(date, s, price)
			} else {
				l.logger.WithField("symbol", sym).Debug("no spot price at call expiration, holding")
			}
		}
	}
}

// settlePut applies put expiration: assignment iff spot < strike.
func (l *Ledger[T]) settlePut(date time.Time, s *slot[T], spot float64) {
	p := s.put
	if spot < p.Strike {
		// Assigned: buy shares at strike. The premium already received
		// reduces the effective cost basis.
		cost := l.of(p.Strike).Mul(l.of(float64(p.Quantity)))
		l.cash = l.cash.Sub(cost)
		l.assignments++

		s.stock = &Position[T]{
			ID:                uuid.NewString(),
			Symbol:            p.Symbol,
			Kind:              KindLongStock,
			Quantity:          p.Quantity,
			PremiumPerShare:   p.PremiumPerShare,
			CostBasisPerShare: l.of(p.Strike).Sub(p.PremiumPerShare),
			EntryDate:         date,
		}
		s.put = nil
		if err := s.machine.Transition(StateLongStock, ConditionPutAssigned); err != nil {
			l.logger.WithField("symbol", p.Symbol).Errorf("state transition: %v", err)
		}
		l.append(Trade{Date: date, Symbol: p.Symbol, Action: ActionPutAssigned, Price: p.Strike, Quantity: p.Quantity})

		l.logger.WithFields(logrus.Fields{
			"symbol":     p.Symbol,
			"strike":     p.Strike,
			"spot":       spot,
			"cost_basis": s.stock.CostBasisPerShare.Float64(),
		}).Info("PUT ASSIGNED")
		return
	}

	// Expired worthless: premium was credited at entry, no further cash
	// movement.
	qty := p.Quantity
	s.put = nil
	if err := s.machine.Transition(StateFlat, ConditionPutExpired); err != nil {
		l.logger.WithField("symbol", p.Symbol).Errorf("state transition: %v", err)
	}
	l.append(Trade{Date: date, Symbol: p.Symbol, Action: ActionPutExpired, Price: 0, Quantity: qty})
	l.logger.WithFields(logrus.Fields{"symbol": p.Symbol, "spot": spot}).Info("PUT EXPIRED")
}

// settleCall applies call expiration: called away iff spot > strike.
func (l *Ledger[T]) settleCall(date time.Time, s *slot[T], spot float64) {
	c := s.call
	if spot > c.Strike {
		// Called away: shares sold at strike, both legs close.
		revenue := l.of(c.Strike).Mul(l.of(float64(c.Quantity)))
		l.cash = l.cash.Add(revenue)

		s.call = nil
		s.stock = nil
		if err := s.machine.Transition(StateFlat, ConditionCalledAway); err != nil {
			l.logger.WithField("symbol", c.Symbol).Errorf("state transition: %v", err)
		}
		l.append(Trade{Date: date, Symbol: c.Symbol, Action: ActionCallAssigned, Price: c.Strike, Quantity: c.Quantity})
		l.logger.WithFields(logrus.Fields{
			"symbol": c.Symbol,
			"strike": c.Strike,
			"spot":   spot,
		}).Info("CALLED AWAY")
		return
	}

	// Expired worthless: shares retained, premium retained.
	qty := c.Quantity
	s.call = nil
	if err := s.machine.Transition(StateLongStock, ConditionCallExpired); err != nil {
		l.logger.WithField("symbol", c.Symbol).Errorf("state transition: %v", err)
	}
	l.append(Trade{Date: date, Symbol: c.Symbol, Action: ActionCallExpired, Price: 0, Quantity: qty})
	l.logger.WithFields(logrus.Fields{"symbol": c.Symbol, "spot": spot}).Info("CALL EXPIRED")
}

// RollOption closes a near-expiry short option at closePrice (the current
// ask) and reopens the replacement contract in the same motion, crediting
// its bid. The slot state self-loops.
func (l *Ledger[T]) RollOption(date time.Time, symbol string, kind Kind, closePrice float64, next chain.Contract) error {
	s, ok := l.slots[symbol]
	if !ok {
		return fmt.Errorf("roll %s: no slot", symbol)
	}

	var pos *Position[T]
	var condition string
	var action Action
	switch kind {
	case KindShortPut:
		pos, condition, action = s.put, ConditionPutRolled, ActionPutRolled
		if next.Class != chain.ClassPut {
			return fmt.Errorf("roll %s: replacement is a %s", symbol, next.Class)
		}
	case KindShortCall:
		pos, condition, action = s.call, ConditionCallRolled, ActionCallRolled
		if next.Class != chain.ClassCall {
			return fmt.Errorf("roll %s: replacement is a %s", symbol, next.Class)
		}
	default:
		return fmt.Errorf("roll %s: cannot roll %s", symbol, kind)
	}
	if pos == nil {
		return fmt.Errorf("roll %s: no open %s", symbol, kind)
	}

	target := s.machine.CurrentState()
	if err := s.machine.Transition(target, condition); err != nil {
		return fmt.Errorf("roll %s: %w", symbol, err)
	}

	qty := l.of(float64(pos.Quantity))
	debit := l.of(closePrice).Mul(qty)
	credit := l.of(next.Bid).Mul(qty)
	l.cash = l.cash.Sub(debit).Add(credit)
	l.premiumCollected = l.premiumCollected.Add(credit).Sub(debit)

	pos.Strike = next.Strike
	pos.Expiration = next.Expiration
	pos.PremiumPerShare = l.of(next.Bid)

	l.append(Trade{Date: date, Symbol: symbol, Action: action, Price: next.Bid - closePrice, Quantity: pos.Contracts()})
	l.logger.WithFields(logrus.Fields{
		"symbol":     symbol,
		"kind":       kind,
		"strike":     next.Strike,
		"net_credit": next.Bid - closePrice,
	}).Info("ROLLED")
	return nil
}

// CloseOption buys back a short option early at the given price per share
// (take-profit close). A closed call leaves the stock in place.
func (l *Ledger[T]) CloseOption(date time.Time, symbol string, kind Kind, price float64) error {
	s, ok := l.slots[symbol]
	if !ok {
		return fmt.Errorf("close %s: no slot", symbol)
	}

	switch kind {
	case KindShortPut:
		if s.put == nil {
			return fmt.Errorf("close %s: no open put", symbol)
		}
		if err := s.machine.Transition(StateFlat, ConditionPutClosed); err != nil {
			return fmt.Errorf("close %s: %w", symbol, err)
		}
		debit := l.of(price).Mul(l.of(float64(s.put.Quantity)))
		l.cash = l.cash.Sub(debit)
		l.premiumCollected = l.premiumCollected.Sub(debit)
		l.append(Trade{Date: date, Symbol: symbol, Action: ActionPutClosed, Price: price, Quantity: s.put.Contracts()})
		s.put = nil
	case KindShortCall:
		if s.call == nil {
			return fmt.Errorf("close %s: no open call", symbol)
		}
		if err := s.machine.Transition(StateLongStock, ConditionCallClosed); err != nil {
			return fmt.Errorf("close %s: %w", symbol, err)
		}
		debit := l.of(price).Mul(l.of(float64(s.call.Quantity)))
		l.cash = l.cash.Sub(debit)
		l.premiumCollected = l.premiumCollected.Sub(debit)
		l.append(Trade{Date: date, Symbol: symbol, Action: ActionCallClosed, Price: price, Quantity: s.call.Contracts()})
		s.call = nil
	default:
		return fmt.Errorf("close %s: cannot close %s", symbol, kind)
	}

	l.logger.WithFields(logrus.Fields{"symbol": symbol, "kind": kind, "price": price}).Info("CLOSED EARLY")
	return nil
}

// PortfolioValue marks the book: cash plus shares at spot over open stock
// positions. Short options carry no mark-to-market value between entry and
// expiry in this model. A stock with no spot available contributes nothing
// today and is picked up again when data returns.
func (l *Ledger[T]) PortfolioValue(spot SpotFunc) T {
	total := l.cash
	for _, sym := range l.symbols {
		s := l.slots[sym]
		if s.stock == nil {
			continue
		}
		if price, ok := spot(sym); ok {
			total = total.Add(l.of(price).Mul(l.of(float64(s.stock.Quantity))))
		}
	}
	return total
}
