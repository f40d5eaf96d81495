package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"StarLedger/internal/clock"
	"StarLedger/internal/event"
	"StarLedger/internal/market"
	"StarLedger/internal/observability"
	"StarLedger/internal/store"
)

// ErrInsufficientBalance is returned by debit primitives when the movement
// would take a balance negative. Callers treat it as an expected outcome.
var ErrInsufficientBalance = errors.New("insufficient balance")

// ErrInvalidAmount is returned by movement primitives for non-positive amounts.
var ErrInvalidAmount = errors.New("amount must be positive")

// ResourceLedger owns per-player resource balances and the per-player
// transaction log. Every mutation runs inside a single store transaction, so
// a crash or a failed leg never leaves a partially-applied movement.
type ResourceLedger struct {
	store   store.Store
	clock   clock.Clock
	engine  *market.Engine
	sink    event.Sink
	log     zerolog.Logger
	metrics *observability.Metrics
}

func New(
	st store.Store,
	clk clock.Clock,
	engine *market.Engine,
	sink event.Sink,
	log zerolog.Logger,
	metrics *observability.Metrics,
) *ResourceLedger {
	return &ResourceLedger{
		store:   st,
		clock:   clk,
		engine:  engine,
		sink:    sink,
		log:     log,
		metrics: metrics,
	}
}

// --- Event payloads ---

type TransferredEvent struct {
	From     Player   `json:"from"`
	To       Player   `json:"to"`
	Resource Resource `json:"resource"`
	Amount   int64    `json:"amount"`
}

type TradedEvent struct {
	Buyer    Player   `json:"buyer"`
	Seller   Player   `json:"seller"`
	Resource Resource `json:"resource"`
	Amount   int64    `json:"amount"`
	Price    int64    `json:"price"`
}

// --- Resource management ---

// InitResource creates the price record for a resource kind with the default
// volatility. Initializing the same resource twice returns AlreadyExists.
func (l *ResourceLedger) InitResource(ctx context.Context, resource Resource, basePrice int64) (Outcome, error) {
	if basePrice <= 0 {
		return OutcomeInvalidAmount, nil
	}

	key := store.NewKey(store.KindPrice, string(resource))
	outcome := OutcomeOK

	err := l.store.Update(ctx, func(tx store.Tx) error {
		exists, err := tx.Has(key)
		if err != nil {
			return err
		}
		if exists {
			outcome = OutcomeAlreadyExists
			return nil
		}

		rec := market.PriceRecord{
			BasePrice:  basePrice,
			Volatility: market.DefaultVolatility,
			LastUpdate: l.clock.Now(),
		}
		return store.SetJSON(tx, key, rec)
	})
	if err != nil {
		return OutcomeOK, fmt.Errorf("init resource %s: %w", resource, err)
	}

	if outcome == OutcomeOK {
		l.log.Info().Str("resource", string(resource)).Int64("base_price", basePrice).Msg("resource initialized")
	}
	return outcome, nil
}

// PriceOf resolves the current oscillating price of a resource.
func (l *ResourceLedger) PriceOf(ctx context.Context, resource Resource) (int64, Outcome, error) {
	rec, found, err := l.priceRecord(ctx, resource)
	if err != nil {
		return 0, OutcomeOK, err
	}
	if !found {
		return 0, OutcomeNotFound, nil
	}

	if l.metrics != nil {
		l.metrics.PriceQueries.Inc()
	}
	return l.engine.Current(rec), OutcomeOK, nil
}

// TrendOf reports the market trend of a resource in [-100, 100].
func (l *ResourceLedger) TrendOf(ctx context.Context, resource Resource) (int64, Outcome, error) {
	rec, found, err := l.priceRecord(ctx, resource)
	if err != nil {
		return 0, OutcomeOK, err
	}
	if !found {
		return 0, OutcomeNotFound, nil
	}
	return l.engine.Trend(rec), OutcomeOK, nil
}

func (l *ResourceLedger) priceRecord(ctx context.Context, resource Resource) (market.PriceRecord, bool, error) {
	var rec market.PriceRecord
	var found bool

	err := l.store.View(ctx, func(tx store.Tx) error {
		var err error
		found, err = store.GetJSON(tx, store.NewKey(store.KindPrice, string(resource)), &rec)
		return err
	})
	if err != nil {
		return market.PriceRecord{}, false, fmt.Errorf("load price record %s: %w", resource, err)
	}
	return rec, found, nil
}

// --- Balances ---

// BalanceOf returns a player's balance for a resource. Unknown players and
// resources read as zero.
func (l *ResourceLedger) BalanceOf(ctx context.Context, player Player, resource Resource) (int64, error) {
	var balance int64
	err := l.store.View(ctx, func(tx store.Tx) error {
		var err error
		balance, err = l.BalanceTx(tx, player, resource)
		return err
	})
	return balance, err
}

// BalanceTx reads a balance inside an open transaction.
func (l *ResourceLedger) BalanceTx(tx store.Tx, player Player, resource Resource) (int64, error) {
	var balance int64
	_, err := store.GetJSON(tx, store.NewKey(store.KindBalance, string(player), string(resource)), &balance)
	return balance, err
}

// CreditTx adds amount to a player's balance inside an open transaction.
func (l *ResourceLedger) CreditTx(tx store.Tx, player Player, resource Resource, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}

	balance, err := l.BalanceTx(tx, player, resource)
	if err != nil {
		return err
	}
	return store.SetJSON(tx, store.NewKey(store.KindBalance, string(player), string(resource)), balance+amount)
}

// DebitTx removes amount from a player's balance inside an open transaction.
// A debit below zero is rejected with ErrInsufficientBalance and writes
// nothing.
func (l *ResourceLedger) DebitTx(tx store.Tx, player Player, resource Resource, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}

	balance, err := l.BalanceTx(tx, player, resource)
	if err != nil {
		return err
	}
	if balance < amount {
		return ErrInsufficientBalance
	}
	return store.SetJSON(tx, store.NewKey(store.KindBalance, string(player), string(resource)), balance-amount)
}

// TransferTx moves amount from one player to another and appends a Transfer
// entry to the sender's log, all inside the caller's transaction. Debit and
// credit amounts are equal, so the total quantity of the resource is
// conserved.
func (l *ResourceLedger) TransferTx(tx store.Tx, from, to Player, resource Resource, amount int64) error {
	if err := l.DebitTx(tx, from, resource, amount); err != nil {
		return err
	}
	if err := l.CreditTx(tx, to, resource, amount); err != nil {
		return err
	}

	return l.appendHistoryTx(tx, from, Transaction{
		Timestamp:    l.clock.Now(),
		Kind:         KindTransfer,
		Resource:     resource,
		Amount:       amount,
		Price:        0,
		Counterparty: to,
	})
}

// --- Movements ---

// Transfer atomically moves amount of resource between players. It returns
// false, with no mutation, when amount is non-positive or the sender's
// balance is insufficient.
func (l *ResourceLedger) Transfer(ctx context.Context, from, to Player, resource Resource, amount int64) (bool, error) {
	err := l.store.Update(ctx, func(tx store.Tx) error {
		return l.TransferTx(tx, from, to, resource, amount)
	})

	switch {
	case errors.Is(err, ErrInsufficientBalance), errors.Is(err, ErrInvalidAmount):
		l.countTransfer("rejected")
		return false, nil
	case err != nil:
		l.countTransfer("error")
		return false, fmt.Errorf("transfer %s %s->%s: %w", resource, from, to, err)
	}

	l.countTransfer("ok")
	l.sink.Publish(ctx, event.TopicResourceTransferred, TransferredEvent{
		From: from, To: to, Resource: resource, Amount: amount,
	})
	return true, nil
}

// Buy moves amount of resource from seller to buyer at the current market
// price and records a Buy transaction in the buyer's log. Payment settlement
// of the counter currency is external to the ledger; the resolved price on
// the transaction is its audit record.
func (l *ResourceLedger) Buy(ctx context.Context, buyer, seller Player, resource Resource, amount int64) (bool, error) {
	ok, price, err := l.trade(ctx, seller, buyer, resource, amount, KindBuy)
	if err != nil || !ok {
		l.countTrade("buy", ok, err)
		return ok, err
	}

	l.countTrade("buy", true, nil)
	l.sink.Publish(ctx, event.TopicResourceBought, TradedEvent{
		Buyer: buyer, Seller: seller, Resource: resource, Amount: amount, Price: price,
	})
	return true, nil
}

// Sell is the seller-initiated mirror of Buy; the Sell transaction lands in
// the seller's log.
func (l *ResourceLedger) Sell(ctx context.Context, seller, buyer Player, resource Resource, amount int64) (bool, error) {
	ok, price, err := l.trade(ctx, seller, buyer, resource, amount, KindSell)
	if err != nil || !ok {
		l.countTrade("sell", ok, err)
		return ok, err
	}

	l.countTrade("sell", true, nil)
	l.sink.Publish(ctx, event.TopicResourceSold, TradedEvent{
		Buyer: buyer, Seller: seller, Resource: resource, Amount: amount, Price: price,
	})
	return true, nil
}

// trade moves resource seller->buyer at the resolved price and logs the
// transaction on the initiating side.
func (l *ResourceLedger) trade(
	ctx context.Context,
	seller, buyer Player,
	resource Resource,
	amount int64,
	kind TransactionKind,
) (bool, int64, error) {
	if amount <= 0 {
		return false, 0, nil
	}

	var price int64

	err := l.store.Update(ctx, func(tx store.Tx) error {
		var rec market.PriceRecord
		found, err := store.GetJSON(tx, store.NewKey(store.KindPrice, string(resource)), &rec)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("resource %s: %w", resource, errNotInitialized)
		}
		price = l.engine.Current(rec)

		if err := l.DebitTx(tx, seller, resource, amount); err != nil {
			return err
		}
		if err := l.CreditTx(tx, buyer, resource, amount); err != nil {
			return err
		}

		logOwner := buyer
		counterparty := seller
		if kind == KindSell {
			logOwner = seller
			counterparty = buyer
		}
		return l.appendHistoryTx(tx, logOwner, Transaction{
			Timestamp:    l.clock.Now(),
			Kind:         kind,
			Resource:     resource,
			Amount:       amount,
			Price:        price,
			Counterparty: counterparty,
		})
	})

	switch {
	case errors.Is(err, ErrInsufficientBalance), errors.Is(err, errNotInitialized):
		return false, 0, nil
	case err != nil:
		return false, 0, fmt.Errorf("trade %s: %w", resource, err)
	}
	return true, price, nil
}

var errNotInitialized = errors.New("price record not initialized")

// --- History ---

// HistoryOf returns a player's completed transactions, oldest first.
func (l *ResourceLedger) HistoryOf(ctx context.Context, player Player) ([]Transaction, error) {
	var history []Transaction
	err := l.store.View(ctx, func(tx store.Tx) error {
		_, err := store.GetJSON(tx, store.NewKey(store.KindHistory, string(player)), &history)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("history of %s: %w", player, err)
	}
	if history == nil {
		history = []Transaction{}
	}
	return history, nil
}

func (l *ResourceLedger) appendHistoryTx(tx store.Tx, player Player, txn Transaction) error {
	key := store.NewKey(store.KindHistory, string(player))

	var history []Transaction
	if _, err := store.GetJSON(tx, key, &history); err != nil {
		return err
	}
	history = append(history, txn)
	return store.SetJSON(tx, key, history)
}

// --- Metrics ---

func (l *ResourceLedger) countTransfer(outcome string) {
	if l.metrics != nil {
		l.metrics.TransfersTotal.WithLabelValues(outcome).Inc()
	}
}

func (l *ResourceLedger) countTrade(kind string, ok bool, err error) {
	if l.metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	} else if !ok {
		outcome = "rejected"
	}
	l.metrics.TradesTotal.WithLabelValues(kind, outcome).Inc()
}
