package trading

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	"StarLedger/internal/event"
	"StarLedger/internal/ledger"
	"StarLedger/internal/observability"
	"StarLedger/internal/store"
)

// Offer is a standing proposal: the seller gives SellAmount of SellResource
// in exchange for BuyAmount of BuyResource. An offer is settled or withdrawn
// exactly once; Active flips to false on either and never back.
type Offer struct {
	ID           uint64          `json:"id"`
	Seller       ledger.Player   `json:"seller"`
	SellResource ledger.Resource `json:"sell_resource"`
	SellAmount   int64           `json:"sell_amount"`
	BuyResource  ledger.Resource `json:"buy_resource"`
	BuyAmount    int64           `json:"buy_amount"`
	Active       bool            `json:"active"`
}

// Outcome classifies the result of a book operation. Everything here is an
// expected domain result; infrastructure failures surface as errors instead.
type Outcome int32

const (
	OutcomeCreated Outcome = iota
	OutcomeAccepted
	OutcomeCancelled
	OutcomeNotFound
	OutcomeNotActive
	OutcomeSelfTrade
	OutcomeUnauthorized
	OutcomeInvalidAmount
	OutcomeInsufficientBalance
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCreated:
		return "Created"
	case OutcomeAccepted:
		return "Accepted"
	case OutcomeCancelled:
		return "Cancelled"
	case OutcomeNotFound:
		return "NotFound"
	case OutcomeNotActive:
		return "NotActive"
	case OutcomeSelfTrade:
		return "SelfTrade"
	case OutcomeUnauthorized:
		return "Unauthorized"
	case OutcomeInvalidAmount:
		return "InvalidAmount"
	case OutcomeInsufficientBalance:
		return "InsufficientBalance"
	default:
		return "Unknown"
	}
}

// --- Event payloads ---

type OfferCreatedEvent struct {
	OfferID      uint64          `json:"offer_id"`
	Seller       ledger.Player   `json:"seller"`
	SellResource ledger.Resource `json:"sell_resource"`
	SellAmount   int64           `json:"sell_amount"`
	BuyResource  ledger.Resource `json:"buy_resource"`
	BuyAmount    int64           `json:"buy_amount"`
}

type OfferSettledEvent struct {
	OfferID uint64        `json:"offer_id"`
	Seller  ledger.Player `json:"seller"`
	Buyer   ledger.Player `json:"buyer,omitempty"`
}

// Book is the trade offer book. Settlement reuses the ledger's transactional
// primitives so both legs of an acceptance land in one store transaction.
type Book struct {
	store   store.Store
	ledger  *ledger.ResourceLedger
	sink    event.Sink
	log     zerolog.Logger
	metrics *observability.Metrics
}

func NewBook(
	st store.Store,
	l *ledger.ResourceLedger,
	sink event.Sink,
	log zerolog.Logger,
	metrics *observability.Metrics,
) *Book {
	return &Book{store: st, ledger: l, sink: sink, log: log, metrics: metrics}
}

func offerKey(id uint64) store.Key {
	return store.NewKey(store.KindOffer, strconv.FormatUint(id, 10))
}

var activeIndexKey = store.NewKey(store.KindOfferIndex, "active")

// CreateOffer registers a new active offer and returns its id. Resources need
// not be initialized and the seller's balance is not checked here; escrow is
// resolved at acceptance time.
func (b *Book) CreateOffer(
	ctx context.Context,
	seller ledger.Player,
	sellResource ledger.Resource,
	sellAmount int64,
	buyResource ledger.Resource,
	buyAmount int64,
) (uint64, Outcome, error) {
	if sellAmount <= 0 || buyAmount <= 0 {
		b.countCreated(OutcomeInvalidAmount)
		return 0, OutcomeInvalidAmount, nil
	}

	var id uint64
	err := b.store.Update(ctx, func(tx store.Tx) error {
		var err error
		id, err = store.NextID(tx, "offer")
		if err != nil {
			return err
		}

		offer := Offer{
			ID:           id,
			Seller:       seller,
			SellResource: sellResource,
			SellAmount:   sellAmount,
			BuyResource:  buyResource,
			BuyAmount:    buyAmount,
			Active:       true,
		}
		if err := store.SetJSON(tx, offerKey(id), offer); err != nil {
			return err
		}
		if err := appendID(tx, activeIndexKey, id); err != nil {
			return err
		}
		return appendID(tx, store.NewKey(store.KindPlayerOffers, string(seller)), id)
	})
	if err != nil {
		return 0, OutcomeCreated, fmt.Errorf("create offer: %w", err)
	}

	b.countCreated(OutcomeCreated)
	if b.metrics != nil {
		b.metrics.ActiveOffers.Inc()
	}
	b.log.Info().
		Uint64("offer_id", id).
		Str("seller", string(seller)).
		Str("sell", fmt.Sprintf("%d %s", sellAmount, sellResource)).
		Str("buy", fmt.Sprintf("%d %s", buyAmount, buyResource)).
		Msg("offer created")

	b.sink.Publish(ctx, event.TopicOfferCreated, OfferCreatedEvent{
		OfferID:      id,
		Seller:       seller,
		SellResource: sellResource,
		SellAmount:   sellAmount,
		BuyResource:  buyResource,
		BuyAmount:    buyAmount,
	})
	return id, OutcomeCreated, nil
}

// AcceptOffer settles an active offer: the seller's sell leg and the buyer's
// buy leg move in one transaction, then the offer deactivates. If either leg
// fails the whole acceptance rolls back and the offer stays active.
func (b *Book) AcceptOffer(ctx context.Context, buyer ledger.Player, offerID uint64) (Outcome, error) {
	outcome := OutcomeAccepted
	var offer Offer

	err := b.store.Update(ctx, func(tx store.Tx) error {
		found, err := store.GetJSON(tx, offerKey(offerID), &offer)
		if err != nil {
			return err
		}
		if !found {
			outcome = OutcomeNotFound
			return nil
		}
		if !offer.Active {
			outcome = OutcomeNotActive
			return nil
		}
		if buyer == offer.Seller {
			outcome = OutcomeSelfTrade
			return nil
		}

		if err := b.ledger.TransferTx(tx, offer.Seller, buyer, offer.SellResource, offer.SellAmount); err != nil {
			return err
		}
		if err := b.ledger.TransferTx(tx, buyer, offer.Seller, offer.BuyResource, offer.BuyAmount); err != nil {
			return err
		}

		offer.Active = false
		if err := store.SetJSON(tx, offerKey(offerID), offer); err != nil {
			return err
		}
		return removeID(tx, activeIndexKey, offerID)
	})

	switch {
	case errors.Is(err, ledger.ErrInsufficientBalance):
		outcome = OutcomeInsufficientBalance
	case errors.Is(err, ledger.ErrInvalidAmount):
		outcome = OutcomeInvalidAmount
	case err != nil:
		return OutcomeAccepted, fmt.Errorf("accept offer %d: %w", offerID, err)
	}

	b.countAccepted(outcome)
	if outcome != OutcomeAccepted {
		return outcome, nil
	}

	if b.metrics != nil {
		b.metrics.ActiveOffers.Dec()
	}
	b.log.Info().
		Uint64("offer_id", offerID).
		Str("buyer", string(buyer)).
		Str("seller", string(offer.Seller)).
		Msg("offer accepted")

	b.sink.Publish(ctx, event.TopicOfferAccepted, OfferSettledEvent{
		OfferID: offerID,
		Seller:  offer.Seller,
		Buyer:   buyer,
	})
	return OutcomeAccepted, nil
}

// CancelOffer withdraws an active offer. Only its creator may cancel.
func (b *Book) CancelOffer(ctx context.Context, caller ledger.Player, offerID uint64) (Outcome, error) {
	outcome := OutcomeCancelled
	var offer Offer

	err := b.store.Update(ctx, func(tx store.Tx) error {
		found, err := store.GetJSON(tx, offerKey(offerID), &offer)
		if err != nil {
			return err
		}
		if !found {
			outcome = OutcomeNotFound
			return nil
		}
		if !offer.Active {
			outcome = OutcomeNotActive
			return nil
		}
		if caller != offer.Seller {
			outcome = OutcomeUnauthorized
			return nil
		}

		offer.Active = false
		if err := store.SetJSON(tx, offerKey(offerID), offer); err != nil {
			return err
		}
		return removeID(tx, activeIndexKey, offerID)
	})
	if err != nil {
		return OutcomeCancelled, fmt.Errorf("cancel offer %d: %w", offerID, err)
	}

	b.countCancelled(outcome)
	if outcome != OutcomeCancelled {
		return outcome, nil
	}

	if b.metrics != nil {
		b.metrics.ActiveOffers.Dec()
	}
	b.log.Info().Uint64("offer_id", offerID).Str("seller", string(caller)).Msg("offer cancelled")

	b.sink.Publish(ctx, event.TopicOfferCancelled, OfferSettledEvent{
		OfferID: offerID,
		Seller:  offer.Seller,
	})
	return OutcomeCancelled, nil
}

// OfferDetails resolves a single offer, active or not.
func (b *Book) OfferDetails(ctx context.Context, offerID uint64) (Offer, bool, error) {
	var offer Offer
	var found bool
	err := b.store.View(ctx, func(tx store.Tx) error {
		var err error
		found, err = store.GetJSON(tx, offerKey(offerID), &offer)
		return err
	})
	if err != nil {
		return Offer{}, false, fmt.Errorf("load offer %d: %w", offerID, err)
	}
	return offer, found, nil
}

// ListActiveOffers returns every active offer, oldest first. Served from the
// active index rather than a full scan.
func (b *Book) ListActiveOffers(ctx context.Context) ([]Offer, error) {
	return b.loadByIndex(ctx, activeIndexKey)
}

// OffersOf returns every offer a player has ever created, oldest first,
// including settled and cancelled ones.
func (b *Book) OffersOf(ctx context.Context, player ledger.Player) ([]Offer, error) {
	return b.loadByIndex(ctx, store.NewKey(store.KindPlayerOffers, string(player)))
}

func (b *Book) loadByIndex(ctx context.Context, indexKey store.Key) ([]Offer, error) {
	offers := []Offer{}
	err := b.store.View(ctx, func(tx store.Tx) error {
		var ids []uint64
		if _, err := store.GetJSON(tx, indexKey, &ids); err != nil {
			return err
		}
		for _, id := range ids {
			var offer Offer
			found, err := store.GetJSON(tx, offerKey(id), &offer)
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("index references missing offer %d", id)
			}
			offers = append(offers, offer)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list offers: %w", err)
	}
	return offers, nil
}

// --- ID list helpers ---

func appendID(tx store.Tx, key store.Key, id uint64) error {
	var ids []uint64
	if _, err := store.GetJSON(tx, key, &ids); err != nil {
		return err
	}
	return store.SetJSON(tx, key, append(ids, id))
}

func removeID(tx store.Tx, key store.Key, id uint64) error {
	var ids []uint64
	if _, err := store.GetJSON(tx, key, &ids); err != nil {
		return err
	}
	kept := ids[:0]
	for _, v := range ids {
		if v != id {
			kept = append(kept, v)
		}
	}
	return store.SetJSON(tx, key, kept)
}

// --- Metrics ---

func (b *Book) countCreated(outcome Outcome) {
	if b.metrics != nil {
		b.metrics.OffersCreated.WithLabelValues(outcome.String()).Inc()
	}
}

func (b *Book) countAccepted(outcome Outcome) {
	if b.metrics != nil {
		b.metrics.OffersAccepted.WithLabelValues(outcome.String()).Inc()
	}
}

func (b *Book) countCancelled(outcome Outcome) {
	if b.metrics != nil {
		b.metrics.OffersCancelled.WithLabelValues(outcome.String()).Inc()
	}
}
