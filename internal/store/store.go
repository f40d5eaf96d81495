package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Key is a composite storage key produced by NewKey.
type Key string

// Kind is the entity namespace a key belongs to. Every kind in the schema
// table below maps to exactly one owning component; keys are never built from
// raw strings.
type Kind string

const (
	KindPrice          Kind = "price"       // price/<resource>
	KindBalance        Kind = "balance"     // balance/<player>/<resource>
	KindHistory        Kind = "history"     // history/<player>
	KindOffer          Kind = "offer"       // offer/<id>
	KindOfferIndex     Kind = "offeridx"    // offeridx/active
	KindPlayerOffers   Kind = "playeroffer" // playeroffer/<player>
	KindMission        Kind = "mission"     // mission/<id>
	KindMissionIndex   Kind = "missionidx"  // missionidx/all
	KindPlayerMissions Kind = "playermsn"   // playermsn/<player>
	KindAchievement    Kind = "achieve"     // achieve/<id>
	KindAchieveIndex   Kind = "achieveidx"  // achieveidx/all
	KindPlayerAchieves Kind = "playerach"   // playerach/<player>
	KindCounter        Kind = "counter"     // counter/<name>
	KindDiscovery      Kind = "discovery"   // discovery/<player>/<star>
)

// schema maps each kind to its expected identifier arity.
var schema = map[Kind]int{
	KindPrice:          1,
	KindBalance:        2,
	KindHistory:        1,
	KindOffer:          1,
	KindOfferIndex:     1,
	KindPlayerOffers:   1,
	KindMission:        1,
	KindMissionIndex:   1,
	KindPlayerMissions: 1,
	KindAchievement:    1,
	KindAchieveIndex:   1,
	KindPlayerAchieves: 1,
	KindCounter:        1,
	KindDiscovery:      2,
}

// NewKey builds a namespaced key from an entity kind and its identifiers.
// An unknown kind or wrong identifier count is a programming error, not a
// runtime condition.
func NewKey(kind Kind, parts ...string) Key {
	arity, ok := schema[kind]
	if !ok {
		panic(fmt.Sprintf("store: unknown key kind %q", kind))
	}
	if len(parts) != arity {
		panic(fmt.Sprintf("store: kind %q expects %d identifiers, got %d", kind, arity, len(parts)))
	}
	return Key(string(kind) + "/" + strings.Join(parts, "/"))
}

// Tx is the read-modify-write scope of a single operation. Reads observe
// writes made earlier in the same transaction.
type Tx interface {
	Get(key Key) ([]byte, bool, error)
	Set(key Key, value []byte) error
	Has(key Key) (bool, error)
}

// Store is a keyed durable map. Update runs fn inside a single atomic
// transaction: either every write commits or none does, and no other
// transaction observes an intermediate state. View is read-only.
type Store interface {
	View(ctx context.Context, fn func(Tx) error) error
	Update(ctx context.Context, fn func(Tx) error) error
}

// GetJSON unmarshals the value at key into out. Returns false with no error
// when the key is absent.
func GetJSON(tx Tx, key Key, out interface{}) (bool, error) {
	raw, ok, err := tx.Get(key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// SetJSON marshals v and stores it at key.
func SetJSON(tx Tx, key Key, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return tx.Set(key, raw)
}

// NextID increments the named monotonic counter and returns the new value.
// The increment is part of the enclosing transaction, so an id is never
// observed without the entity written alongside it.
func NextID(tx Tx, name string) (uint64, error) {
	key := NewKey(KindCounter, name)

	var current uint64
	if _, err := GetJSON(tx, key, &current); err != nil {
		return 0, err
	}

	next := current + 1
	if err := SetJSON(tx, key, next); err != nil {
		return 0, err
	}
	return next, nil
}
