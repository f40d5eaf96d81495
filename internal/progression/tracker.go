package progression

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	"StarLedger/internal/event"
	"StarLedger/internal/ledger"
	"StarLedger/internal/observability"
	"StarLedger/internal/store"
)

// Reward is the resource credit granted on completion.
type Reward struct {
	Resource ledger.Resource `json:"resource"`
	Amount   int64           `json:"amount"`
}

// Mission is a gated objective. Completed is a one-way latch: once set it
// never clears, and a second completion attempt reports AlreadyCompleted
// without re-granting the reward.
type Mission struct {
	ID                uint64                    `json:"id"`
	Name              string                    `json:"name"`
	Description       string                    `json:"description"`
	Reward            Reward                    `json:"reward"`
	RequiredStars     []string                  `json:"required_stars,omitempty"`
	RequiredResources map[ledger.Resource]int64 `json:"required_resources,omitempty"`
	Completed         bool                      `json:"completed"`
}

// Achievement is an ungated milestone with the same one-way latch semantics.
type Achievement struct {
	ID          uint64 `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Reward      Reward `json:"reward"`
	Completed   bool   `json:"completed"`
}

// Outcome classifies completion attempts.
type Outcome int32

const (
	OutcomeCompleted Outcome = iota
	OutcomeAlreadyCompleted
	OutcomeNotFound
	OutcomeRequirementsNotMet
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "Completed"
	case OutcomeAlreadyCompleted:
		return "AlreadyCompleted"
	case OutcomeNotFound:
		return "NotFound"
	case OutcomeRequirementsNotMet:
		return "RequirementsNotMet"
	default:
		return "Unknown"
	}
}

// DiscoveryState answers whether a player has discovered a star. Exploration
// itself lives outside the tracker; this is its read surface.
type DiscoveryState interface {
	HasDiscovered(ctx context.Context, player ledger.Player, star string) (bool, error)
}

// StoreDiscovery reads discovery flags recorded in the store.
type StoreDiscovery struct {
	store store.Store
}

func NewStoreDiscovery(st store.Store) *StoreDiscovery {
	return &StoreDiscovery{store: st}
}

func (d *StoreDiscovery) HasDiscovered(ctx context.Context, player ledger.Player, star string) (bool, error) {
	var found bool
	err := d.store.View(ctx, func(tx store.Tx) error {
		var err error
		found, err = tx.Has(store.NewKey(store.KindDiscovery, string(player), star))
		return err
	})
	if err != nil {
		return false, fmt.Errorf("discovery %s/%s: %w", player, star, err)
	}
	return found, nil
}

// MarkDiscovered records a star discovery for a player.
func (d *StoreDiscovery) MarkDiscovered(ctx context.Context, player ledger.Player, star string) error {
	err := d.store.Update(ctx, func(tx store.Tx) error {
		return store.SetJSON(tx, store.NewKey(store.KindDiscovery, string(player), star), true)
	})
	if err != nil {
		return fmt.Errorf("mark discovered %s/%s: %w", player, star, err)
	}
	return nil
}

// --- Event payloads ---

type CompletedEvent struct {
	ID     uint64        `json:"id"`
	Name   string        `json:"name"`
	Player ledger.Player `json:"player"`
	Reward Reward        `json:"reward"`
}

// Tracker owns missions and achievements: their definitions, completion
// latches, and reward grants.
type Tracker struct {
	store     store.Store
	ledger    *ledger.ResourceLedger
	discovery DiscoveryState
	sink      event.Sink
	log       zerolog.Logger
	metrics   *observability.Metrics
}

func NewTracker(
	st store.Store,
	l *ledger.ResourceLedger,
	discovery DiscoveryState,
	sink event.Sink,
	log zerolog.Logger,
	metrics *observability.Metrics,
) *Tracker {
	return &Tracker{
		store:     st,
		ledger:    l,
		discovery: discovery,
		sink:      sink,
		log:       log,
		metrics:   metrics,
	}
}

func missionKey(id uint64) store.Key {
	return store.NewKey(store.KindMission, strconv.FormatUint(id, 10))
}

func achievementKey(id uint64) store.Key {
	return store.NewKey(store.KindAchievement, strconv.FormatUint(id, 10))
}

var (
	missionIndexKey     = store.NewKey(store.KindMissionIndex, "all")
	achievementIndexKey = store.NewKey(store.KindAchieveIndex, "all")
)

// --- Definitions ---

// DefineMission registers a new mission and returns its id.
func (t *Tracker) DefineMission(ctx context.Context, m Mission) (uint64, error) {
	var id uint64
	err := t.store.Update(ctx, func(tx store.Tx) error {
		var err error
		id, err = store.NextID(tx, "mission")
		if err != nil {
			return err
		}
		m.ID = id
		m.Completed = false
		if err := store.SetJSON(tx, missionKey(id), m); err != nil {
			return err
		}
		return appendID(tx, missionIndexKey, id)
	})
	if err != nil {
		return 0, fmt.Errorf("define mission %q: %w", m.Name, err)
	}

	t.log.Info().Uint64("mission_id", id).Str("name", m.Name).Msg("mission defined")
	return id, nil
}

// DefineAchievement registers a new achievement and returns its id.
func (t *Tracker) DefineAchievement(ctx context.Context, a Achievement) (uint64, error) {
	var id uint64
	err := t.store.Update(ctx, func(tx store.Tx) error {
		var err error
		id, err = store.NextID(tx, "achievement")
		if err != nil {
			return err
		}
		a.ID = id
		a.Completed = false
		if err := store.SetJSON(tx, achievementKey(id), a); err != nil {
			return err
		}
		return appendID(tx, achievementIndexKey, id)
	})
	if err != nil {
		return 0, fmt.Errorf("define achievement %q: %w", a.Name, err)
	}

	t.log.Info().Uint64("achievement_id", id).Str("name", a.Name).Msg("achievement defined")
	return id, nil
}

// --- Completion ---

// CompleteMission latches a mission as completed by player and credits its
// reward. Requirements are checked against live state: required stars through
// the discovery reader, required resources against held balances. The latch,
// the player record, and the reward credit commit in one transaction.
func (t *Tracker) CompleteMission(ctx context.Context, player ledger.Player, missionID uint64) (Outcome, error) {
	var mission Mission
	found, err := t.loadMission(ctx, missionID, &mission)
	if err != nil {
		return OutcomeCompleted, err
	}
	if !found {
		t.countMission(OutcomeNotFound)
		return OutcomeNotFound, nil
	}
	if mission.Completed {
		t.countMission(OutcomeAlreadyCompleted)
		return OutcomeAlreadyCompleted, nil
	}

	for _, star := range mission.RequiredStars {
		discovered, err := t.discovery.HasDiscovered(ctx, player, star)
		if err != nil {
			return OutcomeCompleted, fmt.Errorf("complete mission %d: %w", missionID, err)
		}
		if !discovered {
			t.countMission(OutcomeRequirementsNotMet)
			return OutcomeRequirementsNotMet, nil
		}
	}

	outcome := OutcomeCompleted
	err = t.store.Update(ctx, func(tx store.Tx) error {
		// Re-read under the transaction so a concurrent completion cannot
		// double-grant the reward.
		found, err := store.GetJSON(tx, missionKey(missionID), &mission)
		if err != nil {
			return err
		}
		if !found {
			outcome = OutcomeNotFound
			return nil
		}
		if mission.Completed {
			outcome = OutcomeAlreadyCompleted
			return nil
		}

		for resource, required := range mission.RequiredResources {
			held, err := t.ledger.BalanceTx(tx, player, resource)
			if err != nil {
				return err
			}
			if held < required {
				outcome = OutcomeRequirementsNotMet
				return nil
			}
		}

		mission.Completed = true
		if err := store.SetJSON(tx, missionKey(missionID), mission); err != nil {
			return err
		}
		if err := appendID(tx, store.NewKey(store.KindPlayerMissions, string(player)), missionID); err != nil {
			return err
		}
		if mission.Reward.Amount > 0 {
			return t.ledger.CreditTx(tx, player, mission.Reward.Resource, mission.Reward.Amount)
		}
		return nil
	})
	if err != nil {
		return OutcomeCompleted, fmt.Errorf("complete mission %d: %w", missionID, err)
	}

	t.countMission(outcome)
	if outcome != OutcomeCompleted {
		return outcome, nil
	}

	t.log.Info().
		Uint64("mission_id", missionID).
		Str("player", string(player)).
		Str("reward", fmt.Sprintf("%d %s", mission.Reward.Amount, mission.Reward.Resource)).
		Msg("mission completed")

	t.sink.Publish(ctx, event.TopicMissionCompleted, CompletedEvent{
		ID:     missionID,
		Name:   mission.Name,
		Player: player,
		Reward: mission.Reward,
	})
	return OutcomeCompleted, nil
}

// CompleteAchievement latches an achievement and credits its reward. There is
// no gating beyond the latch itself.
func (t *Tracker) CompleteAchievement(ctx context.Context, player ledger.Player, achievementID uint64) (Outcome, error) {
	var achievement Achievement
	outcome := OutcomeCompleted

	err := t.store.Update(ctx, func(tx store.Tx) error {
		found, err := store.GetJSON(tx, achievementKey(achievementID), &achievement)
		if err != nil {
			return err
		}
		if !found {
			outcome = OutcomeNotFound
			return nil
		}
		if achievement.Completed {
			outcome = OutcomeAlreadyCompleted
			return nil
		}

		achievement.Completed = true
		if err := store.SetJSON(tx, achievementKey(achievementID), achievement); err != nil {
			return err
		}
		if err := appendID(tx, store.NewKey(store.KindPlayerAchieves, string(player)), achievementID); err != nil {
			return err
		}
		if achievement.Reward.Amount > 0 {
			return t.ledger.CreditTx(tx, player, achievement.Reward.Resource, achievement.Reward.Amount)
		}
		return nil
	})
	if err != nil {
		return OutcomeCompleted, fmt.Errorf("complete achievement %d: %w", achievementID, err)
	}

	t.countAchievement(outcome)
	if outcome != OutcomeCompleted {
		return outcome, nil
	}

	t.log.Info().
		Uint64("achievement_id", achievementID).
		Str("player", string(player)).
		Msg("achievement completed")

	t.sink.Publish(ctx, event.TopicAchieveCompleted, CompletedEvent{
		ID:     achievementID,
		Name:   achievement.Name,
		Player: player,
		Reward: achievement.Reward,
	})
	return OutcomeCompleted, nil
}

// --- Queries ---

// MissionDetails resolves a single mission.
func (t *Tracker) MissionDetails(ctx context.Context, missionID uint64) (Mission, bool, error) {
	var mission Mission
	found, err := t.loadMission(ctx, missionID, &mission)
	return mission, found, err
}

func (t *Tracker) loadMission(ctx context.Context, missionID uint64, out *Mission) (bool, error) {
	var found bool
	err := t.store.View(ctx, func(tx store.Tx) error {
		var err error
		found, err = store.GetJSON(tx, missionKey(missionID), out)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("load mission %d: %w", missionID, err)
	}
	return found, nil
}

// ListMissions returns every defined mission, oldest first.
func (t *Tracker) ListMissions(ctx context.Context) ([]Mission, error) {
	missions := []Mission{}
	err := t.store.View(ctx, func(tx store.Tx) error {
		var ids []uint64
		if _, err := store.GetJSON(tx, missionIndexKey, &ids); err != nil {
			return err
		}
		for _, id := range ids {
			var m Mission
			found, err := store.GetJSON(tx, missionKey(id), &m)
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("index references missing mission %d", id)
			}
			missions = append(missions, m)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list missions: %w", err)
	}
	return missions, nil
}

// ListAchievements returns every defined achievement, oldest first.
func (t *Tracker) ListAchievements(ctx context.Context) ([]Achievement, error) {
	achievements := []Achievement{}
	err := t.store.View(ctx, func(tx store.Tx) error {
		var ids []uint64
		if _, err := store.GetJSON(tx, achievementIndexKey, &ids); err != nil {
			return err
		}
		for _, id := range ids {
			var a Achievement
			found, err := store.GetJSON(tx, achievementKey(id), &a)
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("index references missing achievement %d", id)
			}
			achievements = append(achievements, a)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list achievements: %w", err)
	}
	return achievements, nil
}

// MissionsOf returns the ids of missions the player has completed, in
// completion order.
func (t *Tracker) MissionsOf(ctx context.Context, player ledger.Player) ([]uint64, error) {
	return t.completedIDs(ctx, store.NewKey(store.KindPlayerMissions, string(player)))
}

// AchievementsOf returns the ids of achievements the player has completed, in
// completion order.
func (t *Tracker) AchievementsOf(ctx context.Context, player ledger.Player) ([]uint64, error) {
	return t.completedIDs(ctx, store.NewKey(store.KindPlayerAchieves, string(player)))
}

func (t *Tracker) completedIDs(ctx context.Context, key store.Key) ([]uint64, error) {
	ids := []uint64{}
	err := t.store.View(ctx, func(tx store.Tx) error {
		_, err := store.GetJSON(tx, key, &ids)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("completed ids: %w", err)
	}
	return ids, nil
}

// --- Seeding ---

// SeedMissions installs the starter mission set. Safe to skip; defining the
// same set twice creates duplicates, so callers guard with a flag.
func (t *Tracker) SeedMissions(ctx context.Context) error {
	starters := []Mission{
		{
			Name:        "FIRST_STEPS",
			Description: "Join the galactic economy.",
			Reward:      Reward{Resource: "ENERGY", Amount: 100},
		},
		{
			Name:              "RESOURCE_COLLECTOR",
			Description:       "Stockpile water for the long haul.",
			Reward:            Reward{Resource: "IRON", Amount: 500},
			RequiredResources: map[ledger.Resource]int64{"WATER": 1000},
		},
	}

	for _, m := range starters {
		if _, err := t.DefineMission(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

// --- helpers ---

func appendID(tx store.Tx, key store.Key, id uint64) error {
	var ids []uint64
	if _, err := store.GetJSON(tx, key, &ids); err != nil {
		return err
	}
	return store.SetJSON(tx, key, append(ids, id))
}

// --- Metrics ---

func (t *Tracker) countMission(outcome Outcome) {
	if t.metrics != nil {
		t.metrics.MissionsCompleted.WithLabelValues(outcome.String()).Inc()
	}
}

func (t *Tracker) countAchievement(outcome Outcome) {
	if t.metrics != nil {
		t.metrics.AchievementsCompleted.WithLabelValues(outcome.String()).Inc()
	}
}
