package edgefabric

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spotfi/spotfi-cloud/internal/events"
	"github.com/spotfi/spotfi-cloud/internal/store"
)

// presenceTTL is the liveness window a router's ES status key carries on
// every ONLINE transition and every metrics heartbeat (spec.md §4.1).
const presenceTTL = 90 * time.Second

// StatusPayload is the JSON body a router publishes to its status topic,
// both as a deliberate state change and as the broker's last-will message
// on ungraceful disconnect (spec.md §4.1).
type StatusPayload struct {
	State     string `json:"state"` // "online" or "offline"
	Timestamp int64  `json:"timestamp"`
	Reason    string `json:"reason,omitempty"`
}

// RouterPresence is the last known liveness state of one router, as
// observed by this cloud instance — a cache for read paths that don't need
// a round trip to ES.
type RouterPresence struct {
	RouterID string
	Online   bool
	LastSeen time.Time
}

// PresenceTracker implements spec.md §4.1's presence pipeline. ONLINE
// transitions write both the Ephemeral Store (a 90s-TTL Redis key) and the
// Relational Store immediately, since they are rare one-shot events.
// OFFLINE transitions remove the ES key immediately but do not touch RS —
// that write is deferred to RunSweeper's next maintenance tick, matching
// spec.md §5's "merged writes every N seconds, never on every heartbeat"
// policy. The per-30s metrics heartbeat only refreshes the ES key's TTL.
// Grounded on internal/portal/guards.go's LoginLimiter (a struct wrapping
// *redis.Client with TTL/Incr/Expire calls under a key prefix), generalized
// from rate-limit counters to liveness keys.
type PresenceTracker struct {
	rdb      *redis.Client
	store    *store.Store
	eventBus events.EventBus
	logger   *zap.Logger

	mu    sync.RWMutex
	state map[string]*RouterPresence
}

func newPresenceTracker(eventBus events.EventBus, logger *zap.Logger) *PresenceTracker {
	return &PresenceTracker{
		eventBus: eventBus,
		logger:   logger.Named("presence"),
		state:    make(map[string]*RouterPresence),
	}
}

// SetDependencies attaches the ES client and RS store once both are
// constructed. cmd/spotfi-cloud wires these in after edgefabric.New, since
// the Redis client and the Broker are built in separate setup steps.
func (p *PresenceTracker) SetDependencies(rdb *redis.Client, st *store.Store) {
	p.rdb = rdb
	p.store = st
}

// esStatusKey matches spec.md §8 scenario 3's literal ES key name,
// `router:<id>:status`.
func esStatusKey(routerID string) string { return "router:" + routerID + ":status" }

func (p *PresenceTracker) handleStatus(routerID string, payload []byte) {
	var sp StatusPayload
	if err := json.Unmarshal(payload, &sp); err != nil {
		p.logger.Warn("malformed status payload", zap.String("routerID", routerID), zap.Error(err))
		return
	}

	online := sp.State == "online"
	now := time.Now()
	ctx := context.Background()

	p.mu.Lock()
	prev, existed := p.state[routerID]
	wasOnline := existed && prev.Online
	p.state[routerID] = &RouterPresence{RouterID: routerID, Online: online, LastSeen: now}
	p.mu.Unlock()

	if online {
		if p.rdb != nil {
			if err := p.rdb.Set(ctx, esStatusKey(routerID), "ONLINE", presenceTTL).Err(); err != nil {
				p.logger.Warn("setting presence key", zap.String("routerID", routerID), zap.Error(err))
			}
		}
		if p.store != nil {
			if err := p.store.UpsertRouterStatusBatch(ctx, map[string]store.RouterStatus{routerID: store.RouterStatusOnline}, now); err != nil {
				p.logger.Error("refreshing router status in RS", zap.String("routerID", routerID), zap.Error(err))
			}
			if router, err := p.store.GetRouter(ctx, routerID); err == nil {
				if err := p.store.EnsureRadiusClient(ctx, router); err != nil {
					p.logger.Error("ensuring radius client", zap.String("routerID", routerID), zap.Error(err))
				}
			} else {
				p.logger.Warn("router not found for radius client ensure", zap.String("routerID", routerID), zap.Error(err))
			}
		}
	} else {
		// ES key removal must land within ~1s of the LWT/OFFLINE message
		// (spec.md §8 scenario 3); the RS status='OFFLINE' write is left to
		// RunSweeper's next maintenance tick instead, so a flapping router
		// doesn't thrash the routers row on every reconnect.
		if p.rdb != nil {
			if err := p.rdb.Del(ctx, esStatusKey(routerID)).Err(); err != nil {
				p.logger.Warn("removing presence key", zap.String("routerID", routerID), zap.Error(err))
			}
		}
	}

	if online == wasOnline && existed {
		return
	}
	if p.eventBus == nil {
		return
	}
	if online {
		_ = p.eventBus.Publish(ctx, events.NewRouterConnectedEvent(routerID, "mqtt", "", "edgefabric"))
	} else {
		_ = p.eventBus.Publish(ctx, events.NewRouterDisconnectedEvent(routerID, sp.Reason, "edgefabric"))
	}
}

// handleHeartbeat refreshes a router's ES TTL on every metrics message
// without touching RS, per spec.md §4.1's heartbeat-refreshes-ES-only design.
func (p *PresenceTracker) handleHeartbeat(routerID string) {
	if p.rdb == nil {
		return
	}
	ctx := context.Background()
	if err := p.rdb.Expire(ctx, esStatusKey(routerID), presenceTTL).Err(); err != nil {
		p.logger.Warn("refreshing presence ttl", zap.String("routerID", routerID), zap.Error(err))
	}
}

// RunSweeper is the periodic maintenance tick spec.md §4.1 requires: for
// every router RS still marks ONLINE, check whether its ES key has expired
// without a heartbeat refresh, and if so, promote it to OFFLINE in RS as a
// single bulk write. Run as a background goroutine from cmd/spotfi-cloud.
func (p *PresenceTracker) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.sweep(ctx)
		}
	}
}

func (p *PresenceTracker) sweep(ctx context.Context) {
	if p.rdb == nil || p.store == nil {
		return
	}
	ids, err := p.store.ListOnlineRouterIDs(ctx)
	if err != nil {
		p.logger.Error("listing online routers", zap.Error(err))
		return
	}
	if len(ids) == 0 {
		return
	}

	expired := make(map[string]store.RouterStatus)
	for _, id := range ids {
		exists, err := p.rdb.Exists(ctx, esStatusKey(id)).Result()
		if err != nil {
			p.logger.Warn("checking presence key", zap.String("routerID", id), zap.Error(err))
			continue
		}
		if exists == 0 {
			expired[id] = store.RouterStatusOffline
		}
	}
	if len(expired) == 0 {
		return
	}

	if err := p.store.UpsertRouterStatusBatch(ctx, expired, time.Now()); err != nil {
		p.logger.Error("promoting expired routers to offline", zap.Error(err))
		return
	}
	for id := range expired {
		p.mu.Lock()
		p.state[id] = &RouterPresence{RouterID: id, Online: false, LastSeen: time.Now()}
		p.mu.Unlock()
		if p.eventBus != nil {
			_ = p.eventBus.Publish(ctx, events.NewRouterDisconnectedEvent(id, "presence-ttl-expired", "edgefabric"))
		}
	}
}

// Get returns the last known presence for a router, or nil if never seen by
// this cloud instance.
func (p *PresenceTracker) Get(routerID string) *RouterPresence {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state[routerID]
}

// All returns a snapshot of every tracked router's presence.
func (p *PresenceTracker) All() []*RouterPresence {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*RouterPresence, 0, len(p.state))
	for _, rp := range p.state {
		out = append(out, rp)
	}
	return out
}

// IsOnline reports whether ES currently holds a live presence key for
// routerID — the authoritative liveness check disconnect dispatch and
// reconciliation gate on, per spec.md §4.2 ("router is ONLINE in ES").
// Falls back to the in-memory cache when ES is unavailable in this process
// (e.g. unit tests that never call SetDependencies).
func (p *PresenceTracker) IsOnline(ctx context.Context, routerID string) bool {
	if p.rdb == nil {
		p.mu.RLock()
		defer p.mu.RUnlock()
		rp, ok := p.state[routerID]
		return ok && rp.Online
	}
	exists, err := p.rdb.Exists(ctx, esStatusKey(routerID)).Result()
	if err != nil {
		p.logger.Warn("checking presence key", zap.String("routerID", routerID), zap.Error(err))
		return false
	}
	return exists > 0
}

// Presence exposes the broker's presence tracker.
func (b *Broker) Presence() *PresenceTracker { return b.presence }
