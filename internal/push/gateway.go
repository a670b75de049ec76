package push

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/jonboulle/clockwork"
)

// DefaultCoordinatorName is the logical name the process-wide coordinator
// singleton registers under.
const DefaultCoordinatorName = "realtime"

var (
	registryMu sync.RWMutex
	registry   = make(map[string]*Coordinator)
)

// Register makes a coordinator resolvable under a logical name.
func Register(name string, c *Coordinator) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = c
}

// Unregister removes a named coordinator from the registry.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(registry, name)
}

// Lookup resolves a coordinator by logical name.
func Lookup(name string) (*Coordinator, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	c, ok := registry[name]
	return c, ok
}

// Gateway is the seam between domain mutation handlers and the coordinator.
// It resolves the coordinator by logical name at publish time and swallows
// every failure: a broadcast outage must never fail the triggering business
// transaction.
type Gateway struct {
	name  string
	clock clockwork.Clock
}

func NewGateway(name string, clock clockwork.Clock) *Gateway {
	return &Gateway{name: name, clock: clock}
}

// Publish fans out a committed domain change, fire-and-forget. Sessions
// belonging to excludeActorID (typically the user whose request caused the
// write) are skipped.
func (g *Gateway) Publish(ctx context.Context, entity, action string, payload []any, ids []int64, excludeActorID string) {
	coordinator, ok := Lookup(g.name)
	if !ok {
		slog.Warn("No coordinator registered, dropping publish", "coordinator", g.name, "entity", entity)
		return
	}

	raw := make([]json.RawMessage, 0, len(payload))
	for _, item := range payload {
		data, err := json.Marshal(item)
		if err != nil {
			slog.Warn("Failed to marshal publish payload, dropping publish", "entity", entity, "error", err)
			return
		}
		raw = append(raw, data)
	}

	envelope := Envelope{
		Entity:         entity,
		Action:         action,
		Payload:        raw,
		IDs:            ids,
		Timestamp:      g.clock.Now().UTC(),
		ExcludeActorID: excludeActorID,
	}

	if _, err := coordinator.Broadcast(ctx, envelope); err != nil {
		slog.Warn("Publish failed", "entity", entity, "action", action, "error", err)
	}
}
