package handler

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/barnabee/barnabee/internal/domain/conversation"
	"github.com/barnabee/barnabee/internal/domain/entity"
	"github.com/barnabee/barnabee/internal/domain/memory"
)

// Invocation carries everything a handler may need for one request. The
// memory slice is empty for retrieval-exempt intents.
type Invocation struct {
	Request        *entity.Request
	Classification entity.Classification
	Memories       []memory.Scored
	Conversation   *conversation.Context
	Overrides      ResolvedOverrides
}

// Handler turns a classified request into a spoken response. Handlers
// catch their own faults: Handle never returns an error, it returns a
// result whose status and diagnostics say what happened.
type Handler interface {
	Name() string
	Handle(ctx context.Context, inv *Invocation) entity.HandlerResult
}

// RoutingTable maps intents to handler names. Replaced atomically on
// reload, so a request sees either the old or the new table.
type RoutingTable map[entity.Intent]string

// DefaultRoutingTable returns the built-in routing.
func DefaultRoutingTable() RoutingTable {
	return RoutingTable{
		entity.IntentInstant:      "instant",
		entity.IntentGesture:      "instant",
		entity.IntentAction:       "action",
		entity.IntentQuery:        "conversation",
		entity.IntentConversation: "conversation",
		entity.IntentUnknown:      "conversation",
		entity.IntentEmergency:    "conversation",
		entity.IntentMemory:       "memory",
	}
}

// Router resolves an intent to a registered handler via the current
// routing table.
type Router struct {
	handlers map[string]Handler
	table    atomic.Pointer[RoutingTable]
}

// NewRouter creates a router over the given handlers.
func NewRouter(table RoutingTable, handlers ...Handler) *Router {
	r := &Router{handlers: make(map[string]Handler, len(handlers))}
	for _, h := range handlers {
		r.handlers[h.Name()] = h
	}
	if table == nil {
		table = DefaultRoutingTable()
	}
	r.table.Store(&table)
	return r
}

// Swap replaces the routing table atomically.
func (r *Router) Swap(table RoutingTable) {
	r.table.Store(&table)
}

// Apply validates that every route targets a registered handler, then
// swaps. Used by the routing file reload path.
func (r *Router) Apply(table RoutingTable) error {
	for intent, name := range table {
		if _, ok := r.handlers[name]; !ok {
			return fmt.Errorf("intent %s routed to unknown handler %q", intent, name)
		}
	}
	r.Swap(table)
	return nil
}

// Resolve returns the handler for the intent. Unrouted intents fall back
// to the conversation handler; ok is false only when even that is absent.
func (r *Router) Resolve(intent entity.Intent) (Handler, bool) {
	table := *r.table.Load()
	name, ok := table[intent]
	if !ok {
		name = "conversation"
	}
	h, ok := r.handlers[name]
	return h, ok
}
