package domain

import (
	"context"
	"time"

	"github.com/aretw0/weft/pkg/hash"
)

// EventType defines the category of the event.
type EventType string

const (
	EventNodeCreated     EventType = "node_created"
	EventNodeRevalidated EventType = "node_revalidated"
	EventEffectYield     EventType = "effect_yield"
	EventCollect         EventType = "collect"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	Tick      uint64    `json:"tick"`
}

// NodeEvent reports a cache node that was created or revalidated.
type NodeEvent struct {
	EventBase
	NodeID     hash.Hash `json:"node_id"`
	Kind       Kind      `json:"kind"`
	Superseded bool      `json:"superseded,omitempty"`
}

// EffectEvent reports an effect yielded to the caller.
type EffectEvent struct {
	EventBase
	Effect   *Effect `json:"effect"`
	Resolved bool    `json:"resolved"`
}

// CollectEvent summarizes a garbage collection pass.
type CollectEvent struct {
	EventBase
	Major     bool `json:"major"`
	Collected int  `json:"collected"`
	Freed     int  `json:"freed"`
}

// LifecycleHooks defines callbacks for runtime observability.
type LifecycleHooks struct {
	OnNodeCreated     func(context.Context, *NodeEvent)
	OnNodeRevalidated func(context.Context, *NodeEvent)
	OnEffectYield     func(context.Context, *EffectEvent)
	OnCollect         func(context.Context, *CollectEvent)
}
