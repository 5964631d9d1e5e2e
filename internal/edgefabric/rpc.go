package edgefabric

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/spotfi/spotfi-cloud/internal/events"
)

// RPCRequest is the JSON envelope published to a router's rpc/request topic:
// {id, path, method, args}. Path and method together name a device-side
// operation on the edge's generic UBUS-style proxy (e.g. path="uspot",
// method="client_remove") — the core never assumes which operations exist
// beyond what a caller passes in.
type RPCRequest struct {
	ID     string          `json:"id"`
	Path   string          `json:"path"`
	Method string          `json:"method"`
	Args   json.RawMessage `json:"args,omitempty"`
}

// RPCResponse is the JSON envelope a router publishes back on rpc/response:
// {id, status, result?, error?, stderr?}. Result is intentionally typed
// loosely (spec.md §9: RPC payloads are dynamically typed per method, not a
// fixed schema) — callers decode Result into whatever shape the method they
// invoked returns.
type RPCResponse struct {
	ID     string          `json:"id"`
	Status string          `json:"status"` // "success" or "error"
	Result json.RawMessage `json:"result,omitempty"`
	Error  *RPCError       `json:"error,omitempty"`
	Stderr string          `json:"stderr,omitempty"`
}

// RPCError is an error reported by the router-side RPC handler.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string { return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message) }

// rpcMethodNotFound is the JSON-RPC reserved code a router returns when its
// firmware has no handler for the requested method.
const rpcMethodNotFound = -32601

// pendingCall tracks one outstanding RPC awaiting a response.
type pendingCall struct {
	routerID string
	method   string
	ch       chan *RPCResponse
}

// correlationMap tracks outstanding RPC calls by request id, enforcing the
// max-64-outstanding-per-router limit from spec.md §4.1.
type correlationMap struct {
	mu      sync.Mutex
	pending map[string]*pendingCall
	byRouter map[string]int
}

func newCorrelationMap() *correlationMap {
	return &correlationMap{
		pending:  make(map[string]*pendingCall),
		byRouter: make(map[string]int),
	}
}

var errTooManyOutstanding = fmt.Errorf("too many outstanding RPC calls for router")

func (m *correlationMap) register(routerID, id, method string, maxOutstanding int) (*pendingCall, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.byRouter[routerID] >= maxOutstanding {
		return nil, errTooManyOutstanding
	}

	pc := &pendingCall{routerID: routerID, method: method, ch: make(chan *RPCResponse, 1)}
	m.pending[id] = pc
	m.byRouter[routerID]++
	return pc, nil
}

func (m *correlationMap) release(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pc, ok := m.pending[id]; ok {
		m.byRouter[pc.routerID]--
		delete(m.pending, id)
	}
}

// deliver routes an incoming rpc/response payload to its waiting caller.
func (m *correlationMap) deliver(_ string, payload []byte) {
	var resp RPCResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return
	}

	m.mu.Lock()
	pc, ok := m.pending[resp.ID]
	m.mu.Unlock()
	if !ok {
		return // late or duplicate response, drop it
	}

	select {
	case pc.ch <- &resp:
	default:
	}
}

// Call issues an RPC to a router's path/method and blocks until the
// response arrives, the context is cancelled, or the per-call timeout
// elapses, whichever is first. Timeouts publish an RPCTimeoutEvent per
// spec.md §4.1. The capability cache, correlation map, and method-not-found
// classification are keyed on path+method together, since the same method
// name could plausibly exist under more than one path.
func (b *Broker) Call(ctx context.Context, routerID, path, method string, args any) (json.RawMessage, error) {
	capabilityKey := path + "." + method
	if b.capabilities != nil {
		if supported, known, err := b.capabilities.GetCapability(ctx, routerID, capabilityKey); err == nil && known && !supported {
			return nil, fmt.Errorf("rpc method %s is known unsupported by router %s", capabilityKey, routerID)
		}
	}

	argBytes, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("marshaling rpc args: %w", err)
	}

	id := b.nextRequestID()
	pc, err := b.rpc.register(routerID, id, capabilityKey, b.cfg.MaxOutstandingRPC)
	if err != nil {
		return nil, err
	}
	defer b.rpc.release(id)

	req := RPCRequest{ID: id, Path: path, Method: method, Args: argBytes}
	reqBytes, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling rpc request: %w", err)
	}

	if err := b.Publish(ctx, RPCRequestTopic(routerID), reqBytes, 0); err != nil {
		return nil, fmt.Errorf("publishing rpc request: %w", err)
	}

	timeout := b.cfg.RPCRequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		if b.eventBus != nil {
			_ = b.eventBus.Publish(ctx, events.NewRPCTimeoutEvent(routerID, capabilityKey, id, timeout.Milliseconds(), "edgefabric"))
		}
		return nil, fmt.Errorf("rpc call %s to router %s timed out after %s", capabilityKey, routerID, timeout)
	case resp := <-pc.ch:
		if resp.Error != nil {
			if b.capabilities != nil && resp.Error.Code == rpcMethodNotFound {
				_ = b.capabilities.SetCapability(ctx, routerID, capabilityKey, false)
			}
			return nil, resp.Error
		}
		if b.capabilities != nil {
			_ = b.capabilities.SetCapability(ctx, routerID, capabilityKey, true)
		}
		return resp.Result, nil
	}
}
