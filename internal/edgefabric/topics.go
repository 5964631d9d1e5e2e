// Package edgefabric is the cloud-side MQTT client for the router fleet: a
// single shared broker connection, topic routing, the request/response RPC
// envelope, presence tracking, and the x-tunnel shell multiplexer.
package edgefabric

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/oklog/ulid/v2"
)

const topicPrefix = "spotfi/router/"

// Topic builders match the schema in spec.md §4.1:
//
//	spotfi/router/{id}/status
//	spotfi/router/{id}/metrics
//	spotfi/router/{id}/rpc/request
//	spotfi/router/{id}/rpc/response
//	spotfi/router/{id}/x/in
//	spotfi/router/{id}/x/out

func StatusTopic(routerID string) string      { return topicPrefix + routerID + "/status" }
func MetricsTopic(routerID string) string     { return topicPrefix + routerID + "/metrics" }
func RPCRequestTopic(routerID string) string  { return topicPrefix + routerID + "/rpc/request" }
func RPCResponseTopic(routerID string) string { return topicPrefix + routerID + "/rpc/response" }
func XTunnelInTopic(routerID string) string   { return topicPrefix + routerID + "/x/in" }
func XTunnelOutTopic(routerID string) string  { return topicPrefix + routerID + "/x/out" }

// StatusWildcard subscribes to every router's status topic in one
// subscription, the presence listener's entry point.
func StatusWildcard() string { return topicPrefix + "+/status" }

// MetricsWildcard subscribes to every router's heartbeat topic.
func MetricsWildcard() string { return topicPrefix + "+/metrics" }

// RPCResponseWildcard subscribes to every router's RPC response topic.
func RPCResponseWildcard() string { return topicPrefix + "+/rpc/response" }

// XTunnelOutWildcard subscribes to every router's x-tunnel output topic.
func XTunnelOutWildcard() string { return topicPrefix + "+/x/out" }

// ParseRouterID extracts the router id from any spotfi/router/{id}/... topic.
// Returns "" if topic doesn't match the expected shape.
func ParseRouterID(topic string) string {
	rest := strings.TrimPrefix(topic, topicPrefix)
	if rest == topic {
		return ""
	}
	idx := strings.IndexByte(rest, '/')
	if idx < 0 {
		return ""
	}
	return rest[:idx]
}

// TopicKind identifies the trailing segment of a router topic.
type TopicKind string

const (
	TopicKindStatus      TopicKind = "status"
	TopicKindMetrics     TopicKind = "metrics"
	TopicKindRPCRequest  TopicKind = "rpc/request"
	TopicKindRPCResponse TopicKind = "rpc/response"
	TopicKindXTunnelIn   TopicKind = "x/in"
	TopicKindXTunnelOut  TopicKind = "x/out"
	TopicKindUnknown     TopicKind = ""
)

// ParseKind extracts the topic kind from a full router topic.
func ParseKind(topic string) TopicKind {
	rest := strings.TrimPrefix(topic, topicPrefix)
	if rest == topic {
		return TopicKindUnknown
	}
	idx := strings.IndexByte(rest, '/')
	if idx < 0 {
		return TopicKindUnknown
	}
	switch suffix := rest[idx+1:]; suffix {
	case string(TopicKindStatus), string(TopicKindMetrics), string(TopicKindRPCRequest),
		string(TopicKindRPCResponse), string(TopicKindXTunnelIn), string(TopicKindXTunnelOut):
		return TopicKind(suffix)
	default:
		return TopicKindUnknown
	}
}

func lastWillTopic(routerID string) string { return StatusTopic(routerID) }

// correlationID builds an RPC request id per spec.md §4.1's
// "${instanceId}-${random}" format. The random component is a ULID so
// correlation ids sort chronologically, which is useful when scanning
// broker logs for a stuck RPC.
func correlationID(instanceID string, entropySrc *rand.Rand) string {
	return fmt.Sprintf("%s-%s", instanceID, ulid.MustNew(ulid.Now(), entropySrc).String())
}
