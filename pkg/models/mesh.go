package models

import (
	"encoding/json"
	"time"
)

// Peer is a sibling runtime discovered over the mesh, advertising the
// capabilities it can execute on behalf of others.
type Peer struct {
	PeerID       string    `json:"peer_id"`
	Hostname     string    `json:"hostname"`
	OS           string    `json:"os"`
	Capabilities []string  `json:"capabilities"`
	LastSeen     time.Time `json:"last_seen"`
}

// MeshMessageType discriminates mesh wire messages.
type MeshMessageType string

const (
	// MeshHello announces a peer joining, carrying its profile.
	MeshHello MeshMessageType = "hello"
	// MeshHeartbeat refreshes a peer's LastSeen.
	MeshHeartbeat MeshMessageType = "heartbeat"
	// MeshGoodbye announces a clean departure.
	MeshGoodbye MeshMessageType = "goodbye"
	// MeshTaskAssign asks the receiving peer to execute a task.
	MeshTaskAssign MeshMessageType = "task_assign"
	// MeshTaskResult carries the outcome of a previously assigned task.
	MeshTaskResult MeshMessageType = "task_result"
	// MeshDirectMessage is free-form peer-to-peer text.
	MeshDirectMessage MeshMessageType = "direct_message"
	// MeshSyncDelta gossips a fact or episode to the network.
	MeshSyncDelta MeshMessageType = "sync_delta"
)

// MeshMessage is the envelope every mesh frame uses. ToPeer empty means
// broadcast. Exactly one payload field is set, matching Type.
type MeshMessage struct {
	Type     MeshMessageType `json:"type"`
	FromPeer string          `json:"from_peer"`
	ToPeer   string          `json:"to_peer,omitempty"`

	Hello     *Peer            `json:"hello,omitempty"`
	Task      *MeshTask        `json:"task,omitempty"`
	Result    *MeshTaskOutcome `json:"result,omitempty"`
	Direct    *MeshDirect      `json:"direct,omitempty"`
	SyncDelta *MeshDelta       `json:"sync_delta,omitempty"`
}

// MeshTask is a task assignment sent to a peer.
type MeshTask struct {
	TaskID      string `json:"task_id"`
	Description string `json:"description"`
}

// MeshTaskOutcome is the result a peer sends back for an assigned task.
type MeshTaskOutcome struct {
	TaskID  string `json:"task_id"`
	PeerID  string `json:"peer_id"`
	Success bool   `json:"success"`
	Result  string `json:"result"`
}

// MeshDirect is a free-form message between peers.
type MeshDirect struct {
	Content string `json:"content"`
}

// MeshDeltaType identifies what a SyncDelta carries.
type MeshDeltaType string

const (
	// MeshDeltaFact gossips a semantic memory fact.
	MeshDeltaFact MeshDeltaType = "fact"
	// MeshDeltaEpisode gossips an episode summary.
	MeshDeltaEpisode MeshDeltaType = "episode"
)

// MeshDelta is one gossiped state change. Data is the serialized fact or
// episode; receivers tolerate unknown fields.
type MeshDelta struct {
	DeltaType MeshDeltaType   `json:"delta_type"`
	Data      json.RawMessage `json:"data"`
}

// ForPeer reports whether the message is addressed to peerID (directly or
// by broadcast).
func (m *MeshMessage) ForPeer(peerID string) bool {
	return m.ToPeer == "" || m.ToPeer == peerID
}
