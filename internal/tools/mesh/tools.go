// Package mesh provides the mesh networking tools: delegating tasks to
// peers and inspecting the peer table.
package mesh

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/loomrun/loom/internal/agent"
	"github.com/loomrun/loom/internal/mesh"
)

// defaultDelegateTimeout bounds mesh_delegate when the model does not
// pass one.
const defaultDelegateTimeout = 120 * time.Second

// DelegateTool sends a task to a mesh peer and waits for its result.
type DelegateTool struct {
	node    *mesh.Node
	handler *mesh.Handler
}

// NewDelegateTool creates the mesh_delegate tool.
func NewDelegateTool(node *mesh.Node, handler *mesh.Handler) *DelegateTool {
	return &DelegateTool{node: node, handler: handler}
}

func (t *DelegateTool) Name() string { return "mesh_delegate" }

func (t *DelegateTool) Description() string {
	return "Delegate a task to a mesh peer, selected by peer_id or by a required capability. Blocks until the peer returns its result or the timeout expires. Use for work requiring capabilities you lack locally."
}

func (t *DelegateTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"task": {"type": "string", "description": "What the peer should do"},
			"peer_id": {"type": "string", "description": "Explicit target peer id"},
			"capability": {"type": "string", "description": "Required capability when no peer_id is given"},
			"timeout_secs": {"type": "integer", "description": "How long to wait for the result (default 120)"}
		},
		"required": ["task"]
	}`)
}

// IsMutating reports that delegation executes work on a remote peer.
func (t *DelegateTool) IsMutating() bool { return true }

// RiskLevel reflects that the remote peer acts with its own full tool set.
func (t *DelegateTool) RiskLevel() int { return 6 }

func (t *DelegateTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Task        string `json:"task"`
		PeerID      string `json:"peer_id"`
		Capability  string `json:"capability"`
		TimeoutSecs int    `json:"timeout_secs"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return &agent.ToolResult{Content: "invalid input: " + err.Error(), IsError: true}, nil
	}
	if strings.TrimSpace(input.Task) == "" {
		return &agent.ToolResult{Content: "task is required", IsError: true}, nil
	}
	if input.PeerID == "" && input.Capability == "" {
		return &agent.ToolResult{Content: "either peer_id or capability is required", IsError: true}, nil
	}
	if !t.node.Running() {
		return &agent.ToolResult{Content: "mesh networking is not running", IsError: true}, nil
	}

	timeout := defaultDelegateTimeout
	if input.TimeoutSecs > 0 {
		timeout = time.Duration(input.TimeoutSecs) * time.Second
	}

	outcome, err := t.handler.Delegate(ctx, input.PeerID, input.Capability, input.Task, timeout)
	if err != nil {
		return &agent.ToolResult{Content: "delegation failed: " + err.Error(), IsError: true}, nil
	}
	if !outcome.Success {
		return &agent.ToolResult{
			Content: fmt.Sprintf("peer %s failed the task: %s", outcome.PeerID, outcome.Result),
			IsError: true,
		}, nil
	}
	return &agent.ToolResult{
		Content: fmt.Sprintf("Result from peer %s:\n%s", outcome.PeerID, outcome.Result),
	}, nil
}

// PeersTool lists the live peer table.
type PeersTool struct {
	node *mesh.Node
}

// NewPeersTool creates the mesh_peers tool.
func NewPeersTool(node *mesh.Node) *PeersTool {
	return &PeersTool{node: node}
}

func (t *PeersTool) Name() string { return "mesh_peers" }

func (t *PeersTool) Description() string {
	return "List connected mesh peers with their hostnames, operating systems, and capabilities."
}

func (t *PeersTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {}}`)
}

func (t *PeersTool) Execute(_ context.Context, _ json.RawMessage) (*agent.ToolResult, error) {
	peers := t.node.Peers()
	if len(peers) == 0 {
		return &agent.ToolResult{Content: "No mesh peers connected."}, nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Connected peers (%d):\n", len(peers))
	for _, p := range peers {
		fmt.Fprintf(&b, "- %s (%s, %s) — capabilities: [%s], last seen %s\n",
			p.Hostname, p.PeerID, p.OS, strings.Join(p.Capabilities, ", "),
			p.LastSeen.UTC().Format(time.RFC3339))
	}
	return &agent.ToolResult{Content: strings.TrimRight(b.String(), "\n")}, nil
}

// StatusTool reports this node's own mesh state.
type StatusTool struct {
	node    *mesh.Node
	handler *mesh.Handler
}

// NewStatusTool creates the mesh_status tool.
func NewStatusTool(node *mesh.Node, handler *mesh.Handler) *StatusTool {
	return &StatusTool{node: node, handler: handler}
}

func (t *StatusTool) Name() string { return "mesh_status" }

func (t *StatusTool) Description() string {
	return "Show this node's mesh status: peer id, capabilities, peer count, and pending delegations."
}

func (t *StatusTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {}}`)
}

func (t *StatusTool) Execute(_ context.Context, _ json.RawMessage) (*agent.ToolResult, error) {
	status := map[string]any{
		"running":             t.node.Running(),
		"peer_id":             t.node.SelfID(),
		"capabilities":        t.node.Capabilities(),
		"peer_count":          len(t.node.Peers()),
		"pending_delegations": t.handler.PendingCount(),
	}
	out, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return &agent.ToolResult{Content: err.Error(), IsError: true}, nil
	}
	return &agent.ToolResult{Content: string(out)}, nil
}
