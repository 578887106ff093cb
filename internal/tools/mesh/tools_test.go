package mesh

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	meshpkg "github.com/loomrun/loom/internal/mesh"
)

func startLinkedNodes(t *testing.T) (local *meshpkg.Node, localHandler *meshpkg.Handler) {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	bus := meshpkg.NewMemoryBus()

	local = meshpkg.NewNodeWithTransport(func(id string) meshpkg.Transport { return bus.Endpoint(id) }, logger)
	remote := meshpkg.NewNodeWithTransport(func(id string) meshpkg.Transport { return bus.Endpoint(id) }, logger)

	localRx, err := local.Start(context.Background(), []string{"shell"})
	if err != nil {
		t.Fatal(err)
	}
	remoteRx, err := remote.Start(context.Background(), []string{"gpu"})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		local.Stop()
		remote.Stop()
	})

	remoteHandler := meshpkg.NewHandler(remote, func(_ context.Context, desc string) (string, error) {
		return "echo: " + desc, nil
	}, nil, nil, nil, logger)
	go remoteHandler.Run(context.Background(), remoteRx)

	localHandler = meshpkg.NewHandler(local, nil, nil, nil, nil, logger)
	go localHandler.Run(context.Background(), localRx)

	local.Announce(context.Background())
	remote.Announce(context.Background())
	time.Sleep(20 * time.Millisecond)
	return local, localHandler
}

func TestDelegateToolByCapability(t *testing.T) {
	node, handler := startLinkedNodes(t)
	tool := NewDelegateTool(node, handler)

	res, err := tool.Execute(context.Background(), json.RawMessage(`{"task":"run benchmarks","capability":"gpu","timeout_secs":2}`))
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError {
		t.Fatalf("delegate errored: %s", res.Content)
	}
	if !strings.Contains(res.Content, "echo: run benchmarks") {
		t.Errorf("content = %s", res.Content)
	}
}

func TestDelegateToolNoQualifyingPeer(t *testing.T) {
	node, handler := startLinkedNodes(t)
	tool := NewDelegateTool(node, handler)

	res, err := tool.Execute(context.Background(), json.RawMessage(`{"task":"x","capability":"quantum","timeout_secs":1}`))
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsError || !strings.Contains(res.Content, "delegation failed") {
		t.Errorf("res = %+v", res)
	}
}

func TestDelegateToolValidation(t *testing.T) {
	node, handler := startLinkedNodes(t)
	tool := NewDelegateTool(node, handler)

	res, _ := tool.Execute(context.Background(), json.RawMessage(`{"task":"x"}`))
	if !res.IsError {
		t.Error("expected error without peer_id or capability")
	}
	res, _ = tool.Execute(context.Background(), json.RawMessage(`{"capability":"gpu"}`))
	if !res.IsError {
		t.Error("expected error without task")
	}
}

func TestPeersAndStatusTools(t *testing.T) {
	node, handler := startLinkedNodes(t)

	peers := NewPeersTool(node)
	res, err := peers.Execute(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(res.Content, "gpu") {
		t.Errorf("peers output = %s", res.Content)
	}

	status := NewStatusTool(node, handler)
	res, err = status.Execute(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	var parsed map[string]any
	if err := json.Unmarshal([]byte(res.Content), &parsed); err != nil {
		t.Fatalf("status is not JSON: %v", err)
	}
	if parsed["running"] != true {
		t.Errorf("status = %v", parsed)
	}
}
