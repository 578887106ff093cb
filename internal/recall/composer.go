// Package recall assembles the per-turn system prompt: the operator's
// base prompt, an environment header, and tagged context sections built
// from semantic memory, the episode log, active goals, mesh peers,
// installed skills, and the credential provider mode.
package recall

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/loomrun/loom/internal/goals"
	"github.com/loomrun/loom/internal/memory/episodic"
	"github.com/loomrun/loom/internal/memory/semantic"
	"github.com/loomrun/loom/pkg/models"
)

// episodeLimit caps how many past-conversation summaries reach the prompt.
const episodeLimit = 5

// Embedder turns the user's text into a query embedding for the vector
// pass of semantic recall. Nil disables that pass.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// PeerLister exposes the mesh view the prompt needs. The mesh node
// satisfies it; nil means the mesh section is omitted.
type PeerLister interface {
	SelfID() string
	Capabilities() []string
	Peers() []models.Peer
	Running() bool
}

// Credentials describes the configured credential provider for the
// <credentials> section. Provider "" or "none" omits the section.
type Credentials struct {
	Provider       string
	DefaultVault   string
	ServiceAccount bool // headless mode; false means desktop/biometric
}

// Composer builds system prompts. All fields are optional except
// BasePrompt; missing collaborators simply drop their section.
type Composer struct {
	BasePrompt  string
	Semantic    *semantic.Store
	Episodic    *episodic.Store
	Planner     *goals.Planner
	Embedder    Embedder
	Mesh        PeerLister
	SkillsBlock func() string
	Credentials Credentials

	// Hostname overrides os.Hostname in tests.
	Hostname string
}

// Compose returns the full system prompt for a turn triggered by userText.
func (c *Composer) Compose(ctx context.Context, userText string) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(c.BasePrompt))

	b.WriteString("\n\n")
	b.WriteString(c.environmentHeader())

	if mem := c.memorySection(ctx, userText); mem != "" {
		b.WriteString("\n\n<memory>\n")
		b.WriteString(mem)
		b.WriteString("\n</memory>")
	}

	if c.Planner != nil {
		if active := c.Planner.Active(); len(active) > 0 {
			b.WriteString("\n\n<active_goals>\n")
			for _, g := range active {
				fmt.Fprintf(&b, "- [%s] %s (progress: %.0f%%)\n", g.ID, g.Description, g.Progress()*100)
			}
			b.WriteString("</active_goals>")
		}
	}

	if c.Mesh != nil && c.Mesh.Running() {
		if peers := c.Mesh.Peers(); len(peers) > 0 {
			b.WriteString("\n\n<mesh_network>\n")
			fmt.Fprintf(&b, "Your peer ID: %s\n", shortID(c.Mesh.SelfID(), 12))
			fmt.Fprintf(&b, "Your capabilities: [%s]\n", strings.Join(c.Mesh.Capabilities(), ", "))
			fmt.Fprintf(&b, "Connected peers (%d):\n", len(peers))
			for _, p := range peers {
				fmt.Fprintf(&b, "  - %s (%s) — capabilities: [%s]\n",
					p.Hostname, shortID(p.PeerID, 8), strings.Join(p.Capabilities, ", "))
			}
			b.WriteString("Use mesh_delegate to send tasks to peers with capabilities you lack.\n")
			b.WriteString("</mesh_network>")
		}
	}

	if c.SkillsBlock != nil {
		if block := c.SkillsBlock(); block != "" {
			b.WriteString("\n\n<skills>\n")
			b.WriteString(strings.TrimSpace(block))
			b.WriteString("\n</skills>")
		}
	}

	if cred := c.credentialsSection(); cred != "" {
		b.WriteString("\n\n<credentials>\n")
		b.WriteString(cred)
		b.WriteString("</credentials>")
	}

	return b.String()
}

func (c *Composer) environmentHeader() string {
	host := c.Hostname
	if host == "" {
		host, _ = os.Hostname()
	}
	return fmt.Sprintf("Environment: %s/%s on %s", runtime.GOOS, runtime.GOARCH, host)
}

func (c *Composer) memorySection(ctx context.Context, userText string) string {
	var parts []string

	if c.Episodic != nil {
		episodes := c.Episodic.Search(userText, episodeLimit)
		if len(episodes) > 0 {
			lines := make([]string, 0, len(episodes))
			for _, ep := range episodes {
				lines = append(lines, "- "+ep.Summary)
			}
			parts = append(parts, "Relevant past conversations:\n"+strings.Join(lines, "\n"))
		}
	}

	if c.Semantic != nil {
		var embedding []float32
		if c.Embedder != nil {
			// Embedding failures only cost the vector pass; keyword
			// recall still runs.
			embedding, _ = c.Embedder.Embed(ctx, userText)
		}
		facts := c.Semantic.Recall(ctx, userText, embedding)
		if len(facts) > 0 {
			lines := make([]string, 0, len(facts))
			for _, f := range facts {
				lines = append(lines, fmt.Sprintf("- [%s] %s: %s", f.Category, f.Key, f.Value))
			}
			parts = append(parts, "Relevant knowledge:\n"+strings.Join(lines, "\n"))
		}

		if lessons := c.Semantic.Lessons(); len(lessons) > 0 {
			lines := make([]string, 0, len(lessons))
			for _, f := range lessons {
				lines = append(lines, fmt.Sprintf("- **%s**: %s", f.Key, f.Value))
			}
			parts = append(parts, "Lessons learned from past sessions (apply these!):\n"+strings.Join(lines, "\n"))
		}
	}

	return strings.Join(parts, "\n\n")
}

func (c *Composer) credentialsSection() string {
	provider := strings.TrimSpace(c.Credentials.Provider)
	if provider == "" || provider == "none" {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Provider: %s\n", provider)
	if c.Credentials.DefaultVault != "" {
		fmt.Fprintf(&b, "Default vault: %s\n", c.Credentials.DefaultVault)
	}
	if c.Credentials.ServiceAccount {
		b.WriteString("Mode: service account (headless — credential lookups work without user interaction)\n")
	} else {
		b.WriteString("Mode: desktop app integration (biometric unlock; batch credential lookups to avoid repeated prompts)\n")
	}
	return b.String()
}

func shortID(id string, n int) string {
	if len(id) <= n {
		return id
	}
	return id[:n]
}
