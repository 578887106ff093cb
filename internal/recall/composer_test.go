package recall

import (
	"context"
	"strings"
	"testing"

	"github.com/loomrun/loom/internal/goals"
	"github.com/loomrun/loom/internal/memory/episodic"
	"github.com/loomrun/loom/internal/memory/semantic"
	"github.com/loomrun/loom/pkg/models"
)

type fakeMesh struct {
	peers []models.Peer
}

func (f *fakeMesh) SelfID() string         { return "self-peer-id-1234567890" }
func (f *fakeMesh) Capabilities() []string { return []string{"shell", "browser"} }
func (f *fakeMesh) Peers() []models.Peer   { return f.peers }
func (f *fakeMesh) Running() bool          { return true }

func TestComposeSectionsInOrder(t *testing.T) {
	sem := semantic.NewStore()
	sem.Upsert(models.Fact{Category: "infra", Key: "db", Value: "postgres on db.internal"})
	sem.Upsert(models.Fact{Category: models.LessonCategory, Key: "careful_deploys", Value: "always check staging first"})

	epi := episodic.NewStore()
	epi.Record(models.Episode{SessionID: "s", Summary: "User asked: set up postgres replication"})

	planner := goals.NewPlanner()
	planner.Create("Migrate the database", 1, "", "")

	c := &Composer{
		BasePrompt: "You are a helpful agent.",
		Semantic:   sem,
		Episodic:   epi,
		Planner:    planner,
		Mesh: &fakeMesh{peers: []models.Peer{{
			PeerID: "peer-abcdef123456", Hostname: "worker-1", OS: "linux",
			Capabilities: []string{"gpu"},
		}}},
		SkillsBlock: func() string { return "- pdf_extract: extract text from PDFs" },
		Credentials: Credentials{Provider: "1password", ServiceAccount: true},
		Hostname:    "test-host",
	}

	prompt := c.Compose(context.Background(), "postgres replication status")

	for _, want := range []string{
		"You are a helpful agent.",
		"Environment: ",
		"test-host",
		"<memory>",
		"Relevant past conversations:",
		"postgres replication",
		"Relevant knowledge:",
		"[infra] db:",
		"Lessons learned",
		"**careful_deploys**",
		"<active_goals>",
		"Migrate the database",
		"<mesh_network>",
		"worker-1",
		"mesh_delegate",
		"<skills>",
		"pdf_extract",
		"<credentials>",
		"1password",
		"service account",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}

	// Sections appear in the specified order.
	order := []string{"<memory>", "<active_goals>", "<mesh_network>", "<skills>", "<credentials>"}
	last := -1
	for _, tag := range order {
		idx := strings.Index(prompt, tag)
		if idx < 0 {
			t.Fatalf("missing section %s", tag)
		}
		if idx < last {
			t.Errorf("section %s out of order", tag)
		}
		last = idx
	}
}

func TestComposeOmitsEmptySections(t *testing.T) {
	c := &Composer{BasePrompt: "Base.", Hostname: "h"}
	prompt := c.Compose(context.Background(), "hello")

	for _, tag := range []string{"<memory>", "<active_goals>", "<mesh_network>", "<skills>", "<credentials>"} {
		if strings.Contains(prompt, tag) {
			t.Errorf("empty composer emitted %s", tag)
		}
	}
	if !strings.Contains(prompt, "Base.") {
		t.Error("base prompt missing")
	}
}

func TestComposeCredentialsDesktopMode(t *testing.T) {
	c := &Composer{
		BasePrompt:  "Base.",
		Hostname:    "h",
		Credentials: Credentials{Provider: "1password", DefaultVault: "Personal"},
	}
	prompt := c.Compose(context.Background(), "x")
	if !strings.Contains(prompt, "desktop app integration") {
		t.Error("desktop mode not described")
	}
	if !strings.Contains(prompt, "Personal") {
		t.Error("default vault missing")
	}
}
