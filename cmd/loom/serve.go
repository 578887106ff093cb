package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/loomrun/loom/internal/agent"
	"github.com/loomrun/loom/internal/agent/providers"
	"github.com/loomrun/loom/internal/artifacts"
	"github.com/loomrun/loom/internal/audit"
	"github.com/loomrun/loom/internal/agent/routing"
	"github.com/loomrun/loom/internal/cache"
	"github.com/loomrun/loom/internal/channels"
	"github.com/loomrun/loom/internal/channels/discord"
	slackchan "github.com/loomrun/loom/internal/channels/slack"
	"github.com/loomrun/loom/internal/channels/telegram"
	"github.com/loomrun/loom/internal/config"
	"github.com/loomrun/loom/internal/controlplane"
	croncore "github.com/loomrun/loom/internal/cron"
	"github.com/loomrun/loom/internal/goals"
	"github.com/loomrun/loom/internal/identity"
	"github.com/loomrun/loom/internal/jobs"
	vectormem "github.com/loomrun/loom/internal/memory"
	"github.com/loomrun/loom/internal/memory/embeddings"
	embedollama "github.com/loomrun/loom/internal/memory/embeddings/ollama"
	embedopenai "github.com/loomrun/loom/internal/memory/embeddings/openai"
	"github.com/loomrun/loom/internal/memory/episodic"
	"github.com/loomrun/loom/internal/memory/semantic"
	"github.com/loomrun/loom/internal/mesh"
	"github.com/loomrun/loom/internal/plugins"
	"github.com/loomrun/loom/internal/policy"
	"github.com/loomrun/loom/internal/recall"
	"github.com/loomrun/loom/internal/sessions"
	"github.com/loomrun/loom/internal/skills"
	"github.com/loomrun/loom/internal/storage"
	"github.com/loomrun/loom/internal/tailscale"
	"github.com/loomrun/loom/internal/tasks"
	internalmodels "github.com/loomrun/loom/internal/models"
	cronTools "github.com/loomrun/loom/internal/tools/cron"
	execTools "github.com/loomrun/loom/internal/tools/exec"
	factsTools "github.com/loomrun/loom/internal/tools/facts"
	fileTools "github.com/loomrun/loom/internal/tools/files"
	goalTools "github.com/loomrun/loom/internal/tools/goals"
	jobTools "github.com/loomrun/loom/internal/tools/jobs"
	messageTools "github.com/loomrun/loom/internal/tools/message"
	memoryTools "github.com/loomrun/loom/internal/tools/memory"
	meshTools "github.com/loomrun/loom/internal/tools/mesh"
	modelTools "github.com/loomrun/loom/internal/tools/models"
	reminderTools "github.com/loomrun/loom/internal/tools/reminders"
	sessionTools "github.com/loomrun/loom/internal/tools/sessions"
	"github.com/loomrun/loom/internal/tools/subagent"
	"github.com/loomrun/loom/internal/tools/websearch"
	"github.com/loomrun/loom/pkg/models"
)

// defaultBasePrompt frames the agent when the operator does not supply
// their own system prompt.
const defaultBasePrompt = `You are Loom, an autonomous agent acting on behalf of your operator.
You take action using tools: files, shell, web, memory, goals, sub-agents, mesh delegation. Act, don't just talk about acting.
Store lessons you learn through trial and error with memory_store in the learned_lessons category, and apply the lessons shown in your context.`

// sessionFlushInterval is how often session metadata and housekeeping
// are flushed in the background.
const sessionFlushInterval = 60 * time.Second

// autoResumeDelay is how far out the follow-up one-shot is scheduled
// when a turn exhausts its budget with work remaining.
const autoResumeDelay = 60 * time.Second

func buildServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the agent runtime",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", envOr("LOOM_CONFIG", "loom.yaml"), "Path to configuration file")
	return cmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func runServe(ctx context.Context, configPath string) error {
	logger := slog.Default()

	cfg, err := config.Load(configPath)
	if err != nil {
		if !os.IsNotExist(err) && !strings.Contains(err.Error(), "no such file") {
			return fmt.Errorf("load config: %w", err)
		}
		logger.Warn("config file not found, using defaults", "path", configPath)
		cfg = &config.Config{}
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Storage ────────────────────────────────────────────────────
	var db *sql.DB
	baseStore, db, err := openSessionStore(cfg)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
		migrator, err := sessions.NewMigrator(db)
		if err != nil {
			return fmt.Errorf("session migrations: %w", err)
		}
		if applied, err := migrator.Up(ctx, 0); err != nil {
			return fmt.Errorf("apply session migrations: %w", err)
		} else if len(applied) > 0 {
			logger.Info("session migrations applied", "count", len(applied))
		}
	}
	// Writer serialization per session id, on top of whichever store
	// backs the deployment.
	sessionStore := sessions.NewLockingStore(baseStore, sessions.NewSessionLockManager(0), "loom")

	var factStore storage.FactStore
	var episodeStore storage.EpisodeStore
	var goalStore storage.GoalStore
	if db != nil {
		factStore = storage.NewCockroachFactStore(db)
		episodeStore = storage.NewCockroachEpisodeStore(db)
		goalStore = storage.NewCockroachGoalStore(db)
	} else {
		factStore = storage.NewMemoryFactStore()
		episodeStore = storage.NewMemoryEpisodeStore()
		goalStore = storage.NewMemoryGoalStore()
	}

	// ── Memory ─────────────────────────────────────────────────────
	semStore := semantic.NewStore()
	if facts, err := factStore.LoadFacts(ctx); err != nil {
		logger.Warn("failed to load facts, starting empty", "error", err)
	} else {
		semStore.Load(facts)
		logger.Info("semantic memory loaded", "facts", len(facts))
	}
	semStore.SetPersistFunc(func(fact *models.Fact) {
		persistCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := factStore.UpsertFact(persistCtx, fact); err != nil {
			logger.Warn("fact persistence failed", "category", fact.Category, "key", fact.Key, "error", err)
		}
	})

	epiStore := episodic.NewStore()
	if eps, err := episodeStore.LoadEpisodes(ctx, 500); err == nil {
		epiStore.Load(eps)
	}
	epiStore.SetPersistFunc(func(ep *models.Episode) {
		persistCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := episodeStore.RecordEpisode(persistCtx, ep); err != nil {
			logger.Warn("episode persistence failed", "error", err)
		}
	})

	// Query embeddings power the vector pass of semantic recall; without
	// a configured provider, recall is keyword-only.
	embedder := buildEmbedder(cfg.VectorMemory.Embeddings, logger)

	// Vector memory indexes episode summaries for similarity search
	// alongside the keyword stores.
	var vectorManager *vectormem.Manager
	if cfg.VectorMemory.Enabled {
		if m, err := vectormem.NewManager(&cfg.VectorMemory); err != nil {
			logger.Warn("vector memory disabled", "error", err)
		} else {
			vectorManager = m
			defer vectorManager.Close()
		}
	}

	// ── Planner ────────────────────────────────────────────────────
	planner := goals.NewPlanner()
	if loaded, err := goalStore.LoadGoals(ctx); err == nil {
		planner.Load(loaded)
	}
	planner.SetPersistFunc(func(goal *models.Goal) {
		persistCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := goalStore.UpsertGoal(persistCtx, goal); err != nil {
			logger.Warn("goal persistence failed", "goal", goal.ID, "error", err)
		}
	})

	// ── LLM providers ──────────────────────────────────────────────
	router, err := buildRouter(cfg, logger)
	if err != nil {
		return err
	}

	// ── Guardrail, approvals, budget ───────────────────────────────
	checker := agent.NewApprovalChecker(nil)
	approvalStore := agent.NewMemoryApprovalStore()
	checker.SetStore(approvalStore)
	guardrail := agent.NewGuardrail(checker, agent.AutonomyLevel(cfg.Agent.Autonomy))
	if cfg.Agent.ApprovalThreshold > 0 {
		guardrail.ApprovalThreshold = cfg.Agent.ApprovalThreshold
	}
	gate := agent.NewApprovalGate(time.Duration(cfg.Agent.ApprovalTimeoutSecs) * time.Second)
	budget := agent.NewBudget(cfg.Agent.DailyBudgetUSD, cfg.Agent.MaxToolCallsPerTurn)

	// ── Scheduled tasks ────────────────────────────────────────────
	taskStore := tasks.NewMemoryStore()

	// ── Runtime ────────────────────────────────────────────────────
	opts := agent.DefaultRuntimeOptions()
	if cfg.Agent.MaxIterations > 0 {
		opts.MaxIterations = cfg.Agent.MaxIterations
	}
	opts.Guardrail = guardrail
	opts.ApprovalGate = gate
	opts.Budget = budget
	opts.DisableLazyStopGuard = cfg.Agent.DisableLazyStopGuard
	opts.AutoResume = func(sessionID string) {
		if len(planner.Active()) == 0 {
			return
		}
		fireAt := time.Now().Add(autoResumeDelay)
		task := &tasks.ScheduledTask{
			ID:        uuid.NewString(),
			Name:      "auto-resume",
			Schedule:  "@at " + fireAt.Format(time.RFC3339),
			Prompt:    "Continue the work in session " + sessionID + ". Pick up where you left off on the active goals.",
			Status:    tasks.TaskStatusActive,
			NextRunAt: fireAt,
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
			Config:    tasks.TaskConfig{SessionID: sessionID},
		}
		createCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := taskStore.CreateTask(createCtx, task); err != nil {
			logger.Warn("failed to schedule auto-resume", "session", sessionID, "error", err)
		} else {
			logger.Info("scheduled auto-resume", "session", sessionID)
		}
	}
	runtime := agent.NewRuntimeWithOptions(router, sessionStore, opts)
	runtime.SetToolEventStore(&toolEventStoreAdapter{store: sessions.NewMemoryToolEventStore()})
	if tracePath := os.Getenv("LOOM_TRACE_FILE"); tracePath != "" {
		if tracer, err := agent.NewTracePluginFile(tracePath, uuid.NewString()); err != nil {
			logger.Warn("trace plugin disabled", "error", err)
		} else {
			runtime.Use(tracer)
		}
	}
	if cfg.Agent.TurnDeadlineSecs > 0 {
		runtime.SetMaxWallTime(time.Duration(cfg.Agent.TurnDeadlineSecs) * time.Second)
	}

	// ── Plugins ────────────────────────────────────────────────────
	// Manifests are discovered and validated up front; tool execution
	// behind a manifest goes through the plugin host boundary.
	if len(cfg.Plugins.Load.Paths) > 0 {
		if manifests, err := plugins.DiscoverManifests(cfg.Plugins.Load.Paths); err != nil {
			logger.Warn("plugin discovery failed", "error", err)
		} else {
			logger.Info("plugins discovered", "count", len(manifests))
		}
	}

	// ── Skills ─────────────────────────────────────────────────────
	var skillsManager *skills.Manager
	if cfg.Skills.Enabled {
		if m, err := skills.NewManager(&cfg.Skills, cfg.Workspace.Path, nil); err != nil {
			logger.Warn("skills disabled", "error", err)
		} else if err := m.Discover(ctx); err != nil {
			logger.Warn("skill discovery failed", "error", err)
			skillsManager = m
		} else {
			skillsManager = m
		}
	}

	// ── Mesh ───────────────────────────────────────────────────────
	var meshNode *mesh.Node
	var meshHandler *mesh.Handler
	handle := controlplane.NewHandle(runtime, sessionStore)
	if cfg.Mesh.Enabled {
		meshNode = mesh.NewNodeWithTransport(func(selfID string) mesh.Transport {
			return mesh.NewWebsocketTransport(cfg.Mesh.Listen, cfg.Mesh.BootstrapPeers, selfID, logger)
		}, logger)
		meshHandler = mesh.NewHandler(meshNode, func(taskCtx context.Context, description string) (string, error) {
			text, _, err := handle.Chat(taskCtx, description, "")
			return text, err
		}, semStore, epiStore, planner, logger)

		inbound, err := meshNode.Start(ctx, cfg.Mesh.Capabilities)
		if err != nil {
			logger.Warn("mesh networking failed to start, continuing without mesh", "error", err)
			meshNode = nil
			meshHandler = nil
		} else {
			go meshHandler.Run(ctx, inbound)
			logger.Info("mesh networking started", "peer_id", meshNode.SelfID())

			// On tailnets, the MagicDNS name is the address peers should
			// dial; surface it for the operator's bootstrap config.
			ts := tailscale.NewClient()
			if ts.IsAvailable(ctx) {
				if dnsName, err := ts.GetSelfDNSName(ctx); err == nil && dnsName != "" {
					logger.Info("mesh reachable over tailscale", "dns_name", dnsName, "listen", cfg.Mesh.Listen)
				}
			}
		}
	}

	// ── Recall composer ────────────────────────────────────────────
	basePrompt := cfg.Agent.SystemPrompt
	if strings.TrimSpace(basePrompt) == "" {
		basePrompt = defaultBasePrompt
	}
	composer := &recall.Composer{
		BasePrompt: basePrompt,
		Semantic:   semStore,
		Episodic:   epiStore,
		Planner:    planner,
		Credentials: recall.Credentials{
			Provider:       cfg.Agent.Credentials.Provider,
			DefaultVault:   cfg.Agent.Credentials.DefaultVault,
			ServiceAccount: cfg.Agent.Credentials.ServiceAccount,
		},
	}
	if embedder != nil {
		composer.Embedder = embedder
	}
	if meshNode != nil {
		composer.Mesh = meshNode
	}
	if skillsManager != nil {
		composer.SkillsBlock = func() string {
			entries := skillsManager.ListEligible()
			if len(entries) == 0 {
				return ""
			}
			var b strings.Builder
			for _, e := range entries {
				fmt.Fprintf(&b, "- %s: %s\n", e.Name, e.Description)
			}
			return b.String()
		}
	}

	handle.Composer = composer
	handle.Gate = gate
	handle.Planner = planner
	handle.Mesh = meshNode
	handle.Budget = budget

	// ── Sub-agent scheduler ────────────────────────────────────────
	subScheduler := subagent.NewScheduler(runtime, planner, func(task *models.SubTask) {
		semStore.Upsert(models.Fact{
			Category:   models.SubAgentResultCategory,
			Key:        task.Role + "_" + task.ID[:8],
			Value:      task.Result,
			Confidence: 1,
			Source:     "sub_agent",
		})
	}, 5)
	subScheduler.Start(ctx)
	defer subScheduler.Stop()

	// ── Tools ──────────────────────────────────────────────────────
	registerTools(runtime, semStore, epiStore, planner, taskStore, subScheduler, meshNode, meshHandler, embedder)

	workspace := cfg.Workspace.Path
	if workspace == "" {
		workspace = "."
	}
	execManager := execTools.NewManager(workspace)
	runtime.RegisterTool(execTools.NewExecTool("exec", execManager))
	runtime.RegisterTool(execTools.NewProcessTool(execManager))

	// Eligible skills contribute their own tools, auto-allowed by the
	// approval policy's skill allowlist.
	if skillsManager != nil {
		var skillToolNames []string
		for _, entry := range skillsManager.ListEligible() {
			for _, tool := range skills.BuildSkillTools(entry, execManager) {
				runtime.RegisterTool(tool)
				skillToolNames = append(skillToolNames, tool.Name())
			}
		}
		if len(skillToolNames) > 0 {
			checker.RegisterSkillTools(skillToolNames)
			logger.Info("skill tools registered", "count", len(skillToolNames))
		}
	}

	fileCfg := fileTools.Config{Workspace: workspace}
	runtime.RegisterTool(fileTools.NewReadTool(fileCfg))
	runtime.RegisterTool(fileTools.NewWriteTool(fileCfg))
	runtime.RegisterTool(fileTools.NewEditTool(fileCfg))
	runtime.RegisterTool(fileTools.NewApplyPatchTool(fileCfg))

	runtime.RegisterTool(websearch.NewWebSearchTool(&websearch.Config{}))
	runtime.RegisterTool(websearch.NewWebFetchTool(nil))
	runtime.RegisterTool(factsTools.NewExtractTool(10))

	jobStore := jobs.NewMemoryStore()
	runtime.RegisterTool(jobTools.NewStatusTool(jobStore))
	runtime.RegisterTool(jobTools.NewListTool(jobStore))
	runtime.RegisterTool(jobTools.NewCancelTool(jobStore))

	runtime.RegisterTool(sessionTools.NewListTool(sessionStore, ""))
	runtime.RegisterTool(sessionTools.NewHistoryTool(sessionStore))
	runtime.RegisterTool(sessionTools.NewStatusTool(sessionStore))
	runtime.RegisterTool(sessionTools.NewSendTool(sessionStore, runtime))

	runtime.RegisterTool(reminderTools.NewSetTool(taskStore))
	runtime.RegisterTool(reminderTools.NewListTool(taskStore))
	runtime.RegisterTool(reminderTools.NewCancelTool(taskStore))

	runtime.RegisterTool(modelTools.NewTool(internalmodels.NewCatalog(), nil))

	auditLogger, err := audit.NewLogger(audit.Config{Enabled: true, Output: "file:" + workspace + "/.loom/audit.log"})
	if err != nil {
		logger.Warn("audit log disabled", "error", err)
		auditLogger = nil
	}
	if auditLogger != nil {
		defer auditLogger.Close()
	}

	// Artifact storage for tool-produced files, pruned on a timer.
	if artifactStore, err := artifacts.NewLocalStore(workspace + "/.loom/artifacts"); err != nil {
		logger.Warn("artifact store disabled", "error", err)
	} else {
		artifactRepo := artifacts.NewMemoryRepository(artifactStore, logger)
		cleanup := artifacts.NewCleanupService(artifactRepo, time.Hour, logger)
		cleanup.Start(ctx)
		defer cleanup.Stop()
		defer artifactStore.Close()
	}

	// ── Lesson extraction on completed turns ───────────────────────
	lessonSink := agent.LessonSinkFunc(func(key, value string) {
		semStore.Upsert(models.Fact{
			Category:   models.LessonCategory,
			Key:        key,
			Value:      value,
			Confidence: 0.9,
			Source:     "lesson_extraction",
		})
	})
	runtime.SetTurnHook(func(hookCtx context.Context, session *models.Session) {
		if auditLogger != nil {
			auditLogger.Log(hookCtx, &audit.Event{Type: audit.EventAgentAction, SessionKey: session.ID, Action: "turn processed"})
		}
		history, err := sessionStore.GetHistory(hookCtx, session.ID, 20)
		if err != nil || len(history) < 2 {
			return
		}
		agent.MaybeExtractLessons(hookCtx, router, "", history, lessonSink)

		var userText, assistantText string
		for _, m := range history {
			switch m.Role {
			case models.RoleUser:
				userText = m.Content
			case models.RoleAssistant:
				if m.Content != "" {
					assistantText = m.Content
				}
			}
		}
		if summary := episodic.Summarize(userText, assistantText); summary != "" {
			ep := epiStore.Record(models.Episode{
				SessionID: session.ID,
				Summary:   summary,
				Tags:      episodic.ExtractTags(summary, 5),
			})
			if vectorManager != nil {
				entry := &models.MemoryEntry{
					ID:        ep.ID,
					SessionID: session.ID,
					Content:   summary,
					Metadata:  models.MemoryMetadata{Source: "episode", Tags: ep.Tags},
				}
				if err := vectorManager.Index(hookCtx, []*models.MemoryEntry{entry}); err != nil {
					logger.Debug("episode vector indexing failed", "error", err)
				}
			}
		}
	})

	// ── Config-declared cron jobs (heartbeats etc.) ────────────────
	if cfg.Cron.Enabled {
		cronScheduler, err := croncore.NewScheduler(cfg.Cron,
			croncore.WithAgentRunner(croncore.AgentRunnerFunc(func(jobCtx context.Context, job *croncore.Job) error {
				prompt := job.Name
				if job.Message != nil && job.Message.Content != "" {
					prompt = job.Message.Content
				}
				_, _, err := handle.Chat(jobCtx, prompt, "")
				return err
			})))
		if err != nil {
			logger.Warn("cron scheduler disabled", "error", err)
		} else {
			if err := cronScheduler.Start(ctx); err != nil {
				logger.Warn("cron scheduler failed to start", "error", err)
			} else {
				runtime.RegisterTool(cronTools.NewTool(cronScheduler))
				defer func() {
					stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = cronScheduler.Stop(stopCtx)
				}()
			}
		}
	}

	// ── Task scheduler ─────────────────────────────────────────────
	executor := tasks.NewAgentExecutor(runtime, sessionStore, tasks.AgentExecutorConfig{})
	taskScheduler := tasks.NewScheduler(taskStore, executor, tasks.SchedulerConfig{
		PollInterval: time.Second,
		OnFired: func(task *tasks.ScheduledTask, exec *tasks.TaskExecution, response string, err error) {
			body := response
			if err != nil {
				body = "Error: " + err.Error()
			}
			handle.Notify(controlplane.Notification{
				Kind:      controlplane.NotifyCronResult,
				Title:     task.Name,
				Body:      body,
				SessionID: exec.SessionID,
			})
		},
	})
	if err := taskScheduler.Start(ctx); err != nil {
		return fmt.Errorf("start task scheduler: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = taskScheduler.Stop(stopCtx)
	}()

	// ── Channels ───────────────────────────────────────────────────
	registry := channels.NewRegistry()
	runtime.RegisterTool(messageTools.NewTool("channel_send", registry, sessionStore, ""))
	if cfg.Channels.Telegram.Enabled {
		adapter, err := telegram.NewAdapter(telegram.Config{Token: cfg.Channels.Telegram.BotToken})
		if err != nil {
			logger.Warn("telegram adapter failed", "error", err)
		} else {
			registry.Register(adapter)
		}
	}
	if cfg.Channels.Discord.Enabled {
		adapter, err := discord.NewAdapter(discord.Config{Token: cfg.Channels.Discord.BotToken})
		if err != nil {
			logger.Warn("discord adapter failed", "error", err)
		} else {
			registry.Register(adapter)
		}
	}
	if cfg.Channels.Slack.Enabled {
		registry.Register(slackchan.NewAdapter(slackchan.Config{
			BotToken: cfg.Channels.Slack.BotToken,
			AppToken: cfg.Channels.Slack.AppToken,
		}))
	}
	if err := registry.StartAll(ctx); err != nil {
		logger.Warn("channel startup incomplete", "error", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = registry.StopAll(stopCtx)
	}()

	identityStore := identity.NewMemoryStore()
	go channelLoop(ctx, registry, handle, identityStore, logger)

	// ── Background flusher ─────────────────────────────────────────
	go func() {
		ticker := time.NewTicker(sessionFlushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				pruneCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				if n, err := approvalStore.Prune(pruneCtx, time.Hour); err == nil && n > 0 {
					logger.Debug("pruned expired approval requests", "count", n)
				}
				cancel()
			}
		}
	}()

	logger.Info("loom runtime started", "version", version)
	<-ctx.Done()

	if meshNode != nil {
		meshNode.Stop()
	}
	logger.Info("loom runtime stopped")
	return nil
}

// buildEmbedder constructs the configured embedding provider, or nil.
func buildEmbedder(cfg vectormem.EmbeddingsConfig, logger *slog.Logger) embeddings.Provider {
	switch cfg.Provider {
	case "openai":
		p, err := embedopenai.New(embedopenai.Config{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, Model: cfg.Model})
		if err != nil {
			logger.Warn("openai embeddings disabled", "error", err)
			return nil
		}
		return p
	case "ollama":
		p, err := embedollama.New(embedollama.Config{BaseURL: cfg.OllamaURL, Model: cfg.Model})
		if err != nil {
			logger.Warn("ollama embeddings disabled", "error", err)
			return nil
		}
		return p
	case "":
		return nil
	default:
		logger.Warn("unknown embeddings provider", "provider", cfg.Provider)
		return nil
	}
}

// openSessionStore picks the session store from configuration: a SQL
// store when a database URL is set, in-memory otherwise.
func openSessionStore(cfg *config.Config) (sessions.Store, *sql.DB, error) {
	if cfg.Database.URL == "" {
		return sessions.NewMemoryStore(), nil, nil
	}
	store, err := sessions.NewCockroachStoreFromDSN(cfg.Database.URL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("open session store: %w", err)
	}
	return store, store.DB(), nil
}

// buildRouter constructs LLM providers from configuration and wraps them
// in the failover-aware router.
func buildRouter(cfg *config.Config, logger *slog.Logger) (*routing.Router, error) {
	provs := make(map[string]agent.LLMProvider)

	for name, pc := range cfg.LLM.Providers {
		switch name {
		case "anthropic":
			p, err := providers.NewAnthropicProvider(providers.AnthropicConfig{APIKey: pc.APIKey, BaseURL: pc.BaseURL})
			if err != nil {
				logger.Warn("anthropic provider not configured", "error", err)
				continue
			}
			provs[name] = p
		case "openai":
			provs[name] = providers.NewOpenAIProvider(pc.APIKey)
		case "ollama":
			provs[name] = providers.NewOllamaProvider(providers.OllamaConfig{BaseURL: pc.BaseURL, DefaultModel: pc.DefaultModel})
		case "google":
			p, err := providers.NewGoogleProvider(providers.GoogleConfig{APIKey: pc.APIKey})
			if err != nil {
				logger.Warn("google provider not configured", "error", err)
				continue
			}
			provs[name] = p
		case "bedrock":
			// Credentials and region come from the standard AWS chain.
			p, err := providers.NewBedrockProvider(providers.BedrockConfig{DefaultModel: pc.DefaultModel})
			if err != nil {
				logger.Warn("bedrock provider not configured", "error", err)
				continue
			}
			provs[name] = p
		default:
			logger.Warn("unknown provider in config, skipping", "provider", name)
		}
	}

	// Environment keys fill in providers the config omits.
	if _, ok := provs["anthropic"]; !ok {
		if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
			if p, err := providers.NewAnthropicProvider(providers.AnthropicConfig{APIKey: key}); err == nil {
				provs["anthropic"] = p
			}
		}
	}
	if _, ok := provs["openai"]; !ok {
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			provs["openai"] = providers.NewOpenAIProvider(key)
		}
	}

	if len(provs) == 0 {
		return nil, fmt.Errorf("no LLM provider configured; set llm.providers or ANTHROPIC_API_KEY/OPENAI_API_KEY")
	}

	return routing.NewRouter(routing.Config{DefaultProvider: cfg.LLM.DefaultProvider}, provs), nil
}

// registerTools attaches every built-in tool family to the runtime.
func registerTools(runtime *agent.Runtime, semStore *semantic.Store, epiStore *episodic.Store, planner *goals.Planner, taskStore tasks.Store, subScheduler *subagent.Scheduler, meshNode *mesh.Node, meshHandler *mesh.Handler, embedder embeddings.Provider) {
	var toolEmbedder memoryTools.Embedder
	if embedder != nil {
		toolEmbedder = embedder
	}
	runtime.RegisterTool(memoryTools.NewStoreTool(semStore, toolEmbedder))
	runtime.RegisterTool(memoryTools.NewSearchTool(semStore, epiStore, toolEmbedder))
	runtime.RegisterTool(memoryTools.NewListTool(semStore))
	runtime.RegisterTool(memoryTools.NewForgetTool(semStore))

	runtime.RegisterTool(goalTools.NewCreateTool(planner))
	runtime.RegisterTool(goalTools.NewListTool(planner))
	runtime.RegisterTool(goalTools.NewUpdateTool(planner))
	runtime.RegisterTool(goalTools.NewStepTool(planner))

	runtime.RegisterTool(cronTools.NewScheduleTool(taskStore))
	runtime.RegisterTool(cronTools.NewListTool(taskStore))
	runtime.RegisterTool(cronTools.NewCancelTool(taskStore))

	runtime.RegisterTool(subagent.NewSpawnTool(subScheduler))
	runtime.RegisterTool(subagent.NewWaitTool(subScheduler))
	runtime.RegisterTool(subagent.NewStatusTool(subScheduler))

	if meshNode != nil && meshHandler != nil {
		runtime.RegisterTool(meshTools.NewDelegateTool(meshNode, meshHandler))
		runtime.RegisterTool(meshTools.NewPeersTool(meshNode))
		runtime.RegisterTool(meshTools.NewStatusTool(meshNode, meshHandler))
	}
}

// channelLoop routes inbound channel messages through the turn engine and
// sends responses back out, falling back to plain text on send failure.
func channelLoop(ctx context.Context, registry *channels.Registry, handle *controlplane.Handle, identities identity.Store, logger *slog.Logger) {
	inbound := registry.AggregateMessages(ctx)
	dedupe := cache.NewDedupeCache(cache.DedupeCacheOptions{TTL: 5 * time.Minute, MaxSize: 4096})
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-inbound:
			if !ok {
				return
			}
			// Channel reconnects can replay recent messages.
			if msg.ID != "" && dedupe.Check(string(msg.Channel)+":"+msg.ID) {
				continue
			}
			go handleChannelMessage(ctx, registry, handle, identities, msg, logger)
		}
	}
}

func handleChannelMessage(ctx context.Context, registry *channels.Registry, handle *controlplane.Handle, identities identity.Store, msg *models.Message, logger *slog.Logger) {
	// Inline approval commands short-circuit the turn engine.
	text := strings.TrimSpace(msg.Content)
	if result := policy.ParseActivationCommand(text); result.HasCommand {
		reply := "Usage: /activation mention|always"
		if result.Mode != nil {
			activationModes.Store(string(msg.Channel)+":"+msg.ChannelID, *result.Mode)
			reply = "Group activation set to " + string(*result.Mode) + "."
		}
		sendResponse(ctx, registry, msg, reply, logger)
		return
	}
	if mode, ok := activationModes.Load(string(msg.Channel) + ":" + msg.ChannelID); ok {
		if mode == policy.ActivationMention && !messageMentionsBot(msg) {
			return
		}
	}
	if cmd, id, ok := parseApprovalCommand(text); ok {
		var err error
		if cmd == "approve" {
			err = handle.Approve(id)
		} else {
			err = handle.Deny(id)
		}
		reply := "Done."
		if err != nil {
			reply = err.Error()
		}
		sendResponse(ctx, registry, msg, reply, logger)
		return
	}

	// A sender linked to a cross-channel identity shares one session
	// across every channel they write from.
	target := msg.ChannelID
	if identities != nil {
		if id, err := identities.ResolveByPeer(ctx, string(msg.Channel), msg.ChannelID); err == nil && id != nil {
			target = "identity:" + id.CanonicalID
		}
	}
	session, err := handle.Sessions.GetOrCreate(ctx,
		sessions.SessionKey("", msg.Channel, target), "", msg.Channel, msg.ChannelID)
	if err != nil {
		logger.Error("session resolution failed", "channel", string(msg.Channel), "error", err)
		return
	}

	response, _, err := handle.Chat(ctx, msg.Content, session.ID)
	if err != nil {
		logger.Error("turn failed", "session", session.ID, "error", err)
		response = "Something went wrong processing that message."
	}
	if response != "" {
		sendResponse(ctx, registry, msg, response, logger)
	}
}

// parseApprovalCommand recognizes "/approve [id]" and "/deny [id]".
// activationModes holds per-conversation group activation overrides set
// with the /activation command.
var activationModes sync.Map

func messageMentionsBot(msg *models.Message) bool {
	if msg.Metadata == nil {
		return false
	}
	if v, ok := msg.Metadata["is_mention"].(bool); ok && v {
		return true
	}
	if v, ok := msg.Metadata["is_reply_to_bot"].(bool); ok && v {
		return true
	}
	return false
}

func parseApprovalCommand(text string) (cmd, id string, ok bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", "", false
	}
	switch fields[0] {
	case "/approve":
		cmd = "approve"
	case "/deny":
		cmd = "deny"
	default:
		return "", "", false
	}
	if len(fields) > 1 {
		id = fields[1]
	}
	return cmd, id, true
}

func sendResponse(ctx context.Context, registry *channels.Registry, inbound *models.Message, text string, logger *slog.Logger) {
	outbound, ok := registry.GetOutbound(inbound.Channel)
	if !ok {
		return
	}
	reply := &models.Message{
		ID:        uuid.NewString(),
		Channel:   inbound.Channel,
		ChannelID: inbound.ChannelID,
		Direction: models.DirectionOutbound,
		Role:      models.RoleAssistant,
		Content:   text,
		CreatedAt: time.Now(),
	}
	if err := outbound.Send(ctx, reply); err != nil {
		// Markdown renderers reject some responses; retry as plain text.
		reply.Content = stripMarkdown(text)
		if err := outbound.Send(ctx, reply); err != nil {
			logger.Warn("channel send failed", "channel", string(inbound.Channel), "error", err)
		}
	}
}

func stripMarkdown(s string) string {
	replacer := strings.NewReplacer("**", "", "__", "", "```", "", "`", "")
	return replacer.Replace(s)
}

// toolEventStoreAdapter bridges the runtime's tool-event persistence
// interface onto the sessions event store.
type toolEventStoreAdapter struct {
	store sessions.ToolEventStore
}

func (a *toolEventStoreAdapter) AddToolCall(ctx context.Context, sessionID, messageID string, call *models.ToolCall) error {
	return a.store.AddToolCall(ctx, sessionID, messageID, &sessions.ToolCall{
		ID:        call.ID,
		SessionID: sessionID,
		MessageID: messageID,
		ToolName:  call.Name,
		InputJSON: call.Input,
	})
}

func (a *toolEventStoreAdapter) AddToolResult(ctx context.Context, sessionID, messageID string, call *models.ToolCall, result *models.ToolResult) error {
	return a.store.AddToolResult(ctx, sessionID, messageID, call.ID, &sessions.ToolResult{
		SessionID:  sessionID,
		MessageID:  messageID,
		ToolCallID: result.ToolCallID,
		IsError:    result.IsError,
		Content:    result.Content,
	})
}
