// Command niffler is the Niffler CLI entrypoint: a line-oriented REPL over
// stdin/stdout, not a full-screen terminal UI. Terminal rendering is treated
// as an abstract input/output pair, so the loop here is a plain
// read-eval-print cycle around internal/llm.ProcessTurn.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/xonecas/niffler/internal/agent"
	"github.com/xonecas/niffler/internal/config"
	"github.com/xonecas/niffler/internal/delta"
	"github.com/xonecas/niffler/internal/llm"
	"github.com/xonecas/niffler/internal/mailbox"
	"github.com/xonecas/niffler/internal/mcp"
	"github.com/xonecas/niffler/internal/provider"
	"github.com/xonecas/niffler/internal/shell"
	"github.com/xonecas/niffler/internal/store"
	"github.com/xonecas/niffler/internal/tokenize"
	"github.com/xonecas/niffler/internal/tools"
	"github.com/xonecas/niffler/internal/toolworker"
)

// Exit codes per spec.md § 6.
const (
	exitOK          = 0
	exitFatal       = 1
	exitConfigError = 2
)

func main() {
	if err := setupFileLogging(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to set up logging: %v\n", err)
	}

	flagSession := flag.String("s", "", "resume a conversation by ID")
	flagContinue := flag.Bool("c", false, "continue the most recent conversation")
	flagList := flag.Bool("l", false, "list conversations and exit")
	flagConfig := flag.String("config", "", "path to config.yaml")
	flag.Parse()

	cfg, err := config.Load(resolveConfigPath(*flagConfig))
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(exitConfigError)
	}

	dataDir, err := config.EnsureDataDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "startup error: %v\n", err)
		os.Exit(exitFatal)
	}
	st, err := store.Open(filepath.Join(dataDir, "niffler.db"), time.Duration(cfg.Cache.CacheTTLOrDefault())*time.Hour)
	if err != nil {
		fmt.Fprintf(os.Stderr, "startup error: %v\n", err)
		os.Exit(exitFatal)
	}
	defer st.Close()

	if *flagList {
		printConversations(st)
		return
	}

	conversationID, err := resolveConversation(st, *flagSession, *flagContinue, cfg.Models[0].Nickname)
	if err != nil {
		fmt.Fprintf(os.Stderr, "startup error: %v\n", err)
		os.Exit(exitFatal)
	}

	app, err := bootstrap(cfg, st, conversationID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "startup error: %v\n", err)
		os.Exit(exitFatal)
	}
	defer app.Close()

	app.repl(conversationID)
}

func resolveConfigPath(flagConfig string) string {
	if flagConfig != "" {
		return flagConfig
	}
	if dataDir, err := config.DataDir(); err == nil {
		candidate := filepath.Join(dataDir, "config.yaml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return "config.yaml"
}

func setupFileLogging() error {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	dataDir, err := config.EnsureDataDir()
	if err != nil {
		return err
	}
	logDir := filepath.Join(dataDir, "logs")
	if err := os.MkdirAll(logDir, 0750); err != nil {
		return err
	}
	file, err := os.OpenFile(filepath.Join(logDir, "niffler.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	log.Logger = log.Output(file)
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	return nil
}

// app bundles the live process state shared by every REPL turn.
type app struct {
	cfg          *config.Config
	store        *store.Store
	shell        *shell.Shell
	deltaTracker *delta.Tracker
	agents       *agent.Store
	registry     *provider.Registry
	proxy        *mcp.Proxy
	fabric       *mailbox.Fabric
	worker       *toolworker.Worker
	corrections  map[string]*tokenize.CorrectionFactor
	scratchpad   *scratchpad
}

func bootstrap(cfg *config.Config, st *store.Store, conversationID string) (*app, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getwd: %w", err)
	}

	blockers := shell.DefaultBlockFuncs()
	if len(cfg.Tools.Security.BlockedCommands) > 0 {
		blockers = append(blockers, shell.CommandsBlocker(cfg.Tools.Security.BlockedCommands))
	}
	sh := shell.New(cwd, blockers)

	deltaTracker := delta.New(st.DB())

	agentsDir, err := config.AgentsDir()
	if err != nil {
		return nil, fmt.Errorf("agents dir: %w", err)
	}
	agents := agent.NewStore(agentsDir)

	models := make([]provider.ModelConfig, 0, len(cfg.Models))
	corrections := make(map[string]*tokenize.CorrectionFactor, len(cfg.Models))
	for _, m := range cfg.Models {
		models = append(models, provider.ModelConfig{
			Nickname:    m.Nickname,
			Provider:    m.Provider,
			Model:       m.Model,
			BaseURL:     m.BaseURL,
			APIKey:      m.APIKey(),
			Temperature: m.Temperature,
			TopP:        m.TopP,
			MaxTokens:   m.MaxTokens,
		})
		cf := tokenize.NewCorrectionFactor(m.Nickname)
		if row, err := st.LoadCorrection(m.Nickname); err == nil {
			cf.TotalSamples = row.TotalSamples
			cf.SumRatio = row.SumRatio
			cf.AvgCorrection = row.AvgCorrection
		}
		corrections[m.Nickname] = cf
	}
	registry, err := provider.BuildRegistry(models)
	if err != nil {
		return nil, fmt.Errorf("build provider registry: %w", err)
	}

	resolveModel := func(nickname string) (provider.Provider, error) {
		return registry.Create(nickname, "", provider.Options{})
	}

	proxy := mcp.NewProxy(nil)
	exaKey := os.Getenv("EXA_API_KEY")
	tools.Register(proxy, tools.RegistryDeps{
		Store:          st,
		Shell:          sh,
		DeltaTracker:   deltaTracker,
		ConversationID: conversationID,
		Agents:         agents,
		ResolveModel:   resolveModel,
		ExaAPIKey:      exaKey,
		TextExtraction: tools.TextExtraction{
			Enabled:           cfg.TextExtraction.Enabled,
			Command:           cfg.TextExtraction.Command,
			Mode:              cfg.TextExtraction.Mode,
			FallbackToBuiltin: cfg.TextExtraction.FallbackToBuiltin,
		},
	})

	allTools, err := proxy.ListTools(context.Background())
	if err != nil {
		allTools = nil
	}
	fabric := mailbox.NewFabric()
	worker := toolworker.New(proxy, allTools, fabric)
	go worker.Run(context.Background())
	go pumpConfirmations(fabric)

	return &app{
		cfg:          cfg,
		store:        st,
		shell:        sh,
		deltaTracker: deltaTracker,
		agents:       agents,
		registry:     registry,
		proxy:        proxy,
		fabric:       fabric,
		worker:       worker,
		corrections:  corrections,
		scratchpad:   newScratchpad(),
	}, nil
}

// Close releases everything bootstrap started except the store, which main
// owns and closes itself (it was opened before bootstrap, to resolve the
// conversation ID tool handlers are constructed against).
func (a *app) Close() {
	a.fabric.Shutdown()
	a.proxy.Close()
}

func printConversations(st *store.Store) {
	convs, err := st.ListConversations()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error listing conversations: %v\n", err)
		return
	}
	for _, c := range convs {
		fmt.Printf("%s  %s  %s\n", c.ID, c.Updated.Format(time.RFC3339), c.Preview)
	}
}

func resolveConversation(st *store.Store, sessionFlag string, resumeRecent bool, defaultModel string) (string, error) {
	if sessionFlag != "" {
		exists, err := st.ConversationExists(sessionFlag)
		if err != nil {
			return "", err
		}
		if !exists {
			return "", fmt.Errorf("no conversation with id %q", sessionFlag)
		}
		return sessionFlag, nil
	}
	if resumeRecent {
		id, err := st.LatestConversationID()
		if err == nil {
			return id, nil
		}
	}
	return st.CreateConversation("interactive", defaultModel)
}

// repl is the plain read-eval-print loop: read a line from stdin, either
// dispatch it as a slash command or hand it to the LLM as a user turn.
func (a *app) repl(conversationID string) {
	modelNickname, err := a.currentModel(conversationID)
	if err != nil {
		modelNickname = a.cfg.Models[0].Nickname
	}

	history, err := loadProviderHistory(a.store, conversationID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading history: %v\n", err)
	}
	if len(history) == 0 {
		modelID := modelNickname
		if mc, ok := a.cfg.ModelByNickname(modelNickname); ok {
			modelID = mc.Model
		}
		sysMsg := provider.Message{Role: "system", Content: llm.BuildSystemPrompt(modelID), CreatedAt: time.Now()}
		history = append(history, sysMsg)
		a.persistMessage(conversationID, sysMsg)
	}

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)

	fmt.Fprintf(os.Stdout, "niffler — conversation %s, model %s\n", conversationID, modelNickname)
	for {
		fmt.Fprint(os.Stdout, "> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			cont, newModel := a.handleCommand(conversationID, line, modelNickname)
			if newModel != "" {
				modelNickname = newModel
			}
			if !cont {
				return
			}
			continue
		}

		userMsg := provider.Message{Role: "user", Content: line, CreatedAt: time.Now()}
		history = append(history, userMsg)
		a.persistMessage(conversationID, userMsg)

		if err := a.runTurn(conversationID, modelNickname, &history); err != nil {
			fmt.Fprintf(os.Stdout, "\nerror: %v\n", err)
		}
	}
}

func (a *app) currentModel(conversationID string) (string, error) {
	return a.store.ModelNickname(conversationID)
}

func loadProviderHistory(st *store.Store, conversationID string) ([]provider.Message, error) {
	msgs, err := st.LoadHistory(conversationID)
	if err != nil {
		return nil, err
	}
	out := make([]provider.Message, 0, len(msgs))
	for _, m := range msgs {
		pm := provider.Message{
			Role:        m.Role,
			Content:     m.Content,
			ToolCallID:  m.ToolCallID,
			CreatedAt:   m.CreatedAt,
			InputTokens: m.InputTokens,
		}
		out = append(out, pm)
	}
	return out, nil
}

func (a *app) persistMessage(conversationID string, m provider.Message) {
	if _, err := a.store.AppendMessage(conversationID, store.Message{
		Role:         m.Role,
		Content:      m.Content,
		ToolCallID:   m.ToolCallID,
		CreatedAt:    m.CreatedAt,
		InputTokens:  m.InputTokens,
		OutputTokens: m.OutputTokens,
	}); err != nil {
		log.Warn().Err(err).Str("conversation", conversationID).Msg("failed to persist message")
	}
}

func (a *app) runTurn(conversationID, modelNickname string, history *[]provider.Message) error {
	prov, err := a.registry.Create(modelNickname, "", provider.Options{})
	if err != nil {
		return fmt.Errorf("resolve model %q: %w", modelNickname, err)
	}
	defer prov.Close()

	allTools, err := a.proxy.ListTools(context.Background())
	if err != nil {
		allTools = nil
	}

	cf := a.corrections[modelNickname]

	// ProcessTurn takes its options by value, so History growth inside the
	// call never reaches this opts variable. Rebuild it from OnMessage,
	// which fires once per message in the same order messages are appended.
	seedHistory := *history
	var added []provider.Message

	opts := llm.ProcessTurnOptions{
		Provider:      prov,
		Proxy:         a.proxy,
		Tools:         allTools,
		History:       seedHistory,
		Scratchpad:    a.scratchpad,
		MaxToolRounds: 60,
		ToolFabric:    a.fabric,
		OnDelta: func(evt provider.StreamEvent) {
			if evt.Content != "" {
				fmt.Fprint(os.Stdout, evt.Content)
			}
		},
		OnToolCall: func() {
			fmt.Fprintln(os.Stdout)
		},
		OnMessage: func(msg provider.Message) {
			added = append(added, msg)
			a.persistMessage(conversationID, msg)
		},
		OnUsage: func(inputTokens, outputTokens int) {
			if cf != nil {
				soFar := make([]provider.Message, len(seedHistory), len(seedHistory)+len(added))
				copy(soFar, seedHistory)
				soFar = append(soFar, added...)
				estimated := estimateHistoryTokens(soFar)
				cf.Sample(estimated, inputTokens)
				if err := a.store.SaveCorrection(store.CorrectionRow{
					ModelNickname: modelNickname,
					TotalSamples:  cf.TotalSamples,
					SumRatio:      cf.SumRatio,
					AvgCorrection: cf.AvgCorrection,
				}); err != nil {
					log.Warn().Err(err).Msg("failed to save correction factor")
				}
			}
			a.recordUsage(conversationID, modelNickname, inputTokens, outputTokens)
		},
	}

	err = llm.ProcessTurn(context.Background(), opts)
	*history = append(*history, added...)
	fmt.Fprintln(os.Stdout)
	return err
}

// estimateHistoryTokens sums the heuristic per-message estimate across the
// full conversation history, the same text a provider call actually sends.
func estimateHistoryTokens(history []provider.Message) int {
	total := 0
	for _, m := range history {
		total += tokenize.EstimateTokens(m.Content)
	}
	return total
}

func (a *app) recordUsage(conversationID, modelNickname string, inputTokens, outputTokens int) {
	m, ok := a.cfg.ModelByNickname(modelNickname)
	if !ok {
		return
	}
	if err := a.store.RecordUsage(store.TokenUsage{
		ConversationID:   conversationID,
		ModelNickname:    modelNickname,
		InputTokens:      inputTokens,
		OutputTokens:     outputTokens,
		InputCostMicros:  tokenize.CostMicros(inputTokens, m.InputCostPerMToken),
		OutputCostMicros: tokenize.CostMicros(outputTokens, m.OutputCostPerMToken),
	}); err != nil {
		log.Warn().Err(err).Msg("failed to record token usage")
	}
}

// handleCommand dispatches a slash command. Returns whether the REPL should
// keep running, and a non-empty model nickname if /model switched it.
func (a *app) handleCommand(conversationID, line, currentModel string) (bool, string) {
	fields := strings.Fields(line)
	cmd := fields[0]
	args := fields[1:]

	switch cmd {
	case "/exit", "/quit":
		return false, ""

	case "/clear":
		a.scratchpad.Clear()
		fmt.Fprintln(os.Stdout, "scratchpad cleared")
		return true, ""

	case "/model":
		if len(args) == 0 {
			fmt.Fprintln(os.Stdout, "usage: /model <nickname>")
			return true, ""
		}
		if _, ok := a.cfg.ModelByNickname(args[0]); !ok {
			fmt.Fprintf(os.Stdout, "unknown model nickname %q\n", args[0])
			return true, ""
		}
		if err := a.store.SwitchModel(conversationID, args[0]); err != nil {
			fmt.Fprintf(os.Stdout, "error switching model: %v\n", err)
			return true, ""
		}
		fmt.Fprintf(os.Stdout, "switched to %s\n", args[0])
		return true, args[0]

	case "/mode":
		if len(args) == 0 || (args[0] != "plan" && args[0] != "code") {
			fmt.Fprintln(os.Stdout, "usage: /mode plan|code")
			return true, ""
		}
		if err := a.store.SetMode(conversationID, args[0]); err != nil {
			fmt.Fprintf(os.Stdout, "error switching mode: %v\n", err)
		} else {
			fmt.Fprintf(os.Stdout, "mode set to %s\n", args[0])
		}
		return true, ""

	case "/config":
		if len(args) == 0 {
			fmt.Fprintf(os.Stdout, "%d models configured\n", len(a.cfg.Models))
			return true, ""
		}
		m, ok := a.cfg.ModelByNickname(args[0])
		if !ok {
			fmt.Fprintf(os.Stdout, "unknown model nickname %q\n", args[0])
			return true, ""
		}
		fmt.Fprintf(os.Stdout, "%s: provider=%s model=%s context=%d\n", m.Nickname, m.Provider, m.Model, m.Context)
		return true, ""

	case "/agent":
		if len(args) == 0 {
			names, _ := a.agents.List()
			fmt.Fprintln(os.Stdout, strings.Join(names, ", "))
			return true, ""
		}
		def, err := a.agents.Get(args[0])
		if err != nil {
			fmt.Fprintf(os.Stdout, "error: %v\n", err)
			return true, ""
		}
		fmt.Fprintf(os.Stdout, "%s: %s\n", def.Name, def.Description)
		return true, ""

	case "/context":
		mode, _ := a.store.Mode(conversationID)
		fmt.Fprintf(os.Stdout, "conversation=%s mode=%s model=%s\n", conversationID, mode, currentModel)
		return true, ""

	default:
		fmt.Fprintf(os.Stdout, "unknown command %q\n", cmd)
		return true, ""
	}
}

// scratchpad is the agent's working plan, injected at the context tail in
// place of a verbatim echo of the user's original request.
type scratchpad struct {
	text string
}

func newScratchpad() *scratchpad { return &scratchpad{} }

func (s *scratchpad) Content() string { return s.text }

func (s *scratchpad) Set(text string) { s.text = text }

func (s *scratchpad) Clear() { s.text = "" }

// pumpConfirmations answers confirmation requests for gated tool calls
// (bash, edit, create) with a synchronous y/N prompt on stdin. It is safe to
// read stdin here because the REPL's own scanner only reads between turns,
// never while a turn is blocked waiting on a tool response.
func pumpConfirmations(fabric *mailbox.Fabric) {
	reader := bufio.NewReader(os.Stdin)
	done := fabric.Done()
	for {
		req, ok := fabric.ConfirmRequests.Recv(done)
		if !ok {
			return
		}
		fmt.Fprintf(os.Stdout, "\nallow %s %s? [y/N] ", req.ToolName, string(req.ArgsJSON))
		line, _ := reader.ReadString('\n')
		approved := strings.EqualFold(strings.TrimSpace(line), "y")
		fabric.ConfirmReplies.Send(context.Background(), done, mailbox.ConfirmResponse{ID: req.ID, Approved: approved})
	}
}
