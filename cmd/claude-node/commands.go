package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hochfrequenz/claude-code-node/internal/config"
	"github.com/hochfrequenz/claude-code-node/internal/credentials"
	"github.com/hochfrequenz/claude-code-node/internal/domain"
	"github.com/hochfrequenz/claude-code-node/internal/host"
	"github.com/hochfrequenz/claude-code-node/internal/logging"
	"github.com/hochfrequenz/claude-code-node/internal/mcp"
	"github.com/hochfrequenz/claude-code-node/internal/node"
	"github.com/hochfrequenz/claude-code-node/internal/runstore"
	"github.com/hochfrequenz/claude-code-node/internal/session"
	"github.com/hochfrequenz/claude-code-node/web/api"
)

var (
	runItems          string
	runParams         string
	runPrompt         string
	runContinueOnFail bool
	runDB             string
	runNoHistory      bool
	historyLimit      int
	servePort         int
)

func init() {
	// run command
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Execute the node over a batch of records",
		RunE:  runRun,
	}
	runCmd.Flags().StringVar(&runItems, "items", "", "items file (.json/.yaml), - for stdin")
	runCmd.Flags().StringVar(&runParams, "params", "", "parameters file (.json/.yaml)")
	runCmd.Flags().StringVar(&runPrompt, "prompt", "", "prompt for every record without one")
	runCmd.Flags().BoolVar(&runContinueOnFail, "continue-on-fail", false, "emit error records instead of aborting")
	runCmd.Flags().StringVar(&runDB, "db", "", "run history database path")
	runCmd.Flags().BoolVar(&runNoHistory, "no-history", false, "do not record runs")
	rootCmd.AddCommand(runCmd)

	// describe command
	describeCmd := &cobra.Command{
		Use:       "describe [node|credentials]",
		Short:     "Print the node or credential definitions",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"node", "credentials"},
		RunE:      runDescribe,
	}
	rootCmd.AddCommand(describeCmd)

	// credentials command
	credentialsCmd := &cobra.Command{
		Use:   "credentials",
		Short: "Inspect configured credentials",
	}
	credentialsTestCmd := &cobra.Command{
		Use:   "test [claude|mcp NAME]",
		Short: "Test a configured credential",
		Args:  cobra.RangeArgs(0, 2),
		RunE:  runCredentialsTest,
	}
	credentialsCmd.AddCommand(credentialsTestCmd)
	rootCmd.AddCommand(credentialsCmd)

	// history command
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List recent runs",
		RunE:  runHistory,
	}
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "number of runs to show")
	rootCmd.AddCommand(historyCmd)

	// serve command
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE:  runServe,
	}
	serveCmd.Flags().IntVar(&servePort, "port", 0, "port to listen on (default from config)")
	rootCmd.AddCommand(serveCmd)
}

func loadConfig() (*config.Config, error) {
	return config.LoadWithLocalFallback(configPath)
}

func newLogger(cfg *config.Config) *slog.Logger {
	return logging.New(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)
}

// claudeCredentials returns nil when no api key is configured for apiKey auth
func claudeCredentials(cfg *config.Config) *credentials.ClaudeCodeAPI {
	cred := cfg.Anthropic
	if cred.UsesAPIKey() && cred.APIKey == "" {
		return nil
	}
	return &cred
}

func nodeOptions(cfg *config.Config, logger *slog.Logger) []node.Option {
	return []node.Option{
		node.WithLauncher(session.NewCLILauncher(cfg.Claude.CLIPath, logger)),
		node.WithModelAliases(session.DefaultModelAliases().Merge(cfg.Claude.ModelAliases)),
		node.WithLogger(logger),
	}
}

func baseParameters(cfg *config.Config) domain.Parameters {
	p := domain.DefaultParameters()
	if cfg.Claude.DefaultTimeout > 0 {
		p.Timeout = cfg.Claude.DefaultTimeout
	}
	return p
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func buildRunHost(cfg *config.Config, stdin io.Reader) (*host.Static, error) {
	params, err := host.LoadParameters(runParams, baseParameters(cfg))
	if err != nil {
		return nil, err
	}
	if runPrompt != "" {
		params.Prompt = runPrompt
	}

	items := []domain.Item{{}}
	if runItems != "" {
		if items, err = host.LoadItems(runItems, stdin); err != nil {
			return nil, err
		}
	}

	return &host.Static{
		Items:           items,
		Base:            params,
		Claude:          claudeCredentials(cfg),
		Servers:         cfg.MCPServers,
		FailureTolerant: runContinueOnFail || cfg.General.ContinueOnFail,
	}, nil
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	h, err := buildRunHost(cfg, cmd.InOrStdin())
	if err != nil {
		return err
	}

	opts := nodeOptions(cfg, logger)
	var recorder *runstore.Recorder
	if !runNoHistory {
		dbPath := cfg.General.DatabasePath
		if runDB != "" {
			dbPath = config.ExpandPath(runDB)
		}
		store, err := runstore.New(dbPath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer store.Close()

		batch, err := store.StartBatch("cli", len(h.Items))
		if err != nil {
			return err
		}
		recorder = runstore.NewRecorder(store, batch, logger)
		opts = append(opts, node.WithObserver(recorder))
	}

	ctx, cancel := signalContext()
	defer cancel()

	out, runErr := node.New(opts...).Execute(ctx, h)
	if recorder != nil {
		if err := recorder.Finish(); err != nil {
			logger.Warn("failed to finish batch", "error", err)
		}
	}
	if runErr != nil {
		var opErr *domain.OperationError
		if errors.As(runErr, &opErr) {
			return fmt.Errorf("item %d: %s", opErr.ItemIndex, opErr.Message)
		}
		return runErr
	}

	return printJSON(cmd.OutOrStdout(), out)
}

func runDescribe(cmd *cobra.Command, args []string) error {
	what := "node"
	if len(args) > 0 {
		what = args[0]
	}
	switch what {
	case "node":
		return printJSON(cmd.OutOrStdout(), node.Describe())
	case "credentials":
		return printJSON(cmd.OutOrStdout(), map[string]any{
			credentials.ClaudeCodeAPIName: credentials.ClaudeCodeAPIProperties(),
			credentials.MCPServerName:     credentials.MCPServerProperties(),
		})
	default:
		return fmt.Errorf("unknown definition %q (want node or credentials)", what)
	}
}

func runCredentialsTest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	kind := "claude"
	if len(args) > 0 {
		kind = args[0]
	}
	switch kind {
	case "claude":
		cred := cfg.Anthropic
		client := &http.Client{Timeout: 30 * time.Second}
		if err := cred.Test(ctx, client); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Claude Code API credential OK")
		return nil
	case "mcp":
		if len(args) < 2 {
			return fmt.Errorf("mcp server name required")
		}
		return testMCPServer(ctx, cmd.OutOrStdout(), cfg, args[1])
	default:
		return fmt.Errorf("unknown credential %q (want claude or mcp)", kind)
	}
}

func testMCPServer(ctx context.Context, w io.Writer, cfg *config.Config, name string) error {
	srv, ok := cfg.MCPServers[name]
	if !ok {
		return fmt.Errorf("mcp server %q not configured", name)
	}

	client, info, err := mcp.Connect(ctx, srv)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", name, err)
	}
	defer client.Close()

	tools, err := client.ListTools(ctx)
	if err != nil {
		return fmt.Errorf("listing tools of %s: %w", name, err)
	}

	fmt.Fprintf(w, "Connected to %s %s (protocol %s)\n", info.ServerInfo.Name, info.ServerInfo.Version, info.ProtocolVersion)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TOOL\tDESCRIPTION")
	for _, t := range tools {
		fmt.Fprintf(tw, "%s\t%s\n", t.Name, t.Description)
	}
	return tw.Flush()
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := runstore.New(cfg.General.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.ListRecentRuns(historyLimit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CREATED\tBATCH\tITEM\tOPERATION\tSTATUS\tDURATION\tCOST")
	for _, r := range runs {
		status := "ok"
		if !r.Success {
			status = string(r.ErrorType)
		}
		batch := r.BatchID
		if len(batch) > 8 {
			batch = batch[:8]
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\t$%.4f\n",
			r.CreatedAt.Local().Format(time.DateTime), batch, r.ItemIndex, r.Operation, status,
			(time.Duration(r.DurationMs) * time.Millisecond).Round(time.Millisecond), r.CostUSD)
	}
	return w.Flush()
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	store, err := runstore.New(cfg.General.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	port := servePort
	if port == 0 {
		port = cfg.Web.Port
	}
	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, port)

	opts := nodeOptions(cfg, logger)
	factory := func(obs node.Observer) api.Runner {
		return node.New(append(opts[:len(opts):len(opts)], node.WithObserver(obs))...)
	}
	server := api.NewServer(factory, store, api.Settings{
		Claude:         claudeCredentials(cfg),
		MCPServers:     cfg.MCPServers,
		ContinueOnFail: cfg.General.ContinueOnFail,
	}, addr, logger)

	ctx, cancel := signalContext()
	defer cancel()

	fmt.Fprintf(cmd.OutOrStdout(), "Starting API at http://%s\n", addr)
	return server.Run(ctx)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
