package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	kmcp "github.com/sanonone/kektorplan/internal/mcp"
	"github.com/sanonone/kektorplan/internal/server"
	"github.com/sanonone/kektorplan/pkg/embeddings"
	"github.com/sanonone/kektorplan/pkg/memgraph"
	"github.com/sanonone/kektorplan/pkg/optimizer"
	"github.com/sanonone/kektorplan/pkg/query"
	"github.com/sanonone/kektorplan/pkg/stats"
)

func main() {
	httpAddr := flag.String("http-addr", ":9091", "Address for the REST API (e.g. :9091)")
	configPath := flag.String("config", "", "Optional YAML file overriding optimizer defaults")
	graphPath := flag.String("graph", "", "Optional YAML graph fixture to load at startup")
	graphType := flag.String("graph-type", "general", "Graph type assumed when a query gives no signal: general or ipld")
	density := flag.Float64("density", 0, "Graph density in [0, 1]")
	redisURL := flag.String("redis-url", "", "Share importance scores through Redis (e.g. redis://localhost:6379/0)")
	authToken := flag.String("auth-token", os.Getenv("KEKTORPLAN_TOKEN"), "Bearer token required by the API")
	mcpMode := flag.String("mcp", "", "Serve MCP tools: stdio, or http (mounted at /mcp)")
	embedder := flag.String("embedder", "none", "Embedder for query text: none, ollama or openai")
	embedderURL := flag.String("embedder-url", "", "Embedder endpoint (defaults per embedder)")
	embedderModel := flag.String("embedder-model", "nomic-embed-text", "Embedding model name")

	flag.Parse()

	// stdio carries the MCP protocol on stdout, so logs always go to stderr.
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if err := run(logger, runConfig{
		httpAddr:      *httpAddr,
		configPath:    *configPath,
		graphPath:     *graphPath,
		graphType:     *graphType,
		density:       *density,
		redisURL:      *redisURL,
		authToken:     *authToken,
		mcpMode:       *mcpMode,
		embedder:      *embedder,
		embedderURL:   *embedderURL,
		embedderModel: *embedderModel,
	}); err != nil {
		logger.Error("kektorplan stopped", "error", err)
		os.Exit(1)
	}
}

type runConfig struct {
	httpAddr, configPath, graphPath, graphType string
	density                                    float64
	redisURL, authToken, mcpMode               string
	embedder, embedderURL, embedderModel       string
}

func run(logger *slog.Logger, rc runConfig) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := optimizer.LoadConfig(rc.configPath)
	if err != nil {
		return err
	}

	store := memgraph.New()
	if rc.graphPath != "" {
		var cids map[string]string
		store, cids, err = memgraph.LoadFile(rc.graphPath)
		if err != nil {
			return err
		}
		logger.Info("Graph loaded", "path", rc.graphPath, "nodes", store.Len(), "blocks", len(cids))
	}

	gt, err := query.ParseGraphType(rc.graphType)
	if err != nil {
		return err
	}
	opts := []optimizer.Option{optimizer.WithConfig(cfg), optimizer.WithLogger(logger)}
	if rc.redisURL != "" {
		conn, client, err := stats.NewRedisConnectivityFromURL(ctx, rc.redisURL, "")
		if err != nil {
			return err
		}
		defer client.Close()
		opts = append(opts, optimizer.WithTraversalStats(stats.NewTraversalStats(conn)))
		logger.Info("Sharing importance scores through Redis")
	}
	opt, err := optimizer.New(optimizer.GraphInfo{GraphType: gt, GraphDensity: rc.density}, opts...)
	if err != nil {
		return err
	}

	emb, err := newEmbedder(rc)
	if err != nil {
		return err
	}

	switch rc.mcpMode {
	case "":
	case "stdio":
		logger.Info("Serving MCP over stdio")
		return kmcp.NewMCPServer(opt, store, emb).Run(ctx, &mcp.StdioTransport{})
	case "http":
	default:
		return fmt.Errorf("unknown -mcp mode %q", rc.mcpMode)
	}

	srvOpts := server.Options{
		Addr:      rc.httpAddr,
		AuthToken: rc.authToken,
		Embedder:  emb,
		Logger:    logger,
	}
	if rc.mcpMode == "http" {
		ms := kmcp.NewMCPServer(opt, store, emb)
		srvOpts.MCP = mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return ms }, nil)
	}
	srv := server.NewServer(opt, store, srvOpts)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	srv.Shutdown()
	return nil
}

func newEmbedder(rc runConfig) (embeddings.Embedder, error) {
	const timeout = 30 * time.Second
	switch rc.embedder {
	case "", "none":
		return nil, nil
	case "ollama":
		url := rc.embedderURL
		if url == "" {
			url = embeddings.DefaultOllamaURL
		}
		return embeddings.NewOllamaEmbedder(url, rc.embedderModel, timeout), nil
	case "openai":
		url := rc.embedderURL
		if url == "" {
			url = embeddings.DefaultOpenAIURL
		}
		return embeddings.NewOpenAIEmbedder(url, rc.embedderModel, os.Getenv("OPENAI_API_KEY"), timeout), nil
	default:
		return nil, fmt.Errorf("unknown embedder %q", rc.embedder)
	}
}
