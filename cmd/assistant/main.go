// Command assistant runs the document question-answering service: it wires
// the workflow engine, the retrieval branches and the answer generator to
// their collaborators and serves the HTTP API.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kataras/golog"
	"github.com/tmc/langchaingo/embeddings"
	lcopenai "github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/vectorstores/weaviate"

	"github.com/mukesh145/pdf-knowledge-assistant/answer"
	"github.com/mukesh145/pdf-knowledge-assistant/classify"
	"github.com/mukesh145/pdf-knowledge-assistant/config"
	"github.com/mukesh145/pdf-knowledge-assistant/history"
	historypg "github.com/mukesh145/pdf-knowledge-assistant/history/postgres"
	historysqlite "github.com/mukesh145/pdf-knowledge-assistant/history/sqlite"
	"github.com/mukesh145/pdf-knowledge-assistant/llm"
	"github.com/mukesh145/pdf-knowledge-assistant/log"
	"github.com/mukesh145/pdf-knowledge-assistant/retrieve"
	"github.com/mukesh145/pdf-knowledge-assistant/server"
	"github.com/mukesh145/pdf-knowledge-assistant/session"
	"github.com/mukesh145/pdf-knowledge-assistant/workflow"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "Path to the YAML config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("failed to load configuration: %v", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log)
	log.SetDefaultLogger(logger)

	ctx := context.Background()

	store, closeStore, err := newHistoryStore(ctx, cfg.History)
	if err != nil {
		logger.Error("failed to initialize history store: %v", err)
		os.Exit(1)
	}
	defer closeStore()

	var cache *session.Cache
	if cfg.Session.Enabled {
		cache = session.NewCache(session.Options{
			Addr:     cfg.Session.Addr,
			Password: cfg.Session.Password,
			DB:       cfg.Session.DB,
			Prefix:   cfg.Session.Prefix,
			TTL:      cfg.Session.TTL(),
		})
		defer cache.Close()
	}

	searcher, err := newVectorStore(cfg)
	if err != nil {
		logger.Error("failed to initialize vector store: %v", err)
		os.Exit(1)
	}

	classifierClient, err := llm.NewOpenAI(llm.OpenAIOptions{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.ClassifierModel,
	})
	if err != nil {
		logger.Error("failed to create classifier client: %v", err)
		os.Exit(1)
	}

	answerClient, err := llm.NewOpenAI(llm.OpenAIOptions{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.AnswerModel,
		Temperature: cfg.LLM.Temperature,
	})
	if err != nil {
		logger.Error("failed to create answer client: %v", err)
		os.Exit(1)
	}

	memoryOpts := []retrieve.MemoryOption{
		retrieve.WithTurns(cfg.Retrieval.MemoryTurns),
		retrieve.WithMemoryLogger(logger),
	}
	if cache != nil {
		memoryOpts = append(memoryOpts, retrieve.WithCache(cache))
	}
	memory := retrieve.NewConversationMemory(store, memoryOpts...)

	documents := retrieve.NewDocumentRetriever(searcher,
		retrieve.WithTopK(cfg.Retrieval.TopK),
		retrieve.WithRetrieverLogger(logger),
	)

	engine, err := workflow.NewEngine(workflow.EngineOptions{
		Classifier:       classify.New(classifierClient, logger),
		Memory:           memory,
		Documents:        documents,
		RetrievalTimeout: cfg.Workflow.RetrievalTimeout(),
		CombinedDeadline: cfg.Workflow.CombinedDeadline(),
		Logger:           logger,
	})
	if err != nil {
		logger.Error("failed to create workflow engine: %v", err)
		os.Exit(1)
	}

	var cacheInvalidator server.CacheInvalidator
	if cache != nil {
		cacheInvalidator = cache
	}

	srv, err := server.New(server.Options{
		Engine:    engine,
		Generator: answer.NewGenerator(answerClient, logger),
		History:   store,
		Cache:     cacheInvalidator,
		Logger:    logger,
	})
	if err != nil {
		logger.Error("failed to create server: %v", err)
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr(),
		Handler: srv.Handler(),
	}

	go func() {
		logger.Info("assistant listening on %s", cfg.Server.Addr())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error: %v", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error: %v", err)
	}
}

func newLogger(cfg config.LogConfig) log.Logger {
	level := log.ParseLevel(cfg.Level)
	if cfg.Backend == "golog" {
		gl := log.NewGologLogger(golog.Default)
		gl.SetLevel(level)
		return gl
	}
	return log.NewDefaultLogger(level)
}

func newHistoryStore(ctx context.Context, cfg config.HistoryConfig) (history.Store, func(), error) {
	switch cfg.Backend {
	case "postgres":
		store, err := historypg.New(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		if err := store.InitSchema(ctx); err != nil {
			store.Close()
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		store, err := historysqlite.New(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	}
}

// newVectorStore connects the document-context branch to the knowledge
// base: query embeddings via the OpenAI embedding API, similarity search
// via Weaviate.
func newVectorStore(cfg config.Config) (retrieve.Searcher, error) {
	opts := []lcopenai.Option{lcopenai.WithToken(cfg.LLM.APIKey)}
	if cfg.LLM.BaseURL != "" {
		opts = append(opts, lcopenai.WithBaseURL(cfg.LLM.BaseURL))
	}
	if cfg.VectorStore.EmbeddingModel != "" {
		opts = append(opts, lcopenai.WithEmbeddingModel(cfg.VectorStore.EmbeddingModel))
	}

	embeddingLLM, err := lcopenai.New(opts...)
	if err != nil {
		return nil, err
	}

	embedder, err := embeddings.NewEmbedder(embeddingLLM)
	if err != nil {
		return nil, err
	}

	vs, err := weaviate.New(
		weaviate.WithScheme(cfg.VectorStore.Scheme),
		weaviate.WithHost(cfg.VectorStore.Host),
		weaviate.WithIndexName(cfg.VectorStore.Index),
		weaviate.WithEmbedder(embedder),
	)
	if err != nil {
		return nil, err
	}
	return vs, nil
}
