package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/fake"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/smallnest/fabflow/config"
	"github.com/smallnest/fabflow/fab"
	"github.com/smallnest/fabflow/log"
	"github.com/smallnest/fabflow/metrics"
	"github.com/smallnest/fabflow/rag"
	"github.com/smallnest/fabflow/router"
	"github.com/smallnest/fabflow/session"
	"github.com/smallnest/fabflow/store"
	"github.com/smallnest/fabflow/store/file"
	"github.com/smallnest/fabflow/store/memory"
	"github.com/smallnest/fabflow/store/postgres"
	redisstore "github.com/smallnest/fabflow/store/redis"
	"github.com/smallnest/fabflow/store/sqlite"
	"github.com/smallnest/fabflow/tool"
)

// fakeResponses drive the offline "fake" provider through one inspection, in
// call order: history summary, proposal, the inspection agent's answer, then
// the final summary. The fake model cycles, so each run sees the same script.
var fakeResponses = []string{
	"최근 공정 이력에서 Photo 스텝의 ABNORMAL 결과가 확인됩니다.",
	`{"process": "photo", "reason": "Photo 스텝 이상 이력"}`,
	"Photo 패턴 검사 결과: 결함 없음, CD 편차 허용 범위 이내.",
	"요청하신 LOT의 Photo 공정 검사 결과 이상이 발견되지 않았습니다.",
}

// app holds everything built from the configuration. close releases the
// connections in reverse order of creation.
type app struct {
	cfg     *config.Config
	logger  log.Logger
	model   llms.Model
	metrics *metrics.Metrics
	service *fab.Service
	router  *router.Router
	chatbot *rag.Chatbot
	closers []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func newLogger(cfg *config.Config) (log.Logger, error) {
	level, err := log.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	l := log.New(os.Stderr, level)
	log.SetDefaultLogger(l)
	return l, nil
}

func newModel(cfg *config.Config) (llms.Model, error) {
	switch strings.ToLower(cfg.LLM.Provider) {
	case "fake":
		return fake.NewFakeLLM(fakeResponses), nil
	default:
		opts := []openai.Option{openai.WithModel(cfg.LLM.Model)}
		if cfg.LLM.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.LLM.BaseURL))
		}
		if cfg.LLM.APIKey != "" {
			opts = append(opts, openai.WithToken(cfg.LLM.APIKey))
		}
		if cfg.LLM.EmbeddingModel != "" {
			opts = append(opts, openai.WithEmbeddingModel(cfg.LLM.EmbeddingModel))
		}
		return openai.New(opts...)
	}
}

func newEmbedder(cfg *config.Config, model llms.Model) (rag.Embedder, error) {
	if strings.EqualFold(cfg.LLM.Provider, "fake") {
		return rag.NewMockEmbedder(cfg.RAG.Dimensions), nil
	}
	if strings.EqualFold(cfg.RAG.Embedder, "openai") {
		return rag.NewOpenAIEmbedder(cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.LLM.EmbeddingModel), nil
	}

	client, ok := model.(embeddings.EmbedderClient)
	if !ok {
		return nil, fmt.Errorf("model %T cannot create embeddings", model)
	}
	e, err := embeddings.NewEmbedder(client)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	return rag.NewLangChainEmbedder(e), nil
}

func newCheckpointStore(ctx context.Context, cfg *config.Config) (store.CheckpointStore, func(), error) {
	noop := func() {}
	sc := cfg.Store
	switch strings.ToLower(sc.Backend) {
	case "file":
		s, err := file.NewFileCheckpointStore(sc.Path)
		return s, noop, err
	case "redis":
		s := redisstore.NewRedisCheckpointStore(redisstore.RedisOptions{
			Addr:     sc.Redis.Addr,
			Password: sc.Redis.Password,
			DB:       sc.Redis.DB,
			Prefix:   sc.Redis.Prefix,
			TTL:      sc.Redis.TTL,
		})
		return s, noop, nil
	case "postgres":
		s, err := postgres.NewPostgresCheckpointStore(ctx, postgres.PostgresOptions{
			ConnString: sc.Postgres.DSN,
			TableName:  sc.Postgres.Table,
		})
		if err != nil {
			return nil, noop, err
		}
		if err := s.InitSchema(ctx); err != nil {
			s.Close()
			return nil, noop, err
		}
		return s, s.Close, nil
	case "sqlite":
		s, err := sqlite.NewSqliteCheckpointStore(sqlite.SqliteOptions{
			Path:      sc.SQLite.Path,
			TableName: sc.SQLite.Table,
		})
		if err != nil {
			return nil, noop, err
		}
		return s, func() { _ = s.Close() }, nil
	default:
		return memory.NewMemoryCheckpointStore(), noop, nil
	}
}

func newVectorStore(ctx context.Context, cfg *config.Config) (rag.VectorStore, func(), error) {
	if !strings.EqualFold(cfg.RAG.Backend, "pgvector") {
		return rag.NewInMemoryVectorStore(), func() {}, nil
	}
	s, err := rag.NewPGVectorStore(ctx, cfg.RAG.DSN, cfg.RAG.Table)
	if err != nil {
		return nil, func() {}, err
	}
	if err := s.InitSchema(ctx, cfg.RAG.Dimensions); err != nil {
		s.Close()
		return nil, func() {}, err
	}
	return s, s.Close, nil
}

func newSessions(cfg *config.Config, logger log.Logger) (*session.Manager, func()) {
	opts := []session.Option{session.WithLogger(logger), session.WithLockTTL(cfg.Session.LockTTL)}
	if !strings.EqualFold(cfg.Session.Lock, "redis") {
		return session.NewManager(opts...), func() {}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Store.Redis.Addr,
		Password: cfg.Store.Redis.Password,
		DB:       cfg.Store.Redis.DB,
	})
	locker := session.NewRedisLocker(client, cfg.Store.Redis.Prefix)
	return session.NewManager(append(opts, session.WithLocker(locker))...), func() { _ = client.Close() }
}

// newApp wires the workflow, the knowledge router and the chatbot.
func newApp(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger, metrics: metrics.New()}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	if a.model, err = newModel(cfg); err != nil {
		return nil, fmt.Errorf("create model: %w", err)
	}

	checkpoints, closeStore, err := newCheckpointStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s checkpoint store: %w", cfg.Store.Backend, err)
	}
	a.closers = append(a.closers, closeStore)

	sessions, closeSessions := newSessions(cfg, logger)
	a.closers = append(a.closers, closeSessions)

	policy, err := fab.ParseSummarizerPolicy(cfg.Workflow.SummarizerFailure)
	if err != nil {
		return nil, err
	}
	var historyOpts []tool.HistoryOption
	if cfg.Workflow.Seed != 0 {
		historyOpts = append(historyOpts, tool.WithHistorySeed(cfg.Workflow.Seed))
	}

	// the fake model is a shared cycling script; the workflow gets its own
	// so router and chatbot calls cannot shift it
	workflowModel, err := newModel(cfg)
	if err != nil {
		return nil, fmt.Errorf("create model: %w", err)
	}
	a.service, err = fab.NewService(workflowModel, checkpoints,
		fab.WithLogger(logger),
		fab.WithLocker(sessions),
		fab.WithSummarizerPolicy(policy),
		fab.WithHistoryTool(tool.NewProcessHistory(historyOpts...)),
		fab.WithListener(a.metrics),
		fab.WithVerdictObserver(a.metrics),
	)
	if err != nil {
		return nil, err
	}

	if a.router, err = router.New(a.model, router.WithLogger(logger)); err != nil {
		return nil, err
	}

	embedder, err := newEmbedder(cfg, a.model)
	if err != nil {
		return nil, err
	}
	vectors, closeVectors, err := newVectorStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s vector store: %w", cfg.RAG.Backend, err)
	}
	a.closers = append(a.closers, closeVectors)
	a.chatbot = rag.NewChatbot(a.model, embedder, vectors,
		rag.WithK(cfg.RAG.K),
		rag.WithQueryObserver(a.metrics),
		rag.WithChatbotLogger(logger),
	)
	return a, nil
}
