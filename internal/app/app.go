// Package app assembles the ragvoice service graph from configuration.
package app

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragvoice/internal/config"
	dbRedis "github.com/kailas-cloud/ragvoice/internal/db/redis"
	"github.com/kailas-cloud/ragvoice/internal/domain"
	"github.com/kailas-cloud/ragvoice/internal/metrics"
	documentrepo "github.com/kailas-cloud/ragvoice/internal/repository/document"
	"github.com/kailas-cloud/ragvoice/internal/repository/embcache"
	"github.com/kailas-cloud/ragvoice/internal/schedule"
	"github.com/kailas-cloud/ragvoice/internal/transport/elevenlabs"
	openaiT "github.com/kailas-cloud/ragvoice/internal/transport/openai"
	chatuc "github.com/kailas-cloud/ragvoice/internal/usecase/chat"
	embeddinguc "github.com/kailas-cloud/ragvoice/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/ragvoice/internal/usecase/health"
	ingestuc "github.com/kailas-cloud/ragvoice/internal/usecase/ingest"
	"github.com/kailas-cloud/ragvoice/internal/usecase/retrieval"
	speechuc "github.com/kailas-cloud/ragvoice/internal/usecase/speech"
)

// Overrides replace the hosted providers. Nil fields use the configured provider.
type Overrides struct {
	Embedder    domain.Embedder
	Completer   domain.Completer
	Transcriber domain.Transcriber
	Synthesizer domain.Synthesizer
}

// App holds the wired services.
type App struct {
	Index     *retrieval.Index
	Chat      *chatuc.Service
	Speech    *speechuc.Service
	Ingest    *ingestuc.Service
	Health    *healthuc.Service
	Scheduler *schedule.CronScheduler // nil unless ingest.rescan_schedule is set

	closers []func()
}

// Build wires storage, providers and services, then loads the stored
// documents into the index. cfg must have defaults applied.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger, ov Overrides) (*App, error) {
	metrics.RegisterPipelineMetrics()

	a := &App{}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	var client *openai.Client
	if needsOpenAI(cfg, ov) {
		c, err := newOpenAIClient(cfg)
		if err != nil {
			return nil, err
		}
		client = c
	}

	var (
		store  ingestuc.Store
		pinger healthuc.StorePinger
		redis  *dbRedis.Store
	)
	switch cfg.Storage.Driver {
	case config.DriverRedis:
		s, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Storage.Addrs,
			Password: cfg.Storage.Password,
		})
		if err != nil {
			return nil, fmt.Errorf("create redis store: %w", err)
		}
		a.closers = append(a.closers, s.Close)
		if err := s.WaitForReady(ctx, time.Duration(cfg.Storage.ReadinessTimeout)*time.Second); err != nil {
			return nil, fmt.Errorf("redis not ready: %w", err)
		}
		redis = s
		store = documentrepo.NewRedisRepo(s, cfg.Storage.KeyPrefix)
		pinger = s
	default:
		repo, err := documentrepo.NewFileRepo(cfg.Storage.EmbeddingsDir())
		if err != nil {
			return nil, fmt.Errorf("create file store: %w", err)
		}
		store = repo
		pinger = repo
	}

	embedder, err := buildEmbedder(cfg, client, redis, ov.Embedder, logger)
	if err != nil {
		return nil, err
	}
	completer := ov.Completer
	if completer == nil {
		completer = openaiT.NewCompleter(client, cfg.Chat.Model, cfg.OpenAI.Provider, logger)
	}
	transcriber := ov.Transcriber
	if transcriber == nil && client != nil {
		transcriber = openaiT.NewTranscriber(client, cfg.Speech.STTModel, cfg.OpenAI.Provider, logger)
	}
	synthesizer := ov.Synthesizer
	if synthesizer == nil {
		synthesizer = buildSynthesizer(cfg, client)
	}

	a.Index = retrieval.NewIndex(cfg.Embedding.Dimensions, logger)
	a.Chat = chatuc.New(embedder, a.Index, completer, chatuc.Config{
		TopK:            cfg.Retrieval.TopK,
		MaxHistoryTurns: cfg.Chat.MaxHistoryTurns,
		Temperature:     cfg.Chat.SamplingTemperature(),
		MaxTokens:       cfg.Chat.MaxTokens,
		RetryInitial:    time.Duration(cfg.Chat.Retry.InitialIntervalMs) * time.Millisecond,
		RetryMax:        time.Duration(cfg.Chat.Retry.MaxIntervalMs) * time.Millisecond,
	}, logger)
	a.Speech = speechuc.New(transcriber, synthesizer, logger)
	a.Ingest = ingestuc.New(store, a.Index, embedder, ingestuc.Config{
		RawDir:       cfg.Storage.RawDir(),
		ChunkSize:    cfg.Ingest.ChunkSize,
		ChunkOverlap: cfg.Ingest.ChunkOverlap,
		BatchSize:    cfg.Ingest.BatchSize,
	}, logger)

	var embCheck healthuc.EmbeddingChecker
	if hc, isHC := embedder.(domain.HealthChecker); isHC {
		embCheck = hc
	}
	a.Health = healthuc.New(pinger, embCheck, a.Index, logger)

	if _, err := a.Ingest.Load(ctx); err != nil {
		return nil, fmt.Errorf("load index: %w", err)
	}

	if cfg.Ingest.RescanSchedule != "" {
		sched := schedule.NewCronScheduler(logger)
		if err := sched.AddJob(schedule.NewRescanJob(a.Ingest, logger), cfg.Ingest.RescanSchedule); err != nil {
			return nil, fmt.Errorf("%w: ingest.rescan_schedule: %w", domain.ErrConfiguration, err)
		}
		a.Scheduler = sched
	}

	ok = true
	return a, nil
}

// Close releases storage connections. It does not stop the scheduler.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func needsOpenAI(cfg config.Config, ov Overrides) bool {
	if ov.Embedder == nil || ov.Completer == nil {
		return true
	}
	if ov.Transcriber == nil && hasOpenAICredentials(cfg) {
		return true
	}
	return ov.Synthesizer == nil && cfg.Speech.TTSProvider == config.TTSOpenAI
}

func hasOpenAICredentials(cfg config.Config) bool {
	if cfg.OpenAI.Provider == config.ProviderAzure {
		return cfg.OpenAI.AzureAPIKey != "" && cfg.OpenAI.AzureEndpoint != ""
	}
	return cfg.OpenAI.APIKey != ""
}

func newOpenAIClient(cfg config.Config) (*openai.Client, error) {
	if !hasOpenAICredentials(cfg) {
		return nil, fmt.Errorf("%w: no credentials for provider %q", domain.ErrConfiguration, cfg.OpenAI.Provider)
	}
	cc := openaiT.ClientConfig{
		Provider: cfg.OpenAI.Provider,
		APIKey:   cfg.OpenAI.APIKey,
		BaseURL:  cfg.OpenAI.BaseURL,
		Timeout:  time.Duration(cfg.OpenAI.TimeoutSec) * time.Second,
	}
	if cfg.OpenAI.Provider == config.ProviderAzure {
		cc.APIKey = cfg.OpenAI.AzureAPIKey
		cc.BaseURL = cfg.OpenAI.AzureEndpoint
		cc.APIVersion = cfg.OpenAI.AzureAPIVersion
		cc.Deployments = map[string]string{
			cfg.Chat.Model:      cfg.Chat.Deployment,
			cfg.Embedding.Model: cfg.Embedding.Deployment,
			cfg.Speech.STTModel: cfg.Speech.STTDeployment,
		}
	}
	return openaiT.NewClient(cc), nil
}

// buildEmbedder assembles the decorator chain: provider -> Redis cache -> Instrumented -> LRU.
func buildEmbedder(
	cfg config.Config,
	client *openai.Client,
	redis *dbRedis.Store,
	override domain.Embedder,
	logger *zap.Logger,
) (domain.Embedder, error) {
	base := override
	if base == nil {
		if client == nil {
			return nil, fmt.Errorf("%w: no embedding provider", domain.ErrConfiguration)
		}
		base = openaiT.NewEmbedder(client, &openaiT.EmbedderConfig{
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
			Provider:   cfg.OpenAI.Provider,
			Logger:     logger,
		})
	}

	embedder := base
	if redis != nil && cfg.Storage.EmbeddingCache {
		prefix := fmt.Sprintf("%semb:%s:%d:", cfg.Storage.KeyPrefix, cfg.Embedding.Model, cfg.Embedding.Dimensions)
		embedder = embcache.New(base, redis, prefix,
			time.Duration(cfg.Embedding.CacheTTLSec)*time.Second, metrics.EmbeddingCacheTotal, logger)
	}

	embedder = embeddinguc.NewInstrumentedEmbedder(
		embedder, cfg.OpenAI.Provider, cfg.Embedding.Model, 0, logger,
	)

	return embcache.WrapLRU(embedder, cfg.Embedding.CacheSize,
		time.Duration(cfg.Embedding.CacheTTLSec)*time.Second, metrics.EmbeddingCacheTotal), nil
}

// buildSynthesizer returns nil when text-to-speech is disabled.
func buildSynthesizer(cfg config.Config, client *openai.Client) domain.Synthesizer {
	switch cfg.Speech.TTSProvider {
	case config.TTSElevenLabs:
		el := cfg.Speech.ElevenLabs
		if el.APIKey == "" {
			return nil
		}
		return elevenlabs.New(elevenlabs.Config{
			APIKey:       el.APIKey,
			BaseURL:      el.BaseURL,
			VoiceID:      el.VoiceID,
			ModelID:      el.ModelID,
			OutputFormat: el.OutputFormat,
			Stability:    el.Stability,
			Similarity:   el.Similarity,
			Timeout:      time.Duration(cfg.OpenAI.TimeoutSec) * time.Second,
		})
	case config.TTSOpenAI:
		if client == nil {
			return nil
		}
		return openaiT.NewSpeaker(client, cfg.Speech.OpenAITTSModel, cfg.Speech.OpenAIVoice, cfg.OpenAI.Provider)
	default:
		return nil
	}
}
