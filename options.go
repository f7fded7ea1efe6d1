package ragvoice

import "go.uber.org/zap"

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	provider string // "openai" or "azure"
	apiKey   string

	azureEndpoint       string
	azureAPIKey         string
	chatDeployment      string
	embeddingDeployment string

	elevenLabsKey   string
	elevenLabsVoice string

	dataDir  string
	addrs    []string
	password string

	topK       int
	dimensions int

	embedder  Embedder
	completer Completer
	logger    *zap.Logger
}

// WithOpenAI uses the public OpenAI API for embeddings, chat and Whisper.
func WithOpenAI(apiKey string) Option {
	return optionFunc(func(c *clientConfig) {
		c.provider = "openai"
		c.apiKey = apiKey
	})
}

// WithAzureOpenAI uses an Azure OpenAI resource. Deployment names map the
// chat and embedding models to the resource's deployments.
func WithAzureOpenAI(endpoint, apiKey, chatDeployment, embeddingDeployment string) Option {
	return optionFunc(func(c *clientConfig) {
		c.provider = "azure"
		c.azureEndpoint = endpoint
		c.azureAPIKey = apiKey
		c.chatDeployment = chatDeployment
		c.embeddingDeployment = embeddingDeployment
	})
}

// WithElevenLabs enables text-to-speech through ElevenLabs.
func WithElevenLabs(apiKey, voiceID string) Option {
	return optionFunc(func(c *clientConfig) {
		c.elevenLabsKey = apiKey
		c.elevenLabsVoice = voiceID
	})
}

// WithDataDir sets where source documents and file-backed embeddings live.
// Default: ./DATA.
func WithDataDir(dir string) Option {
	return optionFunc(func(c *clientConfig) {
		c.dataDir = dir
	})
}

// WithRedis stores chunks and embeddings in Redis instead of files.
func WithRedis(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.addrs = []string{addr}
		c.password = password
	})
}

// WithTopK sets how many chunks are retrieved per question. Default: 5.
func WithTopK(k int) Option {
	return optionFunc(func(c *clientConfig) {
		c.topK = k
	})
}

// WithEmbedder replaces the hosted embedding provider. dimensions must match
// the vectors it returns.
func WithEmbedder(e Embedder, dimensions int) Option {
	return optionFunc(func(c *clientConfig) {
		c.embedder = e
		c.dimensions = dimensions
	})
}

// WithCompleter replaces the hosted chat model.
func WithCompleter(cp Completer) Option {
	return optionFunc(func(c *clientConfig) {
		c.completer = cp
	})
}

// WithLogger enables structured logging. Default: no logging.
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}
