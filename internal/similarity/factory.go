package similarity

import (
	"fmt"
	"time"
)

// Backend names accepted by New.
const (
	BackendLocal   = "local"
	BackendService = "service"
	BackendOpenAI  = "openai"
)

// DefaultTimeout bounds a remote backend's retries when no timeout is set.
const DefaultTimeout = 30 * time.Second

// Options selects and configures a backend.
type Options struct {
	Backend        string
	URL            string
	APIKey         string
	BaseURL        string
	EmbeddingModel string
	Timeout        time.Duration
}

// New builds the oracle named by opts.Backend.
func New(opts Options) (Oracle, error) {
	switch opts.Backend {
	case "", BackendLocal:
		return NewLocal(), nil
	case BackendService:
		if opts.URL == "" {
			return nil, fmt.Errorf("similarity backend %q needs a url", opts.Backend)
		}
		return NewService(opts.URL, opts.Timeout), nil
	case BackendOpenAI:
		if opts.APIKey == "" {
			return nil, fmt.Errorf("similarity backend %q needs an api key", opts.Backend)
		}
		return NewOpenAI(opts.APIKey, opts.BaseURL, opts.EmbeddingModel, opts.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown similarity backend %q", opts.Backend)
	}
}
