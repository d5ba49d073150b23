// Package advisory handles communication with the external generative
// advisory service: provider dispatch, prompt construction and the single
// bounded call per request. It never retries.
package advisory

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/dshills/cropadvisor/internal/profile"
	"github.com/dshills/cropadvisor/internal/schema"
)

const (
	DefaultProvider   = "openrouter"
	DefaultModel      = "openai/gpt-oss-20b:free"
	DefaultMaxTokens  = 1400
	DefaultTimeout    = 30 * time.Second
	MinTimeout        = 20 * time.Second
	MaxTimeout        = 60 * time.Second
	DefaultEntryCount = 3
	// ProviderNone disables the advisory path entirely.
	ProviderNone = "none"
)

// Provider is the interface for advisory backends.
type Provider interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, maxTokens int, temperature float64) (string, error)
}

// NewProvider is the factory for creating providers. It is a package-level
// variable so tests can replace it with a mock without modifying the call site.
// Tests must restore the original value; use t.Cleanup to do so safely.
var NewProvider func(providerName, model string) (Provider, error) = defaultNewProvider

// Options configures a Client.
type Options struct {
	Provider      string
	Model         string
	Temperature   float64
	MaxTokens     int
	Timeout       time.Duration
	RatePerMinute int // 0 disables the outbound budget
	EntryCount    int // entries requested from the service
	Profile       profile.Profile
}

func (o Options) withDefaults() Options {
	if o.Provider == "" {
		o.Provider = DefaultProvider
	}
	if o.Model == "" {
		o.Model = DefaultModel
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = DefaultMaxTokens
	}
	if o.Timeout == 0 {
		o.Timeout = DefaultTimeout
	}
	if o.EntryCount <= 0 {
		o.EntryCount = DefaultEntryCount
	}
	return o
}

// Client issues advisory calls through one provider.
type Client struct {
	provider Provider
	opts     Options
	limiter  *rate.Limiter
	log      *zap.Logger
}

// New builds a Client. The timeout must lie within [MinTimeout, MaxTimeout].
func New(opts Options, log *zap.Logger) (*Client, error) {
	opts = opts.withDefaults()
	if opts.Timeout < MinTimeout || opts.Timeout > MaxTimeout {
		return nil, eris.Errorf("advisory: timeout %s outside [%s, %s]", opts.Timeout, MinTimeout, MaxTimeout)
	}
	if strings.EqualFold(opts.Provider, ProviderNone) {
		return nil, eris.New("advisory: provider disabled")
	}
	if log == nil {
		log = zap.NewNop()
	}

	p, err := NewProvider(opts.Provider, opts.Model)
	if err != nil {
		return nil, eris.Wrap(err, "advisory: create provider")
	}

	c := &Client{provider: p, opts: opts, log: log}
	if opts.RatePerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RatePerMinute)), opts.RatePerMinute)
	}
	return c, nil
}

// ProviderName returns the configured provider name.
func (c *Client) ProviderName() string { return strings.ToLower(c.opts.Provider) }

// Model returns the configured model identifier.
func (c *Client) Model() string { return c.opts.Model }

// Advise asks the service to describe the shortlisted crops for input and
// returns the raw reply text.
func (c *Client) Advise(ctx context.Context, shortlist []schema.ScoredCandidate, input schema.InputConditions) (string, error) {
	return c.Complete(ctx, BuildSystemPrompt(c.opts.Profile), BuildUserPrompt(shortlist, input, c.opts.EntryCount))
}

// Complete issues exactly one bounded call with the given prompts. A failure
// is always an *Error.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if c.limiter != nil && !c.limiter.Allow() {
		return "", &Error{Kind: KindThrottled, Err: eris.New("advisory: outbound budget exhausted")}
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	start := time.Now()
	raw, err := c.provider.Complete(ctx, systemPrompt, userPrompt, c.opts.MaxTokens, c.opts.Temperature)
	elapsed := time.Since(start)
	if err != nil {
		aerr := classify(ctx, err)
		c.log.Debug("advisory call failed",
			zap.String("provider", c.ProviderName()),
			zap.String("kind", string(aerr.Kind)),
			zap.Int("status", aerr.StatusCode),
			zap.Duration("elapsed", elapsed),
		)
		return "", aerr
	}
	c.log.Debug("advisory call complete",
		zap.String("provider", c.ProviderName()),
		zap.Int("bytes", len(raw)),
		zap.Duration("elapsed", elapsed),
	)
	return raw, nil
}
