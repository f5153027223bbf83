// Package dns implements the DNS TXT record verification strategy over
// DNS-over-HTTPS.
package dns

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"anagolay/internal/verification/keygen"
	"anagolay/internal/verification/models"
	"anagolay/internal/verification/strategy"
	"anagolay/pkg/domain"
	"anagolay/pkg/platform/circuit"
)

const (
	StrategyID = "dns_txt"

	DefaultEndpoint = "https://dns.google/resolve"
	DefaultTimeout  = 2 * time.Second

	defaultBreakerFailures = 5
	defaultBreakerCooldown = 30 * time.Second
)

// Strategy proves control of a domain through a TXT record holding the key.
type Strategy struct {
	keygen     keygen.Generator
	endpoint   string
	timeout    time.Duration
	httpClient *http.Client
	client     *Client
	breaker    *circuit.Breaker
	logger     *slog.Logger
}

type Option func(*Strategy)

func WithEndpoint(endpoint string) Option {
	return func(s *Strategy) {
		if endpoint != "" {
			s.endpoint = endpoint
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(s *Strategy) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithHTTPClient(c *http.Client) Option {
	return func(s *Strategy) {
		s.httpClient = c
	}
}

func WithKeyGenerator(g keygen.Generator) Option {
	return func(s *Strategy) {
		if g != nil {
			s.keygen = g
		}
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(s *Strategy) {
		s.breaker = b
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Strategy) {
		s.logger = logger
	}
}

func New(opts ...Option) *Strategy {
	s := &Strategy{
		keygen:   keygen.CIDGenerator{},
		endpoint: DefaultEndpoint,
		timeout:  DefaultTimeout,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.breaker == nil {
		s.breaker = circuit.New(StrategyID,
			circuit.WithFailureThreshold(defaultBreakerFailures),
			circuit.WithCooldown(defaultBreakerCooldown),
		)
	}
	s.client = NewClient(s.endpoint, s.timeout, s.httpClient)
	return s
}

func (s *Strategy) ID() string {
	return StrategyID
}

func (s *Strategy) Supports(context models.Context, action models.Action) bool {
	if action != models.ActionDNSTXTRecord {
		return false
	}
	return context.Kind == models.ContextURLForDomain || context.Kind == models.ContextURLForDomainWithSubdomain
}

// NewRequest keys the challenge on host bytes followed by the holder's account bytes.
func (s *Strategy) NewRequest(holder domain.AccountID, context models.Context, action models.Action) (models.Request, error) {
	if !s.Supports(context, action) {
		return models.Request{}, models.ErrVerificationKeyGeneration
	}
	identifier := append([]byte(context.Host()), holder.Bytes()...)
	key, err := s.keygen.Generate(holder, context, identifier)
	if err != nil {
		return models.Request{}, fmt.Errorf("%w: %v", models.ErrVerificationKeyGeneration, err)
	}
	return models.Request{
		Context: context,
		Action:  action,
		Status:  models.Waiting(),
		Holder:  holder,
		Key:     key,
	}, nil
}

// Verify looks for a TXT record equal to the request key.
func (s *Strategy) Verify(ctx context.Context, request models.Request) (models.Status, error) {
	host := request.Context.Host()
	if host == "" {
		return models.Status{}, strategy.NewError(strategy.ErrorInternal, StrategyID, "context has no host", nil)
	}

	if !s.breaker.Allow() {
		return models.Status{}, strategy.NewError(strategy.ErrorOutage, StrategyID, "resolver circuit open", nil)
	}

	resp, err := s.client.LookupTXT(ctx, host)
	if err != nil {
		if _, change := s.breaker.RecordFailure(); change.Opened {
			s.logger.WarnContext(ctx, "dns resolver circuit opened",
				"endpoint", s.endpoint,
				"error", err,
			)
		}
		return models.Status{}, err
	}
	if _, change := s.breaker.RecordSuccess(); change.Closed {
		s.logger.InfoContext(ctx, "dns resolver circuit closed", "endpoint", s.endpoint)
	}

	txt := 0
	for _, answer := range resp.Answer {
		if answer.Type != typeTXT {
			continue
		}
		txt++
		if normalizeTXT(answer.Data) == request.Key {
			return models.Success(), nil
		}
	}

	if resp.Status == rcodeNXDomain {
		return models.Failure(fmt.Sprintf("domain %s does not exist", host)), nil
	}
	if txt == 0 {
		return models.Failure(fmt.Sprintf("no TXT records found for %s", host)), nil
	}
	return models.Failure(fmt.Sprintf("no TXT record of %s matches the verification key", host)), nil
}

// normalizeTXT strips the presentation quoting resolvers add and joins
// multi-string records ("a" "b").
func normalizeTXT(data string) string {
	data = strings.TrimSpace(data)
	if len(data) >= 2 && strings.HasPrefix(data, `"`) && strings.HasSuffix(data, `"`) {
		data = data[1 : len(data)-1]
		data = strings.ReplaceAll(data, `" "`, "")
	}
	return data
}
