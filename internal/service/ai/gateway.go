package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/mgarridoc/orienta/backend/internal/config"
)

// Stream yields the fragments of one in-flight generation. Recv returns
// io.EOF on clean completion and ErrGatewayStreamError on mid-stream
// failure; the two must stay distinguishable because already delivered
// fragments cannot be retracted.
type Stream interface {
	Recv() (string, error)
	Close()
}

// Gateway is the opaque text-generation capability: one blocking mode and
// one incremental mode over the same prompt shape.
type Gateway interface {
	Invoke(ctx context.Context, p Prompt) (string, error)
	Stream(ctx context.Context, p Prompt) (Stream, error)
}

// ModelGateway drives the Ark chat model through an eino chain. A circuit
// breaker fails calls fast while the model service is misbehaving, so
// callers see ErrGatewayUnavailable instead of burning the full timeout.
type ModelGateway struct {
	chain   compose.Runnable[map[string]any, *schema.Message]
	breaker *gobreaker.CircuitBreaker
	timeout time.Duration
	logger  *zap.Logger
}

// NewModelGateway compiles the prompt-template → chat-model chain.
func NewModelGateway(ctx context.Context, cfg config.AIConfig, logger *zap.Logger) (*ModelGateway, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "model-gateway",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.8
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("gateway breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &ModelGateway{
		chain:   runnable,
		breaker: breaker,
		timeout: cfg.RequestTimeout,
		logger:  logger,
	}, nil
}

// Invoke submits the prompt and blocks for the complete reply.
func (g *ModelGateway) Invoke(ctx context.Context, p Prompt) (string, error) {
	tctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	out, err := g.breaker.Execute(func() (interface{}, error) {
		return g.chain.Invoke(tctx, p.ChainInput())
	})
	if err != nil {
		return "", mapGatewayErr(err)
	}

	msg := out.(*schema.Message)
	g.logger.Debug("gateway reply", zap.Int("chars", len(msg.Content)))
	return msg.Content, nil
}

// Stream submits the prompt in incremental mode. Only stream initiation
// counts against the breaker; mid-stream failures surface through Recv.
func (g *ModelGateway) Stream(ctx context.Context, p Prompt) (Stream, error) {
	out, err := g.breaker.Execute(func() (interface{}, error) {
		return g.chain.Stream(ctx, p.ChainInput())
	})
	if err != nil {
		return nil, mapGatewayErr(err)
	}

	return &modelStream{reader: out.(*schema.StreamReader[*schema.Message])}, nil
}

type modelStream struct {
	reader *schema.StreamReader[*schema.Message]
}

func (s *modelStream) Recv() (string, error) {
	for {
		chunk, err := s.reader.Recv()
		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrGatewayStreamError, err)
		}
		if chunk == nil || chunk.Content == "" {
			continue
		}
		return chunk.Content, nil
	}
}

func (s *modelStream) Close() {
	s.reader.Close()
}

func mapGatewayErr(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrGatewayTimeout, err)
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return fmt.Errorf("%w: circuit open", ErrGatewayUnavailable)
	default:
		return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
}
