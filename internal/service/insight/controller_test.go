package insight_test

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mgarridoc/orienta/backend/internal/config"
	"github.com/mgarridoc/orienta/backend/internal/model/graph"
	"github.com/mgarridoc/orienta/backend/internal/service/ai"
	"github.com/mgarridoc/orienta/backend/internal/service/insight"
)

// stubStream replays fixed chunks, then either completes cleanly or fails.
type stubStream struct {
	mu       sync.Mutex
	chunks   []string
	idx      int
	finalErr error
	closed   bool
}

func (s *stubStream) Recv() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.idx < len(s.chunks) {
		chunk := s.chunks[s.idx]
		s.idx++
		return chunk, nil
	}
	if s.finalErr != nil {
		return "", s.finalErr
	}
	return "", io.EOF
}

func (s *stubStream) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *stubStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type stubGateway struct {
	stream *stubStream
}

func (g *stubGateway) Invoke(context.Context, ai.Prompt) (string, error) {
	// Deterministic non-streaming equivalent: the concatenation of the
	// stream's chunks.
	return strings.Join(g.stream.chunks, ""), nil
}

func (g *stubGateway) Stream(context.Context, ai.Prompt) (ai.Stream, error) {
	return g.stream, nil
}

func newController(gateway ai.Gateway, cfg config.StreamConfig) *insight.Controller {
	return insight.NewController(
		graph.NewMemoryStore(graph.Seed()),
		ai.NewComposer(0),
		gateway,
		cfg,
		zap.NewNop(),
	)
}

func collect(t *testing.T, relay *insight.Relay) []string {
	t.Helper()
	var chunks []string
	for text := range relay.Chunks() {
		chunks = append(chunks, text)
	}
	return chunks
}

func TestStreamPreservesEmissionOrder(t *testing.T) {
	gateway := &stubGateway{stream: &stubStream{chunks: []string{"A", "B", "C"}}}
	ctrl := newController(gateway, config.StreamConfig{BufferSize: 8, ConsumerGrace: time.Second})

	relay, err := ctrl.Stream(context.Background(), "engineering")
	require.NoError(t, err)

	require.Equal(t, []string{"A", "B", "C"}, collect(t, relay))
	require.NoError(t, relay.Err())
	require.True(t, gateway.stream.isClosed())
}

func TestStreamContentMatchesBlockingCall(t *testing.T) {
	gateway := &stubGateway{stream: &stubStream{chunks: []string{"La matrícula ", "sube ", "sostenidamente."}}}
	ctrl := newController(gateway, config.StreamConfig{BufferSize: 8, ConsumerGrace: time.Second})

	blocking, err := gateway.Invoke(context.Background(), ai.Prompt{})
	require.NoError(t, err)

	relay, err := ctrl.Stream(context.Background(), "engineering")
	require.NoError(t, err)

	require.Equal(t, blocking, strings.Join(collect(t, relay), ""))
	require.NoError(t, relay.Err())
}

func TestStreamUnknownSubject(t *testing.T) {
	gateway := &stubGateway{stream: &stubStream{}}
	ctrl := newController(gateway, config.StreamConfig{BufferSize: 8, ConsumerGrace: time.Second})

	_, err := ctrl.Stream(context.Background(), "astronomy")
	require.ErrorIs(t, err, insight.ErrUnknownSubject)
}

func TestStreamMidFlightFailure(t *testing.T) {
	gateway := &stubGateway{stream: &stubStream{
		chunks:   []string{"A", "B"},
		finalErr: ai.ErrGatewayStreamError,
	}}
	ctrl := newController(gateway, config.StreamConfig{BufferSize: 8, ConsumerGrace: time.Second})

	relay, err := ctrl.Stream(context.Background(), "engineering")
	require.NoError(t, err)

	// The delivered prefix arrives intact, then the failure is reported.
	require.Equal(t, []string{"A", "B"}, collect(t, relay))
	require.ErrorIs(t, relay.Err(), ai.ErrGatewayStreamError)
}

func TestStreamConsumerTooSlow(t *testing.T) {
	chunks := []string{"A", "B", "C", "D", "E", "F"}
	gateway := &stubGateway{stream: &stubStream{chunks: chunks}}
	ctrl := newController(gateway, config.StreamConfig{BufferSize: 1, ConsumerGrace: 20 * time.Millisecond})

	relay, err := ctrl.Stream(context.Background(), "engineering")
	require.NoError(t, err)

	// Never read until the grace period has long passed.
	time.Sleep(100 * time.Millisecond)

	delivered := collect(t, relay)
	require.Less(t, len(delivered), len(chunks))
	require.ErrorIs(t, relay.Err(), insight.ErrConsumerTooSlow)
}

func TestStreamCancellationStopsPulling(t *testing.T) {
	gateway := &stubGateway{stream: &stubStream{chunks: []string{"A", "B", "C", "D"}}}
	ctrl := newController(gateway, config.StreamConfig{BufferSize: 1, ConsumerGrace: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	relay, err := ctrl.Stream(ctx, "engineering")
	require.NoError(t, err)

	cancel()

	require.Eventually(t, gateway.stream.isClosed, time.Second, 5*time.Millisecond)
	for range relay.Chunks() {
	}
	require.Error(t, relay.Err())
	require.NotErrorIs(t, relay.Err(), insight.ErrConsumerTooSlow)
}
