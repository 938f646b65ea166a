package insight

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/mgarridoc/orienta/backend/internal/config"
	"github.com/mgarridoc/orienta/backend/internal/model/graph"
	"github.com/mgarridoc/orienta/backend/internal/service/ai"
)

var (
	ErrUnknownSubject  = errors.New("unknown analysis subject")
	ErrConsumerTooSlow = errors.New("stream consumer too slow")
)

// Status tracks one stream job through its lifetime.
type Status string

const (
	StatusPending   Status = "pending"
	StatusStreaming Status = "streaming"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Job is the ephemeral bookkeeping for a single stream request. It is
// owned by the pump goroutine and never shared across requests.
type Job struct {
	SubjectID string
	StartedAt time.Time
	status    Status
}

// Controller drives one long-form analytical generation per request and
// relays the gateway's fragments to the caller in emission order.
type Controller struct {
	graphs   graph.Store
	composer *ai.Composer
	gateway  ai.Gateway
	buffer   int
	grace    time.Duration
	logger   *zap.Logger
}

// NewController wires the session-less streaming path.
func NewController(graphs graph.Store, composer *ai.Composer, gateway ai.Gateway, cfg config.StreamConfig, logger *zap.Logger) *Controller {
	return &Controller{
		graphs:   graphs,
		composer: composer,
		gateway:  gateway,
		buffer:   cfg.BufferSize,
		grace:    cfg.ConsumerGrace,
		logger:   logger,
	}
}

// Relay hands the caller a finite, non-restartable chunk sequence. Err is
// valid once Chunks is closed: nil means clean completion, anything else
// means the delivered prefix is partial output.
type Relay struct {
	ch  chan string
	err error
}

// Chunks returns the receive-only fragment channel.
func (r *Relay) Chunks() <-chan string {
	return r.ch
}

// Err reports how the stream ended. Only meaningful after Chunks closes.
func (r *Relay) Err() error {
	return r.err
}

// Stream composes the comprehensive prompt for subjectID and starts the
// relay. Fragments are delivered in gateway emission order through a
// bounded buffer: a consumer that stalls past the grace period kills the
// stream with ErrConsumerTooSlow rather than buffering without bound.
func (c *Controller) Stream(ctx context.Context, subjectID string) (*Relay, error) {
	g, ok := c.graphs.FindByID(subjectID)
	if !ok {
		return nil, ErrUnknownSubject
	}

	prompt, err := c.composer.Insight(g)
	if err != nil {
		return nil, err
	}

	stream, err := c.gateway.Stream(ctx, prompt)
	if err != nil {
		return nil, err
	}

	job := &Job{SubjectID: subjectID, StartedAt: time.Now().UTC(), status: StatusPending}
	relay := &Relay{ch: make(chan string, c.buffer)}
	go c.pump(ctx, job, stream, relay)
	return relay, nil
}

func (c *Controller) pump(ctx context.Context, job *Job, stream ai.Stream, relay *Relay) {
	defer close(relay.ch)
	defer stream.Close()

	job.status = StatusStreaming
	chunks := 0

	for {
		text, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			job.status = StatusCompleted
			c.logger.Info("insight stream completed",
				zap.String("subject", job.SubjectID),
				zap.Int("chunks", chunks),
				zap.Duration("elapsed", time.Since(job.StartedAt)))
			return
		}
		if err != nil {
			if !errors.Is(err, ai.ErrGatewayStreamError) {
				err = fmt.Errorf("%w: %v", ai.ErrGatewayStreamError, err)
			}
			relay.err = err
			job.status = StatusFailed
			c.logger.Warn("insight stream failed mid-flight",
				zap.String("subject", job.SubjectID),
				zap.Int("chunksDelivered", chunks),
				zap.Error(err))
			return
		}

		select {
		case relay.ch <- text:
			chunks++
		case <-ctx.Done():
			// Caller disconnected: stop pulling and release the stream.
			// Work already in flight inside the external model service is
			// not cancelled, the gateway offers no hook for that.
			relay.err = ctx.Err()
			job.status = StatusFailed
			c.logger.Debug("insight stream cancelled by consumer",
				zap.String("subject", job.SubjectID),
				zap.Int("chunksDelivered", chunks))
			return
		case <-time.After(c.grace):
			relay.err = ErrConsumerTooSlow
			job.status = StatusFailed
			c.logger.Warn("insight stream consumer stalled",
				zap.String("subject", job.SubjectID),
				zap.Duration("grace", c.grace))
			return
		}
	}
}
