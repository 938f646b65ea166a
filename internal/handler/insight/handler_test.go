package insight

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mgarridoc/orienta/backend/internal/config"
	"github.com/mgarridoc/orienta/backend/internal/model/graph"
	"github.com/mgarridoc/orienta/backend/internal/service/ai"
	insightService "github.com/mgarridoc/orienta/backend/internal/service/insight"
)

type stubStream struct {
	chunks   []string
	idx      int
	finalErr error
}

func (s *stubStream) Recv() (string, error) {
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

func (s *stubStream) Close() {}

type stubGateway struct {
	stream *stubStream
}

func (g *stubGateway) Invoke(context.Context, ai.Prompt) (string, error) {
	return strings.Join(g.stream.chunks, ""), nil
}

func (g *stubGateway) Stream(context.Context, ai.Prompt) (ai.Stream, error) {
	return g.stream, nil
}

func setupRouter(stream *stubStream) *chi.Mux {
	ctrl := insightService.NewController(
		graph.NewMemoryStore(graph.Seed()),
		ai.NewComposer(0),
		&stubGateway{stream: stream},
		config.StreamConfig{BufferSize: 8, ConsumerGrace: time.Second},
		zap.NewNop(),
	)

	r := chi.NewRouter()
	New(ctrl).RegisterRoutes(r)
	return r
}

func decodeFrames(t *testing.T, body string) []StreamEvent {
	t.Helper()
	var frames []StreamEvent
	for _, line := range strings.Split(body, "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var event StreamEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
			t.Fatalf("bad frame %q: %v", line, err)
		}
		frames = append(frames, event)
	}
	return frames
}

func TestStreamEndpoint(t *testing.T) {
	r := setupRouter(&stubStream{chunks: []string{"A", "B", "C"}})

	req := httptest.NewRequest(http.MethodGet, "/completo/engineering", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if ct := resp.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	frames := decodeFrames(t, resp.Body.String())
	if len(frames) != 5 {
		t.Fatalf("expected 5 frames, got %d", len(frames))
	}
	if frames[0].Event != "start" {
		t.Fatalf("expected start frame, got %q", frames[0].Event)
	}
	for i, want := range []string{"A", "B", "C"} {
		frame := frames[i+1]
		if frame.Event != "delta" || frame.Content != want {
			t.Fatalf("frame %d: got event=%q content=%q, want delta %q", i+1, frame.Event, frame.Content, want)
		}
	}
	last := frames[len(frames)-1]
	if last.Event != "end" || !last.Finished {
		t.Fatalf("expected finished end frame, got %+v", last)
	}
}

func TestStreamEndpointMidFlightFailure(t *testing.T) {
	r := setupRouter(&stubStream{chunks: []string{"A"}, finalErr: ai.ErrGatewayStreamError})

	req := httptest.NewRequest(http.MethodGet, "/completo/engineering", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	frames := decodeFrames(t, resp.Body.String())
	last := frames[len(frames)-1]
	if last.Event != "error" || last.Error == "" {
		t.Fatalf("expected error frame, got %+v", last)
	}
	if last.Finished {
		t.Fatal("partial stream must not be marked finished")
	}
}

func TestStreamEndpointUnknownSubject(t *testing.T) {
	r := setupRouter(&stubStream{})

	req := httptest.NewRequest(http.MethodGet, "/completo/astronomy", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}
