package analysis

import (
	"context"

	"go.uber.org/zap"

	"github.com/mgarridoc/orienta/backend/internal/model/conversation"
	"github.com/mgarridoc/orienta/backend/internal/model/graph"
	"github.com/mgarridoc/orienta/backend/internal/service/ai"
	"github.com/mgarridoc/orienta/backend/internal/service/registry"
)

// Orchestrator sequences start and message operations against a session.
// Every gateway call happens inside the registry's per-session exclusive
// section, so two concurrent turns on one session serialize and always
// compose against current history.
type Orchestrator struct {
	registry *registry.Registry
	graphs   graph.Store
	composer *ai.Composer
	gateway  ai.Gateway
	logger   *zap.Logger
}

// NewOrchestrator wires the turn state machine over its collaborators.
func NewOrchestrator(reg *registry.Registry, graphs graph.Store, composer *ai.Composer, gateway ai.Gateway, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		registry: reg,
		graphs:   graphs,
		composer: composer,
		gateway:  gateway,
		logger:   logger,
	}
}

// StartSession creates a session scoped to graphID and generates the
// opening analysis as its system turn. On a gateway failure the session is
// still returned: the next SendMessage regenerates the opening, so the
// caller never redoes context setup.
func (o *Orchestrator) StartSession(ctx context.Context, graphID string, role conversation.Role) (string, string, error) {
	session, err := o.registry.Create(ctx, graphID, role)
	if err != nil {
		return "", "", err
	}

	var opening string
	err = o.registry.Update(ctx, session.ID, func(s *conversation.Session) error {
		g, ok := o.graphs.FindByID(s.GraphID)
		if !ok {
			return registry.ErrUnknownContext
		}
		text, genErr := o.generateOpening(ctx, g, s)
		if genErr != nil {
			return genErr
		}
		opening = text
		return nil
	})
	if err != nil {
		o.logger.Warn("opening generation failed, session kept for retry",
			zap.String("session", session.ID), zap.Error(err))
		return session.ID, "", err
	}

	o.logger.Info("session started",
		zap.String("session", session.ID),
		zap.String("graph", graphID),
		zap.String("role", string(role)))
	return session.ID, opening, nil
}

// SendMessage appends the user turn, asks the gateway for the reply and
// appends it. If a previous call failed after appending the user turn,
// retrying with the same text reuses the pending turn instead of
// duplicating it; a different text while a turn is pending is rejected.
func (o *Orchestrator) SendMessage(ctx context.Context, sessionID, userText string) (string, error) {
	var reply string
	err := o.registry.Update(ctx, sessionID, func(s *conversation.Session) error {
		g, ok := o.graphs.FindByID(s.GraphID)
		if !ok {
			return registry.ErrUnknownContext
		}

		// Opening never made it in (gateway failed during /start).
		if !s.Opened() {
			if _, genErr := o.generateOpening(ctx, g, s); genErr != nil {
				return genErr
			}
		}

		if s.AwaitingAssistant() {
			last, _ := s.LastTurn()
			if last.Text != userText {
				return registry.ErrInvalidSequencing
			}
		} else if appendErr := registry.Append(s, conversation.Turn{
			Speaker: conversation.SpeakerUser,
			Text:    userText,
		}); appendErr != nil {
			return appendErr
		}

		prompt, composeErr := o.composer.FollowUp(g, s.History[:len(s.History)-1], s.Role, userText)
		if composeErr != nil {
			return composeErr
		}

		text, invokeErr := o.gateway.Invoke(ctx, prompt)
		if invokeErr != nil {
			// The user turn stays pending; a retry with the same text
			// picks it up.
			return invokeErr
		}

		if appendErr := registry.Append(s, conversation.Turn{
			Speaker: conversation.SpeakerAssistant,
			Text:    text,
		}); appendErr != nil {
			return appendErr
		}
		reply = text
		return nil
	})
	if err != nil {
		return "", err
	}

	o.logger.Info("turn completed", zap.String("session", sessionID), zap.Int("replyChars", len(reply)))
	return reply, nil
}

func (o *Orchestrator) generateOpening(ctx context.Context, g graph.Graph, s *conversation.Session) (string, error) {
	prompt, err := o.composer.Opening(g, s.Role)
	if err != nil {
		return "", err
	}

	text, err := o.gateway.Invoke(ctx, prompt)
	if err != nil {
		return "", err
	}

	if err := registry.Append(s, conversation.Turn{
		Speaker: conversation.SpeakerSystem,
		Text:    text,
	}); err != nil {
		return "", err
	}
	return text, nil
}
