package ai_test

import (
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/require"

	"github.com/mgarridoc/orienta/backend/internal/model/conversation"
	"github.com/mgarridoc/orienta/backend/internal/model/graph"
	"github.com/mgarridoc/orienta/backend/internal/service/ai"
)

func testGraph() graph.Graph {
	return graph.Seed()[0]
}

func TestOpeningDeterministic(t *testing.T) {
	composer := ai.NewComposer(0)

	first, err := composer.Opening(testGraph(), conversation.RoleDocente)
	require.NoError(t, err)
	second, err := composer.Opening(testGraph(), conversation.RoleDocente)
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.NotEmpty(t, first.System)
	require.NotEmpty(t, first.Query)
	require.Empty(t, first.History)
}

func TestRoleTemplatesDiffer(t *testing.T) {
	composer := ai.NewComposer(0)

	admin, err := composer.Opening(testGraph(), conversation.RoleAdmin)
	require.NoError(t, err)
	director, err := composer.Opening(testGraph(), conversation.RoleDirector)
	require.NoError(t, err)
	docente, err := composer.Opening(testGraph(), conversation.RoleDocente)
	require.NoError(t, err)

	require.NotEqual(t, admin.System, director.System)
	require.NotEqual(t, director.System, docente.System)
	require.Equal(t, admin.Query, docente.Query)
}

func TestUnknownRoleRejected(t *testing.T) {
	composer := ai.NewComposer(0)

	_, err := composer.Opening(testGraph(), conversation.Role("estudiante"))
	require.Error(t, err)
}

func TestFollowUpRendersFullHistory(t *testing.T) {
	composer := ai.NewComposer(0)
	history := []conversation.Turn{
		{Speaker: conversation.SpeakerSystem, Text: "análisis inicial"},
		{Speaker: conversation.SpeakerUser, Text: "¿qué significa la tendencia?"},
		{Speaker: conversation.SpeakerAssistant, Text: "la matrícula sube"},
	}

	prompt, err := composer.FollowUp(testGraph(), history, conversation.RoleDirector, "¿y la deserción?")
	require.NoError(t, err)
	require.Len(t, prompt.History, 3)
	require.Equal(t, "¿y la deserción?", prompt.Query)

	// The stored system opening replays as model output, not instructions.
	require.Equal(t, schema.Assistant, prompt.History[0].Role)
	require.Equal(t, schema.User, prompt.History[1].Role)
	require.Equal(t, schema.Assistant, prompt.History[2].Role)
}

func TestPromptTooLarge(t *testing.T) {
	composer := ai.NewComposer(32)

	_, err := composer.FollowUp(testGraph(), nil, conversation.RoleAdmin, "mensaje")
	require.ErrorIs(t, err, ai.ErrPromptTooLarge)
}

func TestInsightPrompt(t *testing.T) {
	composer := ai.NewComposer(0)

	prompt, err := composer.Insight(testGraph())
	require.NoError(t, err)
	require.Empty(t, prompt.History)
	require.Contains(t, prompt.System, testGraph().Title)
}
