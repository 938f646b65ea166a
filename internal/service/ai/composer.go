package ai

import (
	"encoding/json"
	"fmt"

	"github.com/cloudwego/eino/schema"

	"github.com/mgarridoc/orienta/backend/internal/model/conversation"
	"github.com/mgarridoc/orienta/backend/internal/model/graph"
)

// roleInstructions selects the analysis framing injected as the system
// message. The three roles share every other mechanism.
var roleInstructions = map[conversation.Role]string{
	conversation.RoleAdmin: "Eres un analista institucional que asesora al equipo administrativo de la universidad. " +
		"Analiza las métricas agregadas de la carrera con foco en gestión: capacidad, presupuesto, retención y comparación entre cohortes. " +
		"Responde en español, con cifras concretas y recomendaciones accionables.",
	conversation.RoleDirector: "Eres un asesor académico que apoya a la dirección de carrera. " +
		"Analiza las métricas de la carrera con foco curricular: deserción por tramo, progresión, empleabilidad de egresados y señales de alerta temprana. " +
		"Responde en español y prioriza decisiones que la dirección pueda tomar este semestre.",
	conversation.RoleDocente: "Eres un asistente pedagógico para docentes. " +
		"Analiza las métricas de la carrera con foco en el aula: rendimiento, tendencias de matrícula y cómo los datos afectan la planificación de cursos. " +
		"Responde en español, en tono cercano y sin jerga estadística innecesaria.",
}

const openingQuery = "Elabora un análisis inicial de los datos de la carrera: tendencias principales, " +
	"puntos de atención y una síntesis breve que sirva de punto de partida para la conversación."

const insightQuery = "Genera un informe analítico completo de la carrera: contexto, evolución de la matrícula, " +
	"deserción, empleabilidad, riesgos y recomendaciones. Estructura el informe en secciones con títulos."

// Prompt is a fully composed gateway input. Deterministic given identical
// inputs; the gateway holds no session state, so correctness depends on
// History carrying the complete ordered context on every call.
type Prompt struct {
	System  string
	History []*schema.Message
	Query   string
}

// ChainInput renders the prompt as eino chain variables.
func (p Prompt) ChainInput() map[string]any {
	return map[string]any{
		"system":  p.System,
		"history": p.History,
		"query":   p.Query,
	}
}

func (p Prompt) size() int {
	total := len(p.System) + len(p.Query)
	for _, msg := range p.History {
		total += len(msg.Content)
	}
	return total
}

// Composer assembles gateway prompts from graph payloads and session
// history. It never truncates: past the char budget it fails instead,
// preserving conversational integrity.
type Composer struct {
	maxChars int
}

// NewComposer builds a composer with the given prompt char budget.
func NewComposer(maxChars int) *Composer {
	return &Composer{maxChars: maxChars}
}

// Opening composes the session-start prompt asking for an initial analysis.
func (c *Composer) Opening(g graph.Graph, role conversation.Role) (Prompt, error) {
	system, err := systemPrompt(g, role)
	if err != nil {
		return Prompt{}, err
	}
	return c.guard(Prompt{System: system, Query: openingQuery})
}

// FollowUp composes a prompt for the next user message. The history must
// contain every prior turn of the session, in order, excluding userText.
func (c *Composer) FollowUp(g graph.Graph, history []conversation.Turn, role conversation.Role, userText string) (Prompt, error) {
	system, err := systemPrompt(g, role)
	if err != nil {
		return Prompt{}, err
	}
	return c.guard(Prompt{
		System:  system,
		History: historyMessages(history),
		Query:   userText,
	})
}

// Insight composes the single comprehensive prompt behind the streamed
// report. No user turns are involved.
func (c *Composer) Insight(g graph.Graph) (Prompt, error) {
	system, err := systemPrompt(g, conversation.RoleDirector)
	if err != nil {
		return Prompt{}, err
	}
	return c.guard(Prompt{System: system, Query: insightQuery})
}

func (c *Composer) guard(p Prompt) (Prompt, error) {
	if c.maxChars > 0 && p.size() > c.maxChars {
		return Prompt{}, fmt.Errorf("%w: %d chars over the %d budget", ErrPromptTooLarge, p.size(), c.maxChars)
	}
	return p, nil
}

func systemPrompt(g graph.Graph, role conversation.Role) (string, error) {
	instructions, ok := roleInstructions[role]
	if !ok {
		return "", fmt.Errorf("no instruction template for role %q", role)
	}

	payload, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to serialize graph payload: %w", err)
	}

	return fmt.Sprintf("%s\n\nDatos de la carrera %q:\n%s", instructions, g.Title, payload), nil
}

// historyMessages replays stored turns as model messages. The stored
// system opening turn is model-produced analysis, not instructions, so it
// is replayed as an assistant message; the instruction template is the
// only true system message per call.
func historyMessages(turns []conversation.Turn) []*schema.Message {
	if len(turns) == 0 {
		return nil
	}

	history := make([]*schema.Message, 0, len(turns))
	for _, turn := range turns {
		switch turn.Speaker {
		case conversation.SpeakerUser:
			history = append(history, schema.UserMessage(turn.Text))
		case conversation.SpeakerSystem, conversation.SpeakerAssistant:
			history = append(history, schema.AssistantMessage(turn.Text, nil))
		}
	}
	return history
}
