package agent

import (
	"github.com/rs/zerolog"

	"github.com/jonghunlee05/Greater-Uni-Hackathon-2025/internal/domain/patientflow"
)

// Set bundles the three collaborators the patient-flow service needs.
type Set struct {
	Triage  patientflow.TriageAssessor
	Planner patientflow.ResourcePlanner
	Advisor patientflow.Advisor
	Mode    string
}

// New returns LLM-backed collaborators when cfg carries an API key and the
// rule-based ones otherwise.
func New(cfg Config, logger zerolog.Logger) Set {
	if cfg.APIKey == "" {
		logger.Info().Msg("no LLM API key configured, using rule-based agents")
		r := Rules{}
		return Set{Triage: r, Planner: r, Advisor: r, Mode: "rules"}
	}
	l := NewLLM(NewClient(cfg))
	logger.Info().Str("model", l.client.Model).Str("url", l.client.URL).Msg("using LLM agents")
	return Set{Triage: l, Planner: l, Advisor: l, Mode: "llm"}
}
