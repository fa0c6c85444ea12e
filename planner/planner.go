package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"goa.design/ccos/capability"
	"goa.design/ccos/ccoserr"
	"goa.design/ccos/intent"
	"goa.design/ccos/plan"
	"goa.design/ccos/telemetry"
)

// MaxPlanAttempts bounds the synthesize/validate retry loop: one initial
// attempt plus at most two re-synthesis attempts fed the prior validation
// failure as feedback.
const MaxPlanAttempts = 3

// CatalogLimit bounds how many capability candidates are offered to the LLM
// per synthesis attempt.
const CatalogLimit = 20

// TextGenerator is the external collaborator that turns a prompt into raw
// LLM output text. Concrete adapters over the Anthropic, OpenAI and Bedrock
// SDKs are provided by the llmadapter subpackage; none is required, and
// callers may supply a fake in tests.
type TextGenerator interface {
	GenerateRawText(ctx context.Context, prompt string) (string, error)
}

// IntentSynthesizer turns a free-form natural-language goal into a durable
// Intent. Planner does not require one; a caller that already holds an
// Intent can call Synthesize directly.
type IntentSynthesizer interface {
	NaturalLanguageToIntent(ctx context.Context, goal string) (intent.Intent, error)
}

// Planner assembles a Plan for an Intent by querying the capability catalog,
// prompting an LLM for a step proposal, validating it against the menu it
// was offered, and retrying with structured feedback on failure.
type Planner struct {
	gen    TextGenerator
	logger telemetry.Logger
}

// Option configures a Planner.
type Option func(*Planner)

// WithLogger attaches a structured logger; failed synthesis attempts are
// logged at debug level.
func WithLogger(logger telemetry.Logger) Option {
	return func(p *Planner) { p.logger = logger }
}

// New constructs a Planner over gen, the LLM text-generation collaborator.
func New(gen TextGenerator, opts ...Option) *Planner {
	p := &Planner{gen: gen, logger: telemetry.NewNoopLogger()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Synthesize queries manifests for candidates relevant to i.Goal, prompts
// the LLM for a step proposal, validates it, and on failure retries, making
// at most MaxPlanAttempts attempts in all and feeding the previous
// validation error back as structured feedback. It returns the assembled Plan on success.
func (p *Planner) Synthesize(ctx context.Context, i intent.Intent, manifests []capability.Manifest) (plan.Plan, error) {
	menu := QueryCatalog(manifests, i.Goal, CatalogLimit)
	if len(menu) == 0 {
		return plan.Plan{}, ccoserr.InvalidArgumentf("planner: no capabilities available to satisfy goal %q", i.Goal)
	}

	var feedback string
	var lastErr error
	for attempt := 1; attempt <= MaxPlanAttempts; attempt++ {
		prompt := buildPrompt(i.Goal, menu, feedback)
		raw, err := p.gen.GenerateRawText(ctx, prompt)
		if err != nil {
			return plan.Plan{}, ccoserr.NetworkError("planner: llm generation failed", err)
		}

		proposed, err := parseProposal(raw)
		if err != nil {
			lastErr = err
			feedback = (&validationError{reasons: []string{err.Error()}}).Feedback()
			p.logf(ctx, "planner: synthesis attempt parse failed", "attempt", attempt, "max", MaxPlanAttempts, "error", err)
			continue
		}

		steps, err := validateProposal(proposed, menu)
		if err != nil {
			lastErr = err
			if ve, ok := err.(*validationError); ok {
				feedback = ve.Feedback()
			}
			p.logf(ctx, "planner: synthesis attempt validation failed", "attempt", attempt, "max", MaxPlanAttempts, "error", err)
			continue
		}

		if err := plan.ValidateStepReferences(steps); err != nil {
			lastErr = err
			feedback = (&validationError{reasons: []string{err.Error()}}).Feedback()
			p.logf(ctx, "planner: synthesis attempt step reference check failed", "attempt", attempt, "max", MaxPlanAttempts, "error", err)
			continue
		}

		return assemble(i.Goal, []string{i.IntentID}, steps), nil
	}
	return plan.Plan{}, ccoserr.Generic(fmt.Sprintf("planner: exhausted %d synthesis attempts", MaxPlanAttempts), lastErr)
}

func (p *Planner) logf(ctx context.Context, msg string, keyvals ...any) {
	if p.logger != nil {
		p.logger.Debug(ctx, msg, keyvals...)
	}
}

// buildPrompt renders the catalog menu and, on retry, the prior failure's
// feedback into the LLM prompt specified by the planner dialogue's step 2.
func buildPrompt(goal string, menu []CatalogEntry, feedback string) string {
	var b strings.Builder
	b.WriteString("Goal: ")
	b.WriteString(goal)
	b.WriteString("\n\n")
	b.WriteString("Available capabilities (choose only from this list):\n")
	for _, e := range menu {
		b.WriteString(fmt.Sprintf("- %s: %s\n  required inputs: %v\n  optional inputs: %v\n  outputs: %v\n",
			e.ID, e.Description, e.RequiredInputs, e.OptionalInputs, e.Outputs))
	}
	b.WriteString("\nRespond with a JSON array of steps, each shaped as:\n")
	b.WriteString(`{"id": "step_0", "name": "...", "capability_id": "...", "inputs": {"field": "var::name" | "literal::value" | "step::step_id::output"}, "outputs": ["..."], "notes": "..."}`)
	b.WriteString("\nRespond with the JSON array only, no surrounding prose.\n")
	if feedback != "" {
		b.WriteString("\n")
		b.WriteString(feedback)
	}
	return b.String()
}

// proposalJSON marshals steps into the JSON-array proposal payload the LLM
// is prompted to emit. Nothing in the package calls it.
func proposalJSON(steps []proposedStep) (string, error) {
	b, err := json.Marshal(steps)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
