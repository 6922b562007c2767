package report

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"github.com/sirupsen/logrus"

	apperrors "hireprep-server/pkg/errors"
	"hireprep-server/pkg/metrics"
	"hireprep-server/pkg/session"
)

// moduleCount is the fixed number of dashboard correction cards.
const moduleCount = 6

// drillsPerModule is how many practice drills each module expands into.
const drillsPerModule = 2

// Option configures the generator.
type Option func(*settings)

type settings struct {
	baseURL string
}

// WithBaseURL overrides the API base URL, for tests against a local server.
func WithBaseURL(url string) Option {
	return func(s *settings) { s.baseURL = url }
}

// Generator produces post-interview evaluations through a chat completion
// model: the executive report, correction modules and practice drills.
type Generator struct {
	client oai.Client
	model  string
	logger *logrus.Entry
}

// NewGenerator creates a report generator.
func NewGenerator(logger *logrus.Logger, apiKey, model string, opts ...Option) *Generator {
	var cfg settings
	for _, o := range opts {
		o(&cfg)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}

	return &Generator{
		client: oai.NewClient(reqOpts...),
		model:  model,
		logger: logger.WithField("component", "report"),
	}
}

// questionDigest is the serialized per-question block fed to the model.
type questionDigest struct {
	Index      int                `json:"index"`
	Question   string             `json:"question"`
	Answer     string             `json:"answer"`
	Scores     map[string]float64 `json:"scores"`
	Biometrics map[string]int     `json:"biometrics"`
	Feedback   string             `json:"preliminaryFeedback"`
}

// FinalReport builds the executive performance report for one finished
// interview. Generation failures degrade to a usable fallback report; the
// error reports what went wrong upstream.
func (g *Generator) FinalReport(ctx context.Context, record *session.InterviewSession) (*session.FinalReport, error) {
	if len(record.Analyses) == 0 {
		return &session.FinalReport{
			Summary:      "No interview data recorded. Please ensure you complete the interview session.",
			Strengths:    []string{},
			Weaknesses:   []string{},
			TrainingPlan: []string{"Complete a full session to generate a plan."},
		}, nil
	}

	prompt := g.buildReportPrompt(record)

	text, err := g.complete(ctx, prompt)
	if err != nil {
		g.logger.WithError(err).Error("Final report generation failed")
		return &session.FinalReport{
			Summary:      "The interview was completed successfully, but we could not generate the executive summary due to a connection error.",
			Strengths:    []string{"Session Completed"},
			Weaknesses:   []string{"Report Unavailable"},
			TrainingPlan: []string{"Please check your connection and try again"},
		}, err
	}

	fallback := session.FinalReport{
		Summary:      "Analysis Completed, but the report generation encountered a formatting error. Please review the detailed question breakdowns below.",
		Strengths:    []string{"Completed the session"},
		Weaknesses:   []string{"Automated report generation failed"},
		TrainingPlan: []string{"Review individual question feedback"},
	}

	var parsed session.FinalReport
	if !safeJSONParse(text, &parsed) {
		g.logger.WithField("body", text).Warn("Final report response was not valid JSON")
		return &fallback, nil
	}
	return &parsed, nil
}

func (g *Generator) buildReportPrompt(record *session.InterviewSession) string {
	total := len(record.Analyses)
	var eye, rate, confidence int
	var volume float64
	digests := make([]questionDigest, 0, total)

	for i, a := range record.Analyses {
		eye += a.Metrics.EyeContact
		rate += a.Metrics.SpeechRate
		confidence += a.Metrics.Confidence
		volume += a.Metrics.VolumeStability

		answer := a.UserAnswer
		if answer == "" {
			answer = "(No answer detected)"
		}
		digests = append(digests, questionDigest{
			Index:    i + 1,
			Question: a.QuestionText,
			Answer:   answer,
			Scores:   map[string]float64{"content": a.ContentScore, "delivery": a.DeliveryScore},
			Biometrics: map[string]int{
				"eyeContact": a.Metrics.EyeContact,
				"speechRate": a.Metrics.SpeechRate,
				"confidence": a.Metrics.Confidence,
			},
			Feedback: a.Feedback,
		})
	}

	avgEye := int(math.Round(float64(eye) / float64(total)))
	avgRate := int(math.Round(float64(rate) / float64(total)))
	avgConfidence := int(math.Round(float64(confidence) / float64(total)))
	avgVolume := volume / float64(total)

	data, _ := json.MarshalIndent(digests, "", "  ")

	roleTitle := "professional"
	if record.Config.Role != nil && record.Config.Role.Title != "" {
		roleTitle = record.Config.Role.Title
	}

	return fmt.Sprintf(`You are an elite Executive Interview Coach analyzing a %s candidate.

**TASK:**
Create a highly specific, data-driven "Executive Performance Report".

**SESSION CONTEXT:**
- Role: %s
- Industry: %s
- Difficulty: %s

**BIOMETRIC OVERVIEW:**
- Avg Eye Contact: %d%%
- Avg Speech Rate: %d WPM
- Confidence: %d%%
- Volume Stability: %.1f/10

**INTERVIEW DATA (JSON):**
%s

**RULES:**
1. **Evidence-Based:** Cite specific questions (e.g., "In Q2...") or biometric data.
2. **No Fluff:** Be direct and professional.
3. **Training Plan:** Provide 3 actionable drills.

**OUTPUT FORMAT (STRICT JSON ONLY, NO MARKDOWN):**
{
  "summary": "1-2 paragraphs summarizing performance...",
  "strengths": ["Strength 1", "Strength 2", "Strength 3"],
  "weaknesses": ["Weakness 1", "Weakness 2", "Weakness 3"],
  "trainingPlan": ["Drill 1", "Drill 2", "Drill 3"]
}`,
		roleTitle, roleTitle, record.Config.Industry, record.Config.Difficulty,
		avgEye, avgRate, avgConfidence, avgVolume, string(data))
}

// CorrectionModules derives exactly six practice modules from recent
// interview history. Empty history yields no modules; generation failure
// yields the static default deck.
func (g *Generator) CorrectionModules(ctx context.Context, history []*session.InterviewSession) ([]CorrectionModule, error) {
	if len(history) == 0 {
		return nil, nil
	}

	recent := history
	if len(recent) > 5 {
		recent = recent[:5]
	}

	var ctxLines strings.Builder
	for i, record := range recent {
		roleTitle := "General"
		if record.Config.Role != nil && record.Config.Role.Title != "" {
			roleTitle = record.Config.Role.Title
		}
		weaknesses := "None"
		plan := "None"
		if record.FinalReport != nil {
			if len(record.FinalReport.Weaknesses) > 0 {
				weaknesses = strings.Join(record.FinalReport.Weaknesses, ", ")
			}
			if len(record.FinalReport.TrainingPlan) > 0 {
				plan = strings.Join(record.FinalReport.TrainingPlan, ", ")
			}
		}
		fmt.Fprintf(&ctxLines, "Session %d (%s):\nWeaknesses identified: %s\nTraining Plan: %s\n\n",
			i+1, roleTitle, weaknesses, plan)
	}

	prompt := fmt.Sprintf(`Analyze the following interview history:

%s
Task:
Create exactly %d distinct "Correction Modules" for focused practice.
These modules will be used as dashboard cards.

Rules:
- Exactly %d objects.
- Titles: short, punchy, high-tech style (e.g., "SYSTEM DESIGN", "VERBAL PACING")
- Subtitle: short tag like "PACE // CLARITY"
- Description: 1 sentence, specific and practical.
- theme must be one of: orange, cyan, purple, green, blue, gray

Return STRICT JSON array only.`, ctxLines.String(), moduleCount, moduleCount)

	text, err := g.complete(ctx, prompt)
	if err != nil {
		g.logger.WithError(err).Error("Correction module generation failed")
		return defaultModules(), err
	}

	var modules []CorrectionModule
	if !safeJSONParse(text, &modules) || len(modules) == 0 {
		g.logger.Warn("Correction module response was not valid JSON")
		return defaultModules(), nil
	}
	if len(modules) > moduleCount {
		modules = modules[:moduleCount]
	}
	return modules, nil
}

// CorrectionDrills expands selected modules into practice drill cards, two
// per module.
func (g *Generator) CorrectionDrills(ctx context.Context, modules []CorrectionModule) ([]DrillItem, error) {
	if len(modules) == 0 {
		return nil, nil
	}

	var moduleCtx strings.Builder
	for _, m := range modules {
		fmt.Fprintf(&moduleCtx, "Module: %s\nDesc: %s\n\n", m.Title, m.Description)
	}

	prompt := fmt.Sprintf(`You are an expert interview coach generating specific practice drills.

Selected modules:
%s
Generate EXACTLY %d Drill Cards for EACH module above.
Total cards = %d.

Schema requirements:
- id: string (unique)
- title: short topic header, <= 4 words (Uppercase preferred)
- source: module title it belongs to (must match one of the module titles)
- date: string like "DRILL_01", "DRILL_02"...
- summary: FULL detailed interview question (mixed case, realistic, challenging)
- tags: string[] keywords
- impactScore: number (50-99)
- framework: Markdown string MUST include:
  - "### Strategy"
  - "### Gold Standard Answer"

Return STRICT JSON array only.`, moduleCtx.String(), drillsPerModule, len(modules)*drillsPerModule)

	text, err := g.complete(ctx, prompt)
	if err != nil {
		g.logger.WithError(err).Error("Drill generation failed")
		return fallbackDrills(modules), err
	}

	var drills []DrillItem
	if !safeJSONParse(text, &drills) || len(drills) == 0 {
		g.logger.Warn("Drill response was not valid JSON")
		return fallbackDrills(modules), nil
	}
	return drills, nil
}

// complete runs one chat completion and returns the raw text.
func (g *Generator) complete(ctx context.Context, prompt string) (string, error) {
	start := time.Now()

	resp, err := g.client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model: shared.ChatModel(g.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.UserMessage(prompt),
		},
	})
	metrics.ReportLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		return "", fmt.Errorf("chat completion: %w: %w", apperrors.ErrReportUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion: empty choices: %w", apperrors.ErrReportUnavailable)
	}
	return resp.Choices[0].Message.Content, nil
}

// safeJSONParse unmarshals model output, tolerating markdown code fences.
func safeJSONParse(text string, dst interface{}) bool {
	clean := strings.ReplaceAll(text, "```json", "")
	clean = strings.ReplaceAll(clean, "```", "")
	clean = strings.TrimSpace(clean)
	if clean == "" {
		return false
	}
	return json.Unmarshal([]byte(clean), dst) == nil
}

// defaultModules is the static deck used when generation fails.
func defaultModules() []CorrectionModule {
	return []CorrectionModule{
		{ID: "01", Title: "VERBAL PACING", Subtitle: "SPEED // CLARITY", Description: "Reduce fillers and stabilize pace under pressure.", Theme: "orange"},
		{ID: "02", Title: "ANSWER STRUCTURE", Subtitle: "STAR // LOGIC", Description: "Deliver structured answers with crisp takeaways.", Theme: "cyan"},
		{ID: "03", Title: "TECHNICAL DEPTH", Subtitle: "DETAILS // TRADEOFFS", Description: "Go beyond definitions, explain decisions and constraints.", Theme: "purple"},
		{ID: "04", Title: "SYSTEM DESIGN", Subtitle: "ARCH // SCALE", Description: "Practice end-to-end design with bottlenecks and SLAs.", Theme: "green"},
		{ID: "05", Title: "SIGNAL & CONFIDENCE", Subtitle: "TONE // PRESENCE", Description: "Sound decisive: clear assertions, fewer hedges.", Theme: "blue"},
		{ID: "06", Title: "SCENARIO DRILLS", Subtitle: "ADAPT // SOLVE", Description: "Improve reaction speed with realistic role scenarios.", Theme: "gray"},
	}
}

// fallbackDrills is the minimal drill set used when generation fails.
func fallbackDrills(modules []CorrectionModule) []DrillItem {
	source := "COMMUNICATION"
	if len(modules) > 0 && modules[0].Title != "" {
		source = modules[0].Title
	}
	return []DrillItem{{
		ID:      "fallback-1",
		Title:   "COMPLEXITY",
		Source:  source,
		Date:    "DRILL_01",
		Summary: "Explain a complex technical concept you've worked on to a non-technical stakeholder. Communicate business value and tradeoffs, not just implementation details.",
		Tags:    []string{"CLARITY", "STAKEHOLDER", "TRADEOFFS"},

		ImpactScore: 85,
		Framework: "### Strategy\n" +
			"- Start with the business problem in plain language.\n" +
			"- Use one strong analogy, then map it back to the real system.\n" +
			"- State tradeoffs and why your choice was reasonable.\n\n" +
			"### Gold Standard Answer\n" +
			"\"Imagine our database like a library. We added an index so we don't scan every shelf. That reduced lookup time from seconds to milliseconds, which cut user waiting by 40% and lowered infra cost. The tradeoff is extra write overhead, so we tuned it for our workload.\"",
	}}
}
