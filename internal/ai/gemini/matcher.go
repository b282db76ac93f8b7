package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	_ "embed"

	"go.uber.org/zap"

	"github.com/spigell/swipe-sync/internal/ai"
	"github.com/spigell/swipe-sync/internal/logger"
	"github.com/spigell/swipe-sync/internal/session"
	"github.com/spigell/swipe-sync/internal/utils"
)

const (
	providerName            = "gemini"
	defaultMaxLogLength     = 200
	maxUserInstructionRunes = 500
	defaultTone             = "Friendly"
	nonePlaceholder         = "none"

	systemInstruction = "You are a careful recruiting assistant. Follow the template exactly and answer with JSON only."
)

//go:embed prompt.md
var promptTemplate string

type contentGenerator interface {
	GenerateContent(ctx context.Context, system, message string) (string, error)
	Model() string
}

// PromptOverrides are user preferences injected into the prompt template.
// Every value is sanitized before use.
type PromptOverrides struct {
	ExtraCriteria     string `mapstructure:"extra-criteria"`
	DealBreakers      string `mapstructure:"deal-breakers"`
	CustomKeywords    string `mapstructure:"custom-keywords"`
	Tone              string `mapstructure:"tone"`
	RegionConstraints string `mapstructure:"region-constraints"`
	UserInstructions  string `mapstructure:"user-instructions"`
}

type Matcher struct {
	generator contentGenerator
	minScore  float64
	logger    *zap.Logger
	maxLogLen int
	overrides PromptOverrides
}

var _ ai.Matcher = (*Matcher)(nil)

func NewMatcher(generator contentGenerator, minScore float64, maxLogLength int, log *zap.Logger) *Matcher {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Matcher{
		generator: generator,
		minScore:  minScore,
		logger:    logger.WithCommonFields(log, providerName, generator.Model()),
		maxLogLen: maxLogLength,
	}
}

func (m *Matcher) SetPromptOverrides(o PromptOverrides) {
	m.overrides = o
}

func (m *Matcher) Evaluate(ctx context.Context, viewer *session.User, target ai.Target) (*ai.Assessment, error) {
	if viewer == nil {
		return nil, fmt.Errorf("viewer is required")
	}
	if target.ID == "" || target.Payload == nil {
		return nil, fmt.Errorf("target is required")
	}

	viewerJSON, err := json.MarshalIndent(viewerPayload(viewer), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal viewer payload: %w", err)
	}

	targetJSON, err := json.MarshalIndent(target.Payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal target payload: %w", err)
	}

	prompt := m.buildPrompt(string(viewer.Kind), string(viewerJSON), target.Kind, string(targetJSON))

	m.logger.Debug("gemini generate content request",
		zap.String("target_id", target.ID),
		zap.String("viewer_id", viewer.ID),
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, m.maxLogLen)),
	)

	raw, err := m.generator.GenerateContent(ctx, systemInstruction, prompt)
	if err != nil {
		return nil, err
	}

	m.logger.Debug("gemini generate content response",
		zap.String("target_id", target.ID),
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, m.maxLogLen)),
	)

	assessment, err := parseResponse(raw)
	if err != nil {
		return nil, err
	}

	if m.minScore > 0 && assessment.Score < m.minScore {
		m.logger.Debug("set fit to false by score threshold",
			zap.String("target_id", target.ID),
			zap.Float64("score", assessment.Score),
			zap.Float64("threshold", m.minScore),
		)
		assessment.Fit = false
	}

	assessment.Raw = raw
	return assessment, nil
}

// viewerPayload keeps contact details out of the prompt.
func viewerPayload(u *session.User) map[string]any {
	payload := map[string]any{
		"type":     u.Kind,
		"location": u.Location,
	}
	if u.Profile != nil {
		payload["profile"] = u.Profile
	}
	if u.Company != nil {
		payload["company"] = u.Company
	}
	return payload
}

func (m *Matcher) buildPrompt(viewerKind, viewerJSON, targetKind, targetJSON string) string {
	tone := singleLine(m.overrides.Tone)
	if tone == "" {
		tone = defaultTone
	}

	replacer := strings.NewReplacer(
		"{{EXTRA_CRITERIA}}", orNone(singleLine(m.overrides.ExtraCriteria)),
		"{{DEAL_BREAKERS}}", orNone(singleLine(m.overrides.DealBreakers)),
		"{{CUSTOM_KEYWORDS}}", orNone(keywords(m.overrides.CustomKeywords)),
		"{{TONE}}", tone,
		"{{REGION_CONSTRAINTS}}", orNone(singleLine(m.overrides.RegionConstraints)),
		"{{USER_INSTRUCTIONS}}", userInstructions(m.overrides.UserInstructions),
		"{{VIEWER_KIND}}", viewerKind,
		"{{VIEWER_JSON}}", viewerJSON,
		"{{TARGET_KIND}}", targetKind,
		"{{TARGET_JSON}}", targetJSON,
	)

	return replacer.Replace(promptTemplate)
}

func orNone(s string) string {
	if s == "" {
		return nonePlaceholder
	}
	return s
}

// neutralize stops user text from imitating the template's [Section] headers.
func neutralize(s string) string {
	return strings.NewReplacer("[", "(", "]", ")").Replace(s)
}

func singleLine(s string) string {
	return strings.Join(strings.Fields(neutralize(s)), " ")
}

func keywords(s string) string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = singleLine(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ", ")
}

func userInstructions(s string) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) > maxUserInstructionRunes {
		s = string([]rune(s)[:maxUserInstructionRunes])
	}

	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if line = singleLine(line); line != "" {
			lines = append(lines, "  - "+line)
		}
	}
	if len(lines) == 0 {
		return "  - " + nonePlaceholder
	}
	return strings.Join(lines, "\n")
}

func parseResponse(raw string) (*ai.Assessment, error) {
	cleaned := extractJSON(raw)

	var data map[string]any
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		return nil, fmt.Errorf("parse gemini response: %w", err)
	}

	score := coerceFloat(data["score"])
	if math.IsNaN(score) {
		score = 0
	}

	return &ai.Assessment{
		Fit:     coerceBool(data["fit"]),
		Score:   score,
		Reason:  coerceString(data["reason"]),
		Message: coerceString(data["message"]),
	}, nil
}

func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	if start, end := strings.Index(raw, "{"), strings.LastIndex(raw, "}"); start > 0 && end > start {
		raw = raw[start : end+1]
	}
	return strings.TrimSpace(strings.Trim(raw, "`"))
}

func coerceBool(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		lower := strings.ToLower(strings.TrimSpace(val))
		return lower == "true" || lower == "yes"
	case float64:
		return val != 0
	default:
		return false
	}
}

func coerceFloat(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}

func coerceString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}
