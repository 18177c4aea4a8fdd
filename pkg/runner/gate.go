package runner

import (
	"fmt"

	"github.com/expr-lang/expr"
)

// TemplateGateCode is the machine-readable code written to error.json
// when the post-stage template gate rejects a deck-generation result.
const TemplateGateCode = "TEMPLATE_STRICT_FAILURE"

// templateRules are evaluated, in order, against each slide inspected
// by the deck-generation stage's post-stage gate. Each rule is a
// boolean expr-lang expression over a slide's inspection fields;
// violating rules contribute their Name to the failure list.
type templateRule struct {
	Name string
	Expr string
}

var defaultTemplateRules = []templateRule{
	{Name: "position_tolerance", Expr: "abs(slide.offsetX) <= tolerance && abs(slide.offsetY) <= tolerance"},
	{Name: "palette_match", Expr: "slide.palette in allowedPalettes"},
	{Name: "font_match", Expr: "slide.font in allowedFonts"},
	{Name: "table_borders", Expr: "!slide.hasTable || slide.tableBordersOk"},
}

// SlideInspection is one slide's worth of post-stage inspection data,
// as produced by the deck-generation handler's Inspection payload.
type SlideInspection struct {
	Key             string  `json:"key"`
	OffsetX         float64 `json:"offsetX"`
	OffsetY         float64 `json:"offsetY"`
	Palette         string  `json:"palette"`
	Font            string  `json:"font"`
	HasTable        bool    `json:"hasTable"`
	TableBordersOk  bool    `json:"tableBordersOk"`
}

// TemplateGateInput is the full payload a handler attaches as
// StageResult.Inspection for a stage subject to the template gate.
type TemplateGateInput struct {
	Tolerance       float64           `json:"tolerance"`
	AllowedPalettes []string          `json:"allowedPalettes"`
	AllowedFonts    []string          `json:"allowedFonts"`
	Slides          []SlideInspection `json:"slides"`
}

// GateVerdict is the runner's deterministic verdict over a
// TemplateGateInput.
type GateVerdict struct {
	Pass             bool
	BlockingKeys     []string
	ViolationDetails []ViolationDetail
}

// ViolationDetail names one slide's failed rule.
type ViolationDetail struct {
	SlideKey string `json:"slideKey"`
	Rule     string `json:"rule"`
}

// EvaluateTemplateGate runs defaultTemplateRules against every slide
// in input and reports which slides violate which rules. A slide with
// any violation is a blocking slide.
func EvaluateTemplateGate(input TemplateGateInput) (GateVerdict, error) {
	blocking := map[string]bool{}
	var details []ViolationDetail

	for _, slide := range input.Slides {
		env := map[string]any{
			"slide":           slideEnv(slide),
			"tolerance":       input.Tolerance,
			"allowedPalettes": toAnySlice(input.AllowedPalettes),
			"allowedFonts":    toAnySlice(input.AllowedFonts),
			"abs":             absFunc,
		}

		for _, rule := range defaultTemplateRules {
			program, err := expr.Compile(rule.Expr, expr.Env(env))
			if err != nil {
				return GateVerdict{}, fmt.Errorf("compile gate rule %s: %w", rule.Name, err)
			}
			result, err := expr.Run(program, env)
			if err != nil {
				return GateVerdict{}, fmt.Errorf("evaluate gate rule %s: %w", rule.Name, err)
			}
			pass, ok := result.(bool)
			if !ok || !pass {
				blocking[slide.Key] = true
				details = append(details, ViolationDetail{SlideKey: slide.Key, Rule: rule.Name})
			}
		}
	}

	keys := make([]string, 0, len(blocking))
	for k := range blocking {
		keys = append(keys, k)
	}

	return GateVerdict{Pass: len(keys) == 0, BlockingKeys: keys, ViolationDetails: details}, nil
}

func slideEnv(s SlideInspection) map[string]any {
	return map[string]any{
		"key":            s.Key,
		"offsetX":        s.OffsetX,
		"offsetY":        s.OffsetY,
		"palette":        s.Palette,
		"font":           s.Font,
		"hasTable":       s.HasTable,
		"tableBordersOk": s.TableBordersOk,
	}
}

func toAnySlice(s []string) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}

func absFunc(args ...any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("abs takes exactly one argument")
	}
	switch v := args[0].(type) {
	case float64:
		if v < 0 {
			return -v, nil
		}
		return v, nil
	case int:
		if v < 0 {
			return -v, nil
		}
		return v, nil
	default:
		return nil, fmt.Errorf("abs: unsupported type %T", v)
	}
}
