package models

import (
	"fmt"
	"regexp"
	"sort"
)

// ScorerKind identifies the flavor of evaluation logic behind a scorer.
type ScorerKind string

const (
	// ScorerKindBuiltin is a stock judge (safety, relevance, groundedness)
	// with fixed internal instructions.
	ScorerKindBuiltin ScorerKind = "builtin"

	// ScorerKindGuideline judges inputs/outputs against pass/fail
	// natural-language guidelines.
	ScorerKindGuideline ScorerKind = "guideline"

	// ScorerKindCustomLLM is a fully custom natural-language judge with
	// user-written instructions and a declared verdict type.
	ScorerKindCustomLLM ScorerKind = "custom_llm"

	// ScorerKindCode is a deterministic code-based scorer.
	ScorerKindCode ScorerKind = "code"

	// ScorerKindTraceExploring is an autonomous judge that queries the
	// full execution-step sequence before producing its verdict.
	ScorerKindTraceExploring ScorerKind = "trace_exploring"
)

// ValueType is the declared type of a scorer's verdict value.
type ValueType string

const (
	ValueTypeBoolean     ValueType = "boolean"
	ValueTypeNumeric     ValueType = "numeric"
	ValueTypeCategorical ValueType = "categorical"
)

// TemplateVar is one of the four context variables a natural-language
// scorer may reference. The vocabulary is deliberately closed: free-form
// variables would reopen template injection and untyped judge inputs.
type TemplateVar string

const (
	VarInputs       TemplateVar = "inputs"
	VarOutputs      TemplateVar = "outputs"
	VarExpectations TemplateVar = "expectations"
	VarTrace        TemplateVar = "trace"
)

// AllTemplateVars lists the closed template vocabulary in stable order.
var AllTemplateVars = []TemplateVar{VarInputs, VarOutputs, VarExpectations, VarTrace}

var templateVarPattern = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// ExtractTemplateVars returns the deduplicated template variables
// referenced by a set of instructions, in stable order. Variables
// outside the closed vocabulary are returned as an error.
func ExtractTemplateVars(instructions string) ([]TemplateVar, error) {
	seen := map[TemplateVar]bool{}
	for _, m := range templateVarPattern.FindAllStringSubmatch(instructions, -1) {
		v := TemplateVar(m[1])
		switch v {
		case VarInputs, VarOutputs, VarExpectations, VarTrace:
			seen[v] = true
		default:
			return nil, &ValidationError{
				Field: "instructions",
				Msg:   fmt.Sprintf("unknown template variable {{ %s }}: allowed variables are inputs, outputs, expectations, trace", v),
			}
		}
	}

	vars := make([]TemplateVar, 0, len(seen))
	for _, v := range AllTemplateVars {
		if seen[v] {
			vars = append(vars, v)
		}
	}
	return vars, nil
}

// ScorerDefinition is the registered definition of one scorer within an
// experiment. Names are unique per experiment; re-registering a name
// replaces the definition.
type ScorerDefinition struct {
	Name string     `yaml:"name" json:"name"`
	Kind ScorerKind `yaml:"kind" json:"kind"`

	// BuiltinID selects the stock judge for ScorerKindBuiltin
	// (safety, relevance_to_query, retrieval_groundedness).
	BuiltinID string `yaml:"builtin,omitempty" json:"builtin,omitempty"`

	// Guidelines holds the pass/fail rules for ScorerKindGuideline.
	Guidelines []string `yaml:"guidelines,omitempty" json:"guidelines,omitempty"`

	// Instructions holds the judge prompt for ScorerKindCustomLLM and
	// ScorerKindTraceExploring. May reference only the closed template
	// vocabulary.
	Instructions string `yaml:"instructions,omitempty" json:"instructions,omitempty"`

	// CodeScorerID and Params select and configure a registered
	// code-based scorer implementation for ScorerKindCode.
	CodeScorerID string         `yaml:"code_scorer,omitempty" json:"code_scorer,omitempty"`
	Params       map[string]any `yaml:"params,omitempty" json:"params,omitempty"`

	ValueType ValueType `yaml:"value_type" json:"value_type"`

	// Labels is the allowed label set for categorical verdicts.
	Labels []string `yaml:"labels,omitempty" json:"labels,omitempty"`

	// JudgeModel is the judgment-capability model reference. Required
	// for trace-exploring scorers, optional elsewhere (the monitor's
	// default judge model applies when empty).
	JudgeModel string `yaml:"judge_model,omitempty" json:"judge_model,omitempty"`

	Active       bool    `yaml:"active" json:"active"`
	SamplingRate float64 `yaml:"sampling_rate" json:"sampling_rate"`
}

// TemplateVars returns the template variables this scorer consumes.
// Builtin and guideline judges have a fixed variable set; custom and
// trace-exploring judges derive theirs from the instructions.
func (d *ScorerDefinition) TemplateVars() []TemplateVar {
	switch d.Kind {
	case ScorerKindBuiltin, ScorerKindGuideline:
		return []TemplateVar{VarInputs, VarOutputs}
	case ScorerKindCode:
		return []TemplateVar{VarInputs, VarOutputs, VarExpectations}
	case ScorerKindTraceExploring:
		vars, err := ExtractTemplateVars(d.Instructions)
		if err != nil {
			return nil
		}
		if !containsVar(vars, VarTrace) {
			vars = append(vars, VarTrace)
		}
		return vars
	default:
		vars, err := ExtractTemplateVars(d.Instructions)
		if err != nil {
			return nil
		}
		return vars
	}
}

// Validate checks that the definition is internally consistent. It is
// called at registration time so invalid scorers never reach a run.
func (d *ScorerDefinition) Validate() error {
	if d.Name == "" {
		return &ValidationError{Field: "name", Msg: "scorer name is required"}
	}

	switch d.ValueType {
	case ValueTypeBoolean, ValueTypeNumeric:
	case ValueTypeCategorical:
		if len(d.Labels) == 0 {
			return &ValidationError{Field: "labels", Msg: "categorical scorers must declare at least one label"}
		}
	case "":
		return &ValidationError{Field: "value_type", Msg: "value_type is required (boolean, numeric, or categorical)"}
	default:
		return &ValidationError{Field: "value_type", Msg: fmt.Sprintf("unknown value_type %q", d.ValueType)}
	}

	if d.SamplingRate < 0 || d.SamplingRate > 1 {
		return &ValidationError{Field: "sampling_rate", Msg: fmt.Sprintf("sampling_rate must be in [0,1], got %v", d.SamplingRate)}
	}

	switch d.Kind {
	case ScorerKindBuiltin:
		if d.BuiltinID == "" {
			return &ValidationError{Field: "builtin", Msg: "builtin scorers must name a stock judge"}
		}
	case ScorerKindGuideline:
		if len(d.Guidelines) == 0 {
			return &ValidationError{Field: "guidelines", Msg: "guideline scorers must declare at least one guideline"}
		}
	case ScorerKindCustomLLM:
		vars, err := ExtractTemplateVars(d.Instructions)
		if err != nil {
			return err
		}
		if len(vars) == 0 {
			return &ValidationError{Field: "instructions", Msg: "instructions must reference at least one of {{ inputs }}, {{ outputs }}, {{ expectations }}, {{ trace }}"}
		}
	case ScorerKindTraceExploring:
		if _, err := ExtractTemplateVars(d.Instructions); err != nil {
			return err
		}
		if d.JudgeModel == "" {
			return &ValidationError{Field: "judge_model", Msg: "trace-exploring scorers must declare a judge model"}
		}
	case ScorerKindCode:
		if d.CodeScorerID == "" {
			return &ValidationError{Field: "code_scorer", Msg: "code scorers must name a registered implementation"}
		}
	default:
		return &ValidationError{Field: "kind", Msg: fmt.Sprintf("unknown scorer kind %q", d.Kind)}
	}

	return nil
}

// Clone returns a deep copy of the definition. Registry snapshots hand
// out clones so a run never observes mid-run administrative changes.
func (d *ScorerDefinition) Clone() ScorerDefinition {
	out := *d
	out.Guidelines = append([]string(nil), d.Guidelines...)
	out.Labels = append([]string(nil), d.Labels...)
	if d.Params != nil {
		out.Params = make(map[string]any, len(d.Params))
		for k, v := range d.Params {
			out.Params[k] = v
		}
	}
	return out
}

// SortDefinitions orders definitions by name for stable listings.
func SortDefinitions(defs []ScorerDefinition) {
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
}

func containsVar(vars []TemplateVar, v TemplateVar) bool {
	for _, x := range vars {
		if x == v {
			return true
		}
	}
	return false
}
