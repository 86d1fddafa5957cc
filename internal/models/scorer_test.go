package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractTemplateVars(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    []TemplateVar
		wantErr string
	}{
		{
			name: "single variable",
			in:   "Check the {{ outputs }} for leaked reasoning.",
			want: []TemplateVar{VarOutputs},
		},
		{
			name: "all four variables, stable order",
			in:   "{{ trace }} {{ expectations }} {{ outputs }} {{ inputs }}",
			want: []TemplateVar{VarInputs, VarOutputs, VarExpectations, VarTrace},
		},
		{
			name: "duplicates collapse",
			in:   "{{ inputs }} and again {{ inputs }}",
			want: []TemplateVar{VarInputs},
		},
		{
			name: "whitespace variants",
			in:   "{{inputs}} {{  outputs  }}",
			want: []TemplateVar{VarInputs, VarOutputs},
		},
		{
			name: "no variables",
			in:   "nothing templated here",
			want: []TemplateVar{},
		},
		{
			name:    "unknown variable rejected",
			in:      "Answer the {{ question }} please",
			wantErr: "unknown template variable {{ question }}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractTemplateVars(tt.in)
			if tt.wantErr != "" {
				require.Error(t, err)
				require.ErrorContains(t, err, tt.wantErr)

				var vErr *ValidationError
				require.ErrorAs(t, err, &vErr)
				return
			}
			require.NoError(t, err)
			require.ElementsMatch(t, tt.want, got)
		})
	}
}

func TestScorerDefinitionValidate(t *testing.T) {
	valid := ScorerDefinition{
		Name:         "steps_and_reasoning",
		Kind:         ScorerKindCustomLLM,
		Instructions: "Analyze {{ outputs }}: does the response leak intermediate steps?",
		ValueType:    ValueTypeBoolean,
	}
	require.NoError(t, valid.Validate())

	t.Run("custom llm with no variables", func(t *testing.T) {
		def := valid
		def.Instructions = "Rate the response from 1 to 5."
		err := def.Validate()
		require.ErrorContains(t, err, "at least one of")
	})

	t.Run("custom llm with foreign variable", func(t *testing.T) {
		def := valid
		def.Instructions = "Answer using {{ question }} and {{ outputs }}"
		var vErr *ValidationError
		require.ErrorAs(t, def.Validate(), &vErr)
	})

	t.Run("categorical requires labels", func(t *testing.T) {
		def := valid
		def.ValueType = ValueTypeCategorical
		require.ErrorContains(t, def.Validate(), "label")

		def.Labels = []string{"good", "bad"}
		require.NoError(t, def.Validate())
	})

	t.Run("sampling rate bounds", func(t *testing.T) {
		def := valid
		def.SamplingRate = 1.5
		require.ErrorContains(t, def.Validate(), "sampling_rate")

		def.SamplingRate = -0.1
		require.ErrorContains(t, def.Validate(), "sampling_rate")
	})

	t.Run("trace exploring requires judge model", func(t *testing.T) {
		def := ScorerDefinition{
			Name:         "tool_call_correctness",
			Kind:         ScorerKindTraceExploring,
			Instructions: "Analyze the {{ trace }} for tool misuse.",
			ValueType:    ValueTypeBoolean,
		}
		require.ErrorContains(t, def.Validate(), "judge model")

		def.JudgeModel = "claude-sonnet-4-5"
		require.NoError(t, def.Validate())
	})

	t.Run("code scorer requires implementation id", func(t *testing.T) {
		def := ScorerDefinition{
			Name:      "exactness",
			Kind:      ScorerKindCode,
			ValueType: ValueTypeBoolean,
		}
		require.ErrorContains(t, def.Validate(), "implementation")
	})

	t.Run("builtin requires stock judge id", func(t *testing.T) {
		def := ScorerDefinition{
			Name:      "safety",
			Kind:      ScorerKindBuiltin,
			ValueType: ValueTypeBoolean,
		}
		require.ErrorContains(t, def.Validate(), "stock judge")
	})
}

func TestScorerDefinitionTemplateVars(t *testing.T) {
	def := ScorerDefinition{
		Kind:         ScorerKindTraceExploring,
		Instructions: "Look at {{ inputs }} only.",
	}
	// Trace-exploring scorers always get the trace, declared or not.
	require.Contains(t, def.TemplateVars(), VarTrace)
	require.Contains(t, def.TemplateVars(), VarInputs)

	guideline := ScorerDefinition{Kind: ScorerKindGuideline}
	require.Equal(t, []TemplateVar{VarInputs, VarOutputs}, guideline.TemplateVars())
}

func TestCloneIsDeep(t *testing.T) {
	def := ScorerDefinition{
		Name:       "accuracy",
		Kind:       ScorerKindGuideline,
		Guidelines: []string{"no fabrication"},
		Params:     map[string]any{"threshold": 0.5},
	}

	c := def.Clone()
	c.Guidelines[0] = "changed"
	c.Params["threshold"] = 0.9

	require.Equal(t, "no fabrication", def.Guidelines[0])
	require.Equal(t, 0.5, def.Params["threshold"])
}
