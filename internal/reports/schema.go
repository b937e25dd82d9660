package reports

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema/analysis_result.json
var analysisResultSchemaJSON string

var analysisResultSchema = jsonschema.MustCompileString("analysis_result.json", analysisResultSchemaJSON)

// ParseAnalysisResult validates the raw provider payload against the result
// schema and decodes it. A schema violation is terminal for the analysis.
func ParseAnalysisResult(raw json.RawMessage) (AnalysisResult, error) {
	var doc any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return AnalysisResult{}, fmt.Errorf("analysis payload parse: %w", err)
	}
	if err := analysisResultSchema.Validate(doc); err != nil {
		return AnalysisResult{}, fmt.Errorf("analysis payload schema: %w", err)
	}

	var result AnalysisResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return AnalysisResult{}, fmt.Errorf("analysis payload decode: %w", err)
	}
	if result.AbnormalIndicators == nil {
		result.AbnormalIndicators = []AbnormalIndicator{}
	}
	if result.Recommendations == nil {
		result.Recommendations = []Recommendation{}
	}
	if result.RiskFactors == nil {
		result.RiskFactors = []string{}
	}
	if result.FollowUpSuggestions == nil {
		result.FollowUpSuggestions = []string{}
	}
	return result, nil
}
