package domain

import (
	"fmt"
	"maps"
	"regexp"
)

// placeholderRegex matches {{name}} placeholders in template parameters.
var placeholderRegex = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)\s*\}\}`)

// ErrCodeMissingVariable is the delivery error code of an unresolvable placeholder.
const ErrCodeMissingVariable = "missing_variable"

// MergeVariables overlays recipient variables on the job's global variables.
func MergeVariables(global, recipient map[string]string) map[string]string {
	merged := make(map[string]string, len(global)+len(recipient))
	maps.Copy(merged, global)
	maps.Copy(merged, recipient)
	return merged
}

// RenderParams substitutes {{name}} placeholders. A placeholder without a value is a
// permanent delivery error: retrying cannot produce the variable.
func RenderParams(params []string, vars map[string]string) ([]string, error) {
	rendered := make([]string, len(params))
	for i, param := range params {
		var missing string
		rendered[i] = placeholderRegex.ReplaceAllStringFunc(param, func(m string) string {
			name := placeholderRegex.FindStringSubmatch(m)[1]
			value, ok := vars[name]
			if !ok && missing == "" {
				missing = name
			}
			return value
		})
		if missing != "" {
			return nil, NewPermanentError(ErrCodeMissingVariable, fmt.Sprintf("missing template variable %q", missing))
		}
	}
	return rendered, nil
}

// TemplatePayload builds the provider payload of a job item.
func TemplatePayload(job *SendJob, recipientVars map[string]string) (map[string]any, error) {
	params, err := RenderParams(job.TemplateParams, MergeVariables(job.GlobalVariables, recipientVars))
	if err != nil {
		return nil, err
	}
	template := map[string]any{
		"name":     job.TemplateName,
		"language": job.TemplateLanguage,
	}
	if len(params) > 0 {
		template["parameters"] = params
	}
	return map[string]any{"type": "template", "template": template}, nil
}
