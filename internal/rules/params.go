package rules

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/roach88/fulfil/internal/domain"
)

// parameterSchemas holds the JSON Schema every action's parameters must
// satisfy.
var parameterSchemas = map[domain.ActionType]string{
	domain.ActionUpdateStatus: `{
		"type": "object",
		"required": ["status"],
		"properties": {"status": {"type": "string", "minLength": 1}}
	}`,
	domain.ActionSendNotification: `{
		"type": "object",
		"required": ["message"],
		"properties": {"message": {"type": "string", "minLength": 1}}
	}`,
	domain.ActionUpdateInventory: `{
		"type": "object",
		"required": ["adjustment"],
		"properties": {"adjustment": {"type": "integer", "not": {"const": 0}}}
	}`,
	domain.ActionSendEmail: `{
		"type": "object",
		"properties": {
			"to": {"type": "string", "minLength": 1},
			"subject": {"type": "string", "minLength": 1},
			"template": {"type": "string", "minLength": 1},
			"body": {"type": "string"}
		},
		"anyOf": [{"required": ["subject"]}, {"required": ["template"]}]
	}`,
	domain.ActionCreateTask: `{
		"type": "object",
		"required": ["title"],
		"properties": {
			"title": {"type": "string", "minLength": 1},
			"assignee": {"type": "string"},
			"priority": {"enum": ["low", "normal", "high"]},
			"description": {"type": "string"}
		}
	}`,
}

var compiledSchemas = mustCompileSchemas()

func mustCompileSchemas() map[domain.ActionType]*jsonschema.Schema {
	out := make(map[domain.ActionType]*jsonschema.Schema, len(parameterSchemas))
	for action, src := range parameterSchemas {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		url := fmt.Sprintf("https://fulfil.local/schemas/actions/%s.json", action)
		if err := c.AddResource(url, strings.NewReader(src)); err != nil {
			panic(fmt.Sprintf("load %s schema: %v", action, err))
		}
		schema, err := c.Compile(url)
		if err != nil {
			panic(fmt.Sprintf("compile %s schema: %v", action, err))
		}
		out[action] = schema
	}
	return out
}

// normalizeParameters round-trips params through JSON so that the schema
// validator and the action executors see plain JSON values.
func normalizeParameters(params map[string]any) (map[string]any, error) {
	if params == nil {
		return map[string]any{}, nil
	}
	data, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// validateAction checks a's type and parameter shape and returns the
// normalised parameters.
func validateAction(ruleID string, kind Kind, a domain.Action) (map[string]any, error) {
	schema, ok := compiledSchemas[a.Type]
	if !ok {
		return nil, domain.NewInvalidRuleError(ruleID, fmt.Sprintf("unknown action type %q", a.Type))
	}

	params, err := normalizeParameters(a.Parameters)
	if err != nil {
		return nil, domain.NewInvalidRuleError(ruleID, fmt.Sprintf("%s parameters: %v", a.Type, err))
	}
	if err := schema.Validate(params); err != nil {
		return nil, domain.NewInvalidRuleError(ruleID, fmt.Sprintf("%s parameters: %v", a.Type, err))
	}

	switch a.Type {
	case domain.ActionUpdateStatus:
		status, _ := params["status"].(string)
		switch kind {
		case KindOrder:
			if !domain.OrderStatus(status).Valid() {
				return nil, domain.NewInvalidRuleError(ruleID, fmt.Sprintf("unknown order status %q", status))
			}
		case KindProduct:
			if !domain.ListingStatus(status).Valid() {
				return nil, domain.NewInvalidRuleError(ruleID, fmt.Sprintf("unknown listing status %q", status))
			}
		default:
			return nil, domain.NewInvalidRuleError(ruleID, fmt.Sprintf("update_status does not apply to %s rules", kind))
		}
	case domain.ActionUpdateInventory:
		if kind != KindProduct {
			return nil, domain.NewInvalidRuleError(ruleID, fmt.Sprintf("update_inventory does not apply to %s rules", kind))
		}
	}
	return params, nil
}

func stringParam(params map[string]any, key string) string {
	s, _ := params[key].(string)
	return s
}
