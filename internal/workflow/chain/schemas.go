package chain

// 以下 schema 只约束顶层结构，细节交给解析端容错

func stringArray() map[string]any {
	return map[string]any{"type": "array", "items": map[string]any{"type": "string"}}
}

func beatJSONSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []any{"action"},
		"properties": map[string]any{
			"start":          map[string]any{"type": "integer"},
			"end":            map[string]any{"type": "integer"},
			"action":         map[string]any{"type": "string"},
			"dialogue":       map[string]any{"type": "string"},
			"on_screen_text": map[string]any{"type": "string"},
		},
	}
}

func scoreJSONSchema() map[string]any {
	num := map[string]any{"type": "number"}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required": []any{
			"hook_strength", "humor", "virality", "authenticity",
			"product_integration", "audience_fit", "clarity",
		},
		"properties": map[string]any{
			"hook_strength":       num,
			"humor":               num,
			"virality":            num,
			"authenticity":        num,
			"product_integration": num,
			"audience_fit":        num,
			"clarity":             num,
			"strengths":           stringArray(),
			"improvements":        stringArray(),
		},
	}
}

func scriptJSONSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []any{"hook", "beats", "cta_line"},
		"properties": map[string]any{
			"hook":        map[string]any{"type": "string"},
			"beats":       map[string]any{"type": "array", "items": beatJSONSchema()},
			"cta_line":    map[string]any{"type": "string"},
			"cta_overlay": map[string]any{"type": "string"},
			"b_roll":      stringArray(),
			"overlays":    stringArray(),
			"score":       scoreJSONSchema(),
		},
	}
}

func generateJSONSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []any{"variations"},
		"properties": map[string]any{
			"variations":        map[string]any{"type": "array", "items": scriptJSONSchema()},
			"applied_risk_tier": map[string]any{"type": "string", "enum": []any{"safe", "balanced", "spicy"}},
			"risk_score":        map[string]any{"type": "number"},
			"risk_flags":        stringArray(),
			"budget_clamped":    map[string]any{"type": "boolean"},
		},
	}
}

func refineJSONSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []any{"script"},
		"properties": map[string]any{
			"script": scriptJSONSchema(),
		},
	}
}

func improveJSONSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"text": map[string]any{"type": "string"},
			"beat": beatJSONSchema(),
		},
	}
}
