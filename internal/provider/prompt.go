package provider

import (
	"encoding/json"
	"fmt"
)

// 各分析域的系统提示词
var domainPrompts = map[string]string{
	"structure": "You are an organizational design analyst. Assess the reporting structure, " +
		"span of control and layering described in the input.",
	"culture": "You are an organizational culture analyst. Assess value alignment, " +
		"collaboration signals and engagement described in the input.",
	"skills": "You are a workforce capability analyst. Assess skill coverage " +
		"against the roles and strategy described in the input.",
	"performance": "You are a performance analyst. Assess output and goal attainment " +
		"signals described in the input.",
}

const outputInstruction = ` Respond with a single JSON object: ` +
	`{"score": <0-100 number>, "category": "<healthy|attention|critical>", ` +
	`"summary": "<one sentence>", "details": {<optional metrics>}}.`

func systemPrompt(domain string) string {
	base, ok := domainPrompts[domain]
	if !ok {
		base = "You are an organizational analyst. Assess the area '" + domain + "' from the input."
	}
	return base + outputInstruction
}

func buildUserPrompt(domain string, input map[string]interface{}) (string, error) {
	data, err := json.Marshal(input)
	if err != nil {
		return "", fmt.Errorf("failed to marshal domain input: %w", err)
	}
	return fmt.Sprintf("Analysis domain: %s\nOrganization data:\n%s", domain, data), nil
}
