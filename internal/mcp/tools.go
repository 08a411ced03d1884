package mcp

// ToolDefinitions returns the tools the examiner agent may call.
func ToolDefinitions() []ToolDefinition {
	zero := 0
	return []ToolDefinition{
		{
			Name: "fetch_essay",
			Description: "Fetch the student's paper for an oral defense. " +
				"Call this once the student has told you their 4-digit session code. " +
				"The first successful fetch marks the defense as started; fetching again " +
				"during the same defense returns the same paper.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"code": {Type: "string", Description: "The student's 4-digit session code"},
				},
				Required: []string{"code"},
			},
		},
		{
			Name: "fetch_questions",
			Description: "Draw a fresh set of defense questions. Content questions probe the " +
				"paper's argument; process questions probe how the student wrote it.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"contentCount": {Type: "integer", Description: "Number of content questions (server default when omitted)",
						Minimum: &zero},
					"processCount": {Type: "integer", Description: "Number of process questions (server default when omitted)",
						Minimum: &zero},
				},
			},
		},
	}
}
