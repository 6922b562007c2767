package live

// Tool names the model calls during an interview.
const (
	ToolSaveAssessment    = "save_assessment"
	ToolSetAvatarBehavior = "set_avatar_behavior"
)

// SaveAssessmentTool declares the hidden per-question grading function. The
// model calls it when it considers an answer finished; the orchestrator pairs
// the arguments with a metrics snapshot taken at that instant.
func SaveAssessmentTool() ToolDeclaration {
	return ToolDeclaration{
		Name:        ToolSaveAssessment,
		Description: "Log assessment data for the candidate's answer. Call this silently.",
		Parameters: map[string]interface{}{
			"type": "OBJECT",
			"properties": map[string]interface{}{
				"full_question_text": map[string]interface{}{
					"type":        "STRING",
					"description": "The exact text of the question you just asked the candidate.",
				},
				"question_topic":      map[string]interface{}{"type": "STRING"},
				"user_answer_summary": map[string]interface{}{"type": "STRING"},
				"content_score": map[string]interface{}{
					"type":        "NUMBER",
					"description": "1-10",
				},
				"delivery_score": map[string]interface{}{
					"type":        "NUMBER",
					"description": "1-10",
				},
				"feedback": map[string]interface{}{
					"type":        "STRING",
					"description": "Short constructive feedback (2-3 sentences)",
				},
				"strengths": map[string]interface{}{
					"type":        "ARRAY",
					"items":       map[string]interface{}{"type": "STRING"},
					"description": "List of 2-3 specific strengths in the answer",
				},
				"areas_for_improvement": map[string]interface{}{
					"type":        "ARRAY",
					"items":       map[string]interface{}{"type": "STRING"},
					"description": "List of 2-3 specific areas to improve",
				},
			},
			"required": []string{
				"full_question_text",
				"question_topic",
				"user_answer_summary",
				"content_score",
				"delivery_score",
				"feedback",
				"strengths",
				"areas_for_improvement",
			},
		},
	}
}

// SetAvatarBehaviorTool declares the avatar control function the model calls
// to keep the on-screen interviewer's expression in step with its tone.
func SetAvatarBehaviorTool() ToolDeclaration {
	return ToolDeclaration{
		Name: ToolSetAvatarBehavior,
		Parameters: map[string]interface{}{
			"type":        "OBJECT",
			"description": "Updates the visual state of the digital avatar.",
			"properties": map[string]interface{}{
				"facial_expression": map[string]interface{}{
					"type": "STRING",
					"enum": []string{
						"neutral", "slight_smile", "smile", "thinking", "confused",
						"attentive", "surprised", "skeptical", "sad", "determined",
						"joyful", "angry", "loving", "sleepy", "wink", "playful",
						"pleading", "cool",
					},
				},
				"head_movement": map[string]interface{}{
					"type": "STRING",
					"enum": []string{
						"nod", "slight_nod", "shake", "tilt_left", "tilt_right",
						"lean_forward", "lean_back", "still",
					},
				},
				"eye_behavior": map[string]interface{}{
					"type": "STRING",
					"enum": []string{"maintain_gaze", "brief_look_away", "blink"},
				},
			},
			"required": []string{"facial_expression", "head_movement", "eye_behavior"},
		},
	}
}

// InterviewTools is the full tool set declared at session setup.
func InterviewTools() []ToolDeclaration {
	return []ToolDeclaration{SaveAssessmentTool(), SetAvatarBehaviorTool()}
}
