package session

import (
	"fmt"
	"time"

	"hireprep-server/pkg/analysis"
)

// Difficulty of the interview questions.
type Difficulty string

const (
	DifficultyEasy     Difficulty = "Easy"
	DifficultyStandard Difficulty = "Standard"
	DifficultyHard     Difficulty = "Hard"
)

// ConnectionState tracks the realtime link lifecycle.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "DISCONNECTED"
	StateConnecting   ConnectionState = "CONNECTING"
	StateConnected    ConnectionState = "CONNECTED"
	StateError        ConnectionState = "ERROR"
)

// JobRole identifies the position the candidate rehearses for.
type JobRole struct {
	ID       string   `json:"id"`
	Industry string   `json:"industry"`
	Title    string   `json:"title"`
	Level    string   `json:"level"`
	Tags     []string `json:"tags,omitempty"`
}

// InterviewConfig is the candidate's setup for one mock interview.
type InterviewConfig struct {
	Industry   string     `json:"industry"`
	Role       *JobRole   `json:"role"`
	Duration   int        `json:"duration"`
	Difficulty Difficulty `json:"difficulty"`
	JDText     string     `json:"jd_text"`
	ResumeText string     `json:"resume_text"`
}

// Message is one line of the interview transcript.
type Message struct {
	Role      string `json:"role"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

// BehaviorState is the avatar's current visual state as set by the model.
type BehaviorState struct {
	FacialExpression string `json:"facial_expression"`
	HeadMovement     string `json:"head_movement"`
	EyeBehavior      string `json:"eye_behavior"`
}

// QuestionAnalysis is the immutable per-question assessment: the model's
// content grading paired with the biometric snapshot taken the instant the
// answer was judged complete.
type QuestionAnalysis struct {
	QuestionID    int              `json:"question_id"`
	QuestionText  string           `json:"question_text"`
	UserAnswer    string           `json:"user_answer"`
	Metrics       analysis.Metrics `json:"metrics"`
	ContentScore  float64          `json:"content_score"`
	DeliveryScore float64          `json:"delivery_score"`
	Feedback      string           `json:"feedback"`
	Strengths     []string         `json:"strengths"`
	Weaknesses    []string         `json:"weaknesses"`
}

// FinalReport is the closing evaluation generated after the interview.
type FinalReport struct {
	Summary      string   `json:"summary"`
	Strengths    []string `json:"strengths"`
	Weaknesses   []string `json:"weaknesses"`
	TrainingPlan []string `json:"trainingPlan"`
}

// InterviewSession is the persisted record of one completed interview.
type InterviewSession struct {
	ID          string             `json:"id"`
	UserID      string             `json:"user_id,omitempty"`
	Config      InterviewConfig    `json:"config"`
	Transcript  []Message          `json:"transcript"`
	Analyses    []QuestionAnalysis `json:"analyses"`
	StartTime   int64              `json:"start_time"`
	EndTime     int64              `json:"end_time,omitempty"`
	FinalReport *FinalReport       `json:"final_report,omitempty"`
}

// State is the observable orchestrator state pushed to subscribers.
type State struct {
	ConnectionState      ConnectionState    `json:"connection_state"`
	Config               InterviewConfig    `json:"config"`
	Transcript           []Message          `json:"transcript"`
	Analyses             []QuestionAnalysis `json:"analyses"`
	CurrentQuestionIndex int                `json:"current_question_index"`
	TotalQuestions       int                `json:"total_questions"`
	CurrentQuestionText  string             `json:"current_question_text"`
	RealtimeInputText    string             `json:"realtime_input_text"`
	AvatarBehavior       BehaviorState      `json:"avatar_behavior"`
	IsAISpeaking         bool               `json:"is_ai_speaking"`
}

// QuestionPlan maps interview duration to question count and topic mix.
// Ten minutes covers three questions; each tier up adds depth.
func QuestionPlan(durationMinutes int) (count int, topicMix string) {
	switch {
	case durationMinutes >= 30:
		return 7, "2 Resume Deep-Dive, 2 Behavioral, 3 Technical (Role-Specific Scenarios)"
	case durationMinutes >= 20:
		return 5, "2 Resume Deep-Dive, 1 Behavioral, 2 Technical (Role-Specific Scenarios)"
	default:
		return 3, "1 Resume Deep-Dive, 1 Behavioral, 1 Technical Scenario"
	}
}

// resumeContextLimit caps how much resume text goes into the prompt.
const resumeContextLimit = 2000

// BuildInstructions renders the interviewer system prompt for a session.
func BuildInstructions(cfg InterviewConfig) string {
	questionCount, topicMix := QuestionPlan(cfg.Duration)

	roleTitle := "Candidate"
	if cfg.Role != nil && cfg.Role.Title != "" {
		roleTitle = cfg.Role.Title
	}

	resume := cfg.ResumeText
	if len(resume) > resumeContextLimit {
		resume = resume[:resumeContextLimit]
	}

	return fmt.Sprintf(`You are Sarah, an expert AI Interview Coach.

SESSION PLAN:
- Role: %s (%s)
- Duration: %d mins
- Target Question Count: %d
- Topic Strategy: %s
- Difficulty: %s
- Resume Context: %s...

INTERVIEW PHASES:
1. **Introduction**: Brief welcome (keep it short).
2. **Execution**: Ask questions following the Topic Strategy.
3. **Wrap-up**: Brief closing after %d questions.

BEHAVIOR:
- You are conducting a spoken interview.
- Ask ONE question at a time.
- **Resume Questions**: Ask specific questions about their actual projects, roles, or skills mentioned in the Resume Context.
- **Technical/Scenario Questions**: Do NOT just ask definitions. Ask for **Role-Specific Scenarios** (e.g., "How would you design X system?" or "A client disagrees with Y, what do you do?") relevant to the JD and Role.
- **Behavioral Questions**: Focus on soft skills and STAR method.
- Wait for the user to finish speaking. Do not interrupt natural pauses (ums, ahs).
- If the user is silent for a while, wait.
- Do NOT mention "Question 1 of 5" explicitly, just ask naturally.
- If the user gives a short answer, drill down.

AVATAR CONTROL:
- Call `+"`set_avatar_behavior`"+` at the start of every turn to match your tone.
- Use 'attentive' when listening, 'slight_smile' when greeting, 'thinking' when analyzing.

HIDDEN TOOLS:
- When the candidate finishes an answer and you are satisfied (or want to move on), call `+"`save_assessment`"+`.
- Calling this tool marks the question as "Done".
- **CRITICAL ASSESSMENT RULES**:
  - You must be highly specific in your feedback.
  - **strengths**: Do not just say "Good communication". Say "Effective use of the STAR method to structure the conflict resolution story."
  - **areas_for_improvement**: Do not just say "Speak clearer". Say "The answer lacked technical depth regarding the database schema choice; mention specific trade-offs (e.g., SQL vs NoSQL)."
  - Evaluate the **content** (depth, relevance, correctness) and **delivery** (structure, tone).`,
		roleTitle, cfg.Industry, cfg.Duration, questionCount, topicMix, cfg.Difficulty,
		resume, questionCount)
}

// nowMillis is the transcript timestamp convention.
func nowMillis(t time.Time) int64 {
	return t.UnixMilli()
}
