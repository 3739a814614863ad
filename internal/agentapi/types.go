// Package agentapi implements the agent control API (spec.md §4.6): task
// info, terminal outcome intake, and the synchronous inquiry round-trip.
package agentapi

// FailureReason classifies why an agent reported /agent/task/fail.
type FailureReason string

const (
	ReasonTechnicalIssues FailureReason = "TechnicalIssues"
	ReasonTaskIssues      FailureReason = "TaskIssues"
	ReasonProblemSolving  FailureReason = "ProblemSolving"
)

// Task is the JSON body of GET /agent/task.
type Task struct {
	Status       string `json:"status"`
	Description  string `json:"description"`
	GitUserName  string `json:"git_user_name"`
	GitUserEmail string `json:"git_user_email"`
	GitRepoURL   string `json:"git_repo_url"`
	GitBranch    string `json:"git_branch"`
}

// TaskCompletion is the JSON body of POST /agent/task/complete.
type TaskCompletion struct {
	Description string `json:"description"`
}

// TaskFailure is the JSON body of POST /agent/task/fail.
type TaskFailure struct {
	Reason      FailureReason `json:"reason,omitempty"`
	Description string        `json:"description"`
}

// Inquiry is the JSON body of POST /agent/inquiry.
type Inquiry struct {
	Inquiry string `json:"inquiry"`
}
