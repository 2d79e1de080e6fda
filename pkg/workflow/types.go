// Package workflow fetches, filters, and compacts workflow tasks from the
// upstream task API.
package workflow

// TaskDefinitionID identifies a task definition by scope and code.
type TaskDefinitionID struct {
	Scope string `json:"scope"`
	Code  string `json:"code"`
}

// TaskDefinitionVersion carries the definition's modification stamp.
type TaskDefinitionVersion struct {
	AsAtModified string `json:"asAtModified"`
}

// TaskVersion is the audit trail of one task instance.
type TaskVersion struct {
	AsAtCreated       string `json:"asAtCreated"`
	UserIDCreated     string `json:"userIdCreated"`
	RequestIDCreated  string `json:"requestIdCreated"`
	AsAtModified      string `json:"asAtModified"`
	UserIDModified    string `json:"userIdModified"`
	RequestIDModified string `json:"requestIdModified"`
	AsAtVersionNumber int    `json:"asAtVersionNumber"`
}

// TaskField is one named value attached to a task.
type TaskField struct {
	Name  string `json:"name"`
	Value string `json:"value,omitempty"`
}

// TaskReference is a lightweight pointer to a related task.
type TaskReference struct {
	ID                        string                `json:"id"`
	TaskDefinitionID          TaskDefinitionID      `json:"taskDefinitionId"`
	TaskDefinitionVersion     TaskDefinitionVersion `json:"taskDefinitionVersion"`
	TaskDefinitionDisplayName string                `json:"taskDefinitionDisplayName"`
	State                     string                `json:"state"`
}

// Task is one workflow task instance as returned by the upstream API.
type Task struct {
	ID                        string                `json:"id"`
	TaskDefinitionID          TaskDefinitionID      `json:"taskDefinitionId"`
	TaskDefinitionVersion     TaskDefinitionVersion `json:"taskDefinitionVersion"`
	TaskDefinitionDisplayName string                `json:"taskDefinitionDisplayName"`
	State                     string                `json:"state"`
	UltimateParentTask        *TaskReference        `json:"ultimateParentTask,omitempty"`
	ParentTask                *TaskReference        `json:"parentTask,omitempty"`
	ChildTasks                []TaskReference       `json:"childTasks,omitempty"`
	CorrelationIDs            []string              `json:"correlationIds,omitempty"`
	Version                   TaskVersion           `json:"version"`
	TerminalState             bool                  `json:"terminalState"`
	AsAtLastTransition        string                `json:"asAtLastTransition"`
	Fields                    []TaskField           `json:"fields,omitempty"`
	StackingKey               string                `json:"stackingKey,omitempty"`
	ActionLogIDCreated        string                `json:"actionLogIdCreated,omitempty"`
	ActionLogIDModified       string                `json:"actionLogIdModified,omitempty"`
	ActionLogIDSubmitted      string                `json:"actionLogIdSubmitted,omitempty"`
}

// TaskListResponse is the upstream list envelope.
type TaskListResponse struct {
	Values       []Task `json:"values"`
	Href         string `json:"href"`
	NextPage     string `json:"nextPage,omitempty"`
	PreviousPage string `json:"previousPage,omitempty"`
}

// Filter narrows a task list. The upstream API's server-side filters are
// unreliable, so filtering happens locally after a full fetch.
type Filter struct {
	SearchQuery    string
	States         []string
	CorrelationIDs []string
}

// Group is a set of tasks rooted at one ultimate parent.
type Group struct {
	UltimateParent Task   `json:"ultimateParent"`
	Children       []Task `json:"children"`
	TotalCount     int    `json:"totalCount"`
}
