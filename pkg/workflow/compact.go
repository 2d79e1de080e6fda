package workflow

import (
	"fmt"
	"strings"
)

// contextHeader marks compact task context so prior injections can be
// detected and not duplicated.
const contextHeader = "task_context:v1"

const (
	maxValueLen = 256
	maxNameLen  = 160
	maxStampLen = 64
)

func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}

// BuildCompactTaskContext renders selected tasks as a pipe-delimited,
// line-oriented context block for the system prompt, grouped by ultimate
// parent:
//
//	task_context:v1
//	parent|<id>|<name>|state:<state>|created:<iso>|children:<count>|corr:<id1,id2>
//	task|<id>|<name>|state:<state>|created:<iso>|terminal:<bool>|stack:<key>|corr:<id1,id2>
//	fields: <k>=<v> | <k>=<v> | ...
//	meta: version.asAtModified=<...> | asAtLastTransition=<...> | ...
func BuildCompactTaskContext(tasks []Task) string {
	if len(tasks) == 0 {
		return contextHeader + "\n(empty)"
	}

	lines := []string{contextHeader}

	groupIDs, grouped := groupForContext(tasks)
	for _, parentID := range groupIDs {
		groupTasks := grouped[parentID]

		parent := groupTasks[0]
		for _, t := range groupTasks {
			if t.ID == parentID {
				parent = t
				break
			}
		}

		lines = append(lines, strings.Join([]string{
			"parent",
			parent.ID,
			clip(parent.TaskDefinitionDisplayName, maxNameLen),
			"state:" + clip(parent.State, maxStampLen),
			"created:" + clip(parent.Version.AsAtCreated, maxStampLen),
			fmt.Sprintf("children:%d", len(groupTasks)-1),
			"corr:" + strings.Join(parent.CorrelationIDs, ","),
		}, "|"))

		for _, t := range groupTasks {
			lines = append(lines, strings.Join([]string{
				"task",
				t.ID,
				clip(t.TaskDefinitionDisplayName, maxNameLen),
				"state:" + clip(t.State, maxStampLen),
				"created:" + clip(t.Version.AsAtCreated, maxStampLen),
				fmt.Sprintf("terminal:%t", t.TerminalState),
				"stack:" + clip(t.StackingKey, maxStampLen),
				"corr:" + strings.Join(t.CorrelationIDs, ","),
			}, "|"))

			if kv := fieldPairs(t.Fields); len(kv) > 0 {
				lines = append(lines, "fields: "+strings.Join(kv, " | "))
			}
			if kv := metaPairs(t); len(kv) > 0 {
				lines = append(lines, "meta: "+strings.Join(kv, " | "))
			}
		}
	}

	return strings.Join(lines, "\n")
}

// HasCompactTaskContext reports whether text already carries a compact
// task context block.
func HasCompactTaskContext(text string) bool {
	return strings.Contains(text, contextHeader)
}

// groupForContext buckets tasks by their ultimate parent id (the task's
// own id when it has no parent), preserving first-seen group order.
func groupForContext(tasks []Task) ([]string, map[string][]Task) {
	grouped := map[string][]Task{}
	var order []string
	for _, t := range tasks {
		parentID := t.ID
		if t.UltimateParentTask != nil && t.UltimateParentTask.ID != "" {
			parentID = t.UltimateParentTask.ID
		}
		if _, ok := grouped[parentID]; !ok {
			order = append(order, parentID)
		}
		grouped[parentID] = append(grouped[parentID], t)
	}
	return order, grouped
}

func fieldPairs(fields []TaskField) []string {
	var kv []string
	for _, f := range fields {
		if f.Name == "" {
			continue
		}
		kv = append(kv, f.Name+"="+clip(f.Value, maxValueLen))
	}
	return kv
}

func metaPairs(t Task) []string {
	var kv []string
	add := func(key, value string) {
		if value != "" {
			kv = append(kv, key+"="+clip(value, maxValueLen))
		}
	}
	add("asAtLastTransition", t.AsAtLastTransition)
	add("actionLogIdCreated", t.ActionLogIDCreated)
	add("actionLogIdModified", t.ActionLogIDModified)
	add("actionLogIdSubmitted", t.ActionLogIDSubmitted)
	add("version.asAtModified", t.Version.AsAtModified)
	add("version.userIdCreated", t.Version.UserIDCreated)
	add("version.userIdModified", t.Version.UserIDModified)
	if t.Version.AsAtVersionNumber != 0 {
		kv = append(kv, fmt.Sprintf("version.asAtVersionNumber=%d", t.Version.AsAtVersionNumber))
	}
	return kv
}
