package workflow

import (
	"sort"
	"strings"
)

// FilterTasks applies local filtering for criteria the upstream API does
// not support server-side. Search matches display name, state, and field
// names/values, case-insensitively.
func FilterTasks(tasks []Task, filter Filter) []Task {
	out := tasks

	if query := strings.ToLower(strings.TrimSpace(filter.SearchQuery)); query != "" {
		var matched []Task
		for _, task := range out {
			if taskMatchesQuery(task, query) {
				matched = append(matched, task)
			}
		}
		out = matched
	}

	if len(filter.States) > 0 {
		wanted := map[string]bool{}
		for _, state := range filter.States {
			wanted[strings.ToLower(strings.TrimSpace(state))] = true
		}
		var matched []Task
		for _, task := range out {
			if wanted[strings.ToLower(task.State)] {
				matched = append(matched, task)
			}
		}
		out = matched
	}

	if len(filter.CorrelationIDs) > 0 {
		var matched []Task
		for _, task := range out {
			if hasAnyCorrelationID(task, filter.CorrelationIDs) {
				matched = append(matched, task)
			}
		}
		out = matched
	}

	return out
}

func taskMatchesQuery(task Task, query string) bool {
	if strings.Contains(strings.ToLower(task.TaskDefinitionDisplayName), query) {
		return true
	}
	if strings.Contains(strings.ToLower(task.State), query) {
		return true
	}
	for _, field := range task.Fields {
		if strings.Contains(strings.ToLower(field.Name), query) {
			return true
		}
		if field.Value != "" && strings.Contains(strings.ToLower(field.Value), query) {
			return true
		}
	}
	return false
}

func hasAnyCorrelationID(task Task, wanted []string) bool {
	for _, id := range wanted {
		for _, have := range task.CorrelationIDs {
			if id == have {
				return true
			}
		}
	}
	return false
}

// GroupByUltimateParent groups tasks under their ultimate parent. A task
// with no ultimate parent (or pointing at itself) roots its own group;
// children whose parent is absent from the input are dropped. Groups are
// sorted newest parent first.
func GroupByUltimateParent(tasks []Task) []Group {
	groups := map[string]*Group{}

	for _, task := range tasks {
		if task.UltimateParentTask == nil || task.ID == task.UltimateParentTask.ID {
			if _, ok := groups[task.ID]; !ok {
				groups[task.ID] = &Group{UltimateParent: task, TotalCount: 1}
			}
		}
	}

	for _, task := range tasks {
		if task.UltimateParentTask == nil || task.ID == task.UltimateParentTask.ID {
			continue
		}
		if group, ok := groups[task.UltimateParentTask.ID]; ok {
			group.Children = append(group.Children, task)
			group.TotalCount = len(group.Children) + 1
		}
	}

	out := make([]Group, 0, len(groups))
	for _, group := range groups {
		out = append(out, *group)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].UltimateParent.Version.AsAtCreated, out[j].UltimateParent.Version.AsAtCreated
		if a != b {
			return a > b
		}
		return out[i].UltimateParent.ID < out[j].UltimateParent.ID
	})
	return out
}
