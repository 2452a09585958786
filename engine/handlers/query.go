package handlers

import (
	"slices"
	"strings"

	"github.com/compozy/workflowkit/engine/client"
	"github.com/compozy/workflowkit/engine/core"
	"github.com/compozy/workflowkit/engine/handler"
)

// Query filters a handler collection. Empty lists match everything.
type Query struct {
	WorkflowNames []string         `json:"workflow_name,omitempty"`
	Statuses      []core.RunStatus `json:"status,omitempty"`
}

// Normalize returns the query with sorted, de-duplicated lists.
func (q Query) Normalize() Query {
	names := slices.Clone(q.WorkflowNames)
	slices.Sort(names)
	names = slices.Compact(names)
	statuses := slices.Clone(q.Statuses)
	slices.Sort(statuses)
	statuses = slices.Compact(statuses)
	if len(names) == 0 {
		names = nil
	}
	if len(statuses) == 0 {
		statuses = nil
	}
	return Query{WorkflowNames: names, Statuses: statuses}
}

// Key identifies the query by value. Equivalent queries share a key.
func (q Query) Key() string {
	n := q.Normalize()
	statuses := make([]string, len(n.Statuses))
	for i, s := range n.Statuses {
		statuses[i] = string(s)
	}
	return "workflow_name=" + strings.Join(n.WorkflowNames, ",") + "&status=" + strings.Join(statuses, ",")
}

func (q Query) filter() client.HandlerFilter {
	n := q.Normalize()
	filter := client.HandlerFilter{WorkflowNames: n.WorkflowNames}
	for _, s := range n.Statuses {
		filter.Statuses = append(filter.Statuses, string(s))
	}
	return filter
}

// Matches reports whether st satisfies the query.
func (q Query) Matches(st handler.State) bool {
	if len(q.WorkflowNames) > 0 && !slices.Contains(q.WorkflowNames, st.WorkflowName) {
		return false
	}
	if len(q.Statuses) > 0 && !slices.Contains(q.Statuses, st.Status) {
		return false
	}
	return true
}
