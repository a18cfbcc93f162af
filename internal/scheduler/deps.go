package scheduler

import "github.com/seantiz/foreman/internal/model"

// Eligible reports whether a task's dependencies are satisfied: every id in
// dependsOn must map to a task in a successful terminal state (completed or
// approved). A missing dependency (deleted task) counts as unmet, so the
// dependent stays blocked rather than silently running. A dependency that
// ended failed, rejected, or cancelled also counts as unmet: there is no
// cascade failure, the dependent waits until cancelled externally.
//
// Cycles are not detected here; a cycle simply leaves its members blocked.
func Eligible(task *model.Task, byID map[string]*model.Task) bool {
	for _, depID := range task.DependsOn {
		dep, ok := byID[depID]
		if !ok {
			return false
		}
		if !model.IsSuccessTerminal(dep.Status) {
			return false
		}
	}
	return true
}
