package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/hay-kot/scrub/internal/core/finding"
)

// taskGroup is the unit of parallelism in the executing phase: all tasks
// targeting one file, executed strictly in order.
type taskGroup struct {
	file    string
	taskIDs []string
}

// partitionTasks groups tasks by target file, preserving first-seen file
// order and task order within each file. Disjoint file ownership is the
// mutual-exclusion mechanism; no locking guards the files themselves.
func partitionTasks(tasks []finding.Task) []taskGroup {
	var groups []taskGroup
	index := map[string]int{}
	for _, t := range tasks {
		i, ok := index[t.File]
		if !ok {
			i = len(groups)
			index[t.File] = i
			groups = append(groups, taskGroup{file: t.File})
		}
		groups[i].taskIDs = append(groups[i].taskIDs, t.ID)
	}
	return groups
}

// runExecute drives the parallel task scheduler. Every file-group runs
// concurrently with no cap; each group gets its own fresh agent session so
// context never bleeds between files. The phase always proceeds to
// verification once every group settles, regardless of failures.
func (o *Orchestrator) runExecute(ctx context.Context) {
	groups := partitionTasks(o.Tasks())

	var wg sync.WaitGroup
	for _, g := range groups {
		wg.Add(1)
		go func(g taskGroup) {
			defer wg.Done()
			o.runGroup(ctx, g)
		}(g)
	}
	wg.Wait()

	tasks := o.Tasks()
	if err := o.store.WriteTasks(tasks); err != nil {
		o.log.Error().Err(err).Msg("persist task results")
	}

	completed, failed := 0, 0
	for _, t := range tasks {
		switch t.Status {
		case finding.TaskCompleted:
			completed++
		case finding.TaskFailed:
			failed++
		}
	}
	o.store.Log("execution finished: %d completed, %d failed", completed, failed)
}

// runGroup executes one file-group sequentially. A task failure is
// recorded and the group moves on; it never aborts siblings.
func (o *Orchestrator) runGroup(ctx context.Context, g taskGroup) {
	session := o.client.NewSession(o.cfg.Models.Executing)

	for _, id := range g.taskIDs {
		task, ok := o.taskByID(id)
		if !ok {
			continue
		}

		o.setTaskStatus(id, finding.TaskInProgress, "")
		src := findingByID(o.Findings(), task.SourceFindingID)

		prompt, err := fixPrompt(task, src)
		if err == nil {
			err = session.Submit(ctx, prompt, o.onAgentUpdate)
		}

		if err != nil {
			o.setTaskStatus(id, finding.TaskFailed, err.Error())
			o.store.Log("task %s failed: %v", id, err)
			continue
		}
		o.setTaskStatus(id, finding.TaskCompleted, "")
		o.store.Log("task %s completed (%s)", id, g.file)
	}
}

func (o *Orchestrator) taskByID(id string) (finding.Task, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, t := range o.tasks {
		if t.ID == id {
			return t, true
		}
	}
	return finding.Task{}, false
}

func (o *Orchestrator) setTaskStatus(id string, status finding.TaskStatus, errText string) {
	o.mu.Lock()
	for i := range o.tasks {
		if o.tasks[i].ID == id {
			o.tasks[i].Status = status
			o.tasks[i].Error = errText
			break
		}
	}
	o.mu.Unlock()

	o.publish(Event{Kind: EventTask, Text: fmt.Sprintf("%s %s", id, status)})
}
