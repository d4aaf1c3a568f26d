// Package aggregate flattens project unit tasks into role-shaped read models.
// It works only on data already loaded by the caller and performs no lookups.
package aggregate

import (
	"math"
	"sort"

	"sitework/internal/domain"
	"sitework/internal/visibility"
)

const (
	defaultProjectName    = "Unnamed Project"
	defaultPlace          = "N/A"
	defaultContractorName = "Unknown Contractor"
	defaultTaskTitle      = "Untitled Task"
)

// TaskView is a task with the denormalized fields a list screen needs.
type TaskView struct {
	Task           domain.Task `json:"task"`
	Status         string      `json:"status"`
	Completed      bool        `json:"completed"`
	ProjectName    string      `json:"project_name"`
	BuildingID     string      `json:"building_id"`
	FloorUnitID    string      `json:"floor_unit_id"`
	UnitID         string      `json:"unit_id"`
	ContractorName string      `json:"contractor_name"`
}

// Scope describes who is reading. Owners applies to roles without a built-in task view.
type Scope struct {
	Actor  domain.Actor
	Owners visibility.Filter
	Names  map[string]string
}

// Flatten walks projects, units (sorted by id) and tasks (by position) and keeps the
// tasks visible to the scope, sorted by priority.
func Flatten(projects []domain.Project, s Scope) []TaskView {
	var out []TaskView
	for _, p := range projects {
		for _, unitID := range unitIDs(p) {
			for _, t := range p.Units[unitID] {
				if !visible(t, s) {
					continue
				}
				out = append(out, view(p, unitID, t, s))
			}
		}
	}
	SortByPriority(out)
	return out
}

func visible(t domain.Task, s Scope) bool {
	switch s.Actor.Role {
	case domain.RoleSiteIncharge:
		return t.Work.Approved && t.Work.Status == domain.StatusCompleted && !t.Review.Approved
	case domain.RoleContractor:
		return t.Contractor == s.Actor.ID
	case domain.RoleOwner, domain.RoleAdmin, domain.RoleCustomerPurchased:
		return true
	default:
		return s.Owners.Match(t.AddedBy)
	}
}

func view(p domain.Project, unitID string, t domain.Task, s Scope) TaskView {
	if t.Title == "" {
		t.Title = defaultTaskTitle
	}
	if t.Priority == "" {
		t.Priority = domain.PriorityUnspecified
	}
	v := TaskView{
		Task:           t,
		Completed:      t.EffectivelyComplete(),
		ProjectName:    orDefault(p.Name, defaultProjectName),
		BuildingID:     orDefault(p.BuildingID, defaultPlace),
		FloorUnitID:    orDefault(p.FloorUnitID, defaultPlace),
		UnitID:         orDefault(unitID, defaultPlace),
		ContractorName: orDefault(s.Names[t.Contractor], defaultContractorName),
	}
	switch s.Actor.Role {
	case domain.RoleSiteIncharge:
		v.Status = orDefault(t.Review.Status, domain.StatusPendingVerification)
	default:
		v.Status = orDefault(t.Work.Status, domain.StatusInProgress)
	}
	return v
}

// SortByPriority orders views high to low; equal priorities keep encounter order.
func SortByPriority(views []TaskView) {
	sort.SliceStable(views, func(i, j int) bool {
		return views[i].Task.Priority.Rank() > views[j].Task.Priority.Rank()
	})
}

// UnitProgress is the rollup of one unit's tasks.
type UnitProgress struct {
	BuildingID      string `json:"building_id"`
	FloorUnitID     string `json:"floor_unit_id"`
	UnitID          string `json:"unit_id"`
	TotalTasks      int    `json:"total_tasks"`
	OverallProgress int    `json:"overall_progress"`
}

// Progress computes the rounded mean progress; zero when there are no tasks.
func Progress(tasks []domain.Task) (total, overall int) {
	if len(tasks) == 0 {
		return 0, 0
	}
	sum := 0
	for _, t := range tasks {
		sum += t.Work.Progress
	}
	return len(tasks), int(math.Round(float64(sum) / float64(len(tasks))))
}

// CompletedInUnit keeps tasks the contractor completed and the reviewer approved.
func CompletedInUnit(tasks []domain.Task) []domain.Task {
	var out []domain.Task
	for _, t := range tasks {
		if t.Work.Status == domain.StatusCompleted && t.Review.Approved {
			out = append(out, t)
		}
	}
	return out
}

type ContractorSummary struct {
	ContractorID   string  `json:"contractor_id"`
	Name           string  `json:"name"`
	TotalTasks     int     `json:"total_tasks"`
	CompletedTasks int     `json:"completed_tasks"`
	CompletionRate float64 `json:"completion_rate"`
}

// ContractorSummaries counts tasks per contractor across projects, in first-seen order.
func ContractorSummaries(projects []domain.Project, names map[string]string) []ContractorSummary {
	index := map[string]int{}
	var out []ContractorSummary
	add := func(id string) int {
		if i, ok := index[id]; ok {
			return i
		}
		index[id] = len(out)
		out = append(out, ContractorSummary{ContractorID: id, Name: orDefault(names[id], defaultContractorName)})
		return len(out) - 1
	}
	for _, p := range projects {
		for _, c := range p.Contractors {
			add(c)
		}
		for _, unitID := range unitIDs(p) {
			for _, t := range p.Units[unitID] {
				if t.Contractor == "" {
					continue
				}
				i := add(t.Contractor)
				out[i].TotalTasks++
				if t.EffectivelyComplete() {
					out[i].CompletedTasks++
				}
			}
		}
	}
	for i := range out {
		if out[i].TotalTasks > 0 {
			rate := float64(out[i].CompletedTasks) / float64(out[i].TotalTasks) * 100
			out[i].CompletionRate = math.Round(rate*10) / 10
		}
	}
	return out
}

// ContractorTasks lists one contractor's tasks for a reviewer; effectively complete
// tasks show as completed whatever the contractor last reported.
func ContractorTasks(projects []domain.Project, contractorID string, names map[string]string) []TaskView {
	var out []TaskView
	s := Scope{Actor: domain.Actor{ID: contractorID, Role: domain.RoleContractor}, Names: names}
	for _, p := range projects {
		for _, unitID := range unitIDs(p) {
			for _, t := range p.Units[unitID] {
				if t.Contractor != contractorID {
					continue
				}
				v := view(p, unitID, t, s)
				if v.Completed {
					v.Status = domain.StatusCompleted
				}
				out = append(out, v)
			}
		}
	}
	SortByPriority(out)
	return out
}

func unitIDs(p domain.Project) []string {
	ids := make([]string, 0, len(p.Units))
	for id := range p.Units {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
