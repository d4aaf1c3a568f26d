// Package taskstate applies role-tagged patches to a single task record.
//
// Contractors and site incharges own disjoint halves of a task. Each role has its
// own patch type, so a contractor patch has no way to address the review track and
// a reviewer patch has no way to address the contractor track. All functions are
// pure: they return a new task and never touch the input's slices.
package taskstate

import (
	"strings"
	"time"

	"sitework/internal/domain"
)

// ProgressPolicy controls how a reported progress value is reconciled with the stored one.
type ProgressPolicy string

const (
	// ProgressOverwrite accepts any value in range, including decreases.
	ProgressOverwrite ProgressPolicy = "overwrite"
	// ProgressMonotonic rejects values lower than the stored progress.
	ProgressMonotonic ProgressPolicy = "monotonic"
)

// Valid reports whether p is a known policy.
func (p ProgressPolicy) Valid() bool {
	return p == ProgressOverwrite || p == ProgressMonotonic
}

// ContractorPatch is the full update a contractor may send.
type ContractorPatch struct {
	Status        *string  `json:"status,omitempty"`
	Progress      *int     `json:"progress_percentage,omitempty"`
	Photos        []string `json:"photos,omitempty"`
	RemovePhotos  []string `json:"remove_photos,omitempty"`
	ShouldSubmit  bool     `json:"should_submit,omitempty"`
	EvidenceTitle *string  `json:"evidence_title,omitempty"`
	Phase         *string  `json:"construction_phase,omitempty"`
}

func (p ContractorPatch) empty() bool {
	return p.Status == nil && p.Progress == nil && len(p.Photos) == 0 && len(p.RemovePhotos) == 0 &&
		!p.ShouldSubmit && p.EvidenceTitle == nil && p.Phase == nil
}

// ReviewerPatch is the update a site incharge may send.
type ReviewerPatch struct {
	Status               *string  `json:"status,omitempty"`
	Photos               []string `json:"site_incharge_uploaded_photos,omitempty"`
	Note                 *string  `json:"note,omitempty"`
	QualityAssessment    *string  `json:"quality_assessment,omitempty"`
	VerificationDecision *string  `json:"verification_decision,omitempty"`
}

func (p ReviewerPatch) empty() bool {
	return p.Status == nil && len(p.Photos) == 0 && p.Note == nil && p.QualityAssessment == nil &&
		p.VerificationDecision == nil
}

// MiniPatch is the lightweight contractor update. It skips the explicit submission
// step: reaching 100% or reporting "completed" counts as a submission.
type MiniPatch struct {
	Phase    *string `json:"phase,omitempty"`
	Progress *int    `json:"progress,omitempty"`
	Status   *string `json:"status,omitempty"`
}

func (p MiniPatch) empty() bool {
	return p.Phase == nil && p.Progress == nil && p.Status == nil
}

// ApplyContractor applies p to the contractor track of t.
func ApplyContractor(t domain.Task, p ContractorPatch, now time.Time, policy ProgressPolicy) (domain.Task, error) {
	if p.empty() {
		return t, domain.Invalid("patch", "no fields to update")
	}
	out := t
	work := t.Work
	work.Photos = removeRefs(t.Work.Photos, p.RemovePhotos)
	work.Photos = appendRefs(work.Photos, p.Photos)
	if p.Status != nil {
		status, err := cleanStatus(*p.Status)
		if err != nil {
			return t, err
		}
		work.Status = status
	}
	if p.Progress != nil {
		progress, err := reconcileProgress(t.Work.Progress, *p.Progress, policy)
		if err != nil {
			return t, err
		}
		work.Progress = progress
	}
	if p.ShouldSubmit {
		ts := stamp(now)
		work.SubmittedOn = &ts
		work.Approved = true
	}
	if p.EvidenceTitle != nil {
		work.EvidenceTitle = strings.TrimSpace(*p.EvidenceTitle)
	}
	if p.Phase != nil {
		out.ConstructionPhase = strings.TrimSpace(*p.Phase)
	}
	out.Work = work
	return out, nil
}

// ApplyReviewer applies p to the review track of t.
func ApplyReviewer(t domain.Task, p ReviewerPatch, now time.Time) (domain.Task, error) {
	if p.empty() {
		return t, domain.Invalid("patch", "no fields to update")
	}
	out := t
	review := t.Review
	review.Photos = appendRefs(t.Review.Photos, p.Photos)
	if p.Status != nil {
		status, err := cleanStatus(*p.Status)
		if err != nil {
			return t, err
		}
		review.Status = status
	}
	if p.Note != nil {
		review.Note = *p.Note
	}
	if p.QualityAssessment != nil {
		review.QualityAssessment = *p.QualityAssessment
	}
	if p.VerificationDecision != nil {
		decision, err := cleanStatus(*p.VerificationDecision)
		if err != nil {
			return t, domain.Invalid("verification_decision", "must not be empty")
		}
		review.VerificationDecision = decision
		review.Status = decision
		if strings.ToLower(decision) == domain.StatusApproved {
			review.Approved = true
		}
		ts := stamp(now)
		review.SubmittedOn = &ts
	}
	out.Review = review
	return out, nil
}

// ApplyMini applies the lightweight contractor update.
func ApplyMini(t domain.Task, p MiniPatch, policy ProgressPolicy) (domain.Task, error) {
	if p.empty() {
		return t, domain.Invalid("patch", "no fields to update")
	}
	out := t
	if p.Phase != nil {
		out.ConstructionPhase = strings.TrimSpace(*p.Phase)
	}
	if p.Progress != nil {
		progress, err := reconcileProgress(t.Work.Progress, *p.Progress, policy)
		if err != nil {
			return t, err
		}
		out.Work.Progress = progress
	}
	if p.Status != nil {
		status, err := cleanStatus(*p.Status)
		if err != nil {
			return t, err
		}
		out.Work.Status = status
	}
	if (p.Progress != nil && *p.Progress == 100) || (p.Status != nil && out.Work.Status == domain.StatusCompleted) {
		out.Work.Approved = true
	}
	return out, nil
}

func reconcileProgress(current, next int, policy ProgressPolicy) (int, error) {
	if next < 0 || next > 100 {
		return current, domain.Invalid("progress_percentage", "must be between 0 and 100, got %d", next)
	}
	if policy == ProgressMonotonic && next < current {
		return current, domain.Invalid("progress_percentage", "cannot decrease from %d to %d", current, next)
	}
	return next, nil
}

func cleanStatus(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", domain.Invalid("status", "must not be empty")
	}
	return s, nil
}

func removeRefs(photos, remove []string) []string {
	out := make([]string, 0, len(photos))
	if len(remove) == 0 {
		return append(out, photos...)
	}
	drop := make(map[string]struct{}, len(remove))
	for _, r := range remove {
		drop[r] = struct{}{}
	}
	for _, p := range photos {
		if _, ok := drop[p]; ok {
			continue
		}
		out = append(out, p)
	}
	return out
}

func appendRefs(photos, add []string) []string {
	out := make([]string, 0, len(photos)+len(add))
	out = append(out, photos...)
	for _, a := range add {
		if strings.TrimSpace(a) == "" {
			continue
		}
		out = append(out, a)
	}
	return out
}

func stamp(now time.Time) string {
	return now.UTC().Format(time.RFC3339)
}
