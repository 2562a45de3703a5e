package service

import (
	"time"

	"github.com/noah-isme/gema-classroom-api/internal/models"
)

// VisibilityInput holds everything needed to decide whether a node is open to a student.
type VisibilityInput struct {
	Node          models.ContentNode
	Now           time.Time
	ParentVisible bool
	// PreviousCompleted reports that the preceding sibling was completed by the student.
	PreviousCompleted bool
}

// VisibilityDecision is the evaluated state of a content node.
type VisibilityDecision struct {
	Visible    bool
	UnlockedAt *time.Time
}

var hidden = VisibilityDecision{}

// EvaluateVisibility applies the node's policy. Chapters pass ParentVisible=true.
func EvaluateVisibility(in VisibilityInput) VisibilityDecision {
	if !in.ParentVisible {
		return hidden
	}

	switch in.Node.Policy {
	case models.VisibilityDateBased:
		if !withinWindow(in.Node, in.Now) {
			return hidden
		}
		from := *in.Node.VisibleFrom
		return VisibilityDecision{Visible: true, UnlockedAt: &from}
	case models.VisibilityProgressBased:
		if in.Node.Order == 1 || in.PreviousCompleted {
			now := in.Now
			return VisibilityDecision{Visible: true, UnlockedAt: &now}
		}
		return hidden
	default:
		return hidden
	}
}

func withinWindow(node models.ContentNode, now time.Time) bool {
	if node.VisibleFrom == nil || now.Before(*node.VisibleFrom) {
		return false
	}
	return node.VisibleUntil == nil || !now.After(*node.VisibleUntil)
}

// unlocksAfterCompletion reports whether node takes part in completion unlocks.
// Only PROGRESS_BASED nodes qualify; RequiresPrevious never opens MANUAL or DATE_BASED content.
func unlocksAfterCompletion(node models.ContentNode) bool {
	return node.Policy == models.VisibilityProgressBased
}
