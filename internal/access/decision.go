// Package access runs the scan pipeline and records the audit trail.
package access

import (
	"fmt"
	"time"

	"github.com/kozaktomas/lab-access/internal/database"
	"github.com/kozaktomas/lab-access/internal/matcher"
)

// Decision reasons recorded on access events.
const (
	ReasonMatched        = "Matched"
	ReasonNoFaceDetected = "NoFaceDetected"
	ReasonNoMatch        = "NoMatch"
	ReasonScopeMismatch  = "ScopeMismatch"
	ReasonInternalError  = "InternalError"
)

// Decision is the outcome of one scan.
type Decision struct {
	Granted     bool      `json:"granted"`
	MemberID    *int64    `json:"member_id,omitempty"`
	DisplayName string    `json:"display_name,omitempty"`
	LabID       int64     `json:"lab_id"`
	Reason      string    `json:"reason"`
	Distance    *float64  `json:"distance,omitempty"`
	FirstVisit  bool      `json:"first_visit,omitempty"`
	Message     string    `json:"message"`
	EventID     string    `json:"event_id"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Decide grants access only when the match points at a template of the
// scanned lab. The matcher is already scoped to the lab; this check runs again
// regardless.
func Decide(scanLab int64, match matcher.MatchResult, tpl *database.Template) Decision {
	d := Decision{LabID: scanLab, Reason: ReasonNoMatch}
	if match.HasDistance() {
		dist := match.Distance
		d.Distance = &dist
	}

	if !match.Matched || tpl == nil || tpl.MemberID != match.MemberID {
		return d
	}

	id := tpl.MemberID
	d.MemberID = &id
	d.DisplayName = tpl.DisplayName()
	if tpl.LabID != scanLab {
		d.Reason = ReasonScopeMismatch
		return d
	}
	d.Granted = true
	d.Reason = ReasonMatched
	return d
}

// denied builds a decision for paths that never reach the matcher.
func denied(scanLab int64, reason string) Decision {
	return Decision{LabID: scanLab, Reason: reason}
}

// event converts a decision to its audit record.
func (d Decision) event() database.AccessEvent {
	decision := database.DecisionDenied
	if d.Granted {
		decision = database.DecisionGranted
	}
	return database.AccessEvent{
		ID:         d.EventID,
		MemberID:   d.MemberID,
		LabID:      d.LabID,
		OccurredAt: d.OccurredAt,
		Decision:   decision,
		Reason:     d.Reason,
		Distance:   d.Distance,
	}
}

// message returns the text shown at the door.
func (d Decision) message() string {
	switch d.Reason {
	case ReasonMatched:
		if d.FirstVisit {
			return fmt.Sprintf("Welcome to the lab, %s!", d.DisplayName)
		}
		return fmt.Sprintf("Welcome back, %s!", d.DisplayName)
	case ReasonNoFaceDetected:
		return "Access denied: no face detected."
	case ReasonScopeMismatch:
		return "Access denied: you are not a member of this lab."
	case ReasonInternalError:
		return "Access denied: the scanner is unavailable, please try again."
	default:
		return "Access denied: face not recognized."
	}
}
