package sessions

import (
	"errors"
	"fmt"

	"github.com/hkoeze/chekhov-examiner-2/internal/models"
)

// ErrIneligible is returned when a session's status does not allow the
// requested transition.
var ErrIneligible = errors.New("transition not allowed from current status")

// edges is the forward-only transition graph. Self-loops are handled by the
// individual transition methods.
var edges = map[models.Status][]models.Status{
	models.StatusSubmitted:       {models.StatusDefenseStarted, models.StatusDefenseComplete},
	models.StatusDefenseStarted:  {models.StatusDefenseComplete},
	models.StatusDefenseComplete: {models.StatusGraded},
	models.StatusGraded:          {models.StatusReviewed},
}

// CanTransition reports whether the graph has an edge from -> to.
func CanTransition(from, to models.Status) bool {
	for _, next := range edges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CanFetchEssay reports whether the examiner may retrieve the paper. Retrieval
// stays open for the whole defense so a dropped call can reconnect.
func CanFetchEssay(s models.Status) bool {
	return s == models.StatusSubmitted || s == models.StatusDefenseStarted
}

// Machine computes the field changes for each lifecycle step. It never touches
// storage; callers write the returned Update with the observed status as the
// expected one.
type Machine struct {
	// AllowReingest lets a second transcript for a DefenseComplete session
	// replace the first one and restamp defenseEndedAt.
	AllowReingest bool
}

// StartDefense handles an essay fetch. The first fetch moves Submitted to
// DefenseStarted and stamps the start time; later fetches while the defense
// is running change nothing (changed is false).
func (m Machine) StartDefense(sess *models.Session, now int64) (upd Update, changed bool, err error) {
	switch sess.Status {
	case models.StatusSubmitted:
		status := models.StatusDefenseStarted
		return Update{Status: &status, DefenseStartedAt: &now}, true, nil
	case models.StatusDefenseStarted:
		return Update{}, false, nil
	default:
		return Update{}, false, ineligible(sess.Status, models.StatusDefenseStarted)
	}
}

// CompleteDefense records the transcript. Status, transcript and end time are
// returned as one Update so they are written together.
func (m Machine) CompleteDefense(sess *models.Session, transcript, conversationID string, now int64) (Update, error) {
	target := models.StatusDefenseComplete
	reingest := m.AllowReingest && sess.Status == models.StatusDefenseComplete
	if !reingest && !CanTransition(sess.Status, target) {
		return Update{}, ineligible(sess.Status, target)
	}
	upd := Update{
		Status:         &target,
		DefenseEndedAt: &now,
		TranscriptText: &transcript,
	}
	if conversationID != "" {
		upd.ConversationID = &conversationID
	}
	return upd, nil
}

// Grade records the grading collaborator's verdict.
func (m Machine) Grade(sess *models.Session, grade, comments string) (Update, error) {
	target := models.StatusGraded
	if !CanTransition(sess.Status, target) {
		return Update{}, ineligible(sess.Status, target)
	}
	return Update{Status: &target, Grade: &grade, Comments: &comments}, nil
}

// Review records the instructor's final decision.
func (m Machine) Review(sess *models.Session, finalGrade, notes string) (Update, error) {
	target := models.StatusReviewed
	if !CanTransition(sess.Status, target) {
		return Update{}, ineligible(sess.Status, target)
	}
	return Update{Status: &target, FinalGrade: &finalGrade, InstructorNotes: &notes}, nil
}

func ineligible(from, to models.Status) error {
	return fmt.Errorf("%w: %s -> %s", ErrIneligible, from, to)
}
