package session

// State is the mutable cross-cycle scratch space of a run. It is read when
// prompts are rendered and written only by dispatched commands, always from
// the loop goroutine.
type State struct {
	actionPlan string
	notes      string
}

// Snapshot is a point-in-time copy of State.
type Snapshot struct {
	ActionPlan string `json:"actionPlan"`
	Notes      string `json:"notes"`
}

// NewState returns an empty state.
func NewState() *State {
	return &State{}
}

// ActionPlan returns the current action plan.
func (s *State) ActionPlan() string {
	return s.actionPlan
}

// Notes returns the current notes.
func (s *State) Notes() string {
	return s.notes
}

// SetActionPlan replaces the action plan and returns the stored value.
func (s *State) SetActionPlan(plan string) string {
	s.actionPlan = plan
	return s.actionPlan
}

// ClearActionPlan empties the action plan and returns the previous value.
func (s *State) ClearActionPlan() string {
	previous := s.actionPlan
	s.actionPlan = ""
	return previous
}

// WriteNotes overwrites the notes, or appends on a new line when appendMode
// is set and notes already exist. It returns the stored value.
func (s *State) WriteNotes(notes string, appendMode bool) string {
	if appendMode && s.notes != "" {
		s.notes = s.notes + "\n" + notes
	} else {
		s.notes = notes
	}
	return s.notes
}

// Snapshot copies the current state.
func (s *State) Snapshot() Snapshot {
	return Snapshot{
		ActionPlan: s.actionPlan,
		Notes:      s.notes,
	}
}
