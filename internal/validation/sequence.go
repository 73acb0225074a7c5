package validation

// Step is one stage of an ordered validation sequence.
type Step struct {
	// Label is the classifier or detector label that confirms the step.
	Label string `json:"label"`
	// Part is the reference image shown while the step is pending.
	Part string `json:"part"`
	// OK and KO are the images shown on success and on a rejected assembly.
	OK string `json:"ok"`
	KO string `json:"ko,omitempty"`
	// Detections is how many Label detections a frame needs; zero means the
	// step is confirmed by the top classification instead.
	Detections int `json:"detections,omitempty"`
}

// AssemblySteps returns the differential assembly sequence.
func AssemblySteps() []Step {
	return []Step{
		{Label: "1_carrier", Part: "a_6285647", OK: "ok_6285647"},
		{Label: "2_bot", Part: "b_4565452", OK: "ok_4565452"},
		{Label: "gear", Part: "b_4565452", OK: "ok_4565452", Detections: 3},
		{Label: "4_top_ok", Part: "b_4565452", OK: "ok_4565452", KO: "ko_4565452"},
		{Label: "5_gear_ok", Part: "c_6285646", OK: "ok_6285646", KO: "ko_6285646"},
		{Label: "6_axis", Part: "d_6130007", OK: "ok_6130007"},
	}
}

// Observation is what one frame showed for the current step.
type Observation struct {
	// Classification is the top classifier label, empty when none passed.
	Classification string
	// Detections are the detector labels found in the frame.
	Detections []string
}

// Status reports the outcome of one observed frame.
type Status struct {
	Step      int    `json:"step"`
	Label     string `json:"label"`
	Count     int    `json:"count"`
	Matched   bool   `json:"matched"`
	KO        bool   `json:"ko"`
	Validated bool   `json:"validated"`
	Done      bool   `json:"done"`
}

// Sequence walks through steps, advancing when the current one validates.
type Sequence struct {
	steps    []Step
	required int
	current  int
	counter  *Counter
}

// NewSequence returns a sequence over steps; required <= 0 uses DefaultRequired.
func NewSequence(steps []Step, required int) *Sequence {
	return &Sequence{
		steps:    steps,
		required: required,
		counter:  NewCounter(required),
	}
}

// Steps returns the configured steps.
func (s *Sequence) Steps() []Step {
	return s.steps
}

// Current returns the index of the pending step; it equals len(Steps()) when done.
func (s *Sequence) Current() int {
	return s.current
}

// Done reports whether every step has validated.
func (s *Sequence) Done() bool {
	return s.current >= len(s.steps)
}

// Reset restarts the sequence from the first step.
func (s *Sequence) Reset() {
	s.current = 0
	s.counter = NewCounter(s.required)
}

// Observe feeds one frame to the pending step.
func (s *Sequence) Observe(obs Observation) Status {
	if s.Done() {
		return Status{Step: s.current, Done: true}
	}
	step := s.steps[s.current]
	st := Status{Step: s.current, Label: step.Label}

	if step.Detections > 0 {
		n := 0
		for _, l := range obs.Detections {
			if l == step.Label {
				n++
			}
		}
		st.Matched = n >= step.Detections
	} else {
		st.Matched = obs.Classification == step.Label
		st.KO = step.KO != "" && IsKO(obs.Classification, step.Label)
	}

	st.Validated = s.counter.Observe(st.Matched)
	st.Count = s.counter.Count()
	if st.Validated {
		s.current++
		s.counter = NewCounter(s.required)
	}
	st.Done = s.Done()
	return st
}
