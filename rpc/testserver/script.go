package testserver

import (
	"strings"
	"sync"
)

const (
	// OK is the success terminator.
	OK = "error id=0 msg=ok"
	// NotFound is the terminator for unknown commands.
	NotFound = `error id=256 msg=command\snot\sfound`
	// EmptyResult is the terminator of list commands without entries.
	EmptyResult = `error id=1281 msg=database\sempty\sresult\sset`
)

// Script is a HandleFunc builder that answers commands by verb. Responses can
// be changed while the server runs, which lets tests simulate state changes
// between two list commands.
type Script struct {
	mu        sync.Mutex
	responses map[string][][]string
}

// NewScript creates an empty script. Unknown verbs are answered with NotFound.
func NewScript() *Script {
	return &Script{responses: make(map[string][][]string)}
}

// On sets the lines sent in answer to verb, replacing earlier ones. The lines
// must include the terminator.
func (s *Script) On(verb string, lines ...string) *Script {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[verb] = [][]string{lines}
	return s
}

// Then queues an additional answer for verb. Answers are consumed in order,
// the last one is repeated.
func (s *Script) Then(verb string, lines ...string) *Script {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[verb] = append(s.responses[verb], lines)
	return s
}

// Handle implements HandleFunc.
func (s *Script) Handle(session *Session, line string) {
	verb, _, _ := strings.Cut(line, " ")

	s.mu.Lock()
	answers, ok := s.responses[verb]
	var lines []string
	if ok && len(answers) > 0 {
		lines = answers[0]
		if len(answers) > 1 {
			s.responses[verb] = answers[1:]
		}
	}
	s.mu.Unlock()

	if !ok {
		lines = []string{NotFound}
	}
	if err := session.Send(lines...); err != nil {
		Logger.Warningf("Failed to answer %q: %v", verb, err)
	}
}
