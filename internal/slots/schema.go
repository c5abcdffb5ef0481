// Package slots defines the slot schema, the merge policy for extracted
// values, and the completion rules for an admission dialogue.
package slots

import (
	"fmt"
	"strings"
)

// Schema is an immutable, ordered set of slot names with a fixed question
// per slot. Order defines both fill priority and question order.
type Schema struct {
	order     []string
	questions map[string]string
}

// NewSchema builds a schema from an ordered name list and a question map.
// Every name in order must have a question.
func NewSchema(order []string, questions map[string]string) (Schema, error) {
	if len(order) == 0 {
		return Schema{}, fmt.Errorf("schema requires at least one slot")
	}
	o := make([]string, len(order))
	copy(o, order)
	q := make(map[string]string, len(order))
	for _, name := range o {
		question, ok := questions[name]
		if !ok || question == "" {
			return Schema{}, fmt.Errorf("slot %q has no question", name)
		}
		q[name] = question
	}
	return Schema{order: o, questions: q}, nil
}

// Default returns the admission chatbot schema: 14 slots in fill order.
func Default() Schema {
	s, err := NewSchema(defaultOrder, defaultQuestions)
	if err != nil {
		panic(fmt.Sprintf("default slot schema invalid: %v", err))
	}
	return s
}

var defaultOrder = []string{
	"course",
	"percentage",
	"location",
	"college_name",
	"type",
	"mode_of_study",
	"medium",
	"timing",
	"gender",
	"scholarship",
	"hostel",
	"specialization",
	"intake_year",
	"budget",
}

var defaultQuestions = map[string]string{
	"course":         "Great! Could you please tell me which course you're interested in?",
	"percentage":     "Got it. What was your percentage or overall marks?",
	"location":       "Which city or location are you looking to study in?",
	"college_name":   "Do you have any specific college in mind?",
	"type":           "What type of college are you looking for? (For example, Grant-in-Aid, Self-financed, etc.)",
	"mode_of_study":  "Would you prefer regular classes or distance learning?",
	"medium":         "Which medium of instruction do you prefer? (English, Hindi, Gujarati, etc.)",
	"timing":         "What timing works best for you — morning or evening classes?",
	"gender":         "Are you looking for a boys' college, girls' college, or co-education?",
	"scholarship":    "Would you like to explore any scholarship options?",
	"hostel":         "Do you need hostel accommodation?",
	"specialization": "Is there any particular specialization you're interested in?",
	"intake_year":    "IN Which Year you want to take admission",
	"budget":         "Lastly, what's your budget range for the course?",
}

// Len returns the number of slots in the schema.
func (s Schema) Len() int {
	return len(s.order)
}

// Order returns a copy of the slot names in fill order.
func (s Schema) Order() []string {
	o := make([]string, len(s.order))
	copy(o, s.order)
	return o
}

// Has reports whether name is a recognized slot.
func (s Schema) Has(name string) bool {
	_, ok := s.questions[name]
	return ok
}

// Question returns the prompt for a slot, or "" for unknown names.
func (s Schema) Question(name string) string {
	return s.questions[name]
}

// First returns the first slot name in fill order.
func (s Schema) First() string {
	return s.order[0]
}

// Empty returns a fresh slot map with every schema key set to "".
func (s Schema) Empty() map[string]string {
	m := make(map[string]string, len(s.order))
	for _, name := range s.order {
		m[name] = ""
	}
	return m
}

// IsBlank is the single fill-state predicate: a value is blank when it is
// absent or whitespace-only. Merge and completion checks must all go
// through it so blank detection never diverges.
func IsBlank(value string) bool {
	return strings.TrimSpace(value) == ""
}

// NextEmpty returns the earliest slot in fill order whose value is blank.
// ok is false when every slot is filled.
func (s Schema) NextEmpty(values map[string]string) (name string, ok bool) {
	for _, n := range s.order {
		if IsBlank(values[n]) {
			return n, true
		}
	}
	return "", false
}

// IsComplete reports whether every slot in the schema holds a non-blank value.
func (s Schema) IsComplete(values map[string]string) bool {
	_, ok := s.NextEmpty(values)
	return !ok
}
