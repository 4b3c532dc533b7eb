package chatbot

import (
	"fmt"
	"strings"
)

// Choice is one of the systems a clarification prompt offers
type Choice struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	// Label names the system in the annotation sent upstream
	Label string `json:"-"`
}

// Disambiguator decides which messages need a clarification before they are sent
type Disambiguator struct {
	Prompt string
	// Keywords mark a message as possibly ambiguous
	Keywords []string
	// Qualifiers mark a message as already naming one of the choices
	Qualifiers []string
	Choices    []Choice
}

// DefaultDisambiguator asks which Oracle system a question is about
func DefaultDisambiguator() *Disambiguator {
	return &Disambiguator{
		Prompt:     "Is this for Oracle – Equant or Oracle Fusion?",
		Keywords:   []string{"oracle", "equant", "fusion", "o2c oracle", "ar oracle"},
		Qualifiers: []string{"oracle equant", "oracle fusion", "equant system", "fusion system"},
		Choices: []Choice{
			{
				ID:          "equant",
				Name:        "Oracle Equant",
				Description: "New Finance and Procurement System",
				Label:       "Oracle Equant (New Finance and Procurement System)",
			},
			{
				ID:          "fusion",
				Name:        "Oracle Fusion",
				Description: "Cloud ERP Platform",
				Label:       "Oracle Fusion",
			},
		},
	}
}

// Triggers reports whether text mentions a keyword without a qualifier
func (d *Disambiguator) Triggers(text string) bool {
	lower := strings.ToLower(text)
	if !containsAny(lower, d.Keywords) {
		return false
	}
	return !containsAny(lower, d.Qualifiers)
}

// Choice returns the Choice with the given id
func (d *Disambiguator) Choice(id string) (*Choice, bool) {
	for i := range d.Choices {
		if strings.EqualFold(d.Choices[i].ID, id) {
			c := d.Choices[i]
			return &c, true
		}
	}
	return nil, false
}

// Annotate prefixes text with the chosen system
func Annotate(choice *Choice, text string) string {
	label := choice.Label
	if label == "" {
		label = choice.Name
	}
	return fmt.Sprintf("[User selected %s] %s", label, text)
}

func containsAny(s string, substrs []string) bool {
	for _, sub := range substrs {
		if sub != "" && strings.Contains(s, strings.ToLower(sub)) {
			return true
		}
	}
	return false
}
