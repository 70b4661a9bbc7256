package conversation

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// Question is one fixed interactive question of a structured flow.
type Question struct {
	Key      string   `yaml:"key"`
	Question string   `yaml:"question"`
	Options  []string `yaml:"options"`
}

// Company is an insurer selectable in the EMAF flow.
type Company struct {
	Name string `yaml:"name"`
	ID   string `yaml:"id"`
}

// Topic is one knowledge base entry of the Takaful Emarat Silver plan.
type Topic struct {
	Key      string   `yaml:"key"`
	Answer   string   `yaml:"answer"`
	Keywords []string `yaml:"keywords"`
}

// TakafulCatalog holds the Takaful side-flow vocabulary.
type TakafulCatalog struct {
	Triggers []string `yaml:"triggers"`
	Continue []string `yaml:"continue"`
	Exit     []string `yaml:"exit"`
	Topics   []Topic  `yaml:"topics"`
}

// Catalog is the static vocabulary of the assistant: menus, option sets,
// trigger words and the Takaful knowledge base.
type Catalog struct {
	Services         []string            `yaml:"services"`
	Emirates         []string            `yaml:"emirates"`
	MedicalQuestions []Question          `yaml:"medical_questions"`
	Genders          []string            `yaml:"genders"`
	MaritalStatuses  []string            `yaml:"marital_statuses"`
	Relationships    []string            `yaml:"relationships"`
	VehicleTypes     []string            `yaml:"vehicle_types"`
	MotorCovers      []string            `yaml:"motor_covers"`
	Affirmatives     []string            `yaml:"affirmatives"`
	Negatives        []string            `yaml:"negatives"`
	EMAFTriggers     []string            `yaml:"emaf_triggers"`
	EMAFCompanies    []Company           `yaml:"emaf_companies"`
	Takaful          TakafulCatalog      `yaml:"takaful"`
	Languages        map[string][]string `yaml:"languages"`
}

// ParseCatalog decodes and checks a catalog document.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// DefaultCatalog returns the built-in catalog.
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultCatalogYAML)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Catalog) validate() error {
	switch {
	case len(c.Services) != 3:
		return fmt.Errorf("catalog: expected 3 services, got %d", len(c.Services))
	case len(c.MedicalQuestions) == 0:
		return fmt.Errorf("catalog: no medical questions")
	case len(c.Emirates) == 0:
		return fmt.Errorf("catalog: no emirates")
	case len(c.VehicleTypes) != 2:
		return fmt.Errorf("catalog: expected car and bike vehicle types")
	case len(c.EMAFCompanies) == 0:
		return fmt.Errorf("catalog: no EMAF companies")
	}
	for _, q := range c.MedicalQuestions {
		if q.Key == "" || len(q.Options) == 0 {
			return fmt.Errorf("catalog: medical question %q needs a key and options", q.Question)
		}
	}
	for _, t := range c.Takaful.Topics {
		if t.Key == "" || t.Answer == "" {
			return fmt.Errorf("catalog: takaful topic needs a key and an answer")
		}
	}
	return nil
}

// CompanyNames lists the EMAF insurer titles in catalog order.
func (c *Catalog) CompanyNames() []string {
	out := make([]string, len(c.EMAFCompanies))
	for i, co := range c.EMAFCompanies {
		out[i] = co.Name
	}
	return out
}

// CompanyID returns the backend id for an insurer title.
func (c *Catalog) CompanyID(name string) (string, bool) {
	for _, co := range c.EMAFCompanies {
		if strings.EqualFold(co.Name, name) {
			return co.ID, true
		}
	}
	return "", false
}

// Topic returns the knowledge base entry with key.
func (c *Catalog) Topic(key string) (Topic, bool) {
	for _, t := range c.Takaful.Topics {
		if t.Key == key {
			return t, true
		}
	}
	return Topic{}, false
}

// TopicKeys lists the knowledge base keys.
func (c *Catalog) TopicKeys() []string {
	out := make([]string, len(c.Takaful.Topics))
	for i, t := range c.Takaful.Topics {
		out[i] = t.Key
	}
	return out
}

// MatchTopic scores each topic by its longest keyword contained in text.
func (c *Catalog) MatchTopic(text string) (Topic, bool) {
	lower := strings.ToLower(text)
	var best Topic
	bestScore := 0
	for _, t := range c.Takaful.Topics {
		for _, kw := range t.Keywords {
			if strings.Contains(lower, strings.ToLower(kw)) && len(kw) > bestScore {
				best, bestScore = t, len(kw)
			}
		}
	}
	return best, bestScore > 0
}

// isOneOf reports whether text, trimmed and lower-cased, equals one of words.
func isOneOf(text string, words []string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	for _, w := range words {
		if t == strings.ToLower(w) {
			return true
		}
	}
	return false
}

// containsAny reports whether lower-cased text contains one of words.
func containsAny(text string, words []string) bool {
	t := strings.ToLower(text)
	for _, w := range words {
		if strings.Contains(t, strings.ToLower(w)) {
			return true
		}
	}
	return false
}
