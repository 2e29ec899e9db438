package catalog

import (
	"fmt"
	"log"
	"os"
	"path"

	"github.com/e-m-dev/remedy/internal/models"
	"gopkg.in/yaml.v3"
)

// Catalog holds the read-only pattern and template catalogs. Loaded once at
// startup; safe for concurrent reads without locking.
type Catalog struct {
	patterns           []models.DetectionPattern
	patternsByID       map[string]*models.DetectionPattern
	templatesByID      map[string]*models.RemediationTemplate
	templatesByPattern map[string]*models.RemediationTemplate
	templates          []*models.RemediationTemplate
}

type patternsFile struct {
	Patterns []models.DetectionPattern `yaml:"patterns"`
}

type templatesFile struct {
	Templates []models.RemediationTemplate `yaml:"templates"`
}

// Load reads and validates the pattern and template catalogs from YAML files.
func Load(patternsPath, templatesPath string) (*Catalog, error) {
	c := &Catalog{
		patternsByID:       make(map[string]*models.DetectionPattern),
		templatesByID:      make(map[string]*models.RemediationTemplate),
		templatesByPattern: make(map[string]*models.RemediationTemplate),
	}

	if err := c.loadTemplates(templatesPath); err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}

	if err := c.loadPatterns(patternsPath); err != nil {
		return nil, fmt.Errorf("failed to load patterns: %w", err)
	}

	log.Printf("Catalog loaded: %d patterns, %d templates", len(c.patterns), len(c.templates))
	return c, nil
}

func (c *Catalog) loadPatterns(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var file patternsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	for i := range file.Patterns {
		p := &file.Patterns[i]
		if err := validatePattern(p); err != nil {
			return fmt.Errorf("pattern %q: %w", p.ID, err)
		}
		if _, exists := c.patternsByID[p.ID]; exists {
			return fmt.Errorf("duplicate pattern id %q", p.ID)
		}
		if p.TemplateID != "" {
			if _, ok := c.templatesByID[p.TemplateID]; !ok {
				return fmt.Errorf("pattern %q references unknown template %q", p.ID, p.TemplateID)
			}
		}
		c.patternsByID[p.ID] = p
	}

	c.patterns = file.Patterns
	return nil
}

func (c *Catalog) loadTemplates(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var file templatesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	for i := range file.Templates {
		t := &file.Templates[i]
		if err := validateTemplate(t); err != nil {
			return fmt.Errorf("template %q: %w", t.ID, err)
		}
		if _, exists := c.templatesByID[t.ID]; exists {
			return fmt.Errorf("duplicate template id %q", t.ID)
		}
		c.templatesByID[t.ID] = t
		c.templates = append(c.templates, t)

		if t.PatternID != "" {
			if _, exists := c.templatesByPattern[t.PatternID]; exists {
				return fmt.Errorf("pattern %q already has a template", t.PatternID)
			}
			c.templatesByPattern[t.PatternID] = t
		}
	}

	return nil
}

func validatePattern(p *models.DetectionPattern) error {
	if p.ID == "" {
		return fmt.Errorf("id is required")
	}
	if p.MetricKey == "" {
		return fmt.Errorf("metric_key is required")
	}
	if !p.Condition.Valid() {
		return fmt.Errorf("unknown condition %q", p.Condition)
	}
	if !p.Severity.Valid() {
		return fmt.Errorf("unknown severity %q", p.Severity)
	}
	if p.CooldownSeconds < 0 || p.SustainedSeconds < 0 {
		return fmt.Errorf("negative duration")
	}
	return nil
}

func validateTemplate(t *models.RemediationTemplate) error {
	if t.ID == "" {
		return fmt.Errorf("id is required")
	}
	if len(t.Steps) == 0 {
		return fmt.Errorf("at least one step is required")
	}

	seen := make(map[string]bool)
	for _, step := range append(append([]models.ActionStep{}, t.Steps...), t.RollbackSteps...) {
		if step.ID == "" {
			return fmt.Errorf("step id is required")
		}
		if seen[step.ID] {
			return fmt.Errorf("duplicate step id %q", step.ID)
		}
		seen[step.ID] = true

		if !step.Kind.Valid() {
			return fmt.Errorf("step %q: unknown action kind %q", step.ID, step.Kind)
		}
		if step.OnFailure != "" && !step.OnFailure.Valid() {
			return fmt.Errorf("step %q: unknown on_failure policy %q", step.ID, step.OnFailure)
		}
		if step.Retries < 0 {
			return fmt.Errorf("step %q: negative retries", step.ID)
		}
	}

	return nil
}

// Patterns returns all loaded detection patterns.
func (c *Catalog) Patterns() []models.DetectionPattern {
	return c.patterns
}

// Pattern returns a pattern by id.
func (c *Catalog) Pattern(id string) (*models.DetectionPattern, bool) {
	p, ok := c.patternsByID[id]
	return p, ok
}

// Template returns a template by id.
func (c *Catalog) Template(id string) (*models.RemediationTemplate, bool) {
	t, ok := c.templatesByID[id]
	return t, ok
}

// TemplateForPattern resolves the template explicitly linked to a pattern,
// either through the pattern's template_id or the template's pattern_id.
func (c *Catalog) TemplateForPattern(patternID string) (*models.RemediationTemplate, bool) {
	if p, ok := c.patternsByID[patternID]; ok && p.TemplateID != "" {
		if t, ok := c.templatesByID[p.TemplateID]; ok {
			return t, true
		}
	}
	t, ok := c.templatesByPattern[patternID]
	return t, ok
}

// MatchByTags finds a template whose tags glob-match the given pattern id or
// category. Used as the fallback when no template is explicitly linked.
func (c *Catalog) MatchByTags(patternID, category string) (*models.RemediationTemplate, bool) {
	for _, t := range c.templates {
		for _, tag := range t.Tags {
			if matched, _ := path.Match(tag, patternID); matched {
				return t, true
			}
			if matched, _ := path.Match(tag, category); matched {
				return t, true
			}
		}
	}
	return nil, false
}
