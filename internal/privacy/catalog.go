package privacy

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/raaihank/pii-sentinel/internal/logger"
)

const (
	sectionStandalone    = "standalone_pii_patterns"
	sectionCombinatorial = "combinatorial_pii_sets"
	sectionPlaceholders  = "redaction_placeholders"
)

// Catalog is the compiled, read-only rule set a Scanner evaluates. Rules keep
// the order they were declared in so rationales are reproducible.
type Catalog struct {
	standalone    []StandaloneRule
	combinatorial []CombinatorialRule
	placeholders  map[string]Placeholder
}

// CatalogOption configures catalog loading.
type CatalogOption func(*catalogConfig)

type catalogConfig struct {
	strictPlaceholders bool
	logger             *logger.Logger
}

// WithStrictPlaceholders rejects catalogs where a combinatorial key has no
// redaction placeholder. Without it such fields stay unredacted and a warning
// is logged.
func WithStrictPlaceholders() CatalogOption {
	return func(c *catalogConfig) { c.strictPlaceholders = true }
}

// WithCatalogLogger sets the logger used for load-time warnings.
func WithCatalogLogger(log *logger.Logger) CatalogOption {
	return func(c *catalogConfig) { c.logger = log }
}

// rule documents as they appear in the rules file
type standaloneDoc struct {
	Regex     *string  `yaml:"regex"`
	BaseScore *float64 `yaml:"base_score"`
	Redactor  *string  `yaml:"redactor"`
}

type combinatorialDoc struct {
	Keys      []string `yaml:"keys"`
	BaseScore *float64 `yaml:"base_score"`
}

// LoadCatalog reads and compiles the rules file at path. JSON and YAML
// documents are both accepted.
func LoadCatalog(path string, opts ...CatalogOption) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrCatalogNotFound, path)
		}
		return nil, fmt.Errorf("failed to read rules file %s: %w", path, err)
	}

	catalog, err := ParseCatalog(data, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return catalog, nil
}

// ParseCatalog compiles a rules document held in memory.
func ParseCatalog(data []byte, opts ...CatalogOption) (*Catalog, error) {
	cfg := catalogConfig{logger: logger.Wrap(nil)}
	for _, o := range opts {
		o(&cfg)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCatalogMalformed, err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: top level must be a mapping", ErrCatalogMalformed)
	}

	sections := make(map[string]*yaml.Node)
	if err := eachPair(doc.Content[0], func(key string, value *yaml.Node) error {
		sections[key] = value
		return nil
	}); err != nil {
		return nil, err
	}

	for _, name := range []string{sectionStandalone, sectionCombinatorial, sectionPlaceholders} {
		if _, ok := sections[name]; !ok {
			return nil, fmt.Errorf("%w: missing %q section", ErrCatalogMalformed, name)
		}
	}

	c := &Catalog{placeholders: make(map[string]Placeholder)}

	if err := c.parseStandalone(sections[sectionStandalone]); err != nil {
		return nil, err
	}
	if err := c.parseCombinatorial(sections[sectionCombinatorial]); err != nil {
		return nil, err
	}
	if err := c.parsePlaceholders(sections[sectionPlaceholders]); err != nil {
		return nil, err
	}
	if err := c.checkPlaceholders(cfg); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *Catalog) parseStandalone(node *yaml.Node) error {
	index := make(map[string]int)

	return eachPair(node, func(field string, value *yaml.Node) error {
		var d standaloneDoc
		if err := value.Decode(&d); err != nil {
			return fmt.Errorf("%w: standalone rule %q: %v", ErrCatalogMalformed, field, err)
		}
		if d.Regex == nil || d.BaseScore == nil || d.Redactor == nil {
			return fmt.Errorf("%w: standalone rule %q needs regex, base_score and redactor", ErrInvalidRule, field)
		}
		if *d.BaseScore < 0 {
			return fmt.Errorf("%w: standalone rule %q has negative base_score", ErrInvalidRule, field)
		}

		redactor, ok := ParseRedactor(*d.Redactor)
		if !ok {
			return fmt.Errorf("%w: %q in standalone rule %q", ErrUnknownRedactor, *d.Redactor, field)
		}

		pattern, err := regexp.Compile(`^(?:` + *d.Regex + `)$`)
		if err != nil {
			return fmt.Errorf("%w: standalone rule %q: %v", ErrInvalidPattern, field, err)
		}

		rule := StandaloneRule{
			Field:     field,
			Pattern:   pattern,
			Source:    *d.Regex,
			BaseScore: *d.BaseScore,
			Redactor:  redactor,
		}
		if i, seen := index[field]; seen {
			c.standalone[i] = rule
			return nil
		}
		index[field] = len(c.standalone)
		c.standalone = append(c.standalone, rule)
		return nil
	})
}

func (c *Catalog) parseCombinatorial(node *yaml.Node) error {
	index := make(map[string]int)

	return eachPair(node, func(name string, value *yaml.Node) error {
		var d combinatorialDoc
		if err := value.Decode(&d); err != nil {
			return fmt.Errorf("%w: combinatorial set %q: %v", ErrCatalogMalformed, name, err)
		}
		if d.BaseScore == nil || *d.BaseScore < 0 {
			return fmt.Errorf("%w: combinatorial set %q needs a non-negative base_score", ErrInvalidRule, name)
		}

		keys := dedupe(d.Keys)
		if len(keys) == 0 {
			return fmt.Errorf("%w: combinatorial set %q has no keys", ErrInvalidRule, name)
		}

		rule := CombinatorialRule{Name: name, Keys: keys, BaseScore: *d.BaseScore}
		if i, seen := index[name]; seen {
			c.combinatorial[i] = rule
			return nil
		}
		index[name] = len(c.combinatorial)
		c.combinatorial = append(c.combinatorial, rule)
		return nil
	})
}

func (c *Catalog) parsePlaceholders(node *yaml.Node) error {
	return eachPair(node, func(field string, value *yaml.Node) error {
		if value.Kind != yaml.ScalarNode {
			return fmt.Errorf("%w: placeholder for %q must be a string", ErrCatalogMalformed, field)
		}
		// null, "", false and 0 leave the field untouched
		if isEmptyScalar(value) {
			delete(c.placeholders, field)
			return nil
		}

		if r, ok := ParseRedactor(value.Value); ok {
			c.placeholders[field] = Placeholder{Redactor: r}
		} else {
			c.placeholders[field] = Placeholder{Literal: value.Value}
		}
		return nil
	})
}

// isEmptyScalar reports whether a placeholder value is null, "", false or a
// numeric zero.
func isEmptyScalar(node *yaml.Node) bool {
	switch node.ShortTag() {
	case "!!null":
		return true
	case "!!str":
		return node.Value == ""
	case "!!bool":
		var b bool
		return node.Decode(&b) == nil && !b
	case "!!int", "!!float":
		var f float64
		return node.Decode(&f) == nil && f == 0
	}
	return false
}

// checkPlaceholders finds combinatorial keys that would be flagged but left
// unredacted.
func (c *Catalog) checkPlaceholders(cfg catalogConfig) error {
	var missing []string
	seen := make(map[string]bool)
	for _, rule := range c.combinatorial {
		for _, key := range rule.Keys {
			if _, ok := c.placeholders[key]; ok || seen[key] {
				continue
			}
			seen[key] = true
			missing = append(missing, key)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	if cfg.strictPlaceholders {
		return fmt.Errorf("%w: %v", ErrMissingPlaceholder, missing)
	}
	cfg.logger.Warn("Combinatorial keys without redaction placeholder will pass through unredacted",
		zap.Strings("fields", missing))
	return nil
}

// Standalone returns the standalone rules in declaration order.
func (c *Catalog) Standalone() []StandaloneRule {
	out := make([]StandaloneRule, len(c.standalone))
	copy(out, c.standalone)
	return out
}

// Combinatorial returns the combinatorial rules in declaration order.
func (c *Catalog) Combinatorial() []CombinatorialRule {
	out := make([]CombinatorialRule, len(c.combinatorial))
	for i, rule := range c.combinatorial {
		rule.Keys = append([]string(nil), rule.Keys...)
		out[i] = rule
	}
	return out
}

// Placeholder returns the redaction placeholder assigned to field.
func (c *Catalog) Placeholder(field string) (Placeholder, bool) {
	p, ok := c.placeholders[field]
	return p, ok
}

// CatalogSummary describes a catalog without exposing compiled patterns.
type CatalogSummary struct {
	Standalone    []StandaloneSummary    `json:"standalone"`
	Combinatorial []CombinatorialSummary `json:"combinatorial"`
	Placeholders  map[string]string      `json:"placeholders"`
}

type StandaloneSummary struct {
	Field     string  `json:"field"`
	Pattern   string  `json:"pattern"`
	BaseScore float64 `json:"base_score"`
	Redactor  string  `json:"redactor"`
}

type CombinatorialSummary struct {
	Name      string   `json:"name"`
	Keys      []string `json:"keys"`
	BaseScore float64  `json:"base_score"`
}

// Summary returns a serializable description of the catalog.
func (c *Catalog) Summary() CatalogSummary {
	s := CatalogSummary{
		Standalone:    make([]StandaloneSummary, 0, len(c.standalone)),
		Combinatorial: make([]CombinatorialSummary, 0, len(c.combinatorial)),
		Placeholders:  make(map[string]string, len(c.placeholders)),
	}
	for _, r := range c.standalone {
		s.Standalone = append(s.Standalone, StandaloneSummary{
			Field:     r.Field,
			Pattern:   r.Source,
			BaseScore: r.BaseScore,
			Redactor:  r.Redactor.String(),
		})
	}
	for _, r := range c.Combinatorial() {
		s.Combinatorial = append(s.Combinatorial, CombinatorialSummary{
			Name:      r.Name,
			Keys:      r.Keys,
			BaseScore: r.BaseScore,
		})
	}
	for field, p := range c.placeholders {
		if p.IsRedactor() {
			s.Placeholders[field] = p.Redactor.String()
		} else {
			s.Placeholders[field] = p.Literal
		}
	}
	return s
}

// eachPair walks a mapping node in document order. A null section is treated
// as empty.
func eachPair(node *yaml.Node, fn func(key string, value *yaml.Node) error) error {
	if node == nil || (node.Kind == yaml.ScalarNode && node.ShortTag() == "!!null") {
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("%w: expected a mapping at line %d", ErrCatalogMalformed, node.Line)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if err := fn(node.Content[i].Value, node.Content[i+1]); err != nil {
			return err
		}
	}
	return nil
}

func dedupe(keys []string) []string {
	seen := make(map[string]bool, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}
