// Package template holds the credential template registry and claim mapping
// resolution.
package template

import (
	"regexp"
	"strings"
	"sync"
	"time"

	"attestia/internal/credential/expr"
	"attestia/internal/credential/models"
	dErrors "attestia/pkg/domain-errors"
)

// Registry maintains credential templates indexed by id.
//
// Registration is idempotent by id: re-registering replaces the stored
// template (the second registration's content wins). Templates are read-only
// during issuance. Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	templates map[string]models.Template
}

func NewRegistry() *Registry {
	return &Registry{templates: make(map[string]models.Template)}
}

// Register validates and stores a template, replacing any previous version
// with the same id.
func (r *Registry) Register(t models.Template) error {
	if strings.TrimSpace(t.ID) == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "template id is required")
	}
	// Reject malformed expressions at registration time so issuance never
	// hits a parse error mid-pipeline.
	for _, m := range t.ClaimMappings {
		if m.Kind == models.MappingExpression {
			if _, err := expr.Parse(m.Expression); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInvalidInput,
					"invalid mapping expression for claim "+m.Claim)
			}
		}
	}
	for _, rule := range t.Rules {
		if _, err := expr.Parse(rule.Condition); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInvalidInput,
				"invalid rule condition: "+rule.Name)
		}
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates[t.ID] = t
	return nil
}

// Get returns the template with the given id, or a template_not_found error.
func (r *Registry) Get(id string) (models.Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.templates[id]
	if !ok {
		return models.Template{}, dErrors.New(dErrors.CodeTemplateNotFound,
			"template not registered: "+id)
	}
	return t, nil
}

// Len returns the number of registered templates.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.templates)
}

// ResolveClaims materializes the template's claim mappings against the
// aggregated context. Literal mappings pass through; expression mappings are
// resolved by the closed-form evaluator.
func ResolveClaims(t models.Template, ctx map[string]any) (map[string]any, error) {
	claims := make(map[string]any, len(t.ClaimMappings))
	for _, m := range t.ClaimMappings {
		switch m.Kind {
		case models.MappingLiteral:
			claims[m.Claim] = m.Literal
		case models.MappingExpression:
			v, err := expr.Eval(m.Expression, ctx)
			if err != nil {
				return nil, dErrors.Wrap(err, dErrors.CodeInternal,
					"failed to resolve claim "+m.Claim)
			}
			claims[m.Claim] = v
		default:
			return nil, dErrors.New(dErrors.CodeInvalidInput,
				"unknown mapping kind for claim "+m.Claim)
		}
	}
	return claims, nil
}

// ValidateClaims checks resolved claims against the template's field schema,
// collecting every violation so callers can report them all at once.
func ValidateClaims(t models.Template, claims map[string]any) []string {
	var violations []string
	for field, schema := range t.Schema {
		value, present := claims[field]
		if !present || value == nil {
			if schema.Required {
				violations = append(violations, field+": required claim is missing")
			}
			continue
		}
		violations = append(violations, validateField(field, schema, value)...)
	}
	return violations
}

func validateField(field string, schema models.FieldSchema, value any) []string {
	var violations []string
	switch schema.Type {
	case "string":
		s, ok := value.(string)
		if !ok {
			return []string{field + ": must be a string"}
		}
		if schema.Pattern != "" {
			re, err := regexp.Compile(schema.Pattern)
			if err == nil && !re.MatchString(s) {
				violations = append(violations, field+": does not match pattern "+schema.Pattern)
			}
		}
	case "number":
		n, ok := asFloat(value)
		if !ok {
			return []string{field + ": must be a number"}
		}
		if schema.Min != nil && n < *schema.Min {
			violations = append(violations, field+": below minimum")
		}
		if schema.Max != nil && n > *schema.Max {
			violations = append(violations, field+": above maximum")
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return []string{field + ": must be a boolean"}
		}
	}
	return violations
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
