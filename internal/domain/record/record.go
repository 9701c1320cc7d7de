// Package record holds the profile record aggregate indexed for semantic search.
package record

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kailas-cloud/profdex/internal/domain"
)

// MaxIDLength bounds record identifiers.
const MaxIDLength = 256

// Fields are the textual profile fields that feed the canonical embedding text.
type Fields struct {
	Name       string `json:"name"`
	Headline   string `json:"headline"`
	Experience string `json:"experience"`
	Skills     string `json:"skills"`
	Location   string `json:"location"`
}

// Record is a profile document owned by exactly one namespace.
// ID and namespace are required; attributes are the remaining opaque payload.
type Record struct {
	id         string
	namespace  domain.Namespace
	fields     Fields
	attributes map[string]any
}

// New validates and creates a record.
func New(id string, ns domain.Namespace, fields Fields, attributes map[string]any) (Record, error) {
	if ns.IsZero() {
		return Record{}, domain.ErrNamespaceRequired
	}
	if strings.TrimSpace(id) == "" {
		return Record{}, fmt.Errorf("record_id is required: %w", domain.ErrInvalidRequest)
	}
	if len(id) > MaxIDLength {
		return Record{}, fmt.Errorf("record_id longer than %d characters: %w", MaxIDLength, domain.ErrInvalidRequest)
	}
	if attributes == nil {
		attributes = map[string]any{}
	}
	return Record{id: id, namespace: ns, fields: fields, attributes: attributes}, nil
}

// ID returns the stable record identifier.
func (r Record) ID() string { return r.id }

// Namespace returns the owning namespace.
func (r Record) Namespace() domain.Namespace { return r.namespace }

// Fields returns the textual profile fields.
func (r Record) Fields() Fields { return r.fields }

// Attributes returns the opaque profile attributes.
func (r Record) Attributes() map[string]any { return r.attributes }

// Texts returns the textual fields in canonical order.
func (r Record) Texts() []string {
	return []string{r.fields.Name, r.fields.Headline, r.fields.Experience, r.fields.Skills, r.fields.Location}
}

// Profile returns the payload handed back to callers: attributes plus textual fields and identity.
func (r Record) Profile() map[string]any {
	p := make(map[string]any, len(r.attributes)+7)
	for k, v := range r.attributes {
		p[k] = v
	}
	p["record_id"] = r.id
	p["namespace"] = r.namespace.String()
	p["name"] = r.fields.Name
	p["headline"] = r.fields.Headline
	p["experience"] = r.fields.Experience
	p["skills"] = r.fields.Skills
	p["location"] = r.fields.Location
	return p
}

// Tags returns filterable string attributes plus the location field.
// Booleans are rendered as "true"/"false".
func (r Record) Tags() map[string]string {
	tags := make(map[string]string)
	if r.fields.Location != "" {
		tags["location"] = r.fields.Location
	}
	for k, v := range r.attributes {
		switch val := v.(type) {
		case string:
			tags[k] = val
		case bool:
			tags[k] = strconv.FormatBool(val)
		}
	}
	return tags
}

// Numerics returns filterable numeric attributes.
func (r Record) Numerics() map[string]float64 {
	nums := make(map[string]float64)
	for k, v := range r.attributes {
		switch val := v.(type) {
		case float64:
			nums[k] = val
		case float32:
			nums[k] = float64(val)
		case int:
			nums[k] = float64(val)
		case int64:
			nums[k] = float64(val)
		}
	}
	return nums
}

// ContainsFold reports whether any textual field contains term, case-insensitively.
// term must already be lower-cased.
func (r Record) ContainsFold(term string) bool {
	if term == "" {
		return false
	}
	for _, t := range r.Texts() {
		if strings.Contains(strings.ToLower(t), term) {
			return true
		}
	}
	return false
}
