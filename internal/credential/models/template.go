package models

import "time"

// MappingKind distinguishes literal claim values from context lookups.
type MappingKind string

const (
	MappingLiteral    MappingKind = "literal"
	MappingExpression MappingKind = "expression"
)

// ClaimMapping produces one subject claim. Expression mappings resolve a
// dotted path against the aggregated context (now, apiData.*, calculated.*);
// they are never executed as code.
type ClaimMapping struct {
	Claim      string      `json:"claim"`
	Kind       MappingKind `json:"kind"`
	Literal    any         `json:"literal,omitempty"`
	Expression string      `json:"expression,omitempty"`
}

// RuleAction is the outcome a fired issuance rule demands.
type RuleAction string

const (
	ActionIssue            RuleAction = "issue"
	ActionReject           RuleAction = "reject"
	ActionIssueWithWarning RuleAction = "issue-with-warning"
)

// IssuanceRule is a condition/action pair gating issuance. Condition is an
// expression over the resolved claims/context evaluated by the closed-form
// expression engine.
type IssuanceRule struct {
	Name      string         `json:"name"`
	Condition string         `json:"condition"`
	Action    RuleAction     `json:"action"`
	Params    map[string]any `json:"params,omitempty"`
	Priority  int            `json:"priority"`
}

// ExpirationKind selects how a credential's expiration is computed.
type ExpirationKind string

const (
	ExpireFixed       ExpirationKind = "fixed"
	ExpireSliding     ExpirationKind = "sliding"
	ExpireConditional ExpirationKind = "conditional"
	ExpireNever       ExpirationKind = "never"
)

// ExpirationPolicy controls credential lifetime. Duration is an ISO-8601
// duration string such as "P1Y" or "P30D".
type ExpirationPolicy struct {
	Kind      ExpirationKind `json:"kind"`
	Duration  string         `json:"duration,omitempty"`
	Condition string         `json:"condition,omitempty"` // For conditional expiry
}

// RevocationPolicy controls whether and how issued credentials can be revoked.
type RevocationPolicy struct {
	Revocable bool   `json:"revocable"`
	StatusURL string `json:"statusUrl,omitempty"`
}

// FieldSchema validates one subject claim.
type FieldSchema struct {
	Type     string   `json:"type"` // "string", "number", "boolean"
	Required bool     `json:"required"`
	Min      *float64 `json:"min,omitempty"`
	Max      *float64 `json:"max,omitempty"`
	Pattern  string   `json:"pattern,omitempty"`
}

// Template is an immutable credential template. Registered once at startup
// or via explicit registration; read-only during issuance.
type Template struct {
	ID             string                 `json:"id"`
	Version        string                 `json:"version"`
	Types          []string               `json:"types"` // Appended to VerifiableCredential
	SchemaURL      string                 `json:"schemaUrl,omitempty"`
	Schema         map[string]FieldSchema `json:"schema,omitempty"`
	ClaimMappings  []ClaimMapping         `json:"claimMappings"`
	Rules          []IssuanceRule         `json:"rules"`
	Expiration     ExpirationPolicy       `json:"expiration"`
	Revocation     RevocationPolicy       `json:"revocation"`
	RefreshURL     string                 `json:"refreshUrl,omitempty"`
	EvidenceNeeded bool                   `json:"evidenceNeeded"`
	CreatedAt      time.Time              `json:"createdAt"`
}
