package models

// LogicalOperator joins a rule to the one after it in the list
type LogicalOperator string

const (
	LogicalAnd LogicalOperator = "AND"
	LogicalOr  LogicalOperator = "OR"
)

// AudienceRule is one field/operator/value tuple of the audience rule
// language. Its logical operator is meaningful only relative to the rule's
// position in the list: it joins this rule to the next one.
type AudienceRule struct {
	Field           string          `json:"field"`
	Operator        string          `json:"operator"`
	Value           any             `json:"value"`
	LogicalOperator LogicalOperator `json:"logical_operator,omitempty"`
}
