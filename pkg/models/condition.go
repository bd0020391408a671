package models

// ConditionOperator is the comparison applied between a target field and the
// condition value.
type ConditionOperator string

const (
	OperatorEquals      ConditionOperator = "equals"
	OperatorNotEquals   ConditionOperator = "not_equals"
	OperatorContains    ConditionOperator = "contains"
	OperatorGreaterThan ConditionOperator = "greater_than"
	OperatorLessThan    ConditionOperator = "less_than"
	OperatorIn          ConditionOperator = "in"
	OperatorNotIn       ConditionOperator = "not_in"
	OperatorExists      ConditionOperator = "exists"
)

// LogicalOperator joins a condition's result with the running result of the
// conditions evaluated before it.
type LogicalOperator string

const (
	LogicalAnd LogicalOperator = "AND"
	LogicalOr  LogicalOperator = "OR"
)

// Condition is one predicate in a workflow's targeting filter. Conditions are
// evaluated left to right; Logical joins this condition to the accumulated
// result and is absent on the first condition.
type Condition struct {
	Field    string            `json:"field"    validate:"required"`
	Operator ConditionOperator `json:"operator" validate:"required,oneof=equals not_equals contains greater_than less_than in not_in exists"`
	Value    any               `json:"value,omitempty"`
	Logical  LogicalOperator   `json:"logical_operator,omitempty" validate:"omitempty,oneof=AND OR"`
}
