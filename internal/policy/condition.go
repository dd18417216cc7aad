package policy

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/vorpalhq/vorpal/internal/models"
)

// EvaluatorFault is returned when a condition cannot be resolved to a
// boolean. It is a distinct failure mode from a rule that evaluates false:
// a fault means the policy itself is broken, not that the system violated
// it.
type EvaluatorFault struct {
	Condition string
	Reason    string
}

func (f *EvaluatorFault) Error() string {
	return fmt.Sprintf("condition %q: %s", f.Condition, f.Reason)
}

func fault(condition, format string, args ...interface{}) *EvaluatorFault {
	return &EvaluatorFault{Condition: condition, Reason: fmt.Sprintf(format, args...)}
}

// ConditionEvaluator resolves a rule's condition string against a system
// and a caller-supplied context. Implementations must be pure and total:
// any condition string resolves to a boolean or an *EvaluatorFault, never
// a panic. The literals "true" and "false" always pass and always fail
// respectively, regardless of implementation.
type ConditionEvaluator interface {
	Evaluate(condition string, system *models.AISystem, context map[string]interface{}) (bool, error)
}

// BasicEvaluator understands the reserved literals plus single comparison
// expressions of the form
//
//	<path> <op> <literal>
//
// where path is system.<field> or context.<key>, op is one of
// == != <= >= < >, and literal is a number, quoted string, bare word, or
// boolean. Anything else faults.
type BasicEvaluator struct{}

func NewBasicEvaluator() *BasicEvaluator { return &BasicEvaluator{} }

// comparison operators, longest first so "<=" is not split as "<"
var operators = []string{"<=", ">=", "==", "!=", "<", ">"}

func (e *BasicEvaluator) Evaluate(condition string, system *models.AISystem, context map[string]interface{}) (bool, error) {
	cond := strings.TrimSpace(condition)
	switch cond {
	case "", "true":
		return true, nil
	case "false":
		return false, nil
	}

	op, idx := findOperator(cond)
	if idx < 0 {
		return false, fault(condition, "no comparison operator found")
	}

	lhsExpr := strings.TrimSpace(cond[:idx])
	rhsExpr := strings.TrimSpace(cond[idx+len(op):])
	if lhsExpr == "" || rhsExpr == "" {
		return false, fault(condition, "missing operand")
	}

	lhs, err := resolvePath(condition, lhsExpr, system, context)
	if err != nil {
		return false, err
	}
	rhs := parseLiteral(rhsExpr)

	return compare(condition, op, lhs, rhs)
}

// findOperator returns the leftmost comparison operator outside quoted
// literals, trying the longest candidates first at each position so "<="
// is never split as "<". Operator characters inside quotes belong to the
// literal.
func findOperator(s string) (string, int) {
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		if c == '\'' || c == '"' {
			quote = c
			continue
		}
		for _, candidate := range operators {
			if strings.HasPrefix(s[i:], candidate) {
				return candidate, i
			}
		}
	}
	return "", -1
}

// resolvePath looks up system.<field> or context.<key>. A path that names
// nothing faults; the evaluator cannot decide pass/fail for a value it
// cannot see.
func resolvePath(condition, path string, system *models.AISystem, context map[string]interface{}) (interface{}, error) {
	switch {
	case strings.HasPrefix(path, "system."):
		field := strings.TrimPrefix(path, "system.")
		v, err := systemField(condition, system, field)
		if err != nil {
			return nil, err
		}
		return v, nil
	case strings.HasPrefix(path, "context."):
		key := strings.TrimPrefix(path, "context.")
		v, ok := context[key]
		if !ok {
			return nil, fault(condition, "context key %q not present", key)
		}
		return v, nil
	}
	return nil, fault(condition, "path %q must start with system. or context.", path)
}

func systemField(condition string, system *models.AISystem, field string) (interface{}, error) {
	if system == nil {
		return nil, fault(condition, "no system in scope")
	}
	switch field {
	case "autonomy_level":
		if system.AutonomyLevel == nil {
			return nil, fault(condition, "system has no autonomy_level")
		}
		return *system.AutonomyLevel, nil
	case "risk_tier":
		return string(system.RiskTier), nil
	case "type":
		return string(system.Type), nil
	case "status":
		return string(system.Status), nil
	case "name":
		return system.Name, nil
	case "version":
		return system.Version, nil
	case "owner_id":
		return system.OwnerID, nil
	case "team_id":
		return system.TeamID, nil
	}
	return nil, fault(condition, "unknown system field %q", field)
}

func parseLiteral(s string) interface{} {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}

func compare(condition, op string, lhs, rhs interface{}) (bool, error) {
	lf, lNum := asFloat(lhs)
	rf, rNum := asFloat(rhs)

	switch op {
	case "<", "<=", ">", ">=":
		if !lNum || !rNum {
			return false, fault(condition, "operator %s requires numeric operands", op)
		}
		switch op {
		case "<":
			return lf < rf, nil
		case "<=":
			return lf <= rf, nil
		case ">":
			return lf > rf, nil
		default:
			return lf >= rf, nil
		}
	case "==", "!=":
		var equal bool
		if lNum && rNum {
			equal = lf == rf
		} else {
			equal = fmt.Sprintf("%v", lhs) == fmt.Sprintf("%v", rhs)
		}
		if op == "==" {
			return equal, nil
		}
		return !equal, nil
	}
	return false, fault(condition, "unsupported operator %q", op)
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	return 0, false
}
