package schema

import "strings"

// NormalizeDefault strips the balanced outer parentheses SQL Server wraps
// around default expressions in sys.default_constraints, e.g. "((0))"
// becomes "0" and "(getdate())" becomes "getdate()". Comparison and
// emission both use the normalized form.
func NormalizeDefault(expression string) string {
	expr := strings.TrimSpace(expression)
	for strings.HasPrefix(expr, "(") && strings.HasSuffix(expr, ")") && balanced(expr[1:len(expr)-1]) {
		expr = strings.TrimSpace(expr[1 : len(expr)-1])
	}
	return expr
}

// balanced reports whether the expression's parentheses close without
// the depth going negative, i.e. the surrounding pair is truly outer.
func balanced(expr string) bool {
	depth := 0
	for _, r := range expr {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0
}

// DefaultsEqual compares two optional default constraints by normalized
// expression. Constraint names are auto-generated and never compared.
func DefaultsEqual(a, b *Default) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return NormalizeDefault(a.Expression) == NormalizeDefault(b.Expression)
}
