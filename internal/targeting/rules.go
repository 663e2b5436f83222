package targeting

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/acme/popup-campaign-engine/internal/domain"
)

// MatchPage matches a page URL against a glob pattern where `*` matches
// any run of characters, including none. Matching is case-insensitive
// and ignores a trailing slash on the URL.
func MatchPage(pattern, url string) bool {
	pattern = strings.ToLower(strings.TrimSpace(pattern))
	url = strings.ToLower(strings.TrimSuffix(strings.TrimSpace(url), "/"))
	if pattern == "" {
		return false
	}
	if pattern == "*" {
		return true
	}
	return matchGlob(pattern, url)
}

func matchGlob(pattern, s string) bool {
	parts := strings.Split(pattern, "*")
	if len(parts) == 1 {
		return pattern == s
	}

	if parts[0] != "" {
		if !strings.HasPrefix(s, parts[0]) {
			return false
		}
		s = s[len(parts[0]):]
	}

	last := parts[len(parts)-1]
	if last != "" {
		if !strings.HasSuffix(s, last) {
			return false
		}
		s = s[:len(s)-len(last)]
	}

	for _, mid := range parts[1 : len(parts)-1] {
		if mid == "" {
			continue
		}
		idx := strings.Index(s, mid)
		if idx < 0 {
			return false
		}
		s = s[idx+len(mid):]
	}
	return true
}

func evalNode(node *domain.AudienceNode, visitor domain.VisitorContext) (bool, error) {
	if node == nil {
		return false, fmt.Errorf("nil node")
	}
	if node.Condition != nil {
		return evalCondition(node.Condition, visitor)
	}
	if len(node.Children) == 0 {
		return false, fmt.Errorf("combinator node without children")
	}

	switch node.Combinator {
	case domain.CombinatorAnd:
		for _, child := range node.Children {
			ok, err := evalNode(child, visitor)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	case domain.CombinatorOr:
		for _, child := range node.Children {
			ok, err := evalNode(child, visitor)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, fmt.Errorf("unknown combinator %q", node.Combinator)
	}
}

func evalCondition(cond *domain.AudienceCondition, visitor domain.VisitorContext) (bool, error) {
	if cond.Field == "" {
		return false, fmt.Errorf("condition without field")
	}
	actual, present := visitor.Attributes[cond.Field]

	switch cond.Operator {
	case domain.OpEquals:
		if !present {
			return false, nil
		}
		return looseEqual(actual, cond.Value), nil
	case domain.OpNotEquals:
		if !present {
			return true, nil
		}
		return !looseEqual(actual, cond.Value), nil
	case domain.OpContains:
		if !present {
			return false, nil
		}
		return strings.Contains(toString(actual), toString(cond.Value)), nil
	case domain.OpGreaterThan, domain.OpLessThan:
		if !present {
			return false, nil
		}
		a, aok := toNumber(actual)
		b, bok := toNumber(cond.Value)
		if !aok || !bok {
			return false, fmt.Errorf("non-numeric operand for %s on %q", cond.Operator, cond.Field)
		}
		if cond.Operator == domain.OpGreaterThan {
			return a > b, nil
		}
		return a < b, nil
	default:
		return false, fmt.Errorf("unknown operator %q", cond.Operator)
	}
}

func looseEqual(a, b any) bool {
	if an, ok := toNumber(a); ok {
		if bn, ok := toNumber(b); ok {
			return an == bn
		}
	}
	return toString(a) == toString(b)
}

func toString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case bool:
		return strconv.FormatBool(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int:
		return strconv.Itoa(s)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func equalFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
