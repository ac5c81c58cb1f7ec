package personalize

import (
	"strconv"
	"strings"

	"github.com/cadencehq/cadence/pkg/schema"
)

// SenderContext carries the optional sender identity available to
// {{your_name}} and {{sender_company}} tags.
type SenderContext struct {
	Name    string
	Company string
}

// Resolve substitutes {{tag}} tokens in the template with per-lead field
// values in a single pass. Tag names are matched case-insensitively. Tags
// with no matching field resolve to the empty string: graceful degradation,
// never an error. Pure function, no I/O.
func Resolve(template string, lead *schema.Lead, sender *SenderContext) string {
	if template == "" || !strings.Contains(template, "{{") {
		return template
	}

	var result strings.Builder
	result.Grow(len(template))

	i := 0
	for i < len(template) {
		idx := strings.Index(template[i:], "{{")
		if idx == -1 {
			result.WriteString(template[i:])
			break
		}

		result.WriteString(template[i : i+idx])
		start := i + idx + 2

		end := strings.Index(template[start:], "}}")
		if end == -1 {
			// Unclosed tag: emit the rest literally.
			result.WriteString(template[i+idx:])
			break
		}
		end += start

		tag := strings.TrimSpace(template[start:end])
		result.WriteString(resolveTag(tag, lead, sender))
		i = end + 2
	}

	return result.String()
}

// resolveTag maps one tag name to its value. Unknown tags map to "".
func resolveTag(tag string, lead *schema.Lead, sender *SenderContext) string {
	switch strings.ToLower(tag) {
	case "your_name":
		if sender != nil {
			return sender.Name
		}
		return ""
	case "sender_company":
		if sender != nil {
			return sender.Company
		}
		return ""
	}

	if lead == nil {
		return ""
	}
	val, ok := lead.Field(tag)
	if !ok {
		return ""
	}
	return stringify(val)
}

func stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		// Whole-number scores render without a trailing ".0".
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}
