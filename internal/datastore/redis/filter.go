package redis

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/retrieval/internal/domain"
)

// buildFilter translates a metadata filter into an FT.SEARCH pre-filter
// query string. A nil/empty filter yields "".
func buildFilter(f *domain.MetadataFilter) (string, error) {
	if f.IsZero() {
		return "", nil
	}

	var parts []string

	if f.DocumentID != "" {
		parts = append(parts, buildDocumentIDFilter(f.DocumentID))
	}
	if f.Source != "" {
		parts = append(parts, buildTagFilter(fieldSource, string(f.Source)))
	}
	if f.SourceID != "" {
		parts = append(parts, buildTagFilter(fieldSourceID, f.SourceID))
	}
	if f.Author != "" {
		parts = append(parts, buildTagFilter(fieldAuthor, f.Author))
	}

	if f.StartDate != "" || f.EndDate != "" {
		rangePart, err := buildDateRange(f.StartDate, f.EndDate)
		if err != nil {
			return "", err
		}
		parts = append(parts, rangePart)
	}

	return strings.Join(parts, " "), nil
}

func buildDocumentIDFilter(id string) string {
	return buildTagFilter(fieldDocumentID, id)
}

func buildTagFilter(key, value string) string {
	return fmt.Sprintf("@%s:{%s}", key, tagEscaper.Replace(value))
}

func buildDateRange(start, end string) (string, error) {
	minBound := "-inf"
	maxBound := "+inf"

	if start != "" {
		ts, err := domain.ParseFilterDate(start)
		if err != nil {
			return "", err
		}
		minBound = fmt.Sprintf("%d", ts)
	}
	if end != "" {
		ts, err := domain.ParseFilterDate(end)
		if err != nil {
			return "", err
		}
		maxBound = fmt.Sprintf("%d", ts)
	}

	return fmt.Sprintf("@%s:[%s %s]", fieldCreatedTS, minBound, maxBound), nil
}

var tagEscaper = strings.NewReplacer(
	",", "\\,",
	".", "\\.",
	"<", "\\<",
	">", "\\>",
	"{", "\\{",
	"}", "\\}",
	"\"", "\\\"",
	"'", "\\'",
	":", "\\:",
	";", "\\;",
	"!", "\\!",
	"@", "\\@",
	"#", "\\#",
	"$", "\\$",
	"%", "\\%",
	"^", "\\^",
	"&", "\\&",
	"*", "\\*",
	"(", "\\(",
	")", "\\)",
	"-", "\\-",
	"+", "\\+",
	"=", "\\=",
	"~", "\\~",
	" ", "\\ ",
)
