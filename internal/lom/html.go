package lom

import (
	"fmt"
	"regexp"
	"strings"
)

// Legacy firmware serves the value page as HTML. The page either carries the
// values (a table with the ID in the first cell and the value in the last, or
// bare id=value pairs) or is an error page whose title tells us why.

var (
	htmlTitleRe = regexp.MustCompile(`(?is)<(?:title|h1)[^>]*>([^<]+)</(?:title|h1)>`)
	htmlRowRe   = regexp.MustCompile(`(?is)<tr[^>]*>(.*?)</tr>`)
	htmlCellRe  = regexp.MustCompile(`(?is)<td[^>]*>([^<]*)</td>`)
	pairRe      = regexp.MustCompile(`(\d+)=([^;<\s]+)`)
	idRe        = regexp.MustCompile(`^\d+$`)
)

// parseLegacyHTML scrapes (id, value) pairs from a legacy firmware page, or
// maps an HTML error page to the matching error kind.
func parseLegacyHTML(text string) (map[string]string, error) {
	if err := classifyHTMLError(text); err != nil {
		return nil, err
	}

	values := make(map[string]string)

	for _, row := range htmlRowRe.FindAllStringSubmatch(text, -1) {
		cells := htmlCellRe.FindAllStringSubmatch(row[1], -1)
		if len(cells) < 2 {
			continue
		}
		id := strings.TrimSpace(cells[0][1])
		if !idRe.MatchString(id) {
			continue
		}
		values[id] = strings.TrimSpace(cells[len(cells)-1][1])
	}

	if len(values) == 0 {
		for _, m := range pairRe.FindAllStringSubmatch(text, -1) {
			values[m[1]] = m[2]
		}
	}

	if len(values) == 0 {
		return nil, fmt.Errorf("%w: HTML page with no id/value pairs", ErrMalformed)
	}
	return values, nil
}

// classifyHTMLError inspects the page title/heading for error indicators.
func classifyHTMLError(text string) error {
	m := htmlTitleRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	title := strings.TrimSpace(m[1])
	lower := strings.ToLower(title)

	switch {
	case strings.Contains(lower, "unauthorized"), strings.Contains(lower, "forbidden"):
		return fmt.Errorf("%w: %s", ErrAuthRejected, title)
	case strings.Contains(lower, "not found"):
		return fmt.Errorf("%w: %s", ErrNotFound, title)
	case strings.Contains(lower, "error"):
		return fmt.Errorf("%w: %s", ErrServer, title)
	}
	return nil
}
