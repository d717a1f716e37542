// Package keys builds deterministic cache keys for page requests.
package keys

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"

	"github.com/mohammed-shakir/map-search-pager/internal/core/model"
)

const (
	prefix          = "search:v1"
	maxQueryTextLen = 80
)

// SearchKey identifies one page of one search. The readable query segment is
// truncated; the hash covers the full normalised request.
func SearchKey(req model.PageRequest) string {
	q := collapseASCIIWhitespace(req.Query)
	qSafe := sanitizeForKey(q)
	if len(qSafe) > maxQueryTextLen {
		qSafe = qSafe[:maxQueryTextLen]
	}

	canon := struct {
		Q      string       `json:"q"`
		Rows   int          `json:"rows"`
		Start  int          `json:"start"`
		Extras model.Extras `json:"extras"`
	}{q, req.Rows, req.Start, req.Extras}
	// fields are fixed-shape so Marshal cannot fail
	b, _ := json.Marshal(canon)
	sum := xxhash.Sum64(b)

	return fmt.Sprintf("%s:rows=%d:start=%d:%s:q=%s:h=%016x",
		prefix, req.Rows, req.Start, filterTag(req.Extras), qSafe, sum)
}

func filterTag(e model.Extras) string {
	switch {
	case len(e.Poly) > 0:
		return fmt.Sprintf("poly%d", len(e.Poly))
	case e.ExtBBox != "":
		return "bbox"
	default:
		return "none"
	}
}

func sanitizeForKey(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))

	var prev rune
	for _, r := range s {
		out := rune(0)
		switch {
		case r == ' ':
			out = '_'
		case isAlphaNum(r) || r == '_' || r == '-':
			out = r
		default:
			// Any other rune (including non-ASCII) becomes '-'
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

// converts any run of ASCII whitespace to a single space.
func collapseASCIIWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	wasWS := false
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f' {
			if !wasWS {
				b.WriteByte(' ')
				wasWS = true
			}
			continue
		}
		b.WriteRune(r)
		wasWS = false
	}
	return strings.TrimSpace(b.String())
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r < unicode.MaxASCII && unicode.IsDigit(r))
}
