// Package search implements the query language: a small scanner splitting
// a human query string into field constraints plus a free-text residue,
// and the unified-view aggregates computed over internal/store reads.
package search

import (
	"strconv"
	"strings"
	"time"

	"github.com/scryforge/hub/internal/model"
)

// Filter is the parsed field-constraint set of a query, before it is
// resolved against a live store (StreamRef needs a name->id lookup the
// parser itself cannot do).
type Filter struct {
	Providers    []string
	ExcludeProv  []string
	StreamRef    string // raw "in:"/"stream:" token, resolved by Resolve
	ContentTypes []model.ContentType
	IsRead       *bool
	IsSaved      *bool
	SinceUnix    int64
	UntilUnix    int64
}

func boolPtr(b bool) *bool { return &b }

// ParseQuery splits raw into (residue, filter). Unknown field
// prefixes are not errors: the whole token is kept as a residue term.
// Multiple content-type constraints and provider constraints accumulate;
// multiple is:read/is:unread on the same query are last-write-wins.
func ParseQuery(raw string) (residue string, filter Filter) {
	var residueTerms []string

	for _, tok := range tokenize(raw) {
		if tok == "" {
			continue
		}

		switch {
		case strings.HasPrefix(tok, "-provider:"):
			filter.ExcludeProv = append(filter.ExcludeProv, strings.TrimPrefix(tok, "-provider:"))
		case strings.HasPrefix(tok, "provider:"):
			filter.Providers = append(filter.Providers, strings.TrimPrefix(tok, "provider:"))
		case strings.HasPrefix(tok, "in:"):
			filter.StreamRef = strings.TrimPrefix(tok, "in:")
		case strings.HasPrefix(tok, "stream:"):
			filter.StreamRef = strings.TrimPrefix(tok, "stream:")
		case strings.HasPrefix(tok, "title:"):
			residueTerms = append(residueTerms, "title:"+quoteFTSTerm(strings.TrimPrefix(tok, "title:")))
		case strings.HasPrefix(tok, "content:"):
			residueTerms = append(residueTerms, "content_data_json:"+quoteFTSTerm(strings.TrimPrefix(tok, "content:")))
		case strings.HasPrefix(tok, "type:"):
			filter.ContentTypes = append(filter.ContentTypes, model.ContentType(strings.TrimPrefix(tok, "type:")))
		case tok == "is:read":
			filter.IsRead = boolPtr(true)
		case tok == "is:unread":
			filter.IsRead = boolPtr(false)
		case tok == "is:saved", tok == "is:starred", tok == "is:favorite":
			filter.IsSaved = boolPtr(true)
		case strings.HasPrefix(tok, "since:"):
			if since, ok := parseSince(strings.TrimPrefix(tok, "since:")); ok {
				filter.SinceUnix = since.Unix()
			} else {
				residueTerms = append(residueTerms, quoteFTSTerm(tok))
			}
		case strings.HasPrefix(tok, "date:"):
			from, until, ok := parseDate(strings.TrimPrefix(tok, "date:"))
			if ok {
				filter.SinceUnix = from
				filter.UntilUnix = until
			} else {
				residueTerms = append(residueTerms, quoteFTSTerm(tok))
			}
		default:
			residueTerms = append(residueTerms, quoteFTSTerm(tok))
		}
	}

	return strings.Join(residueTerms, " AND "), filter
}

// quoteFTSTerm wraps a bare or already-quoted term in FTS5 double quotes so
// punctuation inside a residue term (e.g. from a quoted phrase) can't be
// misread as FTS5 operator syntax.
func quoteFTSTerm(term string) string {
	term = strings.Trim(term, `"`)
	if term == "" {
		return term
	}
	return `"` + strings.ReplaceAll(term, `"`, `""`) + `"`
}

// tokenize splits raw on whitespace, keeping "quoted phrases" (and
// field:"quoted phrase" constraints) as single tokens.
func tokenize(raw string) []string {
	var tokens []string
	var cur strings.Builder
	inQuote := false

	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}

	for _, r := range raw {
		switch {
		case r == '"':
			inQuote = !inQuote
			cur.WriteRune(r)
		case r == ' ' && !inQuote:
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return tokens
}

// parseSince parses "<N><d|w|m>" relative to time.Now(). "since:0d"
// matches every item that carries a published timestamp.
func parseSince(spec string) (time.Time, bool) {
	if len(spec) < 2 {
		return time.Time{}, false
	}
	unit := spec[len(spec)-1]
	n, err := strconv.Atoi(spec[:len(spec)-1])
	if err != nil || n < 0 {
		return time.Time{}, false
	}

	if n == 0 && (unit == 'd' || unit == 'w' || unit == 'm') {
		// Epoch: SinceUnix 0 sets no lower bound on published.
		return time.Unix(0, 0).UTC(), true
	}

	now := time.Now().UTC()
	switch unit {
	case 'd':
		return now.AddDate(0, 0, -n), true
	case 'w':
		return now.AddDate(0, 0, -7*n), true
	case 'm':
		return now.AddDate(0, -n, 0), true
	default:
		return time.Time{}, false
	}
}

// parseDate parses "YYYY-MM-DD" or "YYYY-MM-DD..YYYY-MM-DD" into a
// [from, until] Unix range (until is end-of-day for a single date).
func parseDate(spec string) (fromUnix, untilUnix int64, ok bool) {
	if idx := strings.Index(spec, ".."); idx >= 0 {
		from, err1 := time.Parse("2006-01-02", spec[:idx])
		until, err2 := time.Parse("2006-01-02", spec[idx+2:])
		if err1 != nil || err2 != nil {
			return 0, 0, false
		}
		return from.Unix(), until.AddDate(0, 0, 1).Add(-time.Second).Unix(), true
	}

	d, err := time.Parse("2006-01-02", spec)
	if err != nil {
		return 0, 0, false
	}
	return d.Unix(), d.AddDate(0, 0, 1).Add(-time.Second).Unix(), true
}

// ToStoreFilter converts a resolved Filter (StreamID already looked up by
// the caller, since this package cannot reach the store on its own) into
// the model.SearchFilter internal/store.Search consumes. Only the first
// ContentTypes entry is honored, matching store.SearchFilter's single
// ContentType field; additional type: constraints beyond the first are a
// caller-level concern this package does not second-guess.
func (f Filter) ToStoreFilter(streamID model.StreamID) model.SearchFilter {
	sf := model.SearchFilter{
		StreamID:    streamID,
		IsRead:      f.IsRead,
		IsSaved:     f.IsSaved,
		Providers:   f.Providers,
		ExcludeProv: f.ExcludeProv,
		SinceUnix:   f.SinceUnix,
		UntilUnix:   f.UntilUnix,
	}
	if len(f.ContentTypes) > 0 {
		sf.ContentType = f.ContentTypes[0]
	}
	return sf
}
