package search

import (
	"testing"
	"time"

	"github.com/scryforge/hub/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQueryFieldConstraints(t *testing.T) {
	residue, filter := ParseQuery("provider:hn -provider:reddit is:unread is:saved golang")

	assert.Equal(t, []string{"hn"}, filter.Providers)
	assert.Equal(t, []string{"reddit"}, filter.ExcludeProv)
	require.NotNil(t, filter.IsRead)
	assert.False(t, *filter.IsRead)
	require.NotNil(t, filter.IsSaved)
	assert.True(t, *filter.IsSaved)
	assert.Contains(t, residue, "golang")
}

func TestParseQueryStreamRef(t *testing.T) {
	_, filter := ParseQuery(`in:hacker-news`)
	assert.Equal(t, "hacker-news", filter.StreamRef)

	_, filter = ParseQuery(`stream:tech`)
	assert.Equal(t, "tech", filter.StreamRef)
}

func TestParseQueryContentType(t *testing.T) {
	_, filter := ParseQuery("type:article type:video")
	assert.Equal(t, []model.ContentType{model.ContentTypeArticle, model.ContentTypeVideo}, filter.ContentTypes)
}

func TestParseQuerySinceRelative(t *testing.T) {
	before := time.Now().AddDate(0, 0, -7)
	_, filter := ParseQuery("since:7d")
	after := time.Now().AddDate(0, 0, -7)

	assert.GreaterOrEqual(t, filter.SinceUnix, before.Unix()-1)
	assert.LessOrEqual(t, filter.SinceUnix, after.Unix()+1)
}

func TestParseQuerySinceZeroDaysMatchesAll(t *testing.T) {
	residue, filter := ParseQuery("since:0d")
	assert.Equal(t, int64(0), filter.SinceUnix)
	assert.Empty(t, residue)
}

func TestParseQuerySinceInvalidFallsBackToResidue(t *testing.T) {
	residue, filter := ParseQuery("since:nonsense")
	assert.Zero(t, filter.SinceUnix)
	assert.Contains(t, residue, "nonsense")
}

func TestParseQueryDateSingleDay(t *testing.T) {
	_, filter := ParseQuery("date:2026-01-15")
	from := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	until := from.AddDate(0, 0, 1).Add(-time.Second)
	assert.Equal(t, from.Unix(), filter.SinceUnix)
	assert.Equal(t, until.Unix(), filter.UntilUnix)
}

func TestParseQueryDateRange(t *testing.T) {
	_, filter := ParseQuery("date:2026-01-01..2026-01-31")
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	until := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1).Add(-time.Second)
	assert.Equal(t, from.Unix(), filter.SinceUnix)
	assert.Equal(t, until.Unix(), filter.UntilUnix)
}

func TestParseQueryQuotedPhraseStaysOneToken(t *testing.T) {
	residue, filter := ParseQuery(`title:"hello world" foo`)
	assert.Empty(t, filter.StreamRef)
	assert.Contains(t, residue, "hello world")
	assert.Contains(t, residue, "foo")
}

func TestParseQueryUnknownPrefixIsResidue(t *testing.T) {
	residue, filter := ParseQuery("weird:token")
	assert.Equal(t, `"weird:token"`, residue)
	assert.Empty(t, filter.Providers)
}

func TestToStoreFilterOnlyFirstContentType(t *testing.T) {
	f := Filter{ContentTypes: []model.ContentType{model.ContentTypeArticle, model.ContentTypeVideo}}
	sf := f.ToStoreFilter(model.StreamID("hn:feed:top"))
	assert.Equal(t, model.ContentTypeArticle, sf.ContentType)
	assert.Equal(t, model.StreamID("hn:feed:top"), sf.StreamID)
}
