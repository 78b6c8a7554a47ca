package plugin

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleManifest = `
capabilities = ["network", "cache_write"]

[plugin]
id = "hackernews"
name = "Hacker News"
version = "0.3.1"
plugin_type = "provider"

[provider]
id = "hackernews"
display_name = "Hacker News"
has_feeds = true
has_communities = true

[rate_limit]
requests_per_second = 2.0
max_concurrent = 4
`

func TestParseManifest(t *testing.T) {
	m, err := ParseManifest([]byte(sampleManifest))
	require.NoError(t, err)

	assert.Equal(t, "hackernews", m.Plugin.ID)
	assert.Equal(t, PluginTypeProvider, m.Plugin.PluginType)
	assert.Equal(t, "plugin.fzb", m.Plugin.EntryPoint, "entry_point defaults when omitted")
	assert.True(t, m.Provider.HasFeeds)
	assert.True(t, m.Provider.HasCommunities)
	assert.Equal(t, []string{"network", "cache_write"}, m.Capabilities)
	require.NotNil(t, m.RateLimit.MaxConcurrent)
	assert.Equal(t, 4, *m.RateLimit.MaxConcurrent)
}

func TestParseManifestMissingPluginID(t *testing.T) {
	_, err := ParseManifest([]byte("[plugin]\nname = \"x\"\n"))
	assert.Error(t, err)
}

func TestParseManifestProviderIDDefaultsToPluginID(t *testing.T) {
	m, err := ParseManifest([]byte("[plugin]\nid = \"solo\"\n"))
	require.NoError(t, err)
	assert.Equal(t, "solo", m.Provider.ID)
}

func TestValidateCapabilities(t *testing.T) {
	assert.NoError(t, ValidateCapabilities([]string{"network", "file_read", "open_url"}))
	assert.NoError(t, ValidateCapabilities(nil))

	err := ValidateCapabilities([]string{"network", "launch_missiles"})
	var cerr *ErrCapabilityUnsatisfiable
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "launch_missiles", cerr.Capability)
}

// encodeBytecode builds a minimal valid header: magic, three
// length-prefixed strings, compiled-at timestamp.
func encodeBytecode(pluginID, pluginVer, compilerVer string, compiledAt int64) []byte {
	var buf bytes.Buffer
	buf.Write([]byte{'F', 'Z', 'B', 0x01})
	for _, s := range []string{pluginID, pluginVer, compilerVer} {
		binary.Write(&buf, binary.LittleEndian, uint16(len(s)))
		buf.WriteString(s)
	}
	binary.Write(&buf, binary.LittleEndian, compiledAt)
	return buf.Bytes()
}

func TestParseBytecodeHeader(t *testing.T) {
	data := encodeBytecode("hackernews", "0.3.1", "fzc-1.2.0", 1735689600)

	meta, err := ParseBytecodeHeader(bytes.NewReader(data), "hackernews")
	require.NoError(t, err)
	assert.Equal(t, "hackernews", meta.PluginID)
	assert.Equal(t, "0.3.1", meta.PluginVer)
	assert.Equal(t, "fzc-1.2.0", meta.CompilerVer)
	assert.EqualValues(t, 1735689600, meta.CompiledAt)
}

func TestParseBytecodeHeaderBadMagic(t *testing.T) {
	data := encodeBytecode("hackernews", "0.3.1", "fzc-1.2.0", 0)
	data[3] = 0x02

	_, err := ParseBytecodeHeader(bytes.NewReader(data), "hackernews")
	assert.ErrorContains(t, err, "magic")
}

func TestParseBytecodeHeaderIDMismatch(t *testing.T) {
	data := encodeBytecode("someone-else", "0.3.1", "fzc-1.2.0", 0)

	_, err := ParseBytecodeHeader(bytes.NewReader(data), "hackernews")
	assert.ErrorContains(t, err, "does not match manifest id")
}

func TestParseBytecodeHeaderTruncated(t *testing.T) {
	data := encodeBytecode("hackernews", "0.3.1", "fzc-1.2.0", 0)

	_, err := ParseBytecodeHeader(bytes.NewReader(data[:7]), "hackernews")
	assert.Error(t, err)
}

func TestLifecycleHappyPath(t *testing.T) {
	lc := NewLifecycle("/tmp/p")
	assert.Equal(t, StateDiscovered, lc.State())

	require.NoError(t, lc.Advance(StateManifestParsed, nil))
	require.NoError(t, lc.Advance(StateValidated, nil))
	require.NoError(t, lc.Advance(StateLoaded, nil))
	require.NoError(t, lc.Advance(StateActive, nil))
	assert.Equal(t, StateActive, lc.State())
	assert.Empty(t, lc.Reason())
}

func TestLifecycleFailsWithReason(t *testing.T) {
	lc := NewLifecycle("/tmp/p")
	err := lc.Advance(StateManifestParsed, assert.AnError)
	assert.Error(t, err)
	assert.Equal(t, StateFailed, lc.State())
	assert.Equal(t, assert.AnError.Error(), lc.Reason())

	// A failed lifecycle cannot advance again.
	assert.Error(t, lc.Advance(StateValidated, nil))
	assert.Equal(t, StateFailed, lc.State())
}

func TestLifecycleIllegalSkip(t *testing.T) {
	lc := NewLifecycle("/tmp/p")
	assert.Error(t, lc.Advance(StateLoaded, nil))
	assert.Equal(t, StateFailed, lc.State())
}
