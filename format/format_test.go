package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want Set
	}{
		{in: "ALL", want: AllSet},
		{in: "all", want: AllSet},
		{in: "NONE", want: None},
		{in: "Default", want: Default},
		{in: "SEGMENT_INFO", want: Of(SegmentInfo)},
		{in: "segment_info, live_docs", want: Of(SegmentInfo, LiveDocs)},
		{in: "POSTINGS,POSTINGS", want: Of(Postings)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse_Unknown(t *testing.T) {
	_, err := Parse("POSTINGS,BOGUS")
	assert.ErrorIs(t, err, ErrUnknownFormat)

	_, err = Parse("")
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestDefaultSelectsEverything(t *testing.T) {
	for _, f := range All() {
		assert.True(t, Default.Has(f), f.String())
	}
	assert.Len(t, All(), 8)
}

func TestSet_String(t *testing.T) {
	assert.Equal(t, "ALL", AllSet.String())
	assert.Equal(t, "NONE", None.String())
	assert.Equal(t, "LIVE_DOCS,SEGMENT_INFO", Of(SegmentInfo, LiveDocs).String())

	s, err := Parse(Of(Norms, TermVectors).String())
	require.NoError(t, err)
	assert.Equal(t, Of(Norms, TermVectors), s)
}

func TestFromEnv(t *testing.T) {
	t.Setenv(EnvVar, "")
	s, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, Default, s)

	t.Setenv(EnvVar, "stored_fields")
	s, err = FromEnv()
	require.NoError(t, err)
	assert.Equal(t, Of(StoredFields), s)

	t.Setenv(EnvVar, "nope")
	_, err = FromEnv()
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestSelector(t *testing.T) {
	sel := Selector[string]{
		Enabled:  Of(SegmentInfo),
		KV:       func(f Format) string { return "kv:" + f.String() },
		Fallback: func(f Format) string { return "default:" + f.String() },
	}
	assert.Equal(t, "kv:SEGMENT_INFO", sel.Resolve(SegmentInfo))
	assert.Equal(t, "default:POSTINGS", sel.Resolve(Postings))
}
