package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNsfwFlagDecoding(t *testing.T) {
	tests := []struct {
		raw  string
		want bool
	}{
		{`true`, true},
		{`false`, false},
		{`null`, false},
		{`"None"`, false},
		{`"none"`, false},
		{`""`, false},
		{`"Soft"`, true},
		{`"Mature"`, true},
		{`"X"`, true},
		{`0`, false},
		{`1`, true},
		{`3`, true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			var img ModelImage
			require.NoError(t, json.Unmarshal([]byte(`{"url":"u","nsfw":`+tt.raw+`}`), &img))
			assert.Equal(t, tt.want, bool(img.Nsfw))
		})
	}
}

func TestNsfwFlagInvalid(t *testing.T) {
	var img ModelImage
	assert.Error(t, json.Unmarshal([]byte(`{"nsfw":{}}`), &img))
}

func TestModelKeepsRawRecord(t *testing.T) {
	raw := `{"id":7,"name":"Foo","unknownField":{"a":1},"modelVersions":[{"id":70,"images":[{"url":"https://img/x.png","nsfw":"None","meta":{"prompt":"p"}}]}]}`
	var m Model
	require.NoError(t, json.Unmarshal([]byte(raw), &m))

	assert.Equal(t, 7, m.ID)
	assert.JSONEq(t, raw, string(m.Raw))
	require.Len(t, m.ModelVersions, 1)
	require.Len(t, m.ModelVersions[0].Images, 1)
	img := m.ModelVersions[0].Images[0]
	assert.JSONEq(t, `{"url":"https://img/x.png","nsfw":"None","meta":{"prompt":"p"}}`, string(img.Raw))
	assert.False(t, bool(img.Nsfw))
}

func TestNewSourceRefArity(t *testing.T) {
	_, err := NewSourceRef(KindID, "1")
	assert.Error(t, err)
	_, err = NewSourceRef(KindID, "1,2", "1", "2")
	assert.Error(t, err)
	_, err = NewSourceRef(KindSite, "x", "1", "2", "3")
	assert.Error(t, err)
	_, err = NewSourceRef(KindAPI, "x", "abc")
	assert.Error(t, err)

	ref, err := NewSourceRef(KindSite, "https://civitai.com/models/1?modelVersionId=2", "1", "2")
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, ref.Tokens)
	assert.Equal(t, "site", ref.Kind.String())
}

func TestResolvedMetadataValidate(t *testing.T) {
	m := &ResolvedMetadata{ModelID: "1", Model: &Model{}, Version: &ModelVersion{}}
	assert.Error(t, m.Validate())
	m.VersionID = "2"
	assert.NoError(t, m.Validate())
}
