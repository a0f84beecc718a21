package normalize

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testNormalizer() *Normalizer {
	return New(func(filename string) string { return "http://backend/uploads/" + filename })
}

func TestNormalize_TranscriptAndDownload(t *testing.T) {
	payload := `{
		"transcribe": {"text": "This is a thirty-character or longer transcript body."},
		"download": {"filename": "out.mp4"}
	}`

	blocks, err := testNormalizer().Normalize([]byte(payload))
	require.NoError(t, err)
	require.Len(t, blocks, 2)

	assert.Equal(t, Block{Type: BlockVideo, URL: "http://backend/uploads/out.mp4", Label: "download"}, blocks[0])
	assert.Equal(t, BlockText, blocks[1].Type)
	assert.Equal(t, "transcribe (text)", blocks[1].Label)
	assert.Equal(t, "This is a thirty-character or longer transcript body.", blocks[1].Content)
}

func TestNormalize_Deduplicates(t *testing.T) {
	payload := `{
		"url": "https://cdn.example.com/a.mp4",
		"steps": [
			{"url": "https://cdn.example.com/a.mp4"},
			{"summary": "The same summary text appears more than once here."},
			{"output": "The same summary text appears more than once here."}
		]
	}`

	blocks, err := testNormalizer().Normalize([]byte(payload))
	require.NoError(t, err)
	require.Len(t, blocks, 2)
	assert.Equal(t, "Media", blocks[0].Label)
	assert.Equal(t, "1 (summary)", blocks[1].Label)
}

func TestNormalize_Determinism(t *testing.T) {
	payload := []byte(`{"z": {"url": "x.png"}, "a": {"url": "y.wav"}, "message": "a root level message that is long enough"}`)
	n := testNormalizer()

	first, err := n.Normalize(payload)
	require.NoError(t, err)
	second, err := n.Normalize(payload)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	require.Len(t, first, 3)
	// Document order is kept within the media group.
	assert.Equal(t, BlockImage, first[0].Type)
	assert.Equal(t, BlockAudio, first[1].Type)
	assert.Equal(t, "message", first[2].Label)
}

func TestNormalize_StablePartition(t *testing.T) {
	payload := `{
		"one": {"analysis": "first text block in traversal order, long"},
		"two": {"url": "https://x/clip.webm?sig=abc"},
		"three": {"reasoning": "second text block in traversal order, long"},
		"four": {"url": "https://x/cover.JPG"}
	}`

	blocks, err := testNormalizer().Normalize([]byte(payload))
	require.NoError(t, err)
	require.Len(t, blocks, 4)

	labels := []string{blocks[0].Label, blocks[1].Label, blocks[2].Label, blocks[3].Label}
	assert.Equal(t, []string{"two", "four", "one (analysis)", "three (reasoning)"}, labels)
	assert.Equal(t, BlockImage, blocks[1].Type)
}

func TestNormalize_SkipsUnclassifiable(t *testing.T) {
	payload := `{
		"short": {"text": "too short"},
		"link": {"response": "https://example.com/some/very/long/path/here"},
		"doc": {"url": "https://example.com/report.pdf"},
		"count": 3,
		"flags": [true, null, "x"],
		"url": 42
	}`

	blocks, err := testNormalizer().Normalize([]byte(payload))
	require.NoError(t, err)
	assert.Empty(t, blocks)
}

func TestNormalize_UrlWinsOverFilename(t *testing.T) {
	blocks, err := testNormalizer().Normalize([]byte(`{"out": {"url": "https://x/a.mp3", "filename": "b.mp4"}}`))
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, "https://x/a.mp3", blocks[0].URL)
}

func TestNormalize_FilenameOnlyWithoutUrl(t *testing.T) {
	t.Run("non-string url suppresses filename", func(t *testing.T) {
		blocks, err := testNormalizer().Normalize([]byte(`{"out": {"url": {"href": "y"}, "filename": "z.mp4"}}`))
		require.NoError(t, err)
		assert.Empty(t, blocks)
	})

	t.Run("empty url falls back to filename", func(t *testing.T) {
		blocks, err := testNormalizer().Normalize([]byte(`{"out": {"url": "", "filename": "z.mp4"}}`))
		require.NoError(t, err)
		require.Len(t, blocks, 1)
		assert.Equal(t, "http://backend/uploads/z.mp4", blocks[0].URL)
	})

	t.Run("null url falls back to filename", func(t *testing.T) {
		blocks, err := testNormalizer().Normalize([]byte(`{"out": {"url": null, "filename": "z.mp4"}}`))
		require.NoError(t, err)
		require.Len(t, blocks, 1)
		assert.Equal(t, BlockVideo, blocks[0].Type)
	})
}

func TestNormalize_ParseFailure(t *testing.T) {
	t.Run("invalid json", func(t *testing.T) {
		_, err := testNormalizer().Normalize([]byte(`{"broken": `))
		require.Error(t, err)
		var perr *ParseError
		assert.True(t, errors.As(err, &perr))
	})

	t.Run("trailing garbage", func(t *testing.T) {
		_, err := testNormalizer().Normalize([]byte(`{} {}`))
		assert.Error(t, err)
	})

	t.Run("empty payload", func(t *testing.T) {
		blocks, err := testNormalizer().Normalize(nil)
		assert.NoError(t, err)
		assert.Empty(t, blocks)
	})
}

func TestDetectType(t *testing.T) {
	cases := map[string]BlockType{
		"clip.MOV":                     BlockVideo,
		"https://x/y/track.m4a?t=1":    BlockAudio,
		"/uploads/frame.jpeg#fragment": BlockImage,
	}
	for ref, want := range cases {
		got, ok := DetectType(ref)
		assert.True(t, ok, ref)
		assert.Equal(t, want, got, ref)
	}

	_, ok := DetectType("https://example.com")
	assert.False(t, ok)
}

func TestWalk_ArrayElementsUseIndex(t *testing.T) {
	v, err := Parse([]byte(`{"clips": [{"url": "a.mp4"}, "skip", [{"url": "b.mp4"}]]}`))
	require.NoError(t, err)

	var contexts []string
	Walk(v, func(context string, node Value) {
		contexts = append(contexts, context)
	})
	assert.Equal(t, []string{"", "0", "0"}, contexts)
}

func TestFromAny(t *testing.T) {
	v := FromAny(map[string]any{"b": []any{1.5, "x"}, "a": nil})
	require.Equal(t, KindObject, v.Kind)
	require.Len(t, v.Members, 2)
	assert.Equal(t, "a", v.Members[0].Key)
	assert.Equal(t, KindArray, v.Members[1].Value.Kind)
	assert.Equal(t, "1.5", v.Members[1].Value.Items[0].Num.String())
}
