package response_test

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/relaynet/go-relay-network/pkg/response"
)

func newRawResponse(status int, body string, header http.Header) *http.Response {
	if header == nil {
		header = make(http.Header)
	}
	req, _ := http.NewRequest(http.MethodPost, "https://example.com/graphql", nil)
	return &http.Response{
		StatusCode: status,
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(body)),
		Request:    req,
	}
}

func TestFromHTTP_Data(t *testing.T) {
	t.Parallel()

	res, err := FromHTTP(newRawResponse(200, `{"data":{"user":{"id":"1"}},"extensions":{"cost":3}}`, nil))
	require.NoError(t, err)
	assert.Equal(t, 200, res.Status)
	assert.Equal(t, "OK", res.StatusText)
	assert.True(t, res.OK)
	assert.Equal(t, "https://example.com/graphql", res.URL)
	assert.Equal(t, map[string]any{"user": map[string]any{"id": "1"}}, res.Data)
	assert.Equal(t, map[string]any{"cost": float64(3)}, res.Extensions)
	assert.False(t, res.HasErrors())
	assert.NotNil(t, res.JSON)
}

func TestFromHTTP_Errors(t *testing.T) {
	t.Parallel()

	res, err := FromHTTP(newRawResponse(200, `{"data":null,"errors":[{"message":"Boom","locations":[{"line":1,"column":2}],"path":["user",0]}]}`, nil))
	require.NoError(t, err)
	assert.Nil(t, res.Data)
	assert.True(t, res.HasErrors())
	assert.Equal(t, []GraphQLError{{
		Message:   "Boom",
		Locations: []Location{{Line: 1, Column: 2}},
		Path:      []any{"user", float64(0)},
	}}, res.Errors)
	assert.Equal(t, "Boom", res.Errors[0].Error())
}

func TestFromHTTP_ErrorStatus(t *testing.T) {
	t.Parallel()

	// The body of an error status is not decoded
	res, err := FromHTTP(newRawResponse(404, `Not found`, nil))
	require.NoError(t, err)
	assert.Equal(t, 404, res.Status)
	assert.False(t, res.OK)
	assert.Equal(t, "Not found", res.Text)
	assert.Nil(t, res.JSON)
	assert.Nil(t, res.Data)
}

func TestFromHTTP_InvalidJSON(t *testing.T) {
	t.Parallel()

	_, err := FromHTTP(newRawResponse(200, `{"data":`, nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestFromHTTP_NilResponse(t *testing.T) {
	t.Parallel()

	_, err := FromHTTP(nil)
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestFromHTTP_NotObject(t *testing.T) {
	t.Parallel()

	res, err := FromHTTP(newRawResponse(200, `[1,2]`, nil))
	require.NoError(t, err)
	assert.Equal(t, []any{float64(1), float64(2)}, res.JSON)
	assert.Nil(t, res.Data)
}

func TestFromHTTP_Gzip(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err := w.Write([]byte(`{"data":{"foo":"bar"}}`))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	raw := newRawResponse(200, buf.String(), http.Header{"Content-Encoding": []string{"gzip"}})
	res, err := FromHTTP(raw)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"foo": "bar"}, res.Data)
}

func TestFromHTTP_Brotli(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w := brotli.NewWriter(&buf)
	_, err := w.Write([]byte(`{"data":{"foo":"bar"}}`))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	raw := newRawResponse(200, buf.String(), http.Header{"Content-Encoding": []string{"br"}})
	res, err := FromHTTP(raw)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"foo": "bar"}, res.Data)
}

func TestFromHTTP_InvalidGzip(t *testing.T) {
	t.Parallel()

	raw := newRawResponse(200, "not gzip", http.Header{"Content-Encoding": []string{"gzip"}})
	_, err := FromHTTP(raw)
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestFromJSON(t *testing.T) {
	t.Parallel()

	res, err := FromJSON(200, []byte(`{"data":{"a":1}}`))
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, map[string]any{"a": float64(1)}, res.Data)
}

func TestResponse_DecodeData(t *testing.T) {
	t.Parallel()

	res, err := FromJSON(200, []byte(`{"data":{"user":{"id":"1","name":"John"}}}`))
	require.NoError(t, err)

	var target struct {
		User struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"user"`
	}
	require.NoError(t, res.DecodeData(&target))
	assert.Equal(t, "1", target.User.ID)
	assert.Equal(t, "John", target.User.Name)
}
