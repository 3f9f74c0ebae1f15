package sms

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testKey    = "NCSXVASNGYZHWJ4G"
	testSecret = "IIPBGQUCCBICABQBXJZ8W5OUJDUV13LI"
	testDate   = "2023-05-31T05:11:20.872Z"
	testSalt   = "8f9c6a3c483a8bfc22f63da6ef00a0a1f26d04000311ce427b385dad5e1458ab"
)

func TestSignature_KnownVector(t *testing.T) {
	assert.Equal(t,
		"e4a0a1388d7c798bbf5cb38d682e26244fb82bebc3bc27964933595ef6ab6fba",
		Signature(testSecret, testDate, testSalt))

	assert.Equal(t,
		"HMAC-SHA256 apiKey=NCSXVASNGYZHWJ4G, date=2023-05-31T05:11:20.872Z, salt=8f9c6a3c483a8bfc22f63da6ef00a0a1f26d04000311ce427b385dad5e1458ab, signature=e4a0a1388d7c798bbf5cb38d682e26244fb82bebc3bc27964933595ef6ab6fba",
		Authorization(testKey, testSecret, testDate, testSalt))
}

func TestRandomSalt(t *testing.T) {
	s := randomSalt()
	assert.Len(t, s, 64)
	assert.NotEqual(t, s, randomSalt())
}

func newTestClient(url string) *Client {
	c := NewClient(Config{APIKey: testKey, APISecret: testSecret, BaseURL: url}, http.DefaultClient)
	c.now = func() time.Time { return time.Date(2023, 5, 31, 5, 11, 20, 872_000_000, time.UTC) }
	c.salt = func() string { return testSalt }
	return c
}

func TestClient_Send(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, sendManyPath, r.URL.Path)
		assert.Equal(t, Authorization(testKey, testSecret, testDate, testSalt), r.Header.Get("Authorization"))

		var body struct {
			Messages []Message `json:"messages"`
		}
		data, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(data, &body))
		assert.Equal(t, []Message{{To: "01012345678", From: "0212345678", Text: "hi"}}, body.Messages)

		fmt.Fprint(w, `{"groupInfo":{"_id":"G1","count":{"total":1,"registeredSuccess":1,"registeredFailed":0}},"failedMessageList":[]}`)
	}))
	defer srv.Close()

	res, err := newTestClient(srv.URL).Send(context.Background(), []Message{{To: "01012345678", From: "0212345678", Text: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, SendResult{GroupIDs: []string{"G1"}, Total: 1, Succeeded: 1}, res)
}

func TestClient_SendPartialFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"groupInfo":{"_id":"G2","count":{"total":2,"registeredSuccess":1,"registeredFailed":1}},"failedMessageList":[{"to":"x"}]}`)
	}))
	defer srv.Close()

	res, err := newTestClient(srv.URL).Send(context.Background(), []Message{{To: "1"}, {To: "x"}})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
}

func TestClient_SendHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"errorCode":"InvalidAPIKey"}`, http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Send(context.Background(), []Message{{To: "1"}})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "403"))
	assert.Contains(t, err.Error(), "InvalidAPIKey")
}

func TestClient_SendRequiresCredentials(t *testing.T) {
	_, err := NewClient(Config{}, nil).Send(context.Background(), []Message{{To: "1"}})
	assert.ErrorIs(t, err, ErrMissingCredentials)
}
