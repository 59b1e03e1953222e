package channel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	beaconerrors "beacon/internal/errors"
)

func TestTwilioMessengerSend(t *testing.T) {
	var gotPath, gotBody, gotUser string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUser, _, _ = r.BasicAuth()
		require.NoError(t, r.ParseForm())
		gotBody = r.PostForm.Get("Body")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM123"}`))
	}))
	defer srv.Close()

	m := NewTwilioMessenger(TwilioConfig{
		BaseURL:    srv.URL,
		AccountSID: "AC42",
		AuthToken:  "secret",
		FromNumber: "+15550001111",
	}, nil)

	sid, err := m.Send(context.Background(), SMSRequest{To: "+48111222333", Body: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "SM123", sid)
	assert.Equal(t, "/2010-04-01/Accounts/AC42/Messages.json", gotPath)
	assert.Equal(t, "AC42", gotUser)
	assert.Equal(t, "hello", gotBody)
}

func TestTwilioCallerBuildsTwiML(t *testing.T) {
	var gotTwiml, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, r.ParseForm())
		gotTwiml = r.PostForm.Get("Twiml")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"CA456"}`))
	}))
	defer srv.Close()

	c := NewTwilioCaller(TwilioConfig{BaseURL: srv.URL, AccountSID: "AC42", FromNumber: "+15550001111"}, nil)

	sid, err := c.Call(context.Background(), CallRequest{To: "+48111222333", Text: "Good morning & hello"})
	require.NoError(t, err)
	assert.Equal(t, "CA456", sid)
	assert.Equal(t, "/2010-04-01/Accounts/AC42/Calls.json", gotPath)
	assert.Equal(t, "<Response><Say>Good morning &amp; hello</Say></Response>", gotTwiml)

	_, err = c.Call(context.Background(), CallRequest{To: "+48111222333", AudioURL: "https://cdn.example.com/clip.mp3"})
	require.NoError(t, err)
	assert.Equal(t, "<Response><Play>https://cdn.example.com/clip.mp3</Play></Response>", gotTwiml)
}

func TestTwilioErrorClassification(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Too Many Requests"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	m := NewTwilioMessenger(TwilioConfig{BaseURL: srv.URL, AccountSID: "AC42"}, nil)
	_, err := m.Send(context.Background(), SMSRequest{To: "+1", Body: "x"})
	require.Error(t, err)
	assert.True(t, beaconerrors.IsTransient(err))
}
