package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
	"github.com/gregdel/pushover"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testPushoverToken = "azGDORePK8gMaC0QOYAMyEEuzJnyUi"
	testPushoverUser  = "uQiRzpo4DXghDmr9QzzfQu27cmVRsG"
)

func pushoverServer(t *testing.T, status int, body string, got *url.Values) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseMultipartForm(1 << 20)
		if got != nil {
			*got = r.Form
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Limit-App-Limit", "10000")
		w.Header().Set("X-Limit-App-Remaining", "9999")
		w.Header().Set("X-Limit-App-Reset", "1893456000")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)

	previous := pushover.APIEndpoint
	pushover.APIEndpoint = srv.URL
	t.Cleanup(func() { pushover.APIEndpoint = previous })
}

func TestPushoverPostsForm(t *testing.T) {
	var got url.Values
	pushoverServer(t, http.StatusOK, `{"status":1,"request":"req-1"}`, &got)

	p, err := NewPushover(PushoverConfig{Token: testPushoverToken, User: testPushoverUser})
	require.NoError(t, err)
	require.NoError(t, p.Notify(context.Background(), "hello"))

	assert.Equal(t, testPushoverToken, got.Get("token"))
	assert.Equal(t, testPushoverUser, got.Get("user"))
	assert.Equal(t, pushoverTitle, got.Get("title"))
	assert.Equal(t, "hello", got.Get("message"))
}

func TestPushoverTruncatesLongMessages(t *testing.T) {
	var got url.Values
	pushoverServer(t, http.StatusOK, `{"status":1,"request":"req-2"}`, &got)

	p, err := NewPushover(PushoverConfig{Token: testPushoverToken, User: testPushoverUser})
	require.NoError(t, err)
	require.NoError(t, p.Notify(context.Background(), strings.Repeat("é", 3000)))
	msg := got.Get("message")
	assert.LessOrEqual(t, len(msg), pushoverMaxMessage)
	assert.True(t, strings.HasSuffix(msg, "..."))
	assert.True(t, utf8.ValidString(msg))
}

func TestPushoverRejectsAPIErrors(t *testing.T) {
	pushoverServer(t, http.StatusBadRequest, `{"status":0,"request":"req-3","errors":["user identifier is invalid"]}`, nil)

	p, err := NewPushover(PushoverConfig{Token: testPushoverToken, User: testPushoverUser})
	require.NoError(t, err)
	assert.Error(t, p.Notify(context.Background(), "hello"))
}

func TestPushoverHonoursCancelledContext(t *testing.T) {
	p, err := NewPushover(PushoverConfig{Token: testPushoverToken, User: testPushoverUser})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Notify(ctx, "hello"), context.Canceled)
}

func TestNewPushoverRequiresCredentials(t *testing.T) {
	_, err := NewPushover(PushoverConfig{Token: "tok"})
	assert.Error(t, err)
}

func TestSlackPostsWebhookText(t *testing.T) {
	var payload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&payload)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s, err := NewSlack(srv.URL, srv.Client())
	require.NoError(t, err)
	require.NoError(t, s.Notify(context.Background(), "new contact"))
	assert.Equal(t, "new contact", payload["text"])
}

type fakeDiscord struct {
	channelID string
	content   string
	err       error
}

func (f *fakeDiscord) ChannelMessageSend(channelID, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.channelID = channelID
	f.content = content
	return &discordgo.Message{}, f.err
}

func TestDiscordSendsToChannel(t *testing.T) {
	fake := &fakeDiscord{}
	d := &Discord{sess: fake, channelID: "123"}

	require.NoError(t, d.Notify(context.Background(), "ping"))
	assert.Equal(t, "123", fake.channelID)
	assert.Equal(t, "ping", fake.content)
}

func TestDiscordTruncatesLongMessages(t *testing.T) {
	fake := &fakeDiscord{}
	d := &Discord{sess: fake, channelID: "123"}

	long := make([]rune, discordMaxContent+50)
	for i := range long {
		long[i] = 'x'
	}
	require.NoError(t, d.Notify(context.Background(), string(long)))
	assert.Len(t, []rune(fake.content), discordMaxContent)
}

func TestMultiDeliversToAllAndJoinsErrors(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	record := func(name string, err error) Notifier {
		return Func(func(_ context.Context, text string) error {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, name+":"+text)
			return err
		})
	}

	boom := errors.New("boom")
	m := Multi{record("a", nil), record("b", boom), record("c", nil)}

	err := m.Notify(context.Background(), "x")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"a:x", "b:x", "c:x"}, seen)
}
