package tools

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/discordweb/client"
	"github.com/hazyhaar/discordweb/discovery"
	"github.com/hazyhaar/discordweb/entity"
	"github.com/hazyhaar/discordweb/kit"
)

type fakeBackend struct {
	mu    sync.Mutex
	calls []string

	guilds   []entity.Guild
	channels []entity.Channel
	messages []entity.Message
	err      error

	readArgs [2]int
	sent     string
	scope    []string
	match    discovery.Matcher
}

func (f *fakeBackend) note(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeBackend) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeBackend) ListGuilds(context.Context) ([]entity.Guild, error) {
	f.note("guilds")
	return f.guilds, f.err
}

func (f *fakeBackend) ListChannels(_ context.Context, gid string) ([]entity.Channel, error) {
	f.note("channels " + gid)
	return f.channels, f.err
}

func (f *fakeBackend) ReadRecent(_ context.Context, gid, cid string, hours, max int) ([]entity.Message, error) {
	f.note("read " + gid + "/" + cid)
	f.readArgs = [2]int{hours, max}
	return f.messages, f.err
}

func (f *fakeBackend) SendMessage(_ context.Context, gid, cid, content string) (entity.SendResult, error) {
	f.note("send " + gid + "/" + cid)
	f.sent = content
	return entity.SendResult{MessageID: "sent-1700000000", Status: entity.StatusSent}, f.err
}

func (f *fakeBackend) Discover(_ context.Context, m discovery.Matcher, ids []string) ([]discovery.Match, error) {
	f.note("discover")
	f.match, f.scope = m, ids
	var out []discovery.Match
	for _, c := range f.channels {
		if reason, ok := m(c.Name); ok {
			out = append(out, discovery.Match{Guild: f.guilds[0], Channel: c, Reason: reason})
		}
	}
	return out, f.err
}

func (f *fakeBackend) Status(context.Context) (client.Status, error) {
	f.note("status")
	return client.Status{Policy: client.PolicyFresh, Live: true, LoggedIn: true}, nil
}

func (f *fakeBackend) Logout(context.Context) error {
	f.note("logout")
	return f.err
}

func backend() *fakeBackend {
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.FixedZone("CEST", 2*3600))
	return &fakeBackend{
		guilds: []entity.Guild{{ID: "123456789012345678", Name: "General Chat", Icon: "https://cdn/icon.png"}},
		channels: []entity.Channel{
			{ID: "555555555555555555", Name: "announcements", Type: entity.ChannelText, GuildID: "123456789012345678"},
			{ID: "666666666666666666", Name: "Lounge", Type: entity.ChannelVoice, GuildID: "123456789012345678"},
		},
		messages: []entity.Message{
			{ID: "2", Content: "hi", AuthorName: "alice", Timestamp: ts, Attachments: []string{"https://cdn.discordapp.com/a.png"}},
			{ID: "1", Content: "yo", AuthorName: "bob", Timestamp: ts.Add(-time.Hour)},
		},
	}
}

func setupSession(t *testing.T, b Backend, mws ...kit.Middleware) *mcp.ClientSession {
	t.Helper()
	srv := NewService(b, Limits{}).NewServer(mws...)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() {
		_ = srv.Run(ctx, serverT)
	}()

	c := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "0.0.1"}, nil)
	session, err := c.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

// callTool invokes a tool and returns the JSON text and the error flag.
func callTool(t *testing.T, session *mcp.ClientSession, name string, args any) (string, bool) {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	if len(result.Content) == 0 {
		t.Fatalf("CallTool(%s): no content", name)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): content %T", name, result.Content[0])
	}
	return tc.Text, result.IsError
}

func TestListTools(t *testing.T) {
	session := setupSession(t, backend())
	res, err := session.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	for _, want := range []string{"get_servers", "get_channels", "read_messages", "send_message", "discover_channels", "session_status", "logout"} {
		found := false
		for _, n := range names {
			found = found || n == want
		}
		if !found {
			t.Errorf("tool %s not registered (have %v)", want, names)
		}
	}
}

func TestGetServers(t *testing.T) {
	session := setupSession(t, backend())
	text, isErr := callTool(t, session, "get_servers", map[string]any{})
	if isErr {
		t.Fatal(text)
	}
	if text != `[{"id":"123456789012345678","name":"General Chat"}]` {
		t.Errorf("body = %s", text)
	}
}

func TestGetChannels(t *testing.T) {
	b := backend()
	session := setupSession(t, b)
	text, isErr := callTool(t, session, "get_channels", map[string]any{"server_id": "123456789012345678"})
	if isErr {
		t.Fatal(text)
	}
	var got []map[string]any
	if err := json.Unmarshal([]byte(text), &got); err != nil {
		t.Fatal(err)
	}
	want := []map[string]any{
		{"id": "555555555555555555", "name": "announcements", "type": float64(0)},
		{"id": "666666666666666666", "name": "Lounge", "type": float64(2)},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("channels = %v", got)
	}

	text, isErr = callTool(t, session, "get_channels", map[string]any{})
	if !isErr || !strings.Contains(text, "server_id: is required") {
		t.Errorf("missing server_id: %s", text)
	}

	text, isErr = callTool(t, session, "get_channels", map[string]any{"server_id": "@me"})
	if !isErr || !strings.Contains(text, "server_id: must be a numeric id") {
		t.Errorf("non-numeric server_id: %s", text)
	}
}

func TestReadMessages(t *testing.T) {
	b := backend()
	session := setupSession(t, b)

	text, isErr := callTool(t, session, "read_messages", map[string]any{"server_id": "1", "channel_id": "2"})
	if isErr {
		t.Fatal(text)
	}
	if b.readArgs != [2]int{24, 100} {
		t.Errorf("defaults = %v", b.readArgs)
	}
	var got []Message
	if err := json.Unmarshal([]byte(text), &got); err != nil {
		t.Fatal(err)
	}
	if got[0].Timestamp != "2024-05-01T08:00:00Z" {
		t.Errorf("timestamp not UTC RFC 3339: %s", got[0].Timestamp)
	}
	if got[1].Attachments == nil {
		t.Error("attachments should serialise as []")
	}

	text, isErr = callTool(t, session, "read_messages", map[string]any{"server_id": "1", "channel_id": "2", "hours_back": 48, "max_messages": 5, "summary": true})
	if isErr {
		t.Fatal(text)
	}
	var withSummary MessagesWithSummary
	if err := json.Unmarshal([]byte(text), &withSummary); err != nil {
		t.Fatal(err)
	}
	if withSummary.Summary.Count != 2 || withSummary.Summary.DistinctAuthors != 2 || withSummary.Summary.Attachments != 1 {
		t.Errorf("summary = %+v", withSummary.Summary)
	}
	if b.readArgs != [2]int{48, 5} {
		t.Errorf("args = %v", b.readArgs)
	}
}

func TestReadMessages_Bounds(t *testing.T) {
	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{"hours zero", map[string]any{"hours_back": 0}, "hours_back"},
		{"hours too many", map[string]any{"hours_back": 721}, "hours_back"},
		{"max zero", map[string]any{"max_messages": 0}, "max_messages"},
		{"max over limit", map[string]any{"max_messages": 201}, "max_messages"},
		{"no channel", map[string]any{"channel_id": ""}, "channel_id"},
		{"selector injection", map[string]any{"channel_id": `1"]`}, "channel_id"},
		{"direct messages", map[string]any{"server_id": "@me"}, "server_id"},
		{"path traversal", map[string]any{"server_id": "1/../.."}, "server_id"},
		{"padded id", map[string]any{"channel_id": " 2"}, "channel_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := backend()
			session := setupSession(t, b)
			args := map[string]any{"server_id": "1", "channel_id": "2"}
			for k, v := range tt.args {
				args[k] = v
			}
			text, isErr := callTool(t, session, "read_messages", args)
			if !isErr || !strings.Contains(text, tt.want) {
				t.Errorf("result = %s (isErr=%v)", text, isErr)
			}
			if len(b.Calls()) != 0 {
				t.Errorf("backend called: %v", b.Calls())
			}
		})
	}
}

func TestSendMessage(t *testing.T) {
	b := backend()
	session := setupSession(t, b)

	text, isErr := callTool(t, session, "send_message", map[string]any{"server_id": "1", "channel_id": "2", "content": "héllo"})
	if isErr {
		t.Fatal(text)
	}
	if text != `{"message_id":"sent-1700000000","status":"sent"}` {
		t.Errorf("body = %s", text)
	}
	if b.sent != "héllo" {
		t.Errorf("sent = %q", b.sent)
	}
}

// 2000 characters pass, 2001 never reach the backend.
func TestSendMessage_ContentLength(t *testing.T) {
	b := backend()
	svc := NewService(b, Limits{})
	ctx := context.Background()

	ok := strings.Repeat("é", MaxContentRunes)
	if _, err := svc.Send(ctx, &SendRequest{ServerID: "1", ChannelID: "2", Content: ok}); err != nil {
		t.Fatalf("2000 runes rejected: %v", err)
	}

	for _, content := range []string{"", strings.Repeat("a", MaxContentRunes+1)} {
		_, err := svc.Send(ctx, &SendRequest{ServerID: "1", ChannelID: "2", Content: content})
		var ve *ValidationError
		if !errors.As(err, &ve) || ve.Field != "content" {
			t.Errorf("len %d: err = %v", len(content), err)
		}
	}
	for _, ids := range [][2]string{{"@me", "2"}, {"1", "2/../3"}, {"1", `2"]`}, {"", "2"}} {
		_, err := svc.Send(ctx, &SendRequest{ServerID: ids[0], ChannelID: ids[1], Content: "hi"})
		var ve *ValidationError
		if !errors.As(err, &ve) || (ve.Field != "server_id" && ve.Field != "channel_id") {
			t.Errorf("ids %q: err = %v", ids, err)
		}
	}
	if calls := b.Calls(); len(calls) != 1 {
		t.Errorf("backend calls = %v", calls)
	}
}

func TestSendMessage_TooLongOverMCP(t *testing.T) {
	b := backend()
	session := setupSession(t, b)
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "send_message",
		Arguments: map[string]any{"server_id": "1", "channel_id": "2", "content": strings.Repeat("x", 2001)},
	})
	if err == nil && !result.IsError {
		t.Fatal("2001 characters accepted")
	}
	if len(b.Calls()) != 0 {
		t.Errorf("backend called: %v", b.Calls())
	}
}

func TestBackendError_Envelope(t *testing.T) {
	b := backend()
	b.err = errors.New(`scrape: could not reach guild 9: browser: timed out`)
	session := setupSession(t, b)

	text, isErr := callTool(t, session, "get_channels", map[string]any{"server_id": "9"})
	if !isErr {
		t.Fatal("expected error result")
	}
	var env kit.ErrorEnvelope
	if err := json.Unmarshal([]byte(text), &env); err != nil {
		t.Fatal(err)
	}
	if env.Tool != "get_channels" || env.Error != b.err.Error() || !strings.Contains(string(env.Arguments), `"server_id":"9"`) {
		t.Errorf("envelope = %+v", env)
	}
}

func TestDiscoverChannels(t *testing.T) {
	b := backend()
	session := setupSession(t, b)

	text, isErr := callTool(t, session, "discover_channels", map[string]any{"preset": "announcements", "server_ids": []string{"123456789012345678"}})
	if isErr {
		t.Fatal(text)
	}
	var got []Match
	if err := json.Unmarshal([]byte(text), &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Channel.Name != "announcements" || got[0].Reason != "Keywords: announcement, announcements" {
		t.Errorf("matches = %+v", got)
	}
	if !reflect.DeepEqual(b.scope, []string{"123456789012345678"}) {
		t.Errorf("scope = %v", b.scope)
	}

	text, isErr = callTool(t, session, "discover_channels", map[string]any{"pattern": "^lou"})
	if isErr || !strings.Contains(text, "Pattern: ^lou") {
		t.Errorf("pattern result = %s", text)
	}

	text, isErr = callTool(t, session, "discover_channels", map[string]any{"pattern": "[bad"})
	if isErr || text != "[]" {
		t.Errorf("invalid pattern = %s", text)
	}

	for _, args := range []map[string]any{
		{},
		{"keywords": []string{"a"}, "pattern": "b"},
		{"preset": "memes"},
		{"preset": "feedback", "server_ids": []string{"1", "@me"}},
	} {
		if text, isErr := callTool(t, session, "discover_channels", args); !isErr {
			t.Errorf("args %v accepted: %s", args, text)
		}
	}
}

func TestSessionStatusAndLogout(t *testing.T) {
	b := backend()
	session := setupSession(t, b)

	text, isErr := callTool(t, session, "session_status", nil)
	if isErr || !strings.Contains(text, `"policy":"fresh"`) || !strings.Contains(text, `"logged_in":true`) {
		t.Errorf("status = %s", text)
	}
	text, isErr = callTool(t, session, "logout", map[string]any{})
	if isErr || text != `{"status":"logged_out"}` {
		t.Errorf("logout = %s", text)
	}
}

func TestMiddlewareWrapsEveryTool(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	mw := func(next kit.Endpoint) kit.Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			mu.Lock()
			seen = append(seen, kit.GetTool(ctx))
			mu.Unlock()
			return next(ctx, req)
		}
	}
	session := setupSession(t, backend(), mw)
	callTool(t, session, "get_servers", nil)
	callTool(t, session, "session_status", nil)

	mu.Lock()
	defer mu.Unlock()
	if !reflect.DeepEqual(seen, []string{"get_servers", "session_status"}) {
		t.Errorf("seen = %v", seen)
	}
}
