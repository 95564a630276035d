package action

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/hazyhaar/discordweb/browser"
	"github.com/hazyhaar/discordweb/browser/browsertest"
	"github.com/hazyhaar/discordweb/entity"
	"github.com/hazyhaar/discordweb/idgen"
	"github.com/hazyhaar/discordweb/scrape"
)

const (
	base       = "https://discord.test"
	channelURL = base + "/channels/123456789012345678/555555555555555555"
	composer   = `[data-slate-editor="true"]`
)

func testExecutor() *Executor {
	return NewExecutor(Config{
		BaseURL:         base,
		ComposerTimeout: 20 * time.Millisecond,
		SendDelay:       -1,
		References:      idgen.Prefixed("sent-", idgen.Sequence()),
	}, nil)
}

func TestSendMessage(t *testing.T) {
	p := browsertest.NewPage(map[string]browsertest.Route{
		channelURL: {HTML: `<main><div role="textbox" data-slate-editor="true" contenteditable="true"></div></main>`},
	})

	res, err := testExecutor().SendMessage(context.Background(), p, "123456789012345678", "555555555555555555", "hello there")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if res != (entity.SendResult{MessageID: "sent-1", Status: entity.StatusSent}) {
		t.Errorf("result = %+v", res)
	}
	if v, _ := p.Filled(composer); v != "hello there" {
		t.Errorf("composer filled with %q", v)
	}
	if !reflect.DeepEqual(p.Pressed(), []browser.Key{browser.KeyEnter}) {
		t.Errorf("keys = %v", p.Pressed())
	}
	want := []string{"fill " + composer, "press Enter"}
	if !reflect.DeepEqual(p.Actions(), want) {
		t.Errorf("actions = %v, want %v", p.Actions(), want)
	}
}

func TestSendMessage_NoComposer(t *testing.T) {
	p := browsertest.NewPage(map[string]browsertest.Route{
		channelURL: {HTML: `<main><p>You do not have permission to send messages in this channel.</p></main>`},
	})

	_, err := testExecutor().SendMessage(context.Background(), p, "123456789012345678", "555555555555555555", "hi")
	var te *scrape.TargetError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want *scrape.TargetError", err)
	}
	if te.Target != "composer" || te.ID != "555555555555555555" {
		t.Errorf("target = %s %s", te.Target, te.ID)
	}
	if !errors.Is(err, browser.ErrTimeout) {
		t.Errorf("not a timeout: %v", err)
	}
	if len(p.Actions()) != 0 {
		t.Errorf("page was touched: %v", p.Actions())
	}
}

func TestDefaultReference(t *testing.T) {
	e := NewExecutor(Config{}, nil)
	ref := e.cfg.References()
	if len(ref) < len("sent-")+10 || ref[:5] != "sent-" {
		t.Errorf("reference = %q", ref)
	}
}
