package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/hazyhaar/discordweb/browser"
	"github.com/hazyhaar/discordweb/browser/browsertest"
)

func testCreds() Credentials {
	return Credentials{Email: "user@example.com", Password: "hunter2"}
}

func TestCredentials_StringRedacts(t *testing.T) {
	s := testCreds().String()
	if s != "user@example.com:[redacted]" {
		t.Errorf("String() = %q", s)
	}
	if !testCreds().Complete() {
		t.Error("complete credentials reported incomplete")
	}
	if (Credentials{Email: "a@b"}).Complete() {
		t.Error("missing password reported complete")
	}
}

func TestState_Immutable(t *testing.T) {
	st := New(testCreds(), true, "/tmp/x.json")
	if st.Live() || st.LoggedIn() || st.Page() != nil {
		t.Fatal("new state should hold nothing")
	}

	// Login without a page is ignored.
	if st.WithLoggedIn(true).LoggedIn() {
		t.Error("logged_in set without a page")
	}

	inst := &browser.Instance{Page: browsertest.NewPage(nil)}
	live := st.WithInstance(inst)
	if st.Live() {
		t.Error("WithInstance mutated the receiver")
	}
	if !live.Live() {
		t.Fatal("expected live state")
	}

	in := live.WithLoggedIn(true)
	if live.LoggedIn() {
		t.Error("WithLoggedIn mutated the receiver")
	}
	if !in.LoggedIn() {
		t.Error("expected logged in")
	}

	// New handles clear the login flag.
	if in.WithInstance(&browser.Instance{Page: browsertest.NewPage(nil)}).LoggedIn() {
		t.Error("WithInstance kept logged_in")
	}

	f := in.Fresh()
	if f.Live() || f.LoggedIn() {
		t.Error("Fresh kept handles")
	}
	if f.Credentials() != in.Credentials() || f.Headless() != in.Headless() || f.ArtifactPath() != in.ArtifactPath() {
		t.Error("Fresh lost identity fields")
	}
}

func TestAcquire_LaunchesOnceAndReuses(t *testing.T) {
	d := &browsertest.Driver{}
	m := NewManager(d, nil)
	ctx := context.Background()

	st, err := m.Acquire(ctx, New(testCreds(), true, ""))
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if !st.Live() {
		t.Fatal("expected live state")
	}

	again, err := m.Acquire(ctx, st)
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if again.Instance() != st.Instance() {
		t.Error("live state was not returned unchanged")
	}
	if n := len(d.Launches()); n != 1 {
		t.Errorf("launches = %d, want 1", n)
	}
	if !d.Launches()[0].Headless {
		t.Error("headless flag not passed to driver")
	}
}

func TestAcquire_SeedsArtifact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	saved := &browser.Storage{Cookies: []browser.Cookie{{Name: "token", Value: "abc", Domain: ".discord.com", Path: "/"}}}
	if err := saved.Save(path); err != nil {
		t.Fatal(err)
	}

	d := &browsertest.Driver{}
	m := NewManager(d, nil)
	if _, err := m.Acquire(context.Background(), New(testCreds(), true, path)); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	got := d.Launches()[0].Storage
	if got == nil || !reflect.DeepEqual(got.Cookies, saved.Cookies) {
		t.Errorf("seeded storage = %+v", got)
	}
}

func TestAcquire_MissingOrCorruptArtifact(t *testing.T) {
	dir := t.TempDir()
	corrupt := filepath.Join(dir, "corrupt.json")
	if err := os.WriteFile(corrupt, []byte("{"), 0o600); err != nil {
		t.Fatal(err)
	}

	for _, path := range []string{filepath.Join(dir, "missing.json"), corrupt} {
		d := &browsertest.Driver{}
		if _, err := NewManager(d, nil).Acquire(context.Background(), New(testCreds(), true, path)); err != nil {
			t.Fatalf("%s: acquire: %v", path, err)
		}
		if d.Launches()[0].Storage != nil {
			t.Errorf("%s: expected blank profile", path)
		}
	}
}

func TestAcquire_InitError(t *testing.T) {
	boom := errors.New("chrome not found")
	d := &browsertest.Driver{LaunchErr: boom}
	st, err := NewManager(d, nil).Acquire(context.Background(), New(testCreds(), true, ""))
	var ie *InitError
	if !errors.As(err, &ie) {
		t.Fatalf("err = %v, want *InitError", err)
	}
	if !errors.Is(err, boom) {
		t.Error("InitError does not wrap the cause")
	}
	if st.Live() {
		t.Error("failed acquire returned a live state")
	}
}

func TestPersist_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	captured := &browser.Storage{
		Cookies: []browser.Cookie{{Name: "__dcfduid", Value: "v", Domain: "discord.com", Path: "/"}},
		Origins: []browser.Origin{{Origin: "https://discord.com", LocalStorage: []browser.Entry{{Name: "token", Value: `"tok"`}}}},
	}
	d := &browsertest.Driver{Captured: captured}
	m := NewManager(d, nil)
	ctx := context.Background()

	st, err := m.Acquire(ctx, New(testCreds(), true, path))
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Persist(ctx, st); err != nil {
		t.Fatalf("persist: %v", err)
	}
	if !HasArtifact(path) {
		t.Fatal("artifact not written")
	}

	// A new manager finds the artifact and seeds the next browser with it.
	d2 := &browsertest.Driver{}
	if _, err := NewManager(d2, nil).Acquire(ctx, New(testCreds(), true, path)); err != nil {
		t.Fatal(err)
	}
	if got := d2.Launches()[0].Storage; !reflect.DeepEqual(got, captured) {
		t.Errorf("restored = %+v, want %+v", got, captured)
	}
}

func TestPersist_NoPage(t *testing.T) {
	m := NewManager(&browsertest.Driver{}, nil)
	if err := m.Persist(context.Background(), New(testCreds(), true, "x")); !errors.Is(err, ErrNoPage) {
		t.Errorf("err = %v, want ErrNoPage", err)
	}
}

func TestRelease_OrderAndBestEffort(t *testing.T) {
	d := &browsertest.Driver{CloseErr: map[string]error{
		"page":    errors.New("target crashed"),
		"browser": errors.New("connection reset"),
	}}
	m := NewManager(d, nil)
	st, err := m.Acquire(context.Background(), New(testCreds(), true, ""))
	if err != nil {
		t.Fatal(err)
	}

	m.Release(st)

	want := []string{"page", "browser", "process"}
	if got := d.Closed(); !reflect.DeepEqual(got, want) {
		t.Errorf("close order = %v, want %v", got, want)
	}
}

func TestReset(t *testing.T) {
	d := &browsertest.Driver{}
	m := NewManager(d, nil)
	st, err := m.Acquire(context.Background(), New(testCreds(), false, "p"))
	if err != nil {
		t.Fatal(err)
	}
	st = st.WithLoggedIn(true)

	r := m.Reset(st)
	if r.Live() || r.LoggedIn() {
		t.Error("reset kept handles")
	}
	if r.Headless() || r.ArtifactPath() != "p" || r.Credentials() != testCreds() {
		t.Error("reset lost identity fields")
	}
	if len(d.Closed()) != 3 {
		t.Errorf("closed = %v", d.Closed())
	}
}

func TestRemoveArtifact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.json")
	if err := RemoveArtifact(path); err != nil {
		t.Errorf("missing file: %v", err)
	}
	if err := os.WriteFile(path, []byte("{}"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := RemoveArtifact(path); err != nil {
		t.Fatal(err)
	}
	if HasArtifact(path) {
		t.Error("artifact still present")
	}
}
