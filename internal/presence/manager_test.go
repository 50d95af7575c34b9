package presence

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"arcadetalk/internal/auth"
	"arcadetalk/internal/models"
	"arcadetalk/internal/store"
)

type recorded struct {
	at     time.Time
	change StatusChange
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	events []recorded
}

func (f *fakeBroadcaster) Broadcast(event string, payload interface{}) {
	if event != EventStatusChange {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, recorded{at: time.Now(), change: payload.(StatusChange)})
}

func (f *fakeBroadcaster) statuses() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.change.Status)
	}
	return out
}

func (f *fakeBroadcaster) count(status string) int {
	n := 0
	for _, s := range f.statuses() {
		if s == status {
			n++
		}
	}
	return n
}

type countingUsers struct {
	store.Users
	touches atomic.Int64
}

func (c *countingUsers) UpdateLastActive(ctx context.Context, id uint) error {
	c.touches.Add(1)
	return c.Users.UpdateLastActive(ctx, id)
}

type failingUsers struct {
	store.Users
}

func (failingUsers) UpdateOnlineStatus(context.Context, uint, string) (*models.User, error) {
	return nil, errors.New("db down")
}

func (failingUsers) UpdateLastActive(context.Context, uint) error {
	return errors.New("db down")
}

func newFixture(t *testing.T, cfg Config) (*Manager, *fakeBroadcaster, *store.Store, models.User) {
	t.Helper()
	st := store.NewMemory()
	u := models.User{Username: "alice", PasswordHash: "x"}
	if err := st.Users.Create(context.Background(), &u); err != nil {
		t.Fatal(err)
	}
	bc := &fakeBroadcaster{}
	m := NewManager(st.Users, bc, nil, cfg)
	t.Cleanup(m.Close)
	return m, bc, st, u
}

func session(u models.User, conn string) auth.Session {
	return auth.Session{ConnID: conn, UserID: u.ID, Username: u.Username, Authenticated: true}
}

func TestConnect_BroadcastsOnceForMultipleSessions(t *testing.T) {
	m, bc, st, u := newFixture(t, Config{Grace: time.Hour, Heartbeat: time.Hour})
	m.Connect(session(u, "tab1"))
	m.Connect(session(u, "tab2"))

	if got := bc.statuses(); len(got) != 1 || got[0] != models.StatusOnline {
		t.Fatalf("broadcasts = %v, want [online]", got)
	}
	if got := m.Status(u.ID); got != models.StatusOnline {
		t.Errorf("Status() = %q, want online", got)
	}
	stored, _ := st.Users.FindByID(context.Background(), u.ID)
	if stored.OnlineStatus != models.StatusOnline {
		t.Errorf("stored status = %q, want online", stored.OnlineStatus)
	}
}

func TestConnect_IgnoresAnonymous(t *testing.T) {
	m, bc, _, _ := newFixture(t, Config{Grace: time.Hour, Heartbeat: time.Hour})
	m.Connect(auth.Session{ConnID: "anon"})
	m.Disconnect(auth.Session{ConnID: "anon"})
	if got := bc.statuses(); len(got) != 0 {
		t.Errorf("broadcasts = %v, want none", got)
	}
}

func TestDisconnect_OtherSessionKeepsUserOnline(t *testing.T) {
	grace := 40 * time.Millisecond
	m, bc, _, u := newFixture(t, Config{Grace: grace, Heartbeat: time.Hour})
	m.Connect(session(u, "tab1"))
	m.Connect(session(u, "tab2"))
	m.Disconnect(session(u, "tab1"))

	time.Sleep(3 * grace)
	if got := m.Status(u.ID); got != models.StatusOnline {
		t.Fatalf("Status() with one live tab = %q, want online", got)
	}
	if n := bc.count(models.StatusOffline); n != 0 {
		t.Fatalf("offline broadcasts = %d, want 0", n)
	}

	m.Disconnect(session(u, "tab2"))
	time.Sleep(3 * grace)
	if got := m.Status(u.ID); got != models.StatusOffline {
		t.Errorf("Status() after last tab = %q, want offline", got)
	}
	if n := bc.count(models.StatusOffline); n != 1 {
		t.Errorf("offline broadcasts = %d, want 1", n)
	}
}

func TestReconnectWithinGrace_NeverOffline(t *testing.T) {
	grace := 60 * time.Millisecond
	m, bc, _, u := newFixture(t, Config{Grace: grace, Heartbeat: time.Hour})
	m.Connect(session(u, "c1"))
	m.Disconnect(session(u, "c1"))
	time.Sleep(grace / 6)
	m.Connect(session(u, "c2"))

	time.Sleep(3 * grace)
	if n := bc.count(models.StatusOffline); n != 0 {
		t.Errorf("offline broadcasts = %d, want 0", n)
	}
	if got := bc.statuses(); len(got) != 1 {
		t.Errorf("broadcasts = %v, want only the first online", got)
	}
	if got := m.Status(u.ID); got != models.StatusOnline {
		t.Errorf("Status() = %q, want online", got)
	}
}

func TestGraceExpiry_SingleOfflineAfterWindow(t *testing.T) {
	grace := 50 * time.Millisecond
	m, bc, st, u := newFixture(t, Config{Grace: grace, Heartbeat: time.Hour})
	m.Connect(session(u, "c1"))
	disconnected := time.Now()
	m.Disconnect(session(u, "c1"))

	time.Sleep(4 * grace)
	bc.mu.Lock()
	var offline []recorded
	for _, e := range bc.events {
		if e.change.Status == models.StatusOffline {
			offline = append(offline, e)
		}
	}
	bc.mu.Unlock()
	if len(offline) != 1 {
		t.Fatalf("offline broadcasts = %d, want 1", len(offline))
	}
	if waited := offline[0].at.Sub(disconnected); waited < grace {
		t.Errorf("offline after %v, want >= %v", waited, grace)
	}
	if offline[0].change.Username != "alice" || offline[0].change.UserID != u.ID {
		t.Errorf("offline payload = %+v", offline[0].change)
	}
	stored, _ := st.Users.FindByID(context.Background(), u.ID)
	if stored.OnlineStatus != models.StatusOffline {
		t.Errorf("stored status = %q, want offline", stored.OnlineStatus)
	}
}

func TestSetStatus(t *testing.T) {
	m, bc, _, u := newFixture(t, Config{Grace: time.Hour, Heartbeat: time.Hour})
	sess := session(u, "c1")

	if m.SetStatus(sess, models.StatusAway) {
		t.Fatal("SetStatus() before connect = true, want false")
	}
	m.Connect(sess)

	tests := []struct {
		status string
		want   bool
		live   string
	}{
		{models.StatusAway, true, models.StatusAway},
		{"sleeping", false, models.StatusAway},
		{models.StatusOffline, false, models.StatusAway},
		{models.StatusBusy, true, models.StatusBusy},
		{models.StatusOnline, true, models.StatusOnline},
	}
	for _, tt := range tests {
		if got := m.SetStatus(sess, tt.status); got != tt.want {
			t.Errorf("SetStatus(%q) = %v, want %v", tt.status, got, tt.want)
		}
		if got := m.Status(u.ID); got != tt.live {
			t.Errorf("Status() after %q = %q, want %q", tt.status, got, tt.live)
		}
	}
	want := []string{"online", "away", "busy", "online"}
	got := bc.statuses()
	if len(got) != len(want) {
		t.Fatalf("broadcasts = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("broadcast[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestHeartbeat_StopsOnDisconnect(t *testing.T) {
	st := store.NewMemory()
	u := models.User{Username: "alice", PasswordHash: "x"}
	_ = st.Users.Create(context.Background(), &u)
	users := &countingUsers{Users: st.Users}
	m := NewManager(users, &fakeBroadcaster{}, nil, Config{Grace: time.Hour, Heartbeat: 10 * time.Millisecond})
	defer m.Close()

	m.Connect(session(u, "c1"))
	time.Sleep(55 * time.Millisecond)
	if n := users.touches.Load(); n < 2 {
		t.Fatalf("heartbeat touches = %d, want >= 2", n)
	}
	m.Disconnect(session(u, "c1"))
	time.Sleep(15 * time.Millisecond)
	before := users.touches.Load()
	time.Sleep(50 * time.Millisecond)
	if after := users.touches.Load(); after != before {
		t.Errorf("heartbeat kept running after disconnect: %d -> %d", before, after)
	}
}

func TestStoreErrorsAreSwallowed(t *testing.T) {
	st := store.NewMemory()
	u := models.User{Username: "alice", PasswordHash: "x"}
	_ = st.Users.Create(context.Background(), &u)
	bc := &fakeBroadcaster{}
	m := NewManager(failingUsers{st.Users}, bc, nil, Config{Grace: 20 * time.Millisecond, Heartbeat: 5 * time.Millisecond})
	defer m.Close()

	m.Connect(session(u, "c1"))
	time.Sleep(20 * time.Millisecond)
	m.Disconnect(session(u, "c1"))
	time.Sleep(80 * time.Millisecond)

	want := []string{models.StatusOnline, models.StatusOffline}
	got := bc.statuses()
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("broadcasts = %v, want %v", got, want)
	}
}

func TestSelectable(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"online", true},
		{"away", true},
		{"busy", true},
		{"offline", false},
		{"", false},
		{"ONLINE", false},
	}
	for _, tt := range tests {
		if got := Selectable(tt.in); got != tt.want {
			t.Errorf("Selectable(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
