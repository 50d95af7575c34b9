package service

import (
	"context"
	"errors"
	"testing"

	"arcadetalk/internal/models"
)

func TestNotificationCreate_PersistsWithoutSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.notes.Create(ctx, NotificationInput{UserID: f.bob.UserID, Type: models.NotificationComment, Content: "hello"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if evs := f.push.eventsFor(f.bob.UserID); len(evs) != 0 {
		t.Errorf("pushes = %v, want none", evs)
	}

	// bob connects later and fetches.
	f.push.online[f.bob.UserID] = true
	got, err := f.notes.GetByUser(ctx, f.bob.UserID)
	if err != nil {
		t.Fatalf("GetByUser() error = %v", err)
	}
	if len(got) != 1 || got[0].Content != "hello" || got[0].IsRead {
		t.Errorf("GetByUser() = %+v, want one unread", got)
	}
}

func TestNotificationCreate_HintsLiveSession(t *testing.T) {
	f := newFixture(t, "bob")
	_, err := f.notes.Create(context.Background(), NotificationInput{
		UserID: f.bob.UserID, Type: models.NotificationReaction, SenderID: f.alice.UserID, SenderName: "alice",
	})
	if err != nil {
		t.Fatal(err)
	}
	hints := f.push.to(f.bob.UserID, EventNewNotification)
	if len(hints) != 1 {
		t.Fatalf("new_notification pushes = %d, want 1", len(hints))
	}
	if h := hints[0].(NotificationHint); h.Type != models.NotificationReaction || h.SenderName != "alice" {
		t.Errorf("hint = %+v", h)
	}
}

func TestNotificationCreate_Validation(t *testing.T) {
	f := newFixture(t)
	_, err := f.notes.Create(context.Background(), NotificationInput{Type: models.NotificationMessage})
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Create(no user) error = %v, want ErrInvalidInput", err)
	}
}

func TestGetByUser_PageSize(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < DefaultNotificationPageSize+5; i++ {
		_, _ = f.notes.Create(ctx, NotificationInput{UserID: f.alice.UserID, Type: models.NotificationMessage})
	}
	got, _ := f.notes.GetByUser(ctx, f.alice.UserID)
	if len(got) != DefaultNotificationPageSize {
		t.Errorf("GetByUser() len = %d, want %d", len(got), DefaultNotificationPageSize)
	}
	if got[0].ID < got[len(got)-1].ID {
		t.Error("GetByUser() not newest first")
	}
}

func TestMarkRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	n, _ := f.notes.Create(ctx, NotificationInput{UserID: f.alice.UserID, Type: models.NotificationMessage})

	for i := 0; i < 2; i++ {
		got, err := f.notes.MarkRead(ctx, f.alice.UserID, n.ID)
		if err != nil {
			t.Fatalf("MarkRead() #%d error = %v", i, err)
		}
		if !got.IsRead {
			t.Errorf("MarkRead() #%d IsRead = false", i)
		}
	}

	tests := []struct {
		name    string
		userID  uint
		id      uint
		wantErr error
	}{
		{"missing id", f.alice.UserID, 0, ErrInvalidInput},
		{"unknown", f.alice.UserID, 999, ErrNotificationNotFound},
		{"someone else's", f.bob.UserID, n.ID, ErrNotificationNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.notes.MarkRead(ctx, tt.userID, tt.id); !errors.Is(err, tt.wantErr) {
				t.Errorf("MarkRead() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestMarkAllRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, _ = f.notes.Create(ctx, NotificationInput{UserID: f.alice.UserID, Type: models.NotificationMessage})
	}
	_, _ = f.notes.Create(ctx, NotificationInput{UserID: f.bob.UserID, Type: models.NotificationMessage})

	for i := 0; i < 2; i++ {
		if err := f.notes.MarkAllRead(ctx, f.alice.UserID); err != nil {
			t.Fatalf("MarkAllRead() error = %v", err)
		}
	}
	if c, _ := f.notes.UnreadCount(ctx, f.alice.UserID); c != 0 {
		t.Errorf("UnreadCount(alice) = %d, want 0", c)
	}
	if c, _ := f.notes.UnreadCount(ctx, f.bob.UserID); c != 1 {
		t.Errorf("UnreadCount(bob) = %d, want 1", c)
	}
}

func TestNotifyPostTriggers(t *testing.T) {
	f := newFixture(t, "bob")
	ctx := context.Background()

	if err := f.notes.NotifyPostReaction(ctx, f.bob.UserID, f.bob.UserID, "bob", "p1", "👍"); err != nil {
		t.Fatal(err)
	}
	if err := f.notes.NotifyPostReaction(ctx, f.bob.UserID, f.alice.UserID, "alice", "p1", "👍"); err != nil {
		t.Fatal(err)
	}
	if err := f.notes.NotifyComment(ctx, f.bob.UserID, f.carol.UserID, "carol", "p1"); err != nil {
		t.Fatal(err)
	}
	got, _ := f.notes.GetByUser(ctx, f.bob.UserID)
	if len(got) != 2 {
		t.Fatalf("bob notifications = %d, want 2", len(got))
	}
	if got[0].Type != models.NotificationComment || got[1].Type != models.NotificationReaction {
		t.Errorf("types = %s, %s", got[0].Type, got[1].Type)
	}
	if got[1].RelatedID != "p1" {
		t.Errorf("RelatedID = %q, want p1", got[1].RelatedID)
	}
}
