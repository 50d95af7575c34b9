package store

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"arcadetalk/internal/db"
	"arcadetalk/internal/models"

	"github.com/google/uuid"
)

// newGormStore needs TEST_DATABASE_DSN pointing at a scratch Postgres.
func newGormStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("skip: TEST_DATABASE_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	gdb, err := db.Connect(ctx, dsn)
	if err != nil {
		t.Skipf("skip: db not available: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewGorm(gdb)
}

func uniqueUsers(t *testing.T, s *Store, n int) []models.User {
	t.Helper()
	names := make([]string, n)
	for i := range names {
		names[i] = "u-" + uuid.NewString()[:8]
	}
	return seedUsers(t, s, names...)
}

func TestGorm_MessagesAndReactions(t *testing.T) {
	s := newGormStore(t)
	ctx := context.Background()
	u := uniqueUsers(t, s, 2)
	alice, bob := u[0], u[1]

	msg := models.Message{SenderID: alice.ID, ReceiverID: bob.ID, Content: "hi"}
	if err := s.Chat.CreateMessage(ctx, &msg); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Chat.AddReaction(ctx, msg.ID, bob.ID, "👍"); err != nil {
		t.Fatal(err)
	}
	got, err := s.Chat.AddReaction(ctx, msg.ID, bob.ID, "❤️")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Reactions) != 1 || got.Reactions[0].Reaction != "❤️" {
		t.Errorf("Reactions = %+v, want one ❤️", got.Reactions)
	}

	if _, err := s.Chat.DeleteMessage(ctx, msg.ID, bob.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteMessage(by receiver) error = %v, want ErrNotFound", err)
	}
	del, err := s.Chat.DeleteMessage(ctx, msg.ID, alice.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !del.IsDeleted || del.Content != models.UnsentPlaceholder || len(del.Reactions) != 0 {
		t.Errorf("DeleteMessage() = %+v", del)
	}

	if _, err := s.Chat.AddReaction(ctx, msg.ID, bob.ID, "😂"); !errors.Is(err, ErrMessageDeleted) {
		t.Errorf("AddReaction(deleted) error = %v, want ErrMessageDeleted", err)
	}

	history, err := s.Chat.GetMessages(ctx, bob.ID, alice.ID, 0)
	if err != nil || len(history) != 1 {
		t.Fatalf("GetMessages() = %d, %v", len(history), err)
	}
	recent, err := s.Chat.GetRecentChats(ctx, alice.ID)
	if err != nil || len(recent) != 1 || recent[0].UserID != bob.ID {
		t.Errorf("GetRecentChats() = %+v, %v", recent, err)
	}
}

func TestGorm_OppositeTransfersDoNotDeadlock(t *testing.T) {
	s := newGormStore(t)
	ctx := context.Background()
	u := uniqueUsers(t, s, 2)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _, err := s.Users.TransferFunds(ctx, u[0].ID, u[1].ID, 1)
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, _, err := s.Users.TransferFunds(ctx, u[1].ID, u[0].ID, 1)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("TransferFunds() error = %v", err)
		}
	}
	a, _ := s.Users.FindByID(ctx, u[0].ID)
	b, _ := s.Users.FindByID(ctx, u[1].ID)
	if a.Balance+b.Balance != 200 {
		t.Errorf("total balance = %d, want 200", a.Balance+b.Balance)
	}
}

func TestGorm_TransferAndNotifications(t *testing.T) {
	s := newGormStore(t)
	ctx := context.Background()
	u := uniqueUsers(t, s, 2)

	if _, _, err := s.Users.TransferFunds(ctx, u[0].ID, u[1].ID, 1000); !errors.Is(err, ErrInsufficientFunds) {
		t.Errorf("TransferFunds(overdraft) error = %v, want ErrInsufficientFunds", err)
	}
	from, to, err := s.Users.TransferFunds(ctx, u[0].ID, u[1].ID, 40)
	if err != nil {
		t.Fatal(err)
	}
	if from.Balance != 60 || to.Balance != 140 {
		t.Errorf("balances = %d/%d, want 60/140", from.Balance, to.Balance)
	}

	n := models.Notification{UserID: u[1].ID, Type: models.NotificationTransfer, Content: "coins"}
	if err := s.Notifications.Create(ctx, &n); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Notifications.MarkAsRead(ctx, n.ID, u[0].ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("MarkAsRead(foreign) error = %v, want ErrNotFound", err)
	}
	if _, err := s.Notifications.MarkAsRead(ctx, n.ID, u[1].ID); err != nil {
		t.Fatal(err)
	}
	if c, _ := s.Notifications.CountUnread(ctx, u[1].ID); c != 0 {
		t.Errorf("CountUnread() = %d, want 0", c)
	}
}
