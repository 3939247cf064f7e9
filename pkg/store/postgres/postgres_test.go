package postgres

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/haivivi/giztalk/pkg/account"
	"github.com/haivivi/giztalk/pkg/conversation"
	"github.com/haivivi/giztalk/pkg/credits"
)

// openTestStore connects to GIZTALK_TEST_DATABASE_URL and migrates it. The
// tests are skipped without it.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("GIZTALK_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("GIZTALK_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	s, err := Open(ctx, dsn, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return s
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := migrations.ReadDir("migrations")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) == 0 {
		t.Fatal("no migrations embedded")
	}
}

func TestLedgerOnPostgres(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	uid := uuid.NewString()
	if err := s.EnsureUser(ctx, account.User{ID: uid, Email: uid + "@test"}); err != nil {
		t.Fatal(err)
	}
	l := credits.NewLedger(s, nil)
	if _, err := l.Credit(ctx, uid, 3, "", ""); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 6)
	for range 6 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Debit(ctx, uid, 1, credits.Options{})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	short := 0
	for err := range errs {
		if errors.Is(err, credits.ErrInsufficientCredits) {
			short++
		} else if err != nil {
			t.Errorf("Debit: %v", err)
		}
	}
	if short != 3 {
		t.Errorf("rejected %d debits, want 3", short)
	}
	if acc, _ := l.Balance(ctx, uid); acc.Balance != 0 {
		t.Errorf("balance = %v", acc.Balance)
	}
}

func TestConversationsOnPostgres(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	uid := uuid.NewString()
	if err := s.EnsureUser(ctx, account.User{ID: uid}); err != nil {
		t.Fatal(err)
	}
	svc := conversation.NewService(s, nil)
	c, err := svc.Create(ctx, uid, conversation.CreateRequest{})
	if err != nil {
		t.Fatal(err)
	}
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := svc.AppendTurn(ctx, c.ID, conversation.RoleAssistant, "네"); err != nil {
				t.Errorf("AppendTurn: %v", err)
			}
		}()
	}
	wg.Wait()
	_, items, err := svc.Items(ctx, uid, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	for i, it := range items {
		if it.Sequence != i+1 {
			t.Fatalf("items[%d].Sequence = %d", i, it.Sequence)
		}
	}
	if len(items) != 10 {
		t.Errorf("items = %d", len(items))
	}
	if err := svc.Delete(ctx, uid, c.ID); err != nil {
		t.Fatal(err)
	}
}
