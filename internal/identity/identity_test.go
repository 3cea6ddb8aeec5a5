package identity

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/storehive/assist/internal/domain"
)

// fakeRepo is an in-memory Repository covering the session slot only.
type fakeRepo struct {
	sess *domain.Session
}

func (f *fakeRepo) GetSession(context.Context) (*domain.Session, error) { return f.sess, nil }
func (f *fakeRepo) PutSession(_ context.Context, s *domain.Session) error {
	f.sess = s
	return nil
}
func (f *fakeRepo) DeleteSession(context.Context) error { f.sess = nil; return nil }

func (f *fakeRepo) GetAdminGrant(context.Context) (*domain.AdminGrant, error) { return nil, nil }
func (f *fakeRepo) PutAdminGrant(context.Context, *domain.AdminGrant) error   { return nil }
func (f *fakeRepo) DeleteAdminGrant(context.Context) error                    { return nil }
func (f *fakeRepo) GetHistory(context.Context, domain.HistoryKind, string) (*domain.History, error) {
	return nil, nil
}
func (f *fakeRepo) PutHistory(context.Context, domain.HistoryKind, string, *domain.History) error {
	return nil
}
func (f *fakeRepo) DeleteHistory(context.Context, domain.HistoryKind, string) error { return nil }
func (f *fakeRepo) DeleteAllHistories(context.Context) (int64, error)               { return 0, nil }
func (f *fakeRepo) Ping(context.Context) error                                      { return nil }
func (f *fakeRepo) Close() error                                                    { return nil }

func TestNormalizeSiteHint(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"https scheme stripped", "https://storehive.com.ng", "storehive.com.ng"},
		{"http scheme stripped", "http://example.com", "example.com"},
		{"www prefix stripped", "https://www.example.com", "example.com"},
		{"path dropped", "https://example.com/shop/cart", "example.com"},
		{"query dropped", "example.com?ref=widget", "example.com"},
		{"fragment dropped", "example.com#chat", "example.com"},
		{"bare host unchanged", "example.com", "example.com"},
		{"empty yields unknown", "", "unknown"},
		{"whitespace yields unknown", "   ", "unknown"},
		{"scheme only yields unknown", "https://", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeSiteHint(tt.in); got != tt.want {
				t.Errorf("NormalizeSiteHint(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestDeriveFormat(t *testing.T) {
	t.Parallel()

	s := NewStore(&fakeRepo{}, time.Hour)
	id := s.Derive("https://www.storehive.com.ng/shop")

	pattern := regexp.MustCompile(`^user_\d+_[0-9a-f]{8}_storehive\.com\.ng$`)
	if !pattern.MatchString(id) {
		t.Errorf("Derive produced malformed visitor ID: %q", id)
	}
}

func TestDeriveUnique(t *testing.T) {
	t.Parallel()

	s := NewStore(&fakeRepo{}, time.Hour)
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := s.Derive("example.com")
		if seen[id] {
			t.Fatalf("Derive produced duplicate visitor ID: %q", id)
		}
		seen[id] = true
	}
}

func TestEnsureIdempotent(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{}
	s := NewStore(repo, time.Hour)

	first, err := s.Ensure(context.Background(), "example.com")
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	if first.VisitorID == "" || first.Token == "" {
		t.Fatalf("Ensure returned incomplete record: %+v", first)
	}

	second, err := s.Ensure(context.Background(), "example.com")
	if err != nil {
		t.Fatalf("second Ensure failed: %v", err)
	}
	if second.VisitorID != first.VisitorID {
		t.Errorf("Ensure regenerated a live identity: %q != %q", second.VisitorID, first.VisitorID)
	}
}

func TestEnsureRegeneratesExpired(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{}
	s := NewStore(repo, time.Hour)

	now := time.Now()
	s.now = func() time.Time { return now }

	first, err := s.Ensure(context.Background(), "example.com")
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}

	s.now = func() time.Time { return now.Add(2 * time.Hour) }
	second, err := s.Ensure(context.Background(), "example.com")
	if err != nil {
		t.Fatalf("Ensure after expiry failed: %v", err)
	}
	if second.VisitorID == first.VisitorID {
		t.Error("Ensure reused an expired identity")
	}
	if second.Token == first.Token {
		t.Error("Ensure reused an expired token")
	}
}
