package grants

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"testing"

	"github.com/masterparty/platform/libs/auth"
	"github.com/masterparty/platform/libs/kafkax"
	"github.com/masterparty/platform/services/auth-service/internal/storage"
	"github.com/segmentio/kafka-go"
)

type fakeUsers struct {
	users map[string]storage.User
	calls int
}

func (f *fakeUsers) GrantProvider(_ context.Context, userID, providerID string) (storage.User, error) {
	f.calls++
	u, ok := f.users[userID]
	if !ok {
		return storage.User{}, storage.ErrNotFound
	}
	if !slices.Contains(u.Roles, auth.RoleProvider) {
		u.Roles = append(u.Roles, auth.RoleProvider)
	}
	u.ProviderID = providerID
	f.users[userID] = u
	return u, nil
}

type fakeAudit struct{ events []string }

func (f *fakeAudit) Record(_ context.Context, eventType, _ string, _ map[string]any) error {
	f.events = append(f.events, eventType)
	return nil
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestProviderCreatedGrantsRole(t *testing.T) {
	users := &fakeUsers{users: map[string]storage.User{
		"u-1": {ID: "u-1", Roles: []string{auth.RoleClient}},
	}}
	audits := &fakeAudit{}
	handle := ProviderCreated(users, audits, discard())

	msg := kafka.Message{Topic: TopicProviderCreated, Value: []byte(`{"provider_id":"p-1","owner_user_id":"u-1","slug":"salon-luna"}`)}
	if err := handle(context.Background(), msg); err != nil {
		t.Fatalf("handle: %v", err)
	}
	got := users.users["u-1"]
	if got.ProviderID != "p-1" || !slices.Equal(got.Roles, []string{auth.RoleClient, auth.RoleProvider}) {
		t.Fatalf("unexpected user %+v", got)
	}
	if len(audits.events) != 1 {
		t.Fatalf("expected one audit event, got %v", audits.events)
	}

	if err := handle(context.Background(), msg); err != nil {
		t.Fatalf("second handle: %v", err)
	}
	if roles := users.users["u-1"].Roles; len(roles) != 2 {
		t.Fatalf("role granted twice: %v", roles)
	}
}

func TestProviderCreatedRejectsBadPayloads(t *testing.T) {
	users := &fakeUsers{users: map[string]storage.User{}}
	handle := ProviderCreated(users, nil, discard())

	for _, value := range []string{`not json`, `{"provider_id":"p-1"}`} {
		err := handle(context.Background(), kafka.Message{Topic: TopicProviderCreated, Value: []byte(value)})
		if err == nil {
			t.Fatalf("expected error for %s", value)
		}
		if !kafkax.IsPermanent(err) {
			t.Fatalf("bad payload %s must not be retried: %v", value, err)
		}
	}
	if users.calls != 0 {
		t.Fatalf("storage must not be touched for bad payloads")
	}

	unknown := kafka.Message{Topic: TopicProviderCreated, Value: []byte(`{"provider_id":"p-1","owner_user_id":"ghost"}`)}
	if err := handle(context.Background(), unknown); err != nil {
		t.Fatalf("unknown owner should be skipped, got %v", err)
	}
}
