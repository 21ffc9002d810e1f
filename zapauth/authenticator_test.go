package zapauth

import (
	"context"
	"testing"
)

type memDirectory struct {
	plain map[string]struct {
		password string
		userID   string
	}
	curve map[[32]byte]string
}

func newMemDirectory() *memDirectory {
	return &memDirectory{
		plain: map[string]struct {
			password string
			userID   string
		}{},
		curve: map[[32]byte]string{},
	}
}

func (d *memDirectory) addPlain(username, password, userID string) {
	d.plain[username] = struct {
		password string
		userID   string
	}{password, userID}
}

func (d *memDirectory) LookupPlain(_ context.Context, username, password string) (string, bool, error) {
	e, ok := d.plain[username]
	if !ok || e.password != password {
		return "", false, nil
	}
	return e.userID, true, nil
}

func (d *memDirectory) LookupCurve(_ context.Context, key [32]byte) (string, bool, error) {
	userID, ok := d.curve[key]
	return userID, ok, nil
}

type memAudit struct {
	entries []AuditEntry
}

func (a *memAudit) Record(_ context.Context, e AuditEntry) error {
	a.entries = append(a.entries, e)
	return nil
}

func TestAuthenticatorPlainAllowAndDeny(t *testing.T) {
	dir := newMemDirectory()
	dir.addPlain("alice", "s3cret", "alice-id")
	audit := &memAudit{}
	auth := NewAuthenticator(dir, audit)

	allow := auth.Authenticate(context.Background(), Request{
		RequestID: "r1", Mechanism: "PLAIN", Credentials: [][]byte{[]byte("alice"), []byte("s3cret")},
	})
	if allow.StatusCode != StatusAllow || allow.UserID != "alice-id" {
		t.Fatalf("expected allow with user id, got %+v", allow)
	}

	deny := auth.Authenticate(context.Background(), Request{
		RequestID: "r2", Mechanism: "PLAIN", Credentials: [][]byte{[]byte("alice"), []byte("wrong")},
	})
	if deny.StatusCode != StatusDeny {
		t.Fatalf("expected deny, got %+v", deny)
	}

	if len(audit.entries) != 2 {
		t.Fatalf("expected 2 audit entries, got %d", len(audit.entries))
	}
	if audit.entries[0].StatusCode != StatusAllow || audit.entries[1].StatusCode != StatusDeny {
		t.Fatalf("audit entries do not reflect decisions: %+v", audit.entries)
	}
}

func TestAuthenticatorCurveUnknownKeyDenied(t *testing.T) {
	dir := newMemDirectory()
	auth := NewAuthenticator(dir, nil)

	var key [32]byte
	key[0] = 1
	reply := auth.Authenticate(context.Background(), Request{
		RequestID: "r1", Mechanism: "CURVE", Credentials: [][]byte{key[:]},
	})
	if reply.StatusCode != StatusDeny {
		t.Fatalf("expected deny for unknown key, got %+v", reply)
	}

	dir.curve[key] = "bob-id"
	reply = auth.Authenticate(context.Background(), Request{
		RequestID: "r2", Mechanism: "CURVE", Credentials: [][]byte{key[:]},
	})
	if reply.StatusCode != StatusAllow || reply.UserID != "bob-id" {
		t.Fatalf("expected allow for known key, got %+v", reply)
	}
}

func TestAuthenticatorNilDirectoryAcceptsEveryone(t *testing.T) {
	auth := NewAuthenticator(nil, nil)
	reply := auth.Authenticate(context.Background(), Request{RequestID: "r1", Mechanism: "PLAIN"})
	if reply.StatusCode != StatusAllow {
		t.Fatalf("expected open deployment to allow, got %+v", reply)
	}
}
