package zapauth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Authenticator answers ZAP requests against a credential Directory and
// records every decision to an AuditTrail. A nil Directory accepts every
// request (open deployment). Authenticate is a plain synchronous call,
// ZAP's request/reply shape for the in-process case; it blocks for as long
// as its Directory lookup and AuditTrail record take.
type Authenticator struct {
	directory Directory
	audit     AuditTrail
}

// NewAuthenticator builds an Authenticator. Pass nil for directory to
// accept everyone, or nil for audit to discard decisions (NopAudit).
func NewAuthenticator(directory Directory, audit AuditTrail) *Authenticator {
	if audit == nil {
		audit = NopAudit{}
	}
	return &Authenticator{directory: directory, audit: audit}
}

// Authenticate resolves a Request to a Reply. With a Directory it checks
// PLAIN and CURVE credentials against it, accepts NULL outright (NULL has
// no credentials to check), and denies GSSAPI and any other mechanism.
func (a *Authenticator) Authenticate(ctx context.Context, req Request) Reply {
	reply := a.decide(ctx, req)
	_ = a.audit.Record(ctx, AuditEntry{
		Timestamp:  time.Now(),
		RequestID:  req.RequestID,
		Domain:     req.Domain,
		Address:    req.Address,
		Mechanism:  req.Mechanism,
		StatusCode: reply.StatusCode,
		UserID:     reply.UserID,
	})
	return reply
}

func (a *Authenticator) decide(ctx context.Context, req Request) Reply {
	if a.directory == nil {
		return Reply{RequestID: req.RequestID, StatusCode: StatusAllow, StatusText: "OK", UserID: "anonymous"}
	}

	switch req.Mechanism {
	case "NULL":
		return Reply{RequestID: req.RequestID, StatusCode: StatusAllow, StatusText: "OK", UserID: "anonymous"}

	case "PLAIN":
		if len(req.Credentials) != 2 {
			return deny(req, "malformed PLAIN credentials")
		}
		userID, ok, err := a.directory.LookupPlain(ctx, string(req.Credentials[0]), string(req.Credentials[1]))
		if err != nil {
			return internalError(req, err)
		}
		if !ok {
			return deny(req, "invalid username or password")
		}
		return Reply{RequestID: req.RequestID, StatusCode: StatusAllow, StatusText: "OK", UserID: userID}

	case "CURVE":
		if len(req.Credentials) != 1 || len(req.Credentials[0]) != 32 {
			return deny(req, "malformed CURVE credentials")
		}
		var pub [32]byte
		copy(pub[:], req.Credentials[0])
		userID, ok, err := a.directory.LookupCurve(ctx, pub)
		if err != nil {
			return internalError(req, err)
		}
		if !ok {
			return deny(req, "unknown public key")
		}
		return Reply{RequestID: req.RequestID, StatusCode: StatusAllow, StatusText: "OK", UserID: userID}

	default:
		return deny(req, "unsupported mechanism")
	}
}

func deny(req Request, reason string) Reply {
	return Reply{RequestID: req.RequestID, StatusCode: StatusDeny, StatusText: reason}
}

func internalError(req Request, err error) Reply {
	return Reply{RequestID: req.RequestID, StatusCode: StatusInternalError, StatusText: err.Error()}
}

// NewRequestID generates a ZAP request-correlation id, matching
// aznet.Dial's use of uuid.New().String() for connection identifiers.
func NewRequestID() string { return uuid.New().String() }
