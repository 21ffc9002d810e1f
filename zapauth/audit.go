package zapauth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/streaming"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
)

// AuditEntry is one ZAP decision: never the credentials themselves, only
// who asked, for what, and what was decided (§1 Non-goals forbids the
// engine from persisting any state; the authenticator is a separate
// process and is where an audit trail belongs).
type AuditEntry struct {
	Timestamp  time.Time
	RequestID  string
	Domain     string
	Address    string
	Mechanism  string
	StatusCode string
	UserID     string
}

// AuditTrail records authenticator decisions.
type AuditTrail interface {
	Record(ctx context.Context, entry AuditEntry) error
}

// NopAudit discards every entry; the default for Authenticator when no
// trail is configured.
type NopAudit struct{}

func (NopAudit) Record(context.Context, AuditEntry) error { return nil }

// maxBlocksPerBlob matches azblob.go's MaxBlocksPerBlob headroom before an
// append blob's 50000-block ceiling forces rotation onto a fresh blob.
const maxBlocksPerBlob = 50000

// BlobAuditTrail appends one newline-delimited JSON record per decision
// to an append blob, rotating to a freshly numbered blob before hitting
// the append-blob block-count ceiling -- the same ShouldRotate/Rotate
// shape as azblob.go's blobTransport, repurposed from framed session data
// to audit log lines.
type BlobAuditTrail struct {
	container *container.Client
	prefix    string

	mu            sync.Mutex
	blobName      string
	blocksWritten int64
	seq           int
}

// NewBlobAuditTrail creates (or reuses) the rotation-numbered append blob
// "<prefix>-0" in container.
func NewBlobAuditTrail(ctx context.Context, c *container.Client, prefix string) (*BlobAuditTrail, error) {
	t := &BlobAuditTrail{container: c, prefix: prefix, blobName: prefix + "-0"}
	if _, err := c.NewAppendBlobClient(t.blobName).Create(ctx, nil); err != nil {
		return nil, fmt.Errorf("create audit blob: %w", err)
	}
	return t, nil
}

func (t *BlobAuditTrail) Record(ctx context.Context, entry AuditEntry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.blocksWritten >= maxBlocksPerBlob-10 {
		if err := t.rotateLocked(ctx); err != nil {
			return err
		}
	}
	_, err = t.container.NewAppendBlobClient(t.blobName).AppendBlock(ctx, streaming.NopCloser(bytes.NewReader(line)), nil)
	if err == nil {
		t.blocksWritten++
	}
	return err
}

func (t *BlobAuditTrail) rotateLocked(ctx context.Context) error {
	t.seq++
	t.blobName = t.prefix + "-" + strconv.Itoa(t.seq)
	t.blocksWritten = 0
	_, err := t.container.NewAppendBlobClient(t.blobName).Create(ctx, nil)
	return err
}
