package zapauth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
)

// Directory resolves credentials to a user id. PLAIN looks up
// username/password pairs; CURVE looks up a base64-encoded long-term
// public key. A nil Directory makes Authenticator accept everyone (NULL +
// ZAP "enabled but wide open", a valid if weak deployment per
// SPEC_FULL.md §12).
type Directory interface {
	LookupPlain(ctx context.Context, username, password string) (userID string, ok bool, err error)
	LookupCurve(ctx context.Context, publicKey [32]byte) (userID string, ok bool, err error)
}

// TableDirectory is a Directory backed by Azure Table Storage, adapted
// from aztable.go's entity-per-row CRUD pattern: one table, partition key
// names the mechanism ("PLAIN"/"CURVE"), row key is the credential's
// lookup key (username, or the base64 public key), and the JSON body
// carries the resolved user id.
type TableDirectory struct {
	table     *aztables.Client
	tableName string
}

// NewTableDirectory wraps an existing table client. Callers create the
// table once at startup, mirroring tableFactory.NewDriver's
// CreateTable-if-missing call.
func NewTableDirectory(table *aztables.Client) *TableDirectory {
	return &TableDirectory{table: table}
}

type credentialEntity struct {
	PartitionKey string
	RowKey       string
	UserID       string
	PasswordHash string
}

func (d *TableDirectory) LookupPlain(ctx context.Context, username, password string) (string, bool, error) {
	entity, ok, err := d.getEntity(ctx, "PLAIN", username)
	if err != nil || !ok {
		return "", false, err
	}
	if entity.PasswordHash != hashPassword(username, password) {
		return "", false, nil
	}
	return entity.UserID, true, nil
}

func (d *TableDirectory) LookupCurve(ctx context.Context, publicKey [32]byte) (string, bool, error) {
	key := base64.StdEncoding.EncodeToString(publicKey[:])
	entity, ok, err := d.getEntity(ctx, "CURVE", key)
	if err != nil || !ok {
		return "", false, err
	}
	return entity.UserID, true, nil
}

func (d *TableDirectory) getEntity(ctx context.Context, mechanism, rowKey string) (credentialEntity, bool, error) {
	resp, err := d.table.GetEntity(ctx, mechanism, rowKey, nil)
	if err != nil {
		if re, ok := err.(*azcore.ResponseError); ok && re.StatusCode == 404 {
			return credentialEntity{}, false, nil
		}
		return credentialEntity{}, false, err
	}
	var e credentialEntity
	if err := json.Unmarshal(resp.Value, &e); err != nil {
		return credentialEntity{}, false, fmt.Errorf("decode credential entity: %w", err)
	}
	return e, true, nil
}

// RegisterPlain writes (or overwrites) a username/password credential.
func (d *TableDirectory) RegisterPlain(ctx context.Context, username, password, userID string) error {
	data, err := json.Marshal(credentialEntity{
		PartitionKey: "PLAIN", RowKey: username, UserID: userID, PasswordHash: hashPassword(username, password),
	})
	if err != nil {
		return err
	}
	_, err = d.table.UpsertEntity(ctx, data, nil)
	return err
}

// RegisterCurve writes (or overwrites) a known-key credential.
func (d *TableDirectory) RegisterCurve(ctx context.Context, publicKey [32]byte, userID string) error {
	key := base64.StdEncoding.EncodeToString(publicKey[:])
	data, err := json.Marshal(credentialEntity{PartitionKey: "CURVE", RowKey: key, UserID: userID})
	if err != nil {
		return err
	}
	_, err = d.table.UpsertEntity(ctx, data, nil)
	return err
}
