// Package ledger defines the append-only anchor ledger boundary. The engine
// consumes the ledger only as "submit a value under a key and learn the
// transaction reference, or read back a committed value". Contract execution
// and consensus live behind this interface.
package ledger

import (
	"context"
	"fmt"
)

// TxRef identifies the ledger transaction that committed a value. The ref is
// recorded off-chain as provenance; the committed value, not the transaction,
// is the source of truth, so duplicate submissions of identical payloads are
// harmless.
type TxRef string

// AnchorLedger is implemented by ledger adapters. Commit blocks until the
// submission is confirmed or the adapter's bounded confirmation wait expires:
// on expiry it returns an error wrapping sentinel.ErrTimeout and guarantees
// the caller's off-chain state has not advanced, so the same logical write
// may be retried. Lookup returns sentinel.ErrNotFound for keys never
// committed.
type AnchorLedger interface {
	Commit(ctx context.Context, key string, value []byte) (TxRef, error)
	Lookup(ctx context.Context, key string) ([]byte, error)
}

// Key construction. One namespace per anchored concern; fraud anchors are
// append-only so each report gets its own key.

func DidKey(did string) string {
	return "did/" + did
}

func BiometricKey(did, modality string) string {
	return fmt.Sprintf("bio/%s/%s", did, modality)
}

func FraudKey(did, reportID string) string {
	return fmt.Sprintf("fraud/%s/%s", did, reportID)
}
