package firestore

import (
	"context"
	"testing"

	"cloud.google.com/go/firestore"
)

func TestTxContextRoundTrip(t *testing.T) {
	tx := &firestore.Transaction{}

	ctx := WithTx(context.Background(), tx)
	got, ok := TxFromContext(ctx)
	if !ok {
		t.Fatal("expected transaction in context")
	}
	if got != tx {
		t.Fatal("context returned a different transaction")
	}
}

func TestTxFromContextWithoutTx(t *testing.T) {
	if _, ok := TxFromContext(context.Background()); ok {
		t.Fatal("bare context must not carry a transaction")
	}
	// A nil transaction is not stored.
	if _, ok := TxFromContext(WithTx(context.Background(), nil)); ok {
		t.Fatal("nil transaction must not be stored")
	}
}
