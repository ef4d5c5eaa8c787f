package firestore

import (
	"context"

	"cloud.google.com/go/firestore"
)

type txContextKey struct{}

func withTx(ctx context.Context, tx *firestore.Transaction) context.Context {
	return context.WithValue(ctx, txContextKey{}, tx)
}

func txFromContext(ctx context.Context) (*firestore.Transaction, bool) {
	tx, ok := ctx.Value(txContextKey{}).(*firestore.Transaction)
	return tx, ok && tx != nil
}

// getDoc reads a document through the ambient transaction when one is present.
func getDoc(ctx context.Context, ref *firestore.DocumentRef) (*firestore.DocumentSnapshot, error) {
	if tx, ok := txFromContext(ctx); ok {
		return tx.Get(ref)
	}
	return ref.Get(ctx)
}

// setDoc writes a document through the ambient transaction when one is present.
func setDoc(ctx context.Context, ref *firestore.DocumentRef, data any) error {
	if tx, ok := txFromContext(ctx); ok {
		return tx.Set(ref, data)
	}
	_, err := ref.Set(ctx, data)
	return err
}

// createDoc creates a document, failing with AlreadyExists when present.
func createDoc(ctx context.Context, ref *firestore.DocumentRef, data any) error {
	if tx, ok := txFromContext(ctx); ok {
		return tx.Create(ref, data)
	}
	_, err := ref.Create(ctx, data)
	return err
}

// queryDocs materialises a query through the ambient transaction when one is
// present. Transactional reads must precede any writes in the same
// transaction.
func queryDocs(ctx context.Context, query firestore.Query) ([]*firestore.DocumentSnapshot, error) {
	if tx, ok := txFromContext(ctx); ok {
		return tx.Documents(query).GetAll()
	}
	return query.Documents(ctx).GetAll()
}
