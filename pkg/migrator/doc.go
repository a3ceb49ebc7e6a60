// Package migrator runs a full migration: it checks the ledger left by
// earlier runs, then uploads every configured entity kind in turn and
// reports what happened to each batch.
//
// Basic usage:
//
//	m := migrator.New(migrator.Config{
//		Source:   repo,
//		Ledger:   store,
//		Uploader: up,
//	})
//	report, err := m.Run(ctx, migrator.Options{
//		Entities:     []string{"Account", "Contact", "Contract"},
//		Resume:       true,
//		PersistAfter: true,
//	})
package migrator
