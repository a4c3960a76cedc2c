// Package uploads persists the results of completed uploads so they can be
// found by upload id after a restart.
//
// Typical Usage
//
//	repo := uploads.NewSQLiteRepository(db)
//	_ = repo.Put(ctx, meta)
//	meta, ok, _ := repo.Get(ctx, uploadID)
//	n, _ := uploads.Purge(ctx, db, time.Now().Add(-30*24*time.Hour))
package uploads
