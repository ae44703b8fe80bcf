// Package history keeps a local log of files received over a filedrop
// channel.
//
// Records are stored in SQLite through gorm and carry a BLAKE2b-256 digest of
// the received contents so a saved file can later be checked for tampering:
//
//	store, err := history.Open("filedrop.db")
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	rec := history.NewRecord("alice", "a.txt", data, "/inbox/a.txt", time.Now())
//	err = store.Add(ctx, rec)
package history
