package store

// KeySpaceCounts is a row count per key-space prefix, for the retention job's
// compaction report.
type KeySpaceCounts struct {
	Threads         int
	Messages        int
	Reactions       int
	CredentialLinks int
	VerifiedCreds   int
}

// CountKeySpaces scans each key space once and returns its row count. It is
// O(n) in the total row count; intended for periodic retention reporting,
// not the request path.
func CountKeySpaces() (KeySpaceCounts, error) {
	if err := requireOpen(); err != nil {
		return KeySpaceCounts{}, err
	}
	var c KeySpaceCounts
	if err := scanPrefix(db, []byte("thread:meta:"), func(_, _ []byte) bool { c.Threads++; return true }); err != nil {
		return c, err
	}
	if err := scanPrefix(db, []byte("msg:row:"), func(_, _ []byte) bool { c.Messages++; return true }); err != nil {
		return c, err
	}
	if err := scanPrefix(db, []byte("reaction:row:"), func(_, _ []byte) bool { c.Reactions++; return true }); err != nil {
		return c, err
	}
	if err := scanPrefix(db, []byte("credlink:row:"), func(_, _ []byte) bool { c.CredentialLinks++; return true }); err != nil {
		return c, err
	}
	if err := scanPrefix(db, []byte("vc:row:"), func(_, _ []byte) bool { c.VerifiedCreds++; return true }); err != nil {
		return c, err
	}
	return c, nil
}

// Compact requests a full-keyspace pebble compaction, reclaiming space left
// by the tombstones DeleteMessage/RemoveReaction accumulate.
func Compact() error {
	if err := requireOpen(); err != nil {
		return err
	}
	return db.Compact(nil, []byte{0xFF}, true)
}
