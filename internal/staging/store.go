package staging

import "io"

// spooled is content held by a store until the upload finishes with it.
type spooled interface {
	io.ReaderAt
	io.Closer
}

// stagingStore abstracts where spooled content lives.
type stagingStore interface {
	// Spool copies at most limit bytes from r. It reports the number of
	// bytes copied and whether r had more than limit bytes.
	Spool(r io.Reader, limit int64) (content spooled, size int64, truncated bool, err error)
}
