// Package naming owns the snapshot artifact naming scheme and remote
// addressing. Both pipelines share it: backup derives the artifact filename
// and remote key from the database name and run timestamp, restore extracts
// the filename back out of an opaque remote address.
package naming

import (
	"fmt"
	"path"
	"strings"
	"time"
)

// TimestampLayout is minute-precision by contract: two backups of the same
// database within the same minute collide on purpose (known limitation).
const TimestampLayout = "02-01-2006_15:04"

// Suffix marks artifacts as gzip-compressed plain-text SQL exports.
const Suffix = ".sql.gz"

// Scheme prefixes fully qualified remote addresses.
const Scheme = "s3://"

// Artifact identifies one point-in-time snapshot of a database.
type Artifact struct {
	Database  string
	Timestamp time.Time
}

// New builds an artifact identity for a backup run starting at ts.
func New(database string, ts time.Time) Artifact {
	return Artifact{Database: database, Timestamp: ts}
}

// Filename renders "{database}_{dd-mm-yyyy_HH:MM}.sql.gz".
func (a Artifact) Filename() string {
	return fmt.Sprintf("%s_%s%s", a.Database, a.Timestamp.Format(TimestampLayout), Suffix)
}

// Key joins an optional path prefix with the artifact filename. With no
// prefix the artifact sits at the bucket root.
func (a Artifact) Key(prefix string) string {
	return Key(prefix, a.Filename())
}

// Key joins prefix and filename into a bucket-relative object key.
func Key(prefix, filename string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return filename
	}
	return prefix + "/" + filename
}

// URI renders the fully qualified remote address "s3://{bucket}/{key}".
func URI(bucket, key string) string {
	return Scheme + bucket + "/" + strings.TrimPrefix(key, "/")
}

// ParseURI splits a fully qualified "s3://bucket/key" address. A bare key
// (no scheme) is returned as-is with an empty bucket, so callers can fall
// back to their configured bucket.
func ParseURI(remote string) (bucket, key string, err error) {
	remote = strings.TrimSpace(remote)
	if remote == "" {
		return "", "", fmt.Errorf("empty remote address")
	}
	if !strings.HasPrefix(remote, Scheme) {
		return "", strings.TrimPrefix(remote, "/"), nil
	}
	rest := strings.TrimPrefix(remote, Scheme)
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("malformed remote address %q: want s3://bucket/key", remote)
	}
	return bucket, key, nil
}

// FilenameOf extracts the artifact filename from an opaque remote address.
// The restore pipeline only needs this much to choose its local path.
func FilenameOf(remote string) string {
	return path.Base(strings.TrimSuffix(strings.TrimSpace(remote), "/"))
}
