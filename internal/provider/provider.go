package provider

import "context"

// Provider defines the contract for the object-storage backends the
// pipelines transfer snapshot artifacts through. Remote addresses are plain
// strings: a fully qualified URI ("s3://bucket/key") or a bucket-relative
// key, at the implementation's discretion.
type Provider interface {
	// Upload transfers a local artifact to the remote address. After a nil
	// return the remote object is present and byte-identical to the local
	// file; implementations verify this before reporting success.
	Upload(ctx context.Context, localPath, remote string) error

	// Download fetches the remote artifact to a local path. The remote
	// address is treated as opaque input.
	Download(ctx context.Context, remote, localPath string) error

	// Name returns the provider identifier (e.g. "s3", "azure").
	Name() string
}
