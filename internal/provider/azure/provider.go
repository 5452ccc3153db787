// Package azure is the alternative blob backend for operators whose object
// storage lives in Azure rather than behind an S3-compatible endpoint.
// Remote addresses are container-relative keys; the s3:// bucket portion of
// a fully qualified address is ignored in favor of the configured container.
package azure

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"github.com/oppidan-dev/pg-backup-restore/internal/naming"
	"github.com/oppidan-dev/pg-backup-restore/internal/retry"
	"github.com/oppidan-dev/pg-backup-restore/internal/util"
)

type AzureProvider struct {
	client    *azblob.Client
	container string
	ro        retry.Options
}

func (p *AzureProvider) Name() string { return "azure" }

// blobKey reduces an opaque remote address to a container-relative key.
func blobKey(remote string) (string, error) {
	_, key, err := naming.ParseURI(remote)
	if err != nil {
		return "", err
	}
	return key, nil
}

// Upload transfers the artifact with its sha256 digest as blob metadata and
// validates size by listing the blob afterwards.
func (p *AzureProvider) Upload(ctx context.Context, source, remote string) error {
	key, err := blobKey(remote)
	if err != nil {
		return err
	}

	sum, size, err := util.SHA256File(source)
	if err != nil {
		return fmt.Errorf("checksum: %w", err)
	}

	upStart := time.Now()
	upAttempt := 0
	uploadOnce := func(ctx context.Context) error {
		upAttempt++
		log.Debug().
			Str("action", "azure_upload").
			Str("container", p.container).
			Str("key", key).
			Int("attempt", upAttempt).
			Msg("starting attempt")

		f, err := os.Open(source)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := f.Close(); cerr != nil {
				log.Warn().
					Err(cerr).
					Str("file", source).
					Msg("failed to close source file after upload")
			}
		}()
		_, err = p.client.UploadFile(ctx, p.container, key, f, &azblob.UploadFileOptions{
			Metadata: map[string]*string{"sha256": to.Ptr(sum)},
		})
		if err != nil {
			log.Debug().Err(err).Str("action", "azure_upload").Str("container", p.container).Str("key", key).
				Int("attempt", upAttempt).Msg("attempt failed")
			return err
		}
		return nil
	}
	if err := retry.Do(ctx, p.ro, p.isAzRetryable, uploadOnce); err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	log.Info().Str("action", "azure_upload").Str("container", p.container).Str("key", key).
		Int("attempts", upAttempt).Dur("elapsed_ms", time.Since(upStart)).Msg("upload OK")

	validateOnce := func(ctx context.Context) error {
		found, remoteSize, err := p.findBlobSize(ctx, key)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("uploaded blob not found at %q", key)
		}
		if remoteSize != size {
			return fmt.Errorf("size mismatch: local=%d, remote=%d", size, remoteSize)
		}
		return nil
	}
	if err := retry.Do(ctx, p.ro, p.isAzRetryable, validateOnce); err != nil {
		return fmt.Errorf("validate (list): %w", err)
	}
	log.Info().Str("action", "azure_list_validate").Str("container", p.container).Str("key", key).
		Msg("validation OK (size)")
	return nil
}

// Download fetches a blob to a local path.
func (p *AzureProvider) Download(ctx context.Context, remote, target string) error {
	key, err := blobKey(remote)
	if err != nil {
		return err
	}

	dlStart := time.Now()
	dlAttempt := 0
	downloadOnce := func(ctx context.Context) error {
		dlAttempt++
		log.Debug().Str("action", "azure_download").Str("container", p.container).Str("key", key).
			Str("local", target).Int("attempt", dlAttempt).Msg("starting attempt")

		out, err := os.Create(target)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := out.Close(); cerr != nil {
				log.Warn().
					Err(cerr).
					Str("file", target).
					Msg("failed to close local file after download")
			}
		}()
		_, err = p.client.DownloadFile(ctx, p.container, key, out, nil)
		if err != nil {
			log.Debug().Err(err).Str("action", "azure_download").Str("container", p.container).Str("key", key).
				Int("attempt", dlAttempt).Msg("attempt failed")
			return err
		}
		return nil
	}
	if err := retry.Do(ctx, p.ro, p.isAzRetryable, downloadOnce); err != nil {
		return err
	}
	log.Info().Str("action", "azure_download").Str("container", p.container).Str("key", key).
		Str("local", target).Int("attempts", dlAttempt).Dur("elapsed_ms", time.Since(dlStart)).Msg("download OK")
	return nil
}

// findBlobSize locates the exact blob and returns (found, size).
func (p *AzureProvider) findBlobSize(ctx context.Context, exactKey string) (bool, int64, error) {
	pager := p.client.NewListBlobsFlatPager(p.container, &azblob.ListBlobsFlatOptions{
		Prefix:     to.Ptr(exactKey),
		MaxResults: to.Ptr(int32(1)),
	})
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return false, 0, err
		}
		for _, it := range page.Segment.BlobItems {
			if it.Name != nil && *it.Name == exactKey {
				if it.Properties != nil && it.Properties.ContentLength != nil {
					return true, *it.Properties.ContentLength, nil
				}
				return true, 0, nil
			}
		}
	}
	return false, 0, nil
}

// isAzRetryable: retry rules for Azure (timeout, 5xx, 429, 408, ServerBusy).
func (p *AzureProvider) isAzRetryable(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	var re *azcore.ResponseError
	if errors.As(err, &re) {
		if re.StatusCode == http.StatusTooManyRequests || re.StatusCode == http.StatusRequestTimeout {
			return true
		}
		if re.StatusCode >= 500 && re.StatusCode <= 599 {
			return true
		}
		if re.ErrorCode == string(bloberror.ServerBusy) {
			return true
		}
	}
	return false
}
