package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/oppidan-dev/pg-backup-restore/internal/naming"
	"github.com/oppidan-dev/pg-backup-restore/internal/retry"
	"github.com/oppidan-dev/pg-backup-restore/internal/util"
)

type S3Provider struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	ro       retry.Options
}

func (p *S3Provider) Name() string { return "s3" }

// resolve turns an opaque remote address into bucket and key. Fully
// qualified "s3://bucket/key" addresses carry their own bucket; bare keys
// fall back to the configured one.
func (p *S3Provider) resolve(remote string) (string, string, error) {
	bucket, key, err := naming.ParseURI(remote)
	if err != nil {
		return "", "", err
	}
	if bucket == "" {
		bucket = p.bucket
	}
	if bucket == "" {
		return "", "", fmt.Errorf("no bucket in address %q and none configured", remote)
	}
	return bucket, key, nil
}

// Upload transfers the artifact and verifies the remote object afterwards:
// success means present and byte-identical (size and sha256 digest).
func (p *S3Provider) Upload(ctx context.Context, source, remote string) error {
	bucket, key, err := p.resolve(remote)
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
			Str("action", "s3_upload").
			Str("bucket", bucket).
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
		_, err = p.uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(bucket),
			Key:         aws.String(key),
			Body:        f,
			ContentType: aws.String("application/gzip"),
			Metadata:    map[string]string{"sha256": sum},
		})
		if err != nil {
			log.Debug().Err(err).Str("action", "s3_upload").Str("bucket", bucket).Str("key", key).
				Int("attempt", upAttempt).Msg("attempt failed")
			return err
		}
		return nil
	}
	if err := retry.Do(ctx, p.ro, isS3Retryable, uploadOnce); err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	log.Info().Str("action", "s3_upload").Str("bucket", bucket).Str("key", key).
		Int("attempts", upAttempt).Dur("elapsed_ms", time.Since(upStart)).Msg("upload OK")

	// Post-upload validation: HEAD the object and compare size and digest.
	headStart := time.Now()
	headAttempt := 0
	headOnce := func(ctx context.Context) error {
		headAttempt++
		out, err := p.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			log.Debug().Err(err).Str("action", "s3_head").Str("bucket", bucket).Str("key", key).
				Int("attempt", headAttempt).Msg("attempt failed")
			return err
		}
		remoteSize := aws.ToInt64(out.ContentLength)
		if remoteSize != size {
			return fmt.Errorf("size mismatch: local=%d, remote=%d", size, remoteSize)
		}
		remoteSHA := out.Metadata["sha256"]
		if remoteSHA == "" {
			return fmt.Errorf("missing metadata: sha256")
		}
		if remoteSHA != sum {
			return fmt.Errorf("sha256 mismatch: local=%s, remote=%s", sum, remoteSHA)
		}
		return nil
	}
	if err := retry.Do(ctx, p.ro, isS3Retryable, headOnce); err != nil {
		return fmt.Errorf("validate (head): %w", err)
	}
	log.Info().Str("action", "s3_head").Str("bucket", bucket).Str("key", key).
		Int("attempts", headAttempt).Dur("elapsed_ms", time.Since(headStart)).
		Msg("validation OK (sha256 & size)")

	return nil
}

// Download fetches the remote artifact to target. The transfer is
// whole-object: a mid-transfer failure restarts from scratch, never resumes
// a partial file (the .part rename guarantees target is complete or absent).
func (p *S3Provider) Download(ctx context.Context, remote, target string) error {
	bucket, key, err := p.resolve(remote)
	if err != nil {
		return err
	}

	dlStart := time.Now()
	dlAttempt := 0
	downloadOnce := func(ctx context.Context) error {
		dlAttempt++
		log.Debug().Str("action", "s3_download").Str("bucket", bucket).Str("key", key).
			Str("local", target).Int("attempt", dlAttempt).Msg("starting attempt")

		out, err := p.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			log.Debug().Err(err).Str("action", "s3_download").Str("bucket", bucket).Str("key", key).
				Int("attempt", dlAttempt).Msg("attempt failed")
			return err
		}
		defer func() { _ = out.Body.Close() }()

		return writeWholeFile(target, out.Body)
	}
	if err := retry.Do(ctx, p.ro, isS3Retryable, downloadOnce); err != nil {
		return err
	}
	log.Info().Str("action", "s3_download").Str("bucket", bucket).Str("key", key).
		Str("local", target).Int("attempts", dlAttempt).Dur("elapsed_ms", time.Since(dlStart)).Msg("download OK")
	return nil
}

// writeWholeFile streams body to a .part file and renames it into place, so
// target never holds a partial transfer.
func writeWholeFile(target string, body io.Reader) error {
	tmp := target + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, body); err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, target)
}

// isS3Retryable: timeouts, throttling and 5xx responses.
func isS3Retryable(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	var re *awshttp.ResponseError
	if errors.As(err, &re) {
		code := re.HTTPStatusCode()
		if code == http.StatusTooManyRequests || code == http.StatusRequestTimeout {
			return true
		}
		if code >= 500 && code <= 599 {
			return true
		}
	}
	return false
}
