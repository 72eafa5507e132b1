package archive

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	"github.com/kode4food/braid/internal/engine"
	"github.com/kode4food/braid/pkg/api"

	_ "gocloud.dev/blob/azureblob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
)

type (
	// BlobArchive writes the complete history of finished instances to a
	// bucket, supporting S3, GCS, Azure Blob Storage, local files, and memory
	BlobArchive struct {
		bucket *blob.Bucket
		prefix string
	}

	// Record is the archived form of an instance
	Record struct {
		ArchivedAt time.Time           `json:"archived_at"`
		ID         api.InstanceID      `json:"id"`
		Events     []*api.HistoryEvent `json:"events"`
	}
)

var _ engine.Archiver = (*BlobArchive)(nil)

var ErrArchiveNotFound = errors.New("archived instance not found")

// NewBlobArchive opens the bucket at bucketURL. Objects are written under
// prefix
func NewBlobArchive(
	ctx context.Context, bucketURL, prefix string,
) (*BlobArchive, error) {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, err
	}
	return &BlobArchive{bucket: bucket, prefix: prefix}, nil
}

// Archive implements engine.Archiver
func (a *BlobArchive) Archive(
	ctx context.Context, id api.InstanceID, evs []*api.HistoryEvent,
) error {
	data, err := json.Marshal(&Record{
		ArchivedAt: time.Now(),
		ID:         id,
		Events:     evs,
	})
	if err != nil {
		return err
	}
	return a.bucket.WriteAll(ctx, a.keyFor(id), data, &blob.WriterOptions{
		ContentType: "application/json",
	})
}

// Load reads an archived instance back
func (a *BlobArchive) Load(
	ctx context.Context, id api.InstanceID,
) (*Record, error) {
	data, err := a.bucket.ReadAll(ctx, a.keyFor(id))
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, ErrArchiveNotFound
		}
		return nil, err
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (a *BlobArchive) Close() error {
	return a.bucket.Close()
}

// keyFor nests sub-orchestrations under their parent's key
func (a *BlobArchive) keyFor(id api.InstanceID) string {
	key := strings.ReplaceAll(string(id), ":", "/") + ".json"
	if a.prefix == "" {
		return key
	}
	if !strings.HasSuffix(a.prefix, "/") {
		return a.prefix + "/" + key
	}
	return a.prefix + key
}
