package storageprovider

import (
	"context"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
	"gocloud.dev/gcerrors"

	"github.com/getsentry/cpuprof/internal/storageutil"
)

// Blob implements storageutil.ObjectHandler on top of a gocloud bucket.
type Blob struct {
	Bucket *blob.Bucket
}

// Put writes a file to the storage provider with name being the path.
func (b *Blob) Put(ctx context.Context, name string) (io.WriteCloser, error) {
	return b.Bucket.NewWriter(ctx, name, nil)
}

// Get reads a file from the storage provider with name being the path.
// If a key was not found, it will return ErrObjectNotFound.
func (b *Blob) Get(ctx context.Context, name string) (storageutil.ReadSizeCloser, error) {
	r, err := b.Bucket.NewReader(ctx, name, nil)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, storageutil.ErrObjectNotFound
		}
		return nil, err
	}
	return r, nil
}

func (b *Blob) Close() error {
	return b.Bucket.Close()
}

// Open returns an object handler for the bucket URL. gs:// URLs use the
// Google Cloud Storage client directly, everything else goes through gocloud
// (file://, mem://).
func Open(ctx context.Context, bucketURL string) (storageutil.ObjectHandler, func() error, error) {
	if name, ok := strings.CutPrefix(bucketURL, "gs://"); ok {
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, nil, err
		}
		return &Gcs{BucketHandle: client.Bucket(name)}, client.Close, nil
	}
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, nil, err
	}
	b := &Blob{Bucket: bucket}
	return b, b.Close, nil
}
