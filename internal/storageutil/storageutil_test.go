package storageutil_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/fsouza/fake-gcs-server/fakestorage"
	gojson "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/phayes/freeport"
	"github.com/pierrec/lz4/v4"
	"gocloud.dev/blob/memblob"

	"github.com/getsentry/cpuprof/internal/storageprovider"
	"github.com/getsentry/cpuprof/internal/storageutil"
)

const bucketName = "profiles"

var gcsServer *fakestorage.Server

type Profile struct {
	Samples    []int   `json:"samples"`
	TimeDeltas []int64 `json:"timeDeltas"`
}

func TestMain(m *testing.M) {
	port, err := freeport.GetFreePort()
	if err != nil {
		log.Fatalf("no free port found: %v", err)
	}
	publicHost := fmt.Sprintf("127.0.0.1:%d", port)
	gcsServer, err = fakestorage.NewServerWithOptions(fakestorage.Options{
		PublicHost: publicHost,
		Host:       "127.0.0.1",
		Port:       uint16(port),
		Scheme:     "http",
	})
	if err != nil {
		log.Fatalf("couldn't set up gcs server: %v", err)
	}
	os.Setenv("STORAGE_EMULATOR_HOST", publicHost)
	gcsServer.CreateBucketWithOpts(fakestorage.CreateBucketOpts{Name: bucketName})

	code := m.Run()
	gcsServer.Stop()
	os.Exit(code)
}

func TestUploadProfile(t *testing.T) {
	ctx := context.Background()
	objectName := uuid.New().String()
	originalData := Profile{
		Samples:    []int{1, 2, 3, 4},
		TimeDeltas: []int64{10, 10, 10, 10},
	}

	t.Run("GCS", func(t *testing.T) {
		storageClient, err := storage.NewClient(ctx)
		if err != nil {
			t.Fatalf("we should be able to create a client: %v", err)
		}
		bucket := storageClient.Bucket(bucketName)
		err = storageutil.CompressedWrite(ctx, &storageprovider.Gcs{BucketHandle: bucket}, objectName, originalData)
		if err != nil {
			t.Fatalf("we should be able to write: %v", err)
		}
		object, err := gcsServer.GetObject(bucketName, objectName)
		if err != nil {
			t.Fatalf("we should be able to read the object: %v", err)
		}
		r := lz4.NewReader(bytes.NewBuffer(object.Content))
		uncompressedData, err := io.ReadAll(r)
		if err != nil {
			t.Fatalf("we should be able to uncompress the data: %v", err)
		}
		b, err := gojson.Marshal(originalData)
		if err != nil {
			t.Fatalf("we should be able to marshal this: %v", err)
		}
		if !bytes.Equal(b, bytes.TrimSpace(uncompressedData)) {
			t.Fatal("data should be identical")
		}
	})

	t.Run("Blob", func(t *testing.T) {
		bucket := memblob.OpenBucket(nil)
		defer bucket.Close()
		err := storageutil.CompressedWrite(ctx, &storageprovider.Blob{Bucket: bucket}, objectName, originalData)
		if err != nil {
			t.Fatalf("we should be able to write: %v", err)
		}
		content, err := bucket.ReadAll(ctx, objectName)
		if err != nil {
			t.Fatalf("we should be able to read the object: %v", err)
		}
		uncompressedData, err := io.ReadAll(lz4.NewReader(bytes.NewReader(content)))
		if err != nil {
			t.Fatalf("we should be able to uncompress the data: %v", err)
		}
		b, err := gojson.Marshal(originalData)
		if err != nil {
			t.Fatalf("we should be able to marshal this: %v", err)
		}
		if !bytes.Equal(b, bytes.TrimSpace(uncompressedData)) {
			t.Fatal("data should be identical")
		}
	})
}

func TestDownloadProfile(t *testing.T) {
	ctx := context.Background()
	objectName := uuid.New().String()
	originalData := []byte(`{"samples":[1,2,3,4],"timeDeltas":[10,10,10,10]}`)

	var compressedData bytes.Buffer
	w := lz4.NewWriter(&compressedData)
	_, _ = w.Write(originalData)
	err := w.Close()
	if err != nil {
		t.Fatalf("we should be able to close the writer: %v", err)
	}

	t.Run("GCS", func(t *testing.T) {
		gcsServer.CreateObject(fakestorage.Object{
			ObjectAttrs: fakestorage.ObjectAttrs{
				BucketName: bucketName,
				Name:       objectName,
			},
			Content: compressedData.Bytes(),
		})

		storageClient, err := storage.NewClient(ctx)
		if err != nil {
			t.Fatalf("we should be able to create a client: %v", err)
		}
		bucket := storageClient.Bucket(bucketName)
		var profile Profile
		err = storageutil.UnmarshalCompressed(ctx, &storageprovider.Gcs{BucketHandle: bucket}, objectName, &profile)
		if err != nil {
			t.Fatalf("we should be able to read the object: %v", err)
		}

		uncompressedData, err := gojson.Marshal(profile)
		if err != nil {
			t.Fatalf("we should be able to marshal back to JSON: %v", err)
		}
		if !bytes.Equal(originalData, uncompressedData) {
			t.Fatalf("data should be identical: %v %v", string(originalData), string(uncompressedData))
		}
	})

	t.Run("Blob", func(t *testing.T) {
		bucket := memblob.OpenBucket(nil)
		defer bucket.Close()
		if err := bucket.WriteAll(ctx, objectName, compressedData.Bytes(), nil); err != nil {
			t.Fatalf("we should be able to write an object: %v", err)
		}

		var profile Profile
		err = storageutil.UnmarshalCompressed(ctx, &storageprovider.Blob{Bucket: bucket}, objectName, &profile)
		if err != nil {
			t.Fatalf("we should be able to read the object: %v", err)
		}

		uncompressedData, err := gojson.Marshal(profile)
		if err != nil {
			t.Fatalf("we should be able to marshal back to JSON: %v", err)
		}
		if !bytes.Equal(originalData, uncompressedData) {
			t.Fatalf("data should be identical: %v %v", string(originalData), string(uncompressedData))
		}
	})
}

func TestObjectNotFound(t *testing.T) {
	ctx := context.Background()
	bucket := memblob.OpenBucket(nil)
	defer bucket.Close()

	var profile Profile
	err := storageutil.UnmarshalCompressed(ctx, &storageprovider.Blob{Bucket: bucket}, "missing", &profile)
	if !errors.Is(err, storageutil.ErrObjectNotFound) {
		t.Fatalf("expected ErrObjectNotFound, got %v", err)
	}
}
