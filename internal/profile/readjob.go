package profile

import (
	"bytes"
	"context"
	"io"

	gojson "github.com/goccy/go-json"
	"github.com/pierrec/lz4/v4"

	"github.com/getsentry/cpuprof/internal/storageutil"
)

type (
	ReadJob struct {
		Ctx       context.Context
		Storage   storageutil.ObjectHandler
		ProfileID string
		Result    chan<- ReadJobResult
	}

	ReadJobResult struct {
		Err       error
		ProfileID string
		Profile   *Profile
	}
)

// StoragePath is where a raw profile is stored.
func StoragePath(profileID string) string {
	return "profiles/" + profileID
}

func (job ReadJob) Read() {
	p, err := Read(job.Ctx, job.Storage, job.ProfileID)
	job.Result <- ReadJobResult{ProfileID: job.ProfileID, Profile: p, Err: err}
}

func (result ReadJobResult) Error() error {
	return result.Err
}

// Read loads and normalizes a stored raw profile.
func Read(ctx context.Context, storage storageutil.ObjectHandler, profileID string) (*Profile, error) {
	var p Profile
	err := storageutil.UnmarshalCompressed(ctx, storage, StoragePath(profileID), &p)
	if err != nil {
		return nil, err
	}
	p.Normalize()
	return &p, nil
}

// Write stores a raw profile.
func Write(ctx context.Context, storage storageutil.ObjectHandler, profileID string, p *Profile) error {
	return storageutil.CompressedWrite(ctx, storage, StoragePath(profileID), p)
}

// Decode reads a raw profile from r. Input compressed with lz4 is detected by
// its frame magic number.
func Decode(r io.Reader) (*Profile, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(b) >= 4 && b[0] == 0x04 && b[1] == 0x22 && b[2] == 0x4d && b[3] == 0x18 {
		var p Profile
		if err := gojson.NewDecoder(lz4.NewReader(bytes.NewReader(b))).Decode(&p); err != nil {
			return nil, err
		}
		p.Normalize()
		return &p, nil
	}
	return Unmarshal(b)
}
