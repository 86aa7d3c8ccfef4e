package writer

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type fakePutter struct {
	inputs []*s3.PutObjectInput
	bodies [][]byte
	err    error
}

func (f *fakePutter) PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.inputs = append(f.inputs, in)
	f.bodies = append(f.bodies, body)
	return &s3.PutObjectOutput{}, nil
}

func TestParseObjectURL(t *testing.T) {
	tests := []struct {
		dest    string
		bucket  string
		key     string
		remote  bool
		wantErr bool
	}{
		{dest: "out/trades.parquet"},
		{dest: "s3://bucket/exports/panel.xlsx", bucket: "bucket", key: "exports/panel.xlsx", remote: true},
		{dest: "s3://bucket", remote: true, wantErr: true},
		{dest: "s3:///key", remote: true, wantErr: true},
		{dest: "s3://bucket/dir/", remote: true, wantErr: true},
	}
	for _, tt := range tests {
		bucket, key, remote, err := parseObjectURL(tt.dest)
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: err = %v, wantErr %v", tt.dest, err, tt.wantErr)
			continue
		}
		if remote != tt.remote || bucket != tt.bucket || key != tt.key {
			t.Errorf("%s: got (%q, %q, %v)", tt.dest, bucket, key, remote)
		}
	}
}

func TestUploaderWriteRemote(t *testing.T) {
	fake := &fakePutter{}
	u := NewUploaderWithClient(fake)

	if err := u.Write(context.Background(), "s3://exports/daily/trades.parquet", []byte("PAR1data"), ContentTypeParquet); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if len(fake.inputs) != 1 {
		t.Fatalf("expected 1 upload, got %d", len(fake.inputs))
	}
	in := fake.inputs[0]
	if aws.ToString(in.Bucket) != "exports" || aws.ToString(in.Key) != "daily/trades.parquet" {
		t.Errorf("bucket/key = %s/%s", aws.ToString(in.Bucket), aws.ToString(in.Key))
	}
	if aws.ToString(in.ContentType) != ContentTypeParquet || aws.ToInt64(in.ContentLength) != 8 {
		t.Errorf("content type %s length %d", aws.ToString(in.ContentType), aws.ToInt64(in.ContentLength))
	}
	if string(fake.bodies[0]) != "PAR1data" {
		t.Errorf("body = %q", fake.bodies[0])
	}
	if objects, size := u.Stats(); objects != 1 || size != 8 {
		t.Errorf("stats = %d objects, %d bytes", objects, size)
	}
}

func TestUploaderWriteRemoteError(t *testing.T) {
	u := NewUploaderWithClient(&fakePutter{err: errors.New("access denied")})
	if err := u.Write(context.Background(), "s3://exports/panel.xlsx", []byte("x"), ContentTypeXLSX); err == nil {
		t.Fatal("expected upload error")
	}
	if objects, _ := u.Stats(); objects != 0 {
		t.Errorf("failed upload counted: %d", objects)
	}
}

func TestUploaderWriteLocal(t *testing.T) {
	fake := &fakePutter{}
	u := NewUploaderWithClient(fake)
	path := filepath.Join(t.TempDir(), "panel.xlsx")

	if err := u.Write(context.Background(), path, []byte("local"), ContentTypeXLSX); err != nil {
		t.Fatalf("Write: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "local" {
		t.Fatalf("read back %q, %v", data, err)
	}
	if len(fake.inputs) != 0 {
		t.Errorf("local write should not upload")
	}
}
