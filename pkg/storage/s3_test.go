package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// apiError implements smithy.APIError so tests can exercise the
// not-found translation.
type apiError struct {
	code string
}

func (e *apiError) Error() string                 { return e.code }
func (e *apiError) ErrorCode() string             { return e.code }
func (e *apiError) ErrorMessage() string          { return e.code }
func (e *apiError) ErrorFault() smithy.ErrorFault { return smithy.FaultClient }

// fakeS3 is an in-memory S3 backend. The err fields inject failures.
type fakeS3 struct {
	mu           sync.Mutex
	objects      map[string][]byte
	contentTypes map[string]string

	getErr  error
	putErr  error
	headErr error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{
		objects:      make(map[string][]byte),
		contentTypes: make(map[string]string),
	}
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[*in.Key]
	if !ok {
		return nil, &apiError{code: "NoSuchKey"}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[*in.Key] = data
	if in.ContentType != nil {
		f.contentTypes[*in.Key] = *in.ContentType
	}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if f.headErr != nil {
		return nil, f.headErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.objects[*in.Key]; !ok {
		return nil, &apiError{code: "NotFound"}
	}
	return &s3.HeadObjectOutput{}, nil
}

func TestS3RoundTrip(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	st := NewS3(fake, "bucket", "recordings")

	w, err := st.Write(ctx, "alice/take1.wav")
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := w.Write([]byte("pcm data")); err != nil {
		t.Fatalf("write body: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	fake.mu.Lock()
	_, prefixed := fake.objects["recordings/alice/take1.wav"]
	ct := fake.contentTypes["recordings/alice/take1.wav"]
	fake.mu.Unlock()
	if !prefixed {
		t.Fatal("object not stored under recordings/ prefix")
	}
	if ct != "audio/wav" {
		t.Fatalf("content type = %q, want audio/wav", ct)
	}

	ok, err := st.Exists(ctx, "alice/take1.wav")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if !ok {
		t.Fatal("Exists = false after write")
	}

	r, err := st.Read(ctx, "alice/take1.wav")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	body, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	r.Close()
	if string(body) != "pcm data" {
		t.Fatalf("body = %q, want %q", body, "pcm data")
	}
}

func TestS3ReadMissing(t *testing.T) {
	st := NewS3(newFakeS3(), "bucket", "")
	_, err := st.Read(context.Background(), "nope.wav")
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Read missing = %v, want os.ErrNotExist", err)
	}
}

func TestS3ReadOtherError(t *testing.T) {
	fake := newFakeS3()
	fake.getErr = errors.New("connection reset")
	st := NewS3(fake, "bucket", "")
	_, err := st.Read(context.Background(), "x.wav")
	if err == nil {
		t.Fatal("Read returned nil error")
	}
	if errors.Is(err, os.ErrNotExist) {
		t.Fatalf("generic failure mapped to os.ErrNotExist: %v", err)
	}
}

func TestS3ExistsMissing(t *testing.T) {
	st := NewS3(newFakeS3(), "bucket", "")
	ok, err := st.Exists(context.Background(), "nope.wav")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if ok {
		t.Fatal("Exists = true for missing object")
	}
}

func TestS3ExistsOtherError(t *testing.T) {
	fake := newFakeS3()
	fake.headErr = errors.New("connection reset")
	st := NewS3(fake, "bucket", "")
	if _, err := st.Exists(context.Background(), "x.wav"); err == nil {
		t.Fatal("Exists swallowed the transport error")
	}
}

func TestS3DeleteIdempotent(t *testing.T) {
	st := NewS3(newFakeS3(), "bucket", "")
	if err := st.Delete(context.Background(), "anything.wav"); err != nil {
		t.Fatalf("Delete missing: %v", err)
	}
}

func TestS3WriteUploadError(t *testing.T) {
	fake := newFakeS3()
	fake.putErr = errors.New("upload failed")
	st := NewS3(fake, "bucket", "")

	w, err := st.Write(context.Background(), "x.wav")
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	// The write itself may fail once the pipe is closed; Close must
	// still surface the upload error.
	w.Write([]byte("data"))
	if err := w.Close(); err == nil {
		t.Fatal("Close returned nil after failed upload")
	}
}

func TestS3KeyNoPrefix(t *testing.T) {
	st := NewS3(newFakeS3(), "bucket", "")
	if got := st.key("a/b.wav"); got != "a/b.wav" {
		t.Fatalf("key = %q, want %q", got, "a/b.wav")
	}
}

func TestIsS3NotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"no such key", &apiError{code: "NoSuchKey"}, true},
		{"not found", &apiError{code: "NotFound"}, true},
		{"access denied", &apiError{code: "AccessDenied"}, false},
		{"plain error", errors.New("timeout"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isS3NotFound(tt.err); got != tt.want {
				t.Fatalf("isS3NotFound = %v, want %v", got, tt.want)
			}
		})
	}
}
