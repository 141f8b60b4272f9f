package greencredits

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"greenfin/portal/portal-backend/internal/invoice"
)

// MockS3Client is a mock implementation of the storage.S3Client interface
type MockS3Client struct {
	mock.Mock
}

func (m *MockS3Client) Upload(ctx context.Context, bucket, key, contentType string, body io.Reader) error {
	data, _ := io.ReadAll(body)
	args := m.Called(ctx, bucket, key, contentType, string(data))
	return args.Error(0)
}

func (m *MockS3Client) Delete(ctx context.Context, bucket, key string) error {
	args := m.Called(ctx, bucket, key)
	return args.Error(0)
}

func (m *MockS3Client) GetPresignedURL(ctx context.Context, bucket, key string, expiration time.Duration) (string, error) {
	args := m.Called(ctx, bucket, key, expiration)
	return args.String(0), args.Error(1)
}

func TestS3FileStoreKey(t *testing.T) {
	store := NewS3FileStore(new(MockS3Client), "invoices", "/green-credits/")
	userID := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	objectID := uuid.MustParse("00000000-0000-0000-0000-0000000000aa")
	prefix := "green-credits/00000000-0000-0000-0000-000000000001/00000000-0000-0000-0000-0000000000aa-"

	tests := []struct {
		name     string
		fileName string
		want     string
	}{
		{"plain name", "bill.pdf", prefix + "bill.pdf"},
		{"unix traversal", "../../etc/passwd.pdf", prefix + "passwd.pdf"},
		{"windows path", `C:\Users\asha\bill.pdf`, prefix + "bill.pdf"},
		{"parent only", "..", prefix + "invoice.pdf"},
		{"empty", "", prefix + "invoice.pdf"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, store.Key(userID, objectID, tt.fileName))
		})
	}
}

func TestS3FileStoreStore(t *testing.T) {
	client := new(MockS3Client)
	userID := uuid.New()
	client.On("Upload", mock.Anything, "invoices", mock.MatchedBy(func(key string) bool {
		return strings.HasPrefix(key, "green-credits/"+userID.String()+"/")
	}), "application/pdf", "%PDF-1.4").Return(nil)

	store := NewS3FileStore(client, "invoices", "green-credits")
	ref, err := store.Store(context.Background(), userID, invoice.File{Name: "bill.pdf", Data: []byte("%PDF-1.4")})

	require.NoError(t, err)
	assert.Regexp(t, `^s3://invoices/green-credits/`+userID.String()+`/[0-9a-f-]{36}-bill\.pdf$`, ref)
	client.AssertExpectations(t)
}

func TestS3FileStoreStoreFailure(t *testing.T) {
	client := new(MockS3Client)
	client.On("Upload", mock.Anything, "invoices", mock.Anything, "application/pdf", mock.Anything).
		Return(errors.New("access denied"))

	store := NewS3FileStore(client, "invoices", "")
	_, err := store.Store(context.Background(), uuid.New(), invoice.File{Name: "bill.pdf", ContentType: "application/pdf"})

	assert.Error(t, err)
}

func TestS3FileStoreDownloadURL(t *testing.T) {
	client := new(MockS3Client)
	client.On("GetPresignedURL", mock.Anything, "invoices", "green-credits/u/1-bill.pdf", invoiceURLTTL).
		Return("https://signed.example/bill.pdf", nil)

	store := NewS3FileStore(client, "invoices", "green-credits")

	url, err := store.DownloadURL(context.Background(), "s3://invoices/green-credits/u/1-bill.pdf")
	require.NoError(t, err)
	assert.Equal(t, "https://signed.example/bill.pdf", url)

	for _, ref := range []string{"uploaded:bill.pdf", "s3://other-bucket/green-credits/u/1-bill.pdf", "s3://invoices/"} {
		url, err := store.DownloadURL(context.Background(), ref)
		require.NoError(t, err)
		assert.Empty(t, url, ref)
	}
	client.AssertNumberOfCalls(t, "GetPresignedURL", 1)
}

func TestS3FileStoreDiscard(t *testing.T) {
	client := new(MockS3Client)
	client.On("Delete", mock.Anything, "invoices", "green-credits/u/1-bill.pdf").Return(nil)

	store := NewS3FileStore(client, "invoices", "green-credits")

	require.NoError(t, store.Discard(context.Background(), "s3://invoices/green-credits/u/1-bill.pdf"))
	require.NoError(t, store.Discard(context.Background(), "uploaded:bill.pdf"))
	client.AssertNumberOfCalls(t, "Delete", 1)
}

func TestReferenceFileStore(t *testing.T) {
	var store ReferenceFileStore

	ref, err := store.Store(context.Background(), uuid.New(), invoice.File{Name: "bill.pdf"})
	require.NoError(t, err)
	assert.Equal(t, "uploaded:bill.pdf", ref)

	url, err := store.DownloadURL(context.Background(), ref)
	require.NoError(t, err)
	assert.Empty(t, url)
	assert.NoError(t, store.Discard(context.Background(), ref))
}
