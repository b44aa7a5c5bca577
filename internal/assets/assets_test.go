package assets

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockS3 struct {
	mock.Mock
}

func (m *mockS3) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	args := m.Called(aws.ToString(params.Bucket), aws.ToString(params.Key))
	out, _ := args.Get(0).(*s3.DeleteObjectOutput)
	return out, args.Error(1)
}

func TestS3Store_Delete(t *testing.T) {
	tests := []struct {
		name       string
		ref        string
		wantBucket string
		wantKey    string
	}{
		{"bare key", "creatives/c1/banner.png", "assets", "creatives/c1/banner.png"},
		{"leading slash", "/creatives/c1/banner.png", "assets", "creatives/c1/banner.png"},
		{"uri with bucket", "s3://other/video/c2.mp4", "other", "video/c2.mp4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &mockS3{}
			client.On("DeleteObject", tt.wantBucket, tt.wantKey).Return(&s3.DeleteObjectOutput{}, nil).Once()

			require.NoError(t, NewS3Store(client, "assets").Delete(context.Background(), tt.ref))
			client.AssertExpectations(t)
		})
	}
}

func TestS3Store_InvalidRef(t *testing.T) {
	client := &mockS3{}
	store := NewS3Store(client, "")

	for _, ref := range []string{"", "s3://bucket-only", "key-without-bucket"} {
		assert.ErrorIs(t, store.Delete(context.Background(), ref), ErrInvalidRef, ref)
	}
	client.AssertNotCalled(t, "DeleteObject", mock.Anything, mock.Anything)
}

func TestS3Store_PropagatesErrors(t *testing.T) {
	client := &mockS3{}
	denied := errors.New("access denied")
	client.On("DeleteObject", "assets", "k").Return(nil, denied).Once()

	err := NewS3Store(client, "assets").Delete(context.Background(), "k")
	assert.ErrorIs(t, err, denied)
}

func TestNopStore(t *testing.T) {
	assert.NoError(t, NopStore{}.Delete(context.Background(), "anything"))
}
