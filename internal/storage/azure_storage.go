package storage

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
)

// ArchiveSink stores finished export archives
type ArchiveSink interface {
	Store(ctx context.Context, name string, data []byte) (string, error)
}

// blobUploader is the subset of *azblob.Client the sink uses
type blobUploader interface {
	UploadBuffer(ctx context.Context, containerName, blobName string, buffer []byte, o *azblob.UploadBufferOptions) (azblob.UploadBufferResponse, error)
	URL() string
}

type azureArchiveSink struct {
	client    blobUploader
	container string
}

const zipContentType = "application/zip"

// NewAzureArchiveSink uploads archives as block blobs into container
func NewAzureArchiveSink(accountName, accountKey, container string) (ArchiveSink, error) {
	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, fmt.Errorf("invalid azure credential: %w", err)
	}

	client, err := azblob.NewClientWithSharedKeyCredential(
		fmt.Sprintf("https://%s.blob.core.windows.net/", accountName),
		credential,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create blob client: %w", err)
	}

	return &azureArchiveSink{client: client, container: container}, nil
}

// Store uploads data as blob name and returns the blob URL
func (s *azureArchiveSink) Store(ctx context.Context, name string, data []byte) (string, error) {
	contentType := zipContentType
	_, err := s.client.UploadBuffer(ctx, s.container, name, data, &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
	})
	if err != nil {
		return "", fmt.Errorf("upload failed: %w", err)
	}
	return fmt.Sprintf("%s%s/%s", s.client.URL(), s.container, name), nil
}
