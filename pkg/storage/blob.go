package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"go.uber.org/zap"
)

// BlobStore persists run records as JSON blobs in an Azure Blob Storage
// container, one blob per run under "runs/<runID>.json". Shared-key
// authentication keeps it compatible with local Azurite instances over HTTP.
type BlobStore struct {
	client        *azblob.Client
	serviceURL    string
	containerName string
	logger        *zap.Logger
	containerInit bool
}

// NewBlobStore creates a blob-backed record store from a standard Azure
// storage connection string.
func NewBlobStore(connectionString, containerName string, logger *zap.Logger) (*BlobStore, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if connectionString == "" {
		return nil, errors.New("connection string cannot be empty")
	}
	if containerName == "" {
		return nil, errors.New("container name cannot be empty")
	}

	params := parseConnectionString(connectionString)
	accountName := params["AccountName"]
	accountKey := params["AccountKey"]
	serviceURL := params["BlobEndpoint"]
	if accountName == "" || accountKey == "" {
		return nil, errors.New("account name and key are required in the connection string")
	}
	if serviceURL == "" {
		serviceURL = fmt.Sprintf("https://%s.blob.core.windows.net", accountName)
	}

	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create shared key credential: %w", err)
	}

	var clientOpts *azblob.ClientOptions
	if strings.HasPrefix(strings.ToLower(serviceURL), "http://") {
		clientOpts = &azblob.ClientOptions{
			ClientOptions: azcore.ClientOptions{
				InsecureAllowCredentialWithHTTP: true,
			},
		}
	}

	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, credential, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create blob client: %w", err)
	}

	return &BlobStore{
		client:        client,
		serviceURL:    strings.TrimRight(serviceURL, "/"),
		containerName: containerName,
		logger:        logger,
	}, nil
}

// RecordStatus implements Store by uploading the record as a JSON blob.
func (s *BlobStore) RecordStatus(ctx context.Context, record RunRecord) error {
	if err := s.ensureContainer(ctx); err != nil {
		return err
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode run record %q: %w", record.RunID, err)
	}

	blobPath := recordBlobPath(record.RunID)
	containerClient := s.client.ServiceClient().NewContainerClient(s.containerName)
	blobClient := containerClient.NewBlockBlobClient(blobPath)

	_, err = blobClient.UploadBuffer(ctx, data, &azblob.UploadBufferOptions{
		Metadata: map[string]*string{
			"runid":    to.Ptr(record.RunID),
			"status":   to.Ptr(record.Status),
			"workflow": to.Ptr(record.Workflow),
		},
		HTTPHeaders: &blob.HTTPHeaders{
			BlobContentType: to.Ptr("application/json"),
		},
	})
	if err != nil {
		s.logger.Error("Failed to upload run record",
			zap.String("blob_path", blobPath),
			zap.String("runID", record.RunID),
			zap.Error(err))
		return fmt.Errorf("run record upload failed: %w", err)
	}

	s.logger.Info("Persisted run record",
		zap.String("blob_path", blobPath),
		zap.String("runID", record.RunID),
		zap.String("status", record.Status),
		zap.Int("size_bytes", len(data)))
	return nil
}

// LoadRecord downloads and decodes the record for a run.
func (s *BlobStore) LoadRecord(ctx context.Context, runID string) (RunRecord, error) {
	var record RunRecord
	if runID == "" {
		return record, errors.New("runID cannot be empty")
	}

	containerClient := s.client.ServiceClient().NewContainerClient(s.containerName)
	blobClient := containerClient.NewBlobClient(recordBlobPath(runID))

	resp, err := blobClient.DownloadStream(ctx, nil)
	if err != nil {
		return record, fmt.Errorf("failed to download run record %q: %w", runID, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return record, fmt.Errorf("failed to read run record %q: %w", runID, err)
	}

	if err := json.Unmarshal(data, &record); err != nil {
		return record, fmt.Errorf("failed to decode run record %q: %w", runID, err)
	}
	return record, nil
}

func (s *BlobStore) ensureContainer(ctx context.Context) error {
	if s.containerInit {
		return nil
	}

	_, err := s.client.CreateContainer(ctx, s.containerName, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.ErrorCode == "ContainerAlreadyExists" {
			s.containerInit = true
			return nil
		}
		if strings.Contains(strings.ToLower(err.Error()), "containeralreadyexists") {
			s.containerInit = true
			return nil
		}
		return fmt.Errorf("failed to ensure container: %w", err)
	}

	s.containerInit = true
	return nil
}

func recordBlobPath(runID string) string {
	return fmt.Sprintf("runs/%s.json", runID)
}

func parseConnectionString(connectionString string) map[string]string {
	parts := strings.Split(connectionString, ";")
	params := make(map[string]string, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		idx := strings.Index(part, "=")
		if idx <= 0 {
			continue
		}
		params[part[:idx]] = part[idx+1:]
	}
	return params
}
