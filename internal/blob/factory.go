package blob

import (
	"context"
	"fmt"
	"os"
)

// Environment variables read by Open. S3 settings are documented on
// internal/infra/blob/s3.
const (
	EnvDriver = "FAMILYTREE_BLOB_DRIVER"
	EnvFSRoot = "FAMILYTREE_BLOB_FS_ROOT"
)

// Open selects a blob.Store implementation using environment variables.
//
//	FAMILYTREE_BLOB_DRIVER: fs|s3|memory (default fs)
//	FAMILYTREE_BLOB_FS_ROOT: directory root when driver=fs (default ./blobdata)
func Open(ctx context.Context) (Store, error) {
	driver := os.Getenv(EnvDriver)
	if driver == "" {
		driver = string(DriverFilesystem)
	}
	switch Driver(driver) {
	case DriverFilesystem:
		return NewFilesystem(os.Getenv(EnvFSRoot))
	case DriverS3:
		return OpenS3FromEnv(ctx)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}
