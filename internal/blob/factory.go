package blob

import (
	"context"
	"fmt"
)

// Open builds a store for driver. location is the root directory for the
// filesystem driver; the s3 driver reads its settings from the environment.
func Open(ctx context.Context, driver, location string) (Store, error) {
	switch Driver(driver) {
	case "", DriverFilesystem:
		return NewFSStore(location)
	case DriverMemory:
		return NewMemoryStore(), nil
	case DriverS3:
		cfg, err := S3ConfigFromEnv()
		if err != nil {
			return nil, err
		}
		return NewS3Store(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported blob driver: %s", driver)
	}
}
