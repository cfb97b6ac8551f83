// Package storage writes and reads objects in an S3-compatible bucket.
//
// It is deliberately small: the service only archives opaque blobs (raw webhook
// batches) and reads them back for replay.
//
//	store, err := storage.New(storage.Config{
//		Bucket:    "courier-archive",
//		AccessKey: os.Getenv("ARCHIVE_ACCESS_KEY"),
//		SecretKey: os.Getenv("ARCHIVE_SECRET_KEY"),
//	})
//	if err != nil {
//		return err
//	}
//
//	err = store.Put(ctx, "webhooks/2026/03/01/batch.json", body, "application/json")
//
// Use Endpoint with PathStyle for MinIO and other S3-compatible services.
//
// # Errors
//
// Errors are normalized to the package sentinels, so callers check them with
// errors.Is rather than inspecting AWS error types:
//
//	data, err := store.Get(ctx, key)
//	if errors.Is(err, storage.ErrNotFound) {
//		...
//	}
package storage
