package droplet

import "errors"

var (
	// ErrDropletNotFound is returned when a droplet key has no stored object
	ErrDropletNotFound = errors.New("droplet not found")

	// ErrUploadFailed is returned when a droplet cannot be stored
	ErrUploadFailed = errors.New("upload failed")

	// ErrDownloadFailed is returned when a droplet cannot be fetched
	ErrDownloadFailed = errors.New("download failed")

	// ErrUnsafePath is returned when an archive entry would land outside the target directory
	ErrUnsafePath = errors.New("unsafe path in archive")

	// ErrChecksumMismatch is returned when an archive does not match its recorded sha256
	ErrChecksumMismatch = errors.New("checksum mismatch")
)
