// Package droplet packs staged droplet directories and stores them.
//
// Pack turns a destination directory into a gzipped tarball with a sha256
// digest. A Store keeps archives under keys built by Key; FileStore writes
// to a local directory and S3Store to an S3 bucket, handing out presigned
// download URLs.
package droplet
