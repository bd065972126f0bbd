/*
Copyright © 2019 the fluxprep authors.
This file is part of fluxprep.

fluxprep is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

fluxprep is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with fluxprep.  If not, see <http://www.gnu.org/licenses/>.
*/

package cloud

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/sirupsen/logrus"
	"gocloud.dev/blob"
)

// readBlob copies the given blob to w.
func readBlob(ctx context.Context, bucket *blob.Bucket, key string, w io.Writer) error {
	r, err := bucket.NewReader(ctx, key, nil)
	if err != nil {
		return fmt.Errorf("cloud: reading blob key %s: %v", key, err)
	}
	defer r.Close()
	if _, err = io.Copy(w, r); err != nil {
		return fmt.Errorf("cloud: reading blob key %s: %v", key, err)
	}
	return nil
}

// writeBlob copies the contents of r to the given bucket.
func writeBlob(ctx context.Context, bucket *blob.Bucket, key string, r io.Reader) error {
	w, err := bucket.NewWriter(ctx, key, &blob.WriterOptions{})
	if err != nil {
		return fmt.Errorf("cloud: creating writer for blob %s: %v", key, err)
	}
	if _, err = io.Copy(w, r); err != nil {
		w.Close()
		return fmt.Errorf("cloud: copying blob %s: %v", key, err)
	}
	if err = w.Close(); err != nil {
		return fmt.Errorf("cloud: writing blob %s: %v", key, err)
	}
	return nil
}

// Upload copies the given local files into the blob storage directory
// dest, e.g. "s3://bucket/run1". Each file keeps its base name. Failed
// uploads are retried with exponential backoff.
func Upload(ctx context.Context, dest string, files []string, log logrus.FieldLogger) error {
	bucket, prefix, err := locate(ctx, dest, true)
	if err != nil {
		return err
	}
	defer bucket.Close()
	for _, f := range files {
		key := path.Join(prefix, filepath.Base(f))
		r, err := os.Open(f)
		if err != nil {
			return fmt.Errorf("cloud: opening file '%s' for upload: %v", f, err)
		}
		err = backoff.RetryNotify(
			func() error {
				if _, err := r.Seek(0, io.SeekStart); err != nil {
					return err
				}
				return writeBlob(ctx, bucket, key, r)
			},
			backoff.WithContext(backoff.NewExponentialBackOff(), ctx),
			func(err error, d time.Duration) {
				log.WithError(err).WithField("file", f).Warnf("upload failed; retrying in %v", d)
			},
		)
		r.Close()
		if err != nil {
			return err
		}
		log.WithFields(logrus.Fields{"file": f, "key": key}).Debug("uploaded")
	}
	return nil
}

// Fetch returns a local path for loc. If loc refers to blob storage, the
// blob is downloaded into dir first; otherwise loc is returned unchanged.
func Fetch(ctx context.Context, loc, dir string, log logrus.FieldLogger) (string, error) {
	if !IsBlob(loc) {
		return loc, nil
	}
	bucket, key, err := locate(ctx, loc, false)
	if err != nil {
		return "", err
	}
	defer bucket.Close()
	if ok, err := bucket.Exists(ctx, key); err != nil {
		return "", fmt.Errorf("cloud: checking %s: %v", loc, err)
	} else if !ok {
		return "", fmt.Errorf("cloud: %s does not exist", loc)
	}
	local := filepath.Join(dir, path.Base(key))
	w, err := os.Create(local)
	if err != nil {
		return "", fmt.Errorf("cloud: creating file for download: %v", err)
	}
	defer w.Close()
	err = backoff.RetryNotify(
		func() error {
			if err := w.Truncate(0); err != nil {
				return err
			}
			if _, err := w.Seek(0, io.SeekStart); err != nil {
				return err
			}
			return readBlob(ctx, bucket, key, w)
		},
		backoff.WithContext(backoff.NewExponentialBackOff(), ctx),
		func(err error, d time.Duration) {
			log.WithError(err).WithField("location", loc).Warnf("download failed; retrying in %v", d)
		},
	)
	if err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("cloud: %v", err)
	}
	log.WithFields(logrus.Fields{"location": loc, "file": local}).Debug("downloaded")
	return local, nil
}
