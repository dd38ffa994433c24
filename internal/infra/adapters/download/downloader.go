// File: internal/infra/adapters/download/downloader.go
package download

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"architect-studio/internal/domain/ports/adapter"

	"github.com/rs/zerolog"
)

var _ adapter.Downloader = (*Dir)(nil)

// Dir saves generated documents into a local directory. Files are written
// to a temp name and renamed, so a reader never sees a partial document.
type Dir struct {
	root   string
	client *http.Client
	log    *zerolog.Logger
}

func NewDir(root string, timeout time.Duration, log *zerolog.Logger) *Dir {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}
	return &Dir{root: root, client: &http.Client{Timeout: timeout}, log: log}
}

func (d *Dir) FromURL(ctx context.Context, url, name string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("download %s: http %d", name, resp.StatusCode)
	}
	return d.write(name, resp.Body)
}

func (d *Dir) FromBytes(ctx context.Context, data []byte, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return d.write(name, bytes.NewReader(data))
}

func (d *Dir) write(name string, r io.Reader) (string, error) {
	name = filepath.Base(filepath.Clean("/" + name))
	if name == "/" || name == "." {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	if err := os.MkdirAll(d.root, 0o755); err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(d.root, "."+name+".*")
	if err != nil {
		return "", err
	}
	n, err := io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return "", err
	}
	dst := filepath.Join(d.root, name)
	if err := os.Rename(tmp.Name(), dst); err != nil {
		_ = os.Remove(tmp.Name())
		return "", err
	}
	d.log.Debug().Str("path", dst).Int64("bytes", n).Msg("file saved")
	return dst, nil
}
