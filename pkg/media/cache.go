package media

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/synaptica-ai/studyrunner/pkg/common/httpclient"
	"github.com/synaptica-ai/studyrunner/pkg/common/logger"
	"github.com/synaptica-ai/studyrunner/pkg/protocol"
)

const maxMediaBytes = 200 << 20

// Cache downloads study media to a local directory so modules can be run
// without a network connection.
type Cache struct {
	client *http.Client
	dir    string
}

func NewCache(client *http.Client, dir string) *Cache {
	return &Cache{client: client, dir: dir}
}

// Fetch stores the resource at src under key and returns the local path.
func (c *Cache) Fetch(ctx context.Context, key, src string) (string, error) {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", fmt.Errorf("create media dir: %w", err)
	}

	var body []byte
	err := httpclient.Retry(ctx, 3, 200*time.Millisecond, func() error {
		var ferr error
		body, ferr = httpclient.Fetch(ctx, c.client, src, maxMediaBytes)
		return ferr
	})
	if err != nil {
		return "", fmt.Errorf("download %s: %w", src, err)
	}

	dst, err := filepath.Abs(filepath.Join(c.dir, fileName(key, src)))
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(dst, body, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", dst, err)
	}
	return dst, nil
}

// PreCache downloads every media URL of the study and returns a copy that
// points at the local files. Items that fail keep their remote URL.
func (c *Cache) PreCache(ctx context.Context, study *protocol.Study) (*protocol.Study, error) {
	local := map[string]string{}
	for key, src := range study.MediaURLs() {
		p, err := c.Fetch(ctx, key, src)
		if err != nil {
			logger.WithFields(map[string]interface{}{
				"study_id": study.Properties.StudyID,
				"key":      key,
			}).WithError(err).Warn("Media not cached")
			continue
		}
		local[key] = p
	}
	logger.WithFields(map[string]interface{}{
		"study_id": study.Properties.StudyID,
		"cached":   len(local),
	}).Info("Study media cached")
	return study.WithLocalMedia(local)
}

// Clear removes the cache directory.
func (c *Cache) Clear() error {
	return os.RemoveAll(c.dir)
}

func fileName(key, src string) string {
	var b strings.Builder
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if u, err := url.Parse(src); err == nil {
		b.WriteString(path.Ext(u.Path))
	}
	return b.String()
}
