package media

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synaptica-ai/studyrunner/pkg/protocol"
)

func TestPreCacheRewritesURLs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/gone.mp4" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("bytes:" + r.URL.Path))
	}))
	defer srv.Close()

	study, err := protocol.Parse([]byte(`{
	  "properties": {"study_id": "M1", "banner_url": "` + srv.URL + `/banner.png"},
	  "modules": [{"type": "survey", "uuid": "m", "sections": [{"name": "s", "questions": [
	    {"id": "clip", "type": "media", "subtype": "video", "src": "` + srv.URL + `/clip.mp4", "thumb": "` + srv.URL + `/clip.png"},
	    {"id": "lost", "type": "media", "subtype": "audio", "src": "` + srv.URL + `/gone.mp4"}
	  ]}]}]
	}`))
	require.NoError(t, err)

	dir := t.TempDir()
	cache := NewCache(srv.Client(), dir)
	local, err := cache.PreCache(context.Background(), study)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "banner.png"), local.Properties.BannerURL)
	clip := local.Modules[0].Sections[0].Questions[0].(*protocol.Media)
	assert.Equal(t, filepath.Join(dir, "0_clip.mp4"), clip.Src)
	assert.Equal(t, filepath.Join(dir, "0_clip_thumb.png"), clip.Thumb)

	lost := local.Modules[0].Sections[0].Questions[1].(*protocol.Media)
	assert.Equal(t, srv.URL+"/gone.mp4", lost.Src)

	data, err := os.ReadFile(clip.Src)
	require.NoError(t, err)
	assert.Equal(t, "bytes:/clip.mp4", string(data))

	original := study.Modules[0].Sections[0].Questions[0].(*protocol.Media)
	assert.Equal(t, srv.URL+"/clip.mp4", original.Src)

	require.NoError(t, cache.Clear())
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "q_1_thumb.jpg", fileName("q 1:thumb", "https://cdn.example.org/a/b.jpg?x=1"))
	assert.Equal(t, "banner", fileName("banner", "https://cdn.example.org/banner"))
	assert.Equal(t, "2_clip.mp4", fileName(protocol.MediaKey(2, "clip"), "https://cdn.example.org/clip.mp4"))
}
