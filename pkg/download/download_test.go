package download

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDownloader(t *testing.T) {
	options := DefaultOptions()
	downloader := NewDownloader(options)

	require.NotNil(t, downloader)
	assert.NotNil(t, downloader.client)
	assert.Equal(t, options.Timeout, downloader.options.Timeout)
}

func TestDefaultOptions(t *testing.T) {
	options := DefaultOptions()

	assert.Equal(t, int64(20*1024*1024), options.MaxSize)
	assert.Equal(t, 2*time.Minute, options.Timeout)
	assert.True(t, options.ValidateAudio)
	assert.NotEmpty(t, options.UserAgent)
}

func TestDownloadToFile_Success(t *testing.T) {
	audioData := strings.Repeat("audio-data", 128)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/ogg")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(audioData))
	}))
	defer server.Close()

	var progressed int64
	options := DefaultOptions()
	options.ProgressFunc = func(downloaded, total int64) { progressed = downloaded }
	downloader := NewDownloader(options)

	dest := filepath.Join(t.TempDir(), "nested", "voice.ogg")
	result, err := downloader.DownloadToFile(context.Background(), server.URL, dest)
	require.NoError(t, err)

	assert.Equal(t, dest, result.FilePath)
	assert.Equal(t, "audio/ogg", result.ContentType)
	assert.Equal(t, int64(1280), result.ContentLength)
	assert.Equal(t, int64(1280), progressed)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, audioData, string(data))
}

func TestDownloadToFile_Failures(t *testing.T) {
	tests := []struct {
		name        string
		handler     http.HandlerFunc
		maxSize     int64
		errContains string
		tooLarge    bool
	}{
		{
			name: "not found",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			},
			errContains: "server returned status 404",
		},
		{
			name: "invalid content type",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/html")
				_, _ = w.Write([]byte("<html>Not audio</html>"))
			},
			errContains: "invalid content type: text/html",
		},
		{
			name: "declared length too large",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "audio/ogg")
				w.Header().Set("Content-Length", "1000000000")
				w.WriteHeader(http.StatusOK)
			},
			maxSize:  1024,
			tooLarge: true,
		},
		{
			name: "streamed body too large",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/octet-stream")
				w.WriteHeader(http.StatusOK)
				w.(http.Flusher).Flush()
				_, _ = w.Write([]byte(strings.Repeat("x", 2048)))
			},
			maxSize:  1024,
			tooLarge: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			options := DefaultOptions()
			if tt.maxSize > 0 {
				options.MaxSize = tt.maxSize
			}
			dest := filepath.Join(t.TempDir(), "voice.ogg")

			_, err := NewDownloader(options).DownloadToFile(context.Background(), server.URL, dest)
			require.Error(t, err)
			if tt.tooLarge {
				assert.True(t, errors.Is(err, ErrTooLarge), err.Error())
			} else {
				assert.Contains(t, err.Error(), tt.errContains)
			}

			_, statErr := os.Stat(dest)
			assert.True(t, os.IsNotExist(statErr), "partial file left behind")
		})
	}
}

func TestIsAudioContentType(t *testing.T) {
	testCases := []struct {
		contentType string
		expected    bool
	}{
		{"audio/ogg", true},
		{"audio/mpeg", true},
		{"AUDIO/OGG", true},
		{"application/octet-stream", true},
		{"text/html", false},
		{"application/json", false},
		{"", false},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.expected, isAudioContentType(tc.contentType), tc.contentType)
	}
}
