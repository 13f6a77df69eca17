package selfupdate

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const darwinAsset = "examdrill_Darwin_all.tar.gz"

func TestAssetNameFor(t *testing.T) {
	tests := []struct {
		goos, goarch string
		want         string
		wantErr      bool
	}{
		{"darwin", "amd64", darwinAsset, false},
		{"darwin", "arm64", darwinAsset, false},
		{"linux", "amd64", "examdrill_Linux_x86_64.tar.gz", false},
		{"linux", "386", "examdrill_Linux_i386.tar.gz", false},
		{"windows", "arm64", "examdrill_Windows_arm64.zip", false},
		{"freebsd", "amd64", "", true},
		{"linux", "mips", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.goos+"/"+tt.goarch, func(t *testing.T) {
			got, err := assetNameFor(tt.goos, tt.goarch)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseChecksums(t *testing.T) {
	got := parseChecksums([]byte("abc123  examdrill_Darwin_all.tar.gz\nbadline\n  \nfoo  bar  baz\ndef456  checksums.sig\n"))
	assert.Equal(t, map[string]string{
		darwinAsset:     "abc123",
		"checksums.sig": "def456",
	}, got)
	assert.Empty(t, parseChecksums(nil))
}

func TestVerifyChecksum(t *testing.T) {
	data := []byte("γεια σου")
	h := sha256.Sum256(data)

	assert.NoError(t, verifyChecksum(data, hex.EncodeToString(h[:])))
	err := verifyChecksum(data, "00")
	assert.ErrorIs(t, err, ErrChecksum)
}

func TestExtractBinary(t *testing.T) {
	content := []byte("#!/bin/sh\necho examdrill")

	got, err := extractBinary(buildTarGz(t, "dist/examdrill", content), darwinAsset)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	_, err = extractBinary(buildTarGz(t, "README.md", content), darwinAsset)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestApplyUpdate_KeepsMode(t *testing.T) {
	target := filepath.Join(t.TempDir(), "examdrill")
	require.NoError(t, os.WriteFile(target, []byte("old"), 0o755))

	bin := []byte("new-binary")
	sum := sha256.Sum256(bin)
	require.NoError(t, applyUpdate(bin, target, sum[:]))

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, bin, got)
	info, err := os.Stat(target)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())

	entries, err := os.ReadDir(filepath.Dir(target))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file left behind")
}

// releaseServer serves a latest release tag plus its assets.
func releaseServer(t *testing.T, tag string, assets map[string][]byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/repos/abhisek/examdrill/releases/latest" {
			fmt.Fprintf(w, `{"tag_name":%q,"html_url":"https://example.com/%s"}`, tag, tag)
			return
		}
		for name, body := range assets {
			if r.URL.Path == fmt.Sprintf("/abhisek/examdrill/releases/download/%s/%s", tag, name) {
				_, _ = w.Write(body)
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCheck(t *testing.T) {
	srv := releaseServer(t, "v1.4.0", nil)
	c := NewChecker(WithBaseURL(srv.URL))

	tests := []struct {
		current string
		want    bool
	}{
		{"v1.3.9", true},
		{"1.3.9", true},
		{"v1.4.0", false},
		{"v2.0.0", false},
		{DevVersion, false},
	}
	for _, tt := range tests {
		res, err := c.Check(context.Background(), &CheckInput{Version: tt.current})
		require.NoError(t, err)
		assert.Equal(t, tt.want, res.UpdateAvailable, "current %s", tt.current)
		assert.Equal(t, "v1.4.0", res.LatestVersion)
	}
}

func TestCheck_InvalidTag(t *testing.T) {
	srv := releaseServer(t, "nightly", nil)
	_, err := NewChecker(WithBaseURL(srv.URL)).Check(context.Background(), &CheckInput{Version: "v1.0.0"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "semantic version")
}

func TestUpdate(t *testing.T) {
	content := []byte("new-examdrill-binary")
	archive := buildTarGz(t, "examdrill", content)
	archiveSum := sha256.Sum256(archive)
	checksums := []byte(fmt.Sprintf("%s  %s\n", hex.EncodeToString(archiveSum[:]), darwinAsset))

	t.Run("happy path", func(t *testing.T) {
		execPath := filepath.Join(t.TempDir(), "examdrill")
		require.NoError(t, os.WriteFile(execPath, []byte("old"), 0o755))
		srv := releaseServer(t, "v2.0.0", map[string][]byte{darwinAsset: archive, "checksums.txt": checksums})

		c := NewChecker(
			WithBaseURL(srv.URL),
			WithDownloadBaseURL(srv.URL),
			withPlatform("darwin", "arm64"),
			withExecPath(func() (string, error) { return execPath, nil }),
		)
		var stages []string
		err := c.Update(context.Background(), &UpdateInput{CurrentVersion: "v1.0.0"}, func(p UpdateProgress) {
			stages = append(stages, p.Stage)
		})
		require.NoError(t, err)

		got, err := os.ReadFile(execPath)
		require.NoError(t, err)
		assert.Equal(t, content, got)
		assert.Equal(t, []string{"check", "download", "verify", "extract", "apply", "done"}, stages)
	})

	t.Run("pinned version skips check", func(t *testing.T) {
		execPath := filepath.Join(t.TempDir(), "examdrill")
		require.NoError(t, os.WriteFile(execPath, []byte("old"), 0o755))
		srv := releaseServer(t, "v2.0.0", map[string][]byte{darwinAsset: archive, "checksums.txt": checksums})

		c := NewChecker(
			WithDownloadBaseURL(srv.URL),
			withPlatform("darwin", "amd64"),
			withExecPath(func() (string, error) { return execPath, nil }),
		)
		var stages []string
		err := c.Update(context.Background(), &UpdateInput{CurrentVersion: "v2.0.0", TargetVersion: "v2.0.0"}, func(p UpdateProgress) {
			stages = append(stages, p.Stage)
		})
		require.NoError(t, err)
		assert.NotContains(t, stages, "check")
	})

	t.Run("dev build", func(t *testing.T) {
		err := NewChecker().Update(context.Background(), &UpdateInput{CurrentVersion: DevVersion}, nil)
		assert.ErrorIs(t, err, ErrDevBuild)
	})

	t.Run("already latest", func(t *testing.T) {
		srv := releaseServer(t, "v1.0.0", nil)
		err := NewChecker(WithBaseURL(srv.URL)).Update(context.Background(), &UpdateInput{CurrentVersion: "v1.0.0"}, nil)
		assert.ErrorIs(t, err, ErrAlreadyLatest)
	})

	t.Run("checksum mismatch", func(t *testing.T) {
		bad := []byte(fmt.Sprintf("%064d  %s\n", 0, darwinAsset))
		srv := releaseServer(t, "v2.0.0", map[string][]byte{darwinAsset: archive, "checksums.txt": bad})
		c := NewChecker(WithBaseURL(srv.URL), WithDownloadBaseURL(srv.URL), withPlatform("darwin", "arm64"))
		err := c.Update(context.Background(), &UpdateInput{CurrentVersion: "v1.0.0"}, nil)
		assert.ErrorIs(t, err, ErrChecksum)
	})

	t.Run("download failure", func(t *testing.T) {
		srv := releaseServer(t, "v2.0.0", nil)
		c := NewChecker(WithBaseURL(srv.URL), WithDownloadBaseURL(srv.URL), withPlatform("linux", "amd64"))
		err := c.Update(context.Background(), &UpdateInput{CurrentVersion: "v1.0.0"}, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "download archive")
	})
}

// buildTarGz creates a tar.gz archive containing a single file.
func buildTarGz(t *testing.T, name string, content []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gw)
	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name:     name,
		Size:     int64(len(content)),
		Mode:     0o755,
		Typeflag: tar.TypeReg,
	}))
	_, err := tw.Write(content)
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, gw.Close())
	return buf.Bytes()
}
