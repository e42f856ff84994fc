// Package dl fetches Minecraft client jars from the Mojang launcher metadata.
package dl

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

var (
	ErrVersionNotFound  = errors.New("version not found")
	ErrChecksumMismatch = errors.New("checksum mismatch")
)

type DownloadMetadata struct {
	SHA1 string `json:"sha1"`
	Size int64  `json:"size"`
	URL  string `json:"url"`
}

type VersionMetadata struct {
	Downloads map[string]*DownloadMetadata `json:"downloads"`
}

type Version struct {
	Id          string `json:"id"`
	Type        string `json:"type"`
	Time        string `json:"time"`
	ReleaseTime string `json:"releaseTime"`
	URL         string `json:"url"`
}

type VersionManifest struct {
	Latest struct {
		Release  string `json:"release"`
		Snapshot string `json:"snapshot"`
	} `json:"latest"`
	Versions []Version `json:"versions"`
}

func (v *VersionManifest) GetLatestRelease() (*Version, error) {
	return v.GetRelease(v.Latest.Release)
}

func (v *VersionManifest) GetRelease(id string) (*Version, error) {
	for i := range v.Versions {
		if v.Versions[i].Id == id {
			return &v.Versions[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrVersionNotFound, id)
}

const VERSION_MANIFEST_URL = "https://launchermeta.mojang.com/mc/game/version_manifest.json"

// Client talks to the launcher metadata endpoints.
type Client struct {
	HTTP        *http.Client
	ManifestURL string
}

func NewClient() *Client {
	return &Client{
		HTTP:        &http.Client{Timeout: 10 * time.Minute},
		ManifestURL: VERSION_MANIFEST_URL,
	}
}

func (c *Client) getJSON(ctx context.Context, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	r, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer r.Body.Close()

	if r.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: unexpected status %s", url, r.Status)
	}

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("GET %s: %w", url, err)
	}
	return nil
}

func (c *Client) GetVersionManifest(ctx context.Context) (*VersionManifest, error) {
	var manifest VersionManifest
	if err := c.getJSON(ctx, c.ManifestURL, &manifest); err != nil {
		return nil, err
	}
	return &manifest, nil
}

func (c *Client) GetMetadata(ctx context.Context, v *Version) (*VersionMetadata, error) {
	var meta VersionMetadata
	if err := c.getJSON(ctx, v.URL, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// Get streams the download into dst and verifies its SHA1 when known.
func (c *Client) Get(ctx context.Context, d *DownloadMetadata, dst io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.URL, nil)
	if err != nil {
		return err
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: unexpected status %s", d.URL, resp.Status)
	}

	hash := sha1.New()
	if _, err := io.Copy(io.MultiWriter(dst, hash), resp.Body); err != nil {
		return err
	}

	if d.SHA1 != "" {
		if sum := hex.EncodeToString(hash.Sum(nil)); sum != d.SHA1 {
			return fmt.Errorf("%w: %s has sha1 %s, expected %s", ErrChecksumMismatch, d.URL, sum, d.SHA1)
		}
	}
	return nil
}

// DownloadClientJar writes the client jar of version (latest release when
// empty) to path. progress, when set, wraps the destination writer.
func (c *Client) DownloadClientJar(ctx context.Context, version, path string, progress func(size int64) io.Writer) error {
	manifest, err := c.GetVersionManifest(ctx)
	if err != nil {
		return err
	}

	var release *Version
	if version == "" {
		release, err = manifest.GetLatestRelease()
	} else {
		release, err = manifest.GetRelease(version)
	}
	if err != nil {
		return err
	}

	meta, err := c.GetMetadata(ctx, release)
	if err != nil {
		return err
	}

	client, ok := meta.Downloads["client"]
	if !ok {
		return fmt.Errorf("%w: %s has no client download", ErrVersionNotFound, release.Id)
	}

	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return err
	}
	out, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.part")
	if err != nil {
		return err
	}
	tmp := out.Name()
	defer os.Remove(tmp)

	var dst io.Writer = out
	if progress != nil {
		dst = io.MultiWriter(out, progress(client.Size))
	}

	if err := c.Get(ctx, client, dst); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
