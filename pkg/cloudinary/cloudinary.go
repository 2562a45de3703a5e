package cloudinary

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/rs/zerolog"
)

// Config contains credentials required to talk to Cloudinary.
type Config struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
}

// Enabled reports whether enough credentials are present to build a client.
func (c Config) Enabled() bool {
	return c.CloudName != "" && c.APIKey != "" && c.APISecret != ""
}

// Archive mirrors stored submission documents to Cloudinary as raw assets.
type Archive struct {
	client *cloudinary.Cloudinary
	folder string
	logger zerolog.Logger
}

// New constructs a Cloudinary archive.
func New(cfg Config, logger zerolog.Logger) (*Archive, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("cloudinary credentials must be provided")
	}

	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cloudinary: %w", err)
	}

	return &Archive{
		client: cld,
		folder: strings.Trim(cfg.Folder, "/"),
		logger: logger.With().Str("component", "cloudinary_archive").Logger(),
	}, nil
}

// Archive uploads the document under its storage key and returns the secure URL.
func (a *Archive) Archive(ctx context.Context, key string, data []byte) (string, error) {
	params := uploader.UploadParams{
		Folder:       a.folder,
		PublicID:     PublicID(key),
		ResourceType: "raw",
	}

	result, err := a.client.Upload.Upload(ctx, bytes.NewReader(data), params)
	if err != nil {
		return "", fmt.Errorf("failed to archive asset: %w", err)
	}

	a.logger.Info().Str("public_id", result.PublicID).Msg("submission archived to cloudinary")
	return result.SecureURL, nil
}

// PublicID derives a stable Cloudinary identifier from a storage key.
func PublicID(key string) string {
	base := path.Base(strings.TrimSpace(key))
	base = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '.' || r == '_' {
			return r
		}
		return '-'
	}, base)
	base = strings.Trim(base, "-.")
	if base == "" || base == "/" {
		return "submission"
	}
	return base
}
