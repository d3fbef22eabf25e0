package aps

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"lumenworks/pkg/zip"
)

// Objects land on the transient storage tier, which keeps them for a fixed
// 24 hours. The reported expiry is this policy constant, never something
// computed from the remote service.
const retentionWindow = 24 * time.Hour

// BundleImage is a referenced raster carried alongside the design binary.
type BundleImage struct {
	Filename string
	Data     []byte
}

// StagedDesign identifies an uploaded drawing for viewers and status polls.
// The urn dangles once the retention window elapses; callers must not assume
// persistence beyond ExpiresAt.
type StagedDesign struct {
	URN          string    `json:"urn"`
	ObjectKey    string    `json:"object_key"`
	RootFilename string    `json:"root_filename,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Stage uploads a generated drawing (bundled with its referenced images when
// present), derives the portable urn and kicks off derivative translation.
// Object names are time-salted, so staging the same drawing twice yields two
// distinct urns.
func (c *Client) Stage(ctx context.Context, filename string, binary []byte, images []BundleImage) (*StagedDesign, error) {
	if len(binary) == 0 {
		return nil, fmt.Errorf("aps: design binary is empty")
	}
	if err := c.EnsureBucket(ctx); err != nil {
		return nil, err
	}

	payload := binary
	rootFilename := ""
	objectName := fmt.Sprintf("%d_%s", c.now().UnixNano(), filename)
	if len(images) > 0 {
		extras := make([]zip.Asset, 0, len(images))
		for _, img := range images {
			extras = append(extras, zip.Asset{Filename: img.Filename, Data: img.Data})
		}
		bundle, err := zip.BuildBundle(zip.Asset{Filename: filename, Data: binary}, extras)
		if err != nil {
			return nil, fmt.Errorf("aps: bundle design: %w", err)
		}
		payload = bundle.Data
		rootFilename = bundle.RootFilename
		objectName += ".zip"
	}

	objectID, err := c.uploadObject(ctx, objectName, payload)
	if err != nil {
		return nil, err
	}
	urn := base64.RawStdEncoding.EncodeToString([]byte(objectID))

	if err := c.requestTranslation(ctx, urn, rootFilename); err != nil {
		return nil, err
	}

	staged := &StagedDesign{
		URN:          urn,
		ObjectKey:    objectName,
		RootFilename: rootFilename,
		ExpiresAt:    c.now().Add(retentionWindow),
	}
	c.logger.Info().
		Str("object", objectName).
		Str("urn", urn).
		Time("expires_at", staged.ExpiresAt).
		Msg("aps: design staged for translation")
	return staged, nil
}
