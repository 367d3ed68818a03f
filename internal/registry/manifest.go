package registry

import (
	"encoding/json"
	"fmt"

	"github.com/opencontainers/go-digest"
	"github.com/opencontainers/image-spec/specs-go"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"
)

// BuildManifest assembles the single-layer OCI image manifest for a backup
// blob. The content blob is referenced as both the config and the sole layer:
// backup artifacts are not runnable images, and reusing the blob avoids a
// second upload.
func BuildManifest(dgst digest.Digest, size int64) ([]byte, error) {
	m := v1.Manifest{
		Versioned: specs.Versioned{SchemaVersion: 2},
		MediaType: v1.MediaTypeImageManifest,
		Config: v1.Descriptor{
			MediaType: v1.MediaTypeImageConfig,
			Digest:    dgst,
			Size:      size,
		},
		Layers: []v1.Descriptor{
			{
				MediaType: v1.MediaTypeImageLayer,
				Digest:    dgst,
				Size:      size,
			},
		},
	}

	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal manifest: %w", err)
	}
	return data, nil
}
