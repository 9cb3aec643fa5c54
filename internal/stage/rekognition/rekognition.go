// Package rekognition provides optional AWS Rekognition-backed
// implementations of the Face Detector and Face Matcher stages, wired in
// by the Stage Registry only when AWS_REGION is configured (spec.md §9's
// "pluggable backend, consumed only via stage interfaces"). Grounded in
// saturnino-fabrica-de-software-rekko/internal/provider/rekognition,
// trimmed to the two operations this spec's stage contracts need:
// DetectFaces and CompareFaces. Unlike rekko's multi-tenant collection
// model, this package never indexes faces — every comparison is a direct
// image-to-image CompareFaces call, since a KYC verification compares a
// single ID photo against a single selfie rather than searching a
// standing collection.
package rekognition

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"

	"github.com/example/kyc-gateway/internal/kyc"
	"github.com/example/kyc-gateway/internal/stage"
)

// cropImage extracts the face box region from the decoded raster,
// clamped to the image bounds.
func cropImage(img *kyc.Image, box *kyc.FaceBox) image.Image {
	bounds := img.Decoded.Bounds()
	rect := image.Rect(box.X, box.Y, box.X+box.Width, box.Y+box.Height).Intersect(bounds)
	if rect.Empty() {
		rect = bounds
	}
	dst := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(dst, dst.Bounds(), img.Decoded, rect.Min, draw.Src)
	return dst
}

// Client wraps the AWS Rekognition SDK client.
type Client struct {
	api *rekognition.Client
}

// NewClient loads AWS credentials via the default chain for the given
// region and returns a ready-to-use Client.
func NewClient(ctx context.Context, region string) (*Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return &Client{api: rekognition.NewFromConfig(awsCfg)}, nil
}

// Detector implements stage.Detector using Rekognition's DetectFaces API.
type Detector struct {
	client *Client
}

// NewDetector builds a Rekognition-backed Detector.
func NewDetector(client *Client) *Detector { return &Detector{client: client} }

var _ stage.Detector = (*Detector)(nil)

// Detect implements stage.Detector.
func (d *Detector) Detect(ctx context.Context, img *kyc.Image) (*kyc.FaceBox, error) {
	out, err := d.client.api.DetectFaces(ctx, &rekognition.DetectFacesInput{
		Image:      &types.Image{Bytes: img.Raw},
		Attributes: []types.Attribute{types.AttributeDefault},
	})
	if err != nil {
		return nil, fmt.Errorf("rekognition detect faces: %w", err)
	}

	var best *types.FaceDetail
	for i := range out.FaceDetails {
		fd := &out.FaceDetails[i]
		if fd.Confidence == nil {
			continue
		}
		if best == nil || *fd.Confidence > *best.Confidence {
			best = fd
		}
	}
	if best == nil || best.BoundingBox == nil {
		return nil, nil
	}

	bb := best.BoundingBox
	box := &kyc.FaceBox{
		X:          int(*bb.Left * float32(img.Width)),
		Y:          int(*bb.Top * float32(img.Height)),
		Width:      int(*bb.Width * float32(img.Width)),
		Height:     int(*bb.Height * float32(img.Height)),
		Confidence: float64(*best.Confidence) / 100,
	}
	return box, nil
}

// Matcher implements stage.Matcher using Rekognition's CompareFaces API.
//
// Rekognition does not expose face embeddings (the same limitation
// rekko/internal/provider/rekognition/provider.go documents on its
// CompareFaces method): comparison requires the original image bytes,
// not a vector. To still satisfy the embed-then-compare stage contract,
// Embed smuggles the JPEG-encoded face crop through the Embedding value
// (one float64 per byte) instead of a real embedding; Compare decodes it
// back into image bytes before calling Rekognition.
type Matcher struct {
	client    *Client
	threshold float64
}

// NewMatcher builds a Rekognition-backed Matcher with the given cosine
// similarity threshold.
func NewMatcher(client *Client, threshold float64) *Matcher {
	return &Matcher{client: client, threshold: threshold}
}

var _ stage.Matcher = (*Matcher)(nil)

// Embed implements stage.Matcher.
func (m *Matcher) Embed(ctx context.Context, img *kyc.Image, box *kyc.FaceBox) (kyc.Embedding, error) {
	crop := cropImage(img, box)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, crop, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("encode face crop: %w", err)
	}
	return bytesToEmbedding(buf.Bytes()), nil
}

// Compare implements stage.Matcher.
func (m *Matcher) Compare(ctx context.Context, a, b kyc.Embedding) (stage.MatchResult, error) {
	source := embeddingToBytes(a)
	target := embeddingToBytes(b)

	out, err := m.client.api.CompareFaces(ctx, &rekognition.CompareFacesInput{
		SourceImage: &types.Image{Bytes: source},
		TargetImage: &types.Image{Bytes: target},
	})
	if err != nil {
		return stage.MatchResult{}, fmt.Errorf("rekognition compare faces: %w", err)
	}

	if len(out.FaceMatches) == 0 {
		return stage.MatchResult{
			CosineSimilarity:  0,
			EuclideanDistance: 1,
			Verified:          false,
			Threshold:         m.threshold,
		}, nil
	}

	similarity := float64(*out.FaceMatches[0].Similarity) / 100
	return stage.MatchResult{
		CosineSimilarity:  similarity,
		EuclideanDistance: 1 - similarity,
		Verified:          similarity >= m.threshold,
		Threshold:         m.threshold,
	}, nil
}

func bytesToEmbedding(b []byte) kyc.Embedding {
	vec := make(kyc.Embedding, len(b))
	for i, v := range b {
		vec[i] = float64(v)
	}
	return vec
}

func embeddingToBytes(v kyc.Embedding) []byte {
	b := make([]byte, len(v))
	for i, f := range v {
		b[i] = byte(f)
	}
	return b
}
