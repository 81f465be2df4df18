package embed

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"net/http"
)

// ImageEmbedTargetSize is the square resolution images are resized/cropped
// to before being sent to a multimodal embedding model.
const ImageEmbedTargetSize = 384

// ollamaImageEmbedRequest mirrors OllamaEmbedRequest but carries base64
// image payloads instead of text, for multimodal embedding models served
// over the same /api/embed endpoint.
type ollamaImageEmbedRequest struct {
	Model  string   `json:"model"`
	Images []string `json:"images"`
}

// PreprocessImage decodes an arbitrary image, center-crops it to a square,
// and resizes it to ImageEmbedTargetSize, returning PNG-encoded bytes ready
// for a multimodal embedder. Done with stdlib image/draw only: nearest-
// neighbor scaling, which is sufficient since embedding models downsample
// internally anyway.
func PreprocessImage(raw []byte) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	cropped := centerCropSquare(src)
	resized := resizeNearest(cropped, ImageEmbedTargetSize, ImageEmbedTargetSize)

	var buf bytes.Buffer
	if err := png.Encode(&buf, resized); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	return buf.Bytes(), nil
}

func centerCropSquare(src image.Image) image.Image {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	side := w
	if h < side {
		side = h
	}

	x0 := bounds.Min.X + (w-side)/2
	y0 := bounds.Min.Y + (h-side)/2

	dst := image.NewRGBA(image.Rect(0, 0, side, side))
	draw.Draw(dst, dst.Bounds(), src, image.Point{X: x0, Y: y0}, draw.Src)
	return dst
}

func resizeNearest(src image.Image, w, h int) image.Image {
	srcBounds := src.Bounds()
	sw, sh := srcBounds.Dx(), srcBounds.Dy()
	dst := image.NewRGBA(image.Rect(0, 0, w, h))

	for y := 0; y < h; y++ {
		sy := srcBounds.Min.Y + y*sh/h
		for x := 0; x < w; x++ {
			sx := srcBounds.Min.X + x*sw/w
			dst.Set(x, y, src.At(sx, sy))
		}
	}
	return dst
}

// EmbedImage sends a preprocessed image to the same Ollama /api/embed
// endpoint used for text, for models that support multimodal input
// (e.g. a CLIP-style embedding model pulled into Ollama). The image is
// center-cropped and resized via PreprocessImage before transmission.
func (e *OllamaEmbedder) EmbedImage(ctx context.Context, raw []byte) ([]float32, error) {
	processed, err := PreprocessImage(raw)
	if err != nil {
		return nil, err
	}

	url := e.config.Host + "/api/embed"
	reqBody := ollamaImageEmbedRequest{
		Model:  e.modelName,
		Images: []string{base64.StdEncoding.EncodeToString(processed)},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal image embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("image embedding failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var apiResult OllamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResult); err != nil {
		return nil, fmt.Errorf("decode image embed response: %w", err)
	}
	if len(apiResult.Embeddings) == 0 {
		return nil, fmt.Errorf("no embedding returned for image")
	}

	embedding := make([]float32, len(apiResult.Embeddings[0]))
	for i, v := range apiResult.Embeddings[0] {
		embedding[i] = float32(v)
	}
	return normalizeVector(embedding), nil
}
