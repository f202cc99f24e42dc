package signalk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/a-bouts/anchor-watch/anchor"
)

// Writer PUTs anchor settings to the SignalK REST API.
type Writer struct {
	Config Config
	Client *http.Client
}

type putRequest struct {
	Value interface{} `json:"value"`
}

type position struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (w Writer) SetAnchorPosition(ctx context.Context, p *anchor.Position) error {
	if p == nil {
		return w.put(ctx, pathAnchorPosition, nil)
	}
	return w.put(ctx, pathAnchorPosition, position{Latitude: p.Lat, Longitude: p.Lon})
}

func (w Writer) SetMaxRadius(ctx context.Context, meters float64) error {
	return w.put(ctx, pathAnchorMaxRadius, meters)
}

func (w Writer) SetRodeLength(ctx context.Context, meters float64) error {
	return w.put(ctx, pathAnchorRodeLength, meters)
}

func (w Writer) put(ctx context.Context, path string, value interface{}) error {
	body, err := json.Marshal(putRequest{Value: value})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, w.Config.apiURL(path), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if w.Config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+w.Config.Token)
	}

	client := w.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("put %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("put %s: %s %s", path, resp.Status, bytes.TrimSpace(msg))
	}

	log.WithField("path", path).Debug("SignalK put accepted")
	return nil
}
