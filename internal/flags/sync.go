package flags

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	appLog "epdiag/internal/log"
	"epdiag/internal/raster"
)

// Syncer mirrors the REST Countries flag set into a local directory pair:
// FlagsDir gets <id>.bmp renders, InfoDir gets <id>.json metadata plus an
// index.json naming every metadata file.
type Syncer struct {
	Client     *Client
	Rasterizer raster.Rasterizer

	FlagsDir     string
	InfoDir      string
	CanvasWidth  int
	CanvasHeight int
}

// Stats summarizes one sync pass.
type Stats struct {
	Processed int
	Updated   int
	Skipped   int
	Failed    int
}

// Sync performs one full pass: fetch the country list, refresh every flag
// whose cached render is missing or invalid, and rewrite metadata and the
// index. Individual country failures are logged and counted, not fatal.
func (s *Syncer) Sync(ctx context.Context) (Stats, error) {
	var stats Stats

	if err := os.MkdirAll(s.FlagsDir, 0o755); err != nil {
		return stats, err
	}
	if err := os.MkdirAll(s.InfoDir, 0o755); err != nil {
		return stats, err
	}

	appLog.Info("fetching country list")
	countries, err := s.Client.All(ctx)
	if err != nil {
		return stats, err
	}

	var index []string
	for i := range countries {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		c := &countries[i]
		if err := s.syncOne(ctx, c, &stats); err != nil {
			stats.Failed++
			appLog.Error("failed to process country", err, "country", c.Name.Common)
			continue
		}
		index = append(index, c.ID()+".json")
		stats.Processed++
	}

	if err := s.writeIndex(index); err != nil {
		return stats, err
	}
	appLog.Info("index.json written", "entries", len(index))

	return stats, nil
}

func (s *Syncer) syncOne(ctx context.Context, c *Country, stats *Stats) error {
	id := c.ID()
	if id == "" {
		return fmt.Errorf("country record has no name")
	}

	bmpPath := filepath.Join(s.FlagsDir, id+".bmp")

	needsUpdate, reason := flagNeedsUpdate(bmpPath, s.CanvasWidth, s.CanvasHeight)
	if needsUpdate {
		appLog.Info("updating flag", "country", c.Name.Common, "reason", reason)
		if err := s.renderFlag(ctx, c, bmpPath); err != nil {
			return err
		}
		stats.Updated++
	} else {
		appLog.Debug("flag already valid, skipping", "country", c.Name.Common)
		stats.Skipped++
	}

	return s.writeMetadata(id, c)
}

// renderFlag fetches the country's flag art, turns it into canvas-sized
// pixels and writes the BMP. SVG sources go through the rasterizer;
// bitmap sources are scaled and centered directly.
func (s *Syncer) renderFlag(ctx context.Context, c *Country, bmpPath string) error {
	url := c.Flags.SVG
	if url == "" {
		url = c.Flags.PNG
	}

	raw, err := s.Client.FetchFlag(ctx, url)
	if err != nil {
		return fmt.Errorf("fetching flag: %w", err)
	}

	if strings.HasSuffix(url, ".svg") {
		raw, err = s.Rasterizer.RasterizePNG(ctx, raw, s.CanvasWidth, s.CanvasHeight)
		if err != nil {
			return fmt.Errorf("rasterizing flag: %w", err)
		}
	}

	img, err := renderCanvas(raw, s.CanvasWidth, s.CanvasHeight)
	if err != nil {
		return err
	}

	return saveBMP(bmpPath, img)
}

func (s *Syncer) writeMetadata(id string, c *Country) error {
	data, err := json.MarshalIndent(c.Meta(), "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.InfoDir, id+".json"), data, 0o644)
}

func (s *Syncer) writeIndex(index []string) error {
	if index == nil {
		index = []string{}
	}
	data, err := json.MarshalIndent(index, "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.InfoDir, "index.json"), data, 0o644)
}
