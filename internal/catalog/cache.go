package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/deepuanant/tickrelay/internal/model"
)

// cacheValid reports whether the cache file exists and its modification time
// is within the TTL.
func (c *Client) cacheValid() bool {
	info, err := os.Stat(c.cachePath)
	if err != nil {
		return false
	}
	return time.Since(info.ModTime()) <= c.cacheTTL
}

func (c *Client) cacheExists() bool {
	_, err := os.Stat(c.cachePath)
	return err == nil
}

func (c *Client) loadCache() ([]model.Instrument, error) {
	data, err := os.ReadFile(c.cachePath)
	if err != nil {
		return nil, fmt.Errorf("read instrument cache: %w", err)
	}
	var instruments []model.Instrument
	if err := json.Unmarshal(data, &instruments); err != nil {
		return nil, fmt.Errorf("parse instrument cache: %w", err)
	}
	return instruments, nil
}

func (c *Client) saveCache(instruments []model.Instrument) error {
	data, err := json.Marshal(instruments)
	if err != nil {
		return err
	}
	tmp := c.cachePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, c.cachePath)
}
