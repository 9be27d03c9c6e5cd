package enrichment

import (
	"context"
	"fmt"
	"os"

	"github.com/illmade-knight/go-mqttinflux/pkg/cache"
	"gopkg.in/yaml.v3"
)

type deviceTagFile struct {
	Devices map[string]map[string]string `yaml:"devices"`
}

// LoadDeviceTagStore reads a static device tag file of the form:
//
//	devices:
//	  plug1:
//	    room: kitchen
//	    floor: ground
//
// Devices missing from the file are looked up in fallback, which may be nil.
func LoadDeviceTagStore(
	ctx context.Context,
	path string,
	fallback cache.Fetcher[string, map[string]string],
) (*cache.InMemoryCache[string, map[string]string], error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read device tag file %s: %w", path, err)
	}
	var f deviceTagFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse device tag file %s: %w", path, err)
	}

	store := cache.NewInMemoryCache[string, map[string]string](fallback)
	for device, tags := range f.Devices {
		if device == "" {
			return nil, fmt.Errorf("device tag file %s: empty device name", path)
		}
		if err := store.Set(ctx, device, tags); err != nil {
			return nil, err
		}
	}
	return store, nil
}
