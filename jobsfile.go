package main

import (
	"fmt"
	"os"
)

// loadRegionsFromJobsFile reads a YAML document of the same "regions"
// shape as the main config (a list of {bbox, zoom_range} entries),
// letting a planning run be restricted to a subset of regions without
// editing the main configuration file.
func loadRegionsFromJobsFile(path string) ([]Region, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening jobs file %s: %v", ErrConfig, path, err)
	}
	defer f.Close()

	var doc struct {
		Regions []RegionConfig `yaml:"regions"`
	}
	if err := yamlDecode(f, &doc); err != nil {
		return nil, fmt.Errorf("%w: parsing jobs file %s: %v", ErrConfig, path, err)
	}

	out := make([]Region, 0, len(doc.Regions))
	for _, r := range doc.Regions {
		out = append(out, r.toRegion())
	}
	return out, nil
}
