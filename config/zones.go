package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"gplan/common/file"
	"gplan/planner"
)

type zoneEntry struct {
	FrequencyHz float64 `yaml:"frequency_hz"`
	Severity    float64 `yaml:"severity"`
}

type zoneFile struct {
	Axes map[string][]zoneEntry `yaml:"axes"`
}

// ZoneStore persists calibrated resonance zones as YAML. The planner core
// owns no file format; this store belongs to the application layer.
type ZoneStore struct {
	Path string
}

var storeAxes = []planner.Axis{planner.AxisX, planner.AxisY, planner.AxisZ}

// Save writes every axis' registered zones, fsynced and renamed into place.
func (s *ZoneStore) Save(filter *planner.ResonanceFilter) error {
	zf := zoneFile{Axes: map[string][]zoneEntry{}}
	for _, axis := range storeAxes {
		zones := filter.Zones(axis)
		if len(zones) == 0 {
			continue
		}
		entries := make([]zoneEntry, 0, len(zones))
		for _, z := range zones {
			entries = append(entries, zoneEntry{FrequencyHz: z.FrequencyHz, Severity: z.Severity})
		}
		zf.Axes[axis.String()] = entries
	}

	data, err := yaml.Marshal(&zf)
	if err != nil {
		return errors.Wrap(err, "marshal resonance zones")
	}
	if err := file.EnsureDir(s.Path); err != nil {
		return errors.Wrapf(err, "create zone store dir for %s", s.Path)
	}
	if err := file.WriteFileWithSync(s.Path, data); err != nil {
		return errors.Wrapf(err, "write zone store %s", s.Path)
	}
	return nil
}

// Load replaces the filter's zones with the stored ones. A missing store is
// not an error: the machine simply has no calibration yet.
func (s *ZoneStore) Load(filter *planner.ResonanceFilter) error {
	data, err := os.ReadFile(s.Path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "read zone store %s", s.Path)
	}
	var zf zoneFile
	if err := yaml.Unmarshal(data, &zf); err != nil {
		return errors.Wrapf(err, "parse zone store %s", s.Path)
	}
	for _, axis := range storeAxes {
		entries, ok := zf.Axes[axis.String()]
		if !ok {
			continue
		}
		zones := make([]planner.ResonanceZone, 0, len(entries))
		for _, e := range entries {
			zones = append(zones, planner.ResonanceZone{FrequencyHz: e.FrequencyHz, Severity: e.Severity})
		}
		filter.ReplaceZones(axis, zones)
	}
	return nil
}
