package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"sourcefetch/internal/pipeline"
)

// CollectorPool bounds one collector family. Concurrency is the hard number of
// in-flight jobs per process; RatePerSecond and Burst throttle upstream calls.
type CollectorPool struct {
	Concurrency   int           `yaml:"concurrency"`
	RatePerSecond float64       `yaml:"rate_per_second"`
	Burst         int           `yaml:"burst"`
	Timeout       time.Duration `yaml:"timeout"`
}

type CollectorsFile struct {
	Collectors map[pipeline.CollectorType]CollectorPool `yaml:"collectors"`
}

func DefaultCollectorPools() map[pipeline.CollectorType]CollectorPool {
	return map[pipeline.CollectorType]CollectorPool{
		pipeline.CollectorAPI:     {Concurrency: 4, RatePerSecond: 5, Burst: 5, Timeout: 30 * time.Second},
		pipeline.CollectorRSS:     {Concurrency: 8, RatePerSecond: 10, Burst: 10, Timeout: 30 * time.Second},
		pipeline.CollectorScraper: {Concurrency: 2, RatePerSecond: 1, Burst: 2, Timeout: 45 * time.Second},
	}
}

// LoadCollectorPools reads per-collector pool settings from a YAML file.
// A missing file yields the defaults; entries present in the file override them.
func LoadCollectorPools(path string) (map[pipeline.CollectorType]CollectorPool, error) {
	pools := DefaultCollectorPools()

	b, err := os.ReadFile(path) // #nosec G304 -- path comes from operator config
	if errors.Is(err, os.ErrNotExist) {
		return pools, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read collectors file: %w", err)
	}

	var f CollectorsFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse collectors file: %w", err)
	}

	for ct, p := range f.Collectors {
		if _, err := pipeline.ParseCollectorType(string(ct)); err != nil {
			return nil, fmt.Errorf("%w: collectors file: %v", ErrInvalid, err)
		}
		def := pools[ct]
		if p.Concurrency <= 0 {
			p.Concurrency = def.Concurrency
		}
		if p.RatePerSecond <= 0 {
			p.RatePerSecond = def.RatePerSecond
		}
		if p.Burst <= 0 {
			p.Burst = def.Burst
		}
		if p.Timeout <= 0 {
			p.Timeout = def.Timeout
		}
		pools[ct] = p
	}
	return pools, nil
}
