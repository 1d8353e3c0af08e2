package config

import (
	"fmt"

	"sourcefetch/internal/pipeline"
)

const (
	// TopicOrchestrate carries OrchestratorJobs from the priority calculator and manual triggers.
	TopicOrchestrate = "fetch.orchestrate"

	// TopicCollectAPI, TopicCollectRSS and TopicCollectScraper carry CollectorJobs, one topic per
	// collector family so a slow platform cannot starve the others.
	TopicCollectAPI     = "fetch.collect.api"
	TopicCollectRSS     = "fetch.collect.rss"
	TopicCollectScraper = "fetch.collect.scraper"

	// TopicResult carries ResultJobs to the ingestor.
	TopicResult = "fetch.result"
)

const (
	ChannelOrchestrator = "orchestrator"
	ChannelCollector    = "collector"
	ChannelIngestor     = "ingestor"
)

// CollectTopic maps a collector type to its queue.
func CollectTopic(ct pipeline.CollectorType) (string, error) {
	switch ct {
	case pipeline.CollectorAPI:
		return TopicCollectAPI, nil
	case pipeline.CollectorRSS:
		return TopicCollectRSS, nil
	case pipeline.CollectorScraper:
		return TopicCollectScraper, nil
	default:
		return "", fmt.Errorf("%w: %q", pipeline.ErrUnknownCollectorType, ct)
	}
}

// Topics lists every topic the pipeline uses.
func Topics() []string {
	return []string{TopicOrchestrate, TopicCollectAPI, TopicCollectRSS, TopicCollectScraper, TopicResult}
}
