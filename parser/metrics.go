package parser

import "github.com/prometheus/client_golang/prometheus"

// Collectors exposes the parse cache counters. They read Stats at scrape
// time, so a Parser reused across conversions reports its hit rate.
func (p *Parser) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		prometheus.NewCounterFunc(
			prometheus.CounterOpts{
				Name:        "parse_cache_lookups_total",
				Help:        "Parse cache lookups by result.",
				ConstLabels: prometheus.Labels{"result": "hit"},
			},
			func() float64 { return float64(p.hits.Load()) },
		),
		prometheus.NewCounterFunc(
			prometheus.CounterOpts{
				Name:        "parse_cache_lookups_total",
				Help:        "Parse cache lookups by result.",
				ConstLabels: prometheus.Labels{"result": "miss"},
			},
			func() float64 { return float64(p.misses.Load()) },
		),
	}
}

// Register adds the parse cache counters to reg.
func (p *Parser) Register(reg prometheus.Registerer) error {
	for _, c := range p.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
