package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/spigell/job-radar/internal/jobs"

	"github.com/elastic/go-elasticsearch/v8"
)

type ElasticConfig struct {
	Addresses []string `mapstructure:"addresses" validate:"min=1,dive,url"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	Index     string   `mapstructure:"index"`
}

// ElasticSink indexes every tuple by posting id, so a rescored posting
// replaces its earlier document.
type ElasticSink struct {
	client *elasticsearch.Client
	index  string
}

func NewElasticSink(cfg ElasticConfig) (*ElasticSink, error) {
	esCfg := elasticsearch.Config{
		Addresses: cfg.Addresses,
	}

	if cfg.Username != "" {
		esCfg.Username = cfg.Username
		esCfg.Password = cfg.Password
	}

	es, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}

	index := cfg.Index
	if index == "" {
		index = "job-radar"
	}
	return &ElasticSink{client: es, index: index}, nil
}

func (s *ElasticSink) Name() string { return "elasticsearch" }

func (s *ElasticSink) Deliver(ctx context.Context, d jobs.Dispatch) error {
	doc, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal dispatch: %w", err)
	}

	res, err := s.client.Index(
		s.index,
		bytes.NewReader(doc),
		s.client.Index.WithContext(ctx),
		s.client.Index.WithDocumentID(d.Posting.ID),
	)
	if err != nil {
		return fmt.Errorf("index %s: %w", d.Posting.ID, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("index %s: %s", d.Posting.ID, res.Status())
	}
	return nil
}
