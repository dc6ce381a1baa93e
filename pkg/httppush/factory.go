package httppush

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/illmade-knight/go-connectivity/pkg/connection"
	"github.com/illmade-knight/go-connectivity/pkg/publisher"
)

// NewFlowFactory returns a publisher.FlowFactory that builds an
// HttpPushFlow for every Target, sharing one *http.Client across them
// the way a single BaseClient's transport shares one connection pool.
func NewFlowFactory(cfg FlowConfig, client *http.Client, logger zerolog.Logger) publisher.FlowFactory {
	return func(target connection.Target) (publisher.Flow, error) {
		return NewHttpPushFlow(target, cfg, client, logger), nil
	}
}
