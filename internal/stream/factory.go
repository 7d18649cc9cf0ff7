package stream

import (
	"crypto/tls"
	"fmt"
	"log/slog"

	"pvescope/internal/config"
)

const defaultReportStreamMethod = "/pvescope.reports.v1.ReportService/StreamReports"

// NewSinkFromConfig builds the sink selected by the push section, or nil when
// pushing is off.
func NewSinkFromConfig(cfg config.PushConfig, tlsCfg *tls.Config, logger *slog.Logger) (Sink, error) {
	switch cfg.Mode {
	case config.PushModeOff:
		return nil, nil
	case config.PushModeGRPC:
		method := cfg.GRPCMethod
		if method == "" {
			method = defaultReportStreamMethod
		}
		return NewGRPCClient(cfg.GRPCAddr, tlsCfg, cfg.Token, method, logger), nil
	case config.PushModeWebSocket:
		return NewWebSocketClient(cfg.WSURL, cfg.Token, tlsCfg, cfg.Timeout, 0, logger), nil
	default:
		return nil, fmt.Errorf("unsupported push mode %q", cfg.Mode)
	}
}
