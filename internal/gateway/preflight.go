package gateway

import (
	"context"

	"examprephub/internal/logger"
	"examprephub/internal/models"
)

// Readiness is the outcome of a successful pre-flight.
type Readiness struct {
	Status models.GatewayStatus `json:"status"`
	Models []string             `json:"models"`
	Model  string               `json:"model"`
	// ModelsFallback is true when the list is DefaultModels because the real one could not be fetched.
	ModelsFallback bool `json:"modelsFallback"`
}

// Preflight runs the sequential checks that precede every heavy call:
// status first, then the model list. Any status failure (timeouts included) is
// reported as connectivity so the learner is told to start the backend; a live
// backend whose runtime is down is reported as upstream_down. The model list
// never fails the pre-flight, it falls back to DefaultModels.
func Preflight(ctx context.Context, gw Gateway, preferred string, log *logger.Logger) (Readiness, error) {
	status, err := gw.Status(ctx)
	if err != nil {
		log.Warn("Gateway status check failed", "error", err)
		return Readiness{}, NewError(KindConnectivity, MsgConnectivity, err)
	}
	if !Connected(status) {
		log.Warn("Gateway reports model runtime down", "status", status.Status, "ollama", status.Ollama)
		return Readiness{Status: status}, NewError(KindUpstreamDown, MsgUpstreamDown, nil)
	}

	list, fallback := ModelsOrDefault(ctx, gw, log)
	return Readiness{
		Status:         status,
		Models:         list,
		Model:          PickModel(list, preferred),
		ModelsFallback: fallback,
	}, nil
}

// ModelsOrDefault returns the gateway's models, or DefaultModels on any failure.
func ModelsOrDefault(ctx context.Context, gw Gateway, log *logger.Logger) ([]string, bool) {
	list, err := gw.Models(ctx)
	if err != nil || len(list) == 0 {
		log.Warn("Falling back to default model list", "error", err)
		out := make([]string, len(DefaultModels))
		copy(out, DefaultModels)
		return out, true
	}
	return list, false
}

// PickModel returns preferred when it is available, otherwise the first listed model.
func PickModel(list []string, preferred string) string {
	if preferred != "" {
		for _, m := range list {
			if m == preferred {
				return m
			}
		}
	}
	if len(list) == 0 {
		return preferred
	}
	return list[0]
}
