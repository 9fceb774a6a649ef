package api

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/kiheon-jang/autoTrade-sub000/internal/domain/models"
	xhttp "github.com/kiheon-jang/autoTrade-sub000/pkg/http"
)

// Health reports process liveness plus the state of attached backends.
// A degraded backend flips the overall status but never fails the probe.
func (h *Handler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	active := 0
	for _, r := range h.orch.Runs() {
		if r.State == models.RunActive {
			active++
		}
	}

	view := HealthView{
		Status:     "ok",
		Mode:       h.orch.Portfolio().Mode.String(),
		Uptime:     time.Since(h.started).Round(time.Second).String(),
		ActiveRuns: active,
		Stream:     StreamHealthView{Attached: h.stream != nil},
		Timestamp:  time.Now(),
	}
	if h.stream != nil {
		view.Stream.Connected = h.stream.IsConnected()
		if !view.Stream.Connected {
			view.Status = "degraded"
		}
	}

	components := make(map[string]string)
	if h.trades != nil {
		components["trade_store"] = componentState(h.trades.Health(ctx))
	}
	if h.archive != nil {
		components["candle_archive"] = componentState(h.archive.Health(ctx))
	}
	for _, state := range components {
		if state != "ok" {
			view.Status = "degraded"
		}
	}
	if len(components) > 0 {
		view.Components = components
	}
	return xhttp.SuccessResponse(c, view)
}

func componentState(err error) string {
	if err != nil {
		return "error: " + err.Error()
	}
	return "ok"
}
