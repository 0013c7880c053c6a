package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/autarch-dev/autarch/internal/config"
	"github.com/autarch-dev/autarch/internal/runtime"
	"github.com/autarch-dev/autarch/internal/sse"
	"github.com/autarch-dev/autarch/pkg/types"
)

// defaultShockPercent is applied when a market-control request omits
// the percent.
const defaultShockPercent = 10.0

type marketControlRequest struct {
	Percent float64 `json:"percent"`
}

func (s *Server) bindShock(c *gin.Context) (float64, bool) {
	var req marketControlRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "body must be JSON with a numeric percent"})
			return 0, false
		}
	}
	if req.Percent < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "percent must not be negative"})
		return 0, false
	}
	if req.Percent == 0 {
		req.Percent = defaultShockPercent
	}
	return req.Percent, true
}

func (s *Server) marketControlResponse(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "clients": s.hub.ClientCount()})
}

func (s *Server) handleMarketDip(c *gin.Context) {
	percent, ok := s.bindShock(c)
	if !ok {
		return
	}
	s.runtime.InjectDip(percent)
	s.marketControlResponse(c)
}

func (s *Server) handleMarketRally(c *gin.Context) {
	percent, ok := s.bindShock(c)
	if !ok {
		return
	}
	s.runtime.InjectRally(percent)
	s.marketControlResponse(c)
}

func (s *Server) handleMarketReset(c *gin.Context) {
	s.runtime.ResetMarket()
	s.marketControlResponse(c)
}

func (s *Server) handleGetAgents(c *gin.Context) {
	c.JSON(http.StatusOK, s.runtime.GetStates())
}

func (s *Server) handleReloadRules(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "agent id must be numeric"})
		return
	}

	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reading request body failed"})
		return
	}
	fileName := c.Query("file")
	cfg, err := config.ParseAgentConfig(body)
	if err != nil {
		s.runtime.NotifyReloadFailed(id, fileName, err.Error())
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.runtime.ReloadRules(id, *cfg, fileName); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "agentId": id})
}

func (s *Server) handleHealth(c *gin.Context) {
	out := gin.H{
		"status":  "ok",
		"clients": s.hub.ClientCount(),
		"agents":  len(s.runtime.GetStates()),
	}
	if s.rpcMode != nil {
		out["rpcMode"] = s.rpcMode()
	}
	c.JSON(http.StatusOK, out)
}

// ForwardRuntimeEvents subscribes the hub to the runtime, translating
// internal events to the wire event names and payload shapes.
func ForwardRuntimeEvents(rt *runtime.Runtime, hub *sse.Hub) {
	rt.On(runtime.EventStateUpdate, func(payload any) {
		states, ok := payload.([]*types.AgentState)
		if !ok {
			return
		}
		hub.Broadcast("stateUpdate", gin.H{
			"type":      "agentState",
			"timestamp": time.Now().UnixMilli(),
			"agents":    states,
		})
	})

	rt.On(runtime.EventAgentLifecycle, func(payload any) {
		p, ok := payload.(runtime.LifecyclePayload)
		if !ok {
			return
		}
		out := gin.H{
			"type":      "lifecycle",
			"agentId":   p.AgentID,
			"event":     p.Event,
			"timestamp": stampIfZero(p.Timestamp),
		}
		if p.Message != "" {
			out["message"] = p.Message
		}
		hub.Broadcast("systemEvent", out)
	})

	rt.On(runtime.EventRulesReloaded, func(payload any) {
		p, ok := payload.(runtime.RulesReloadedPayload)
		if !ok {
			return
		}
		out := gin.H{
			"type":      "hotReload",
			"success":   p.Success,
			"timestamp": stampIfZero(p.Timestamp),
		}
		if p.AgentID != 0 {
			out["agentId"] = p.AgentID
		}
		if p.FileName != "" {
			out["fileName"] = p.FileName
		}
		if p.Error != "" {
			out["error"] = p.Error
		}
		hub.Broadcast("systemEvent", out)
	})

	rt.On(runtime.EventMarketUpdate, func(payload any) {
		data, ok := payload.(types.MarketData)
		if !ok {
			return
		}
		hub.Broadcast("marketUpdate", gin.H{
			"type":       "market",
			"marketData": data,
			"timestamp":  time.Now().UnixMilli(),
		})
	})

	rt.On(runtime.EventSimulationMode, func(payload any) {
		p, ok := payload.(runtime.SimulationModePayload)
		if !ok {
			return
		}
		hub.Broadcast("modeChange", gin.H{
			"type":      "mode",
			"active":    p.Active,
			"reason":    p.Reason,
			"timestamp": stampIfZero(p.Timestamp),
		})
	})
}

func stampIfZero(ts int64) int64 {
	if ts == 0 {
		return time.Now().UnixMilli()
	}
	return ts
}
