package policy

import (
	"encoding/json"
	"fmt"

	id "keystone/pkg/domain"
)

// routesWire is the JSON form of a routing table, market-major so operators
// group a market's checkpoint overrides in one place:
//
//	{
//	  "global":  {"request": "elevation/request-v2"},
//	  "markets": {"angola": {"approval": "elevation/angola/approval"}}
//	}
type routesWire struct {
	Global  map[string]string            `json:"global"`
	Markets map[string]map[string]string `json:"markets"`
}

// ParseRoutes builds a routing table from its JSON configuration form. An
// empty input yields the zero table, which resolves every checkpoint to the
// conventional elevation/<checkpoint> identifier. Unknown checkpoint names
// are rejected so a typo cannot silently unroute a checkpoint.
func ParseRoutes(raw string) (Routes, error) {
	if raw == "" {
		return Routes{}, nil
	}

	var wire routesWire
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return Routes{}, fmt.Errorf("parse policy routes: %w", err)
	}

	var routes Routes
	if len(wire.Global) > 0 {
		routes.Global = make(map[Checkpoint]string, len(wire.Global))
		for name, policyID := range wire.Global {
			cp, err := parseCheckpoint(name)
			if err != nil {
				return Routes{}, err
			}
			routes.Global[cp] = policyID
		}
	}
	if len(wire.Markets) > 0 {
		routes.ByMarket = make(map[Checkpoint]map[id.Market]string)
		for key, byCheckpoint := range wire.Markets {
			market, err := id.ParseMarket(key)
			if err != nil {
				return Routes{}, fmt.Errorf("policy routes: %w", err)
			}
			for name, policyID := range byCheckpoint {
				cp, err := parseCheckpoint(name)
				if err != nil {
					return Routes{}, fmt.Errorf("market %s: %w", market, err)
				}
				if routes.ByMarket[cp] == nil {
					routes.ByMarket[cp] = make(map[id.Market]string)
				}
				routes.ByMarket[cp][market] = policyID
			}
		}
	}
	return routes, nil
}

func parseCheckpoint(name string) (Checkpoint, error) {
	switch cp := Checkpoint(name); cp {
	case CheckpointRequest, CheckpointScope, CheckpointApproval, CheckpointUsage:
		return cp, nil
	default:
		return "", fmt.Errorf("unknown checkpoint %q", name)
	}
}
