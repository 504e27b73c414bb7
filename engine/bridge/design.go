package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Aspects is a user request broken down per agent.
type Aspects struct {
	Tiled  []string `json:"tiled_aspects"`
	RPGJS  []string `json:"rpgjs_aspects"`
	Schema []string `json:"pydantic_aspects"`
}

// Layer is a recommended map layer.
type Layer struct {
	Name       string         `json:"name"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
}

// Property is a recommended custom property.
type Property struct {
	Name   string   `json:"name"`
	Type   string   `json:"type"`
	Values []string `json:"values,omitempty"`
}

// Event is a recommended event object type with its property schema.
type Event struct {
	Type       string            `json:"type"`
	Properties map[string]string `json:"properties"`
}

// Recommendations is the synthesized map structure advice.
type Recommendations struct {
	Layers     []Layer    `json:"layers"`
	Properties []Property `json:"properties"`
	Events     []Event    `json:"events"`
}

// DesignResult is the full output of a collaborative design round.
type DesignResult struct {
	Analysis           Aspects           `json:"analysis"`
	RPGJSInsights      map[string]string `json:"rpgjs_insights"`
	SchemaInsights     map[string]string `json:"pydantic_insights"`
	MapRecommendations Recommendations   `json:"map_recommendations"`
}

// AnalyzeRequest breaks a user request into per-agent aspects. Requests
// about AI NPCs get the full aspect set; anything else yields empty lists.
func AnalyzeRequest(userRequest string) Aspects {
	lower := strings.ToLower(userRequest)
	if !strings.Contains(lower, "ai") || !strings.Contains(lower, "npc") {
		return Aspects{}
	}
	return Aspects{
		Tiled:  []string{"environmental_factors", "event_triggers", "object_placement", "custom_properties"},
		RPGJS:  []string{"npc_behavior", "event_handling", "ai_integration"},
		Schema: []string{"npc_schema", "behavior_models", "environmental_rules"},
	}
}

// CollaborativeDesign coordinates both agents on a map design request:
// the RPGJS agent answers gameplay questions first, then the schema agent
// is consulted with those answers as context, and the combined output is
// distilled into layer, property, and event recommendations. A failed
// agent query is recorded inline under its query name; the design always
// carries every slot plus the base recommendations.
func (c *Client) CollaborativeDesign(ctx context.Context, userRequest string) *DesignResult {
	c.logger.Info("starting collaborative map design")
	aspects := AnalyzeRequest(userRequest)

	rpgjsCtx, _ := json.Marshal(map[string]any{
		"request_type":     "map_design",
		"aspects":          aspects.RPGJS,
		"original_request": userRequest,
	})

	rpgjsInsights := make(map[string]string)
	for _, name := range []string{"npc_behavior", "environmental_factors"} {
		resp, err := c.Dispatch(ctx, AgentRPGJS, RPGJSQuery(name, userRequest), "", string(rpgjsCtx))
		if err != nil {
			c.logger.Warn("rpgjs agent query failed", "query", name, "err", err)
			rpgjsInsights[name] = failureNote(AgentRPGJS, err)
			continue
		}
		rpgjsInsights[name] = resp.Response
	}

	schemaCtx, _ := json.Marshal(map[string]any{
		"request_type":       "npc_modeling",
		"aspects":            aspects.Schema,
		"rpgjs_requirements": rpgjsInsights,
		"original_request":   userRequest,
	})

	schemaInsights := make(map[string]string)
	for _, name := range []string{"npc_schema", "map_validation"} {
		resp, err := c.Dispatch(ctx, AgentSchema, SchemaQuery(name, userRequest), "", string(schemaCtx))
		if err != nil {
			c.logger.Warn("schema agent query failed", "query", name, "err", err)
			schemaInsights[name] = failureNote(AgentSchema, err)
			continue
		}
		schemaInsights[name] = resp.Response
	}

	combined := strings.ToLower(joinInsights(rpgjsInsights) + "\n" + joinInsights(schemaInsights))
	return &DesignResult{
		Analysis:       aspects,
		RPGJSInsights:  rpgjsInsights,
		SchemaInsights: schemaInsights,
		MapRecommendations: Recommendations{
			Layers:     deriveLayers(combined),
			Properties: deriveProperties(combined),
			Events:     deriveEvents(combined),
		},
	}
}

// failureNote is the inline record of an agent query that could not be
// answered, stored in place of the response text.
func failureNote(agent Agent, err error) string {
	return fmt.Sprintf("Error: failed to communicate with %s agent: %v", agent, err)
}

func joinInsights(m map[string]string) string {
	parts := make([]string, 0, len(m))
	for _, v := range m {
		parts = append(parts, v)
	}
	return strings.Join(parts, "\n")
}

// deriveLayers builds the recommended layer stack: an always-present base
// set, extended where the agents' answers call for more.
func deriveLayers(insights string) []Layer {
	layers := []Layer{
		{Name: "Ground", Type: "tilelayer", Properties: map[string]any{}},
		{Name: "Environment", Type: "tilelayer", Properties: map[string]any{"affects_npc_behavior": true}},
		{Name: "NPCs", Type: "objectgroup", Properties: map[string]any{"ai_controlled": true}},
		{Name: "Events", Type: "objectgroup", Properties: map[string]any{"event_type": "ai_trigger"}},
	}
	if strings.Contains(insights, "collision") {
		layers = append(layers, Layer{Name: "Collision", Type: "tilelayer", Properties: map[string]any{"collides": true}})
	}
	if strings.Contains(insights, "overlay") || strings.Contains(insights, "foreground") {
		layers = append(layers, Layer{Name: "Above", Type: "tilelayer", Properties: map[string]any{"rendered_above_npcs": true}})
	}
	return layers
}

// deriveProperties builds the custom-property recommendations the same way.
func deriveProperties(insights string) []Property {
	props := []Property{
		{Name: "environmental_factor", Type: "string", Values: []string{"peaceful", "hostile", "neutral"}},
		{Name: "npc_behavior_zone", Type: "string", Values: []string{"patrol", "guard", "wander", "interact"}},
		{Name: "interaction_type", Type: "string", Values: []string{"quest", "shop", "dialogue", "battle"}},
	}
	if strings.Contains(insights, "speed") {
		props = append(props, Property{Name: "movement_speed", Type: "number"})
	}
	if strings.Contains(insights, "schedule") || strings.Contains(insights, "time of day") {
		props = append(props, Property{Name: "active_hours", Type: "string"})
	}
	return props
}

// deriveEvents builds the event-type recommendations.
func deriveEvents(insights string) []Event {
	events := []Event{
		{Type: "npc_spawn", Properties: map[string]string{
			"ai_type": "string", "behavior_params": "json", "interaction_radius": "number",
		}},
		{Type: "environment_trigger", Properties: map[string]string{
			"effect": "string", "duration": "number", "radius": "number",
		}},
		{Type: "behavior_modifier", Properties: map[string]string{
			"modifier_type": "string", "strength": "number", "conditions": "json",
		}},
	}
	if strings.Contains(insights, "teleport") || strings.Contains(insights, "transition") {
		events = append(events, Event{Type: "map_transition", Properties: map[string]string{
			"target_map": "string", "target_x": "number", "target_y": "number",
		}})
	}
	if strings.Contains(insights, "quest") {
		events = append(events, Event{Type: "quest_trigger", Properties: map[string]string{
			"quest_id": "string", "once": "bool",
		}})
	}
	return events
}
