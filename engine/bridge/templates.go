package bridge

import "fmt"

// Query templates per agent. The user's request is appended so the agent
// sees both the structured ask and the original wording.
var rpgjsTemplates = map[string]string{
	"npc_behavior": "How should the map be structured to support AI-NPCs in RPGJS? Specifically:\n" +
		"- Required event layers\n" +
		"- NPC movement areas\n" +
		"- Interaction zones\n" +
		"- Event triggers\n" +
		"- Custom properties for AI behavior\n%s",
	"environmental_factors": "What map elements affect NPC behavior in RPGJS?\n" +
		"Include:\n" +
		"- Tile properties that affect NPCs\n" +
		"- Event system integration\n" +
		"- Collision handling\n" +
		"- Area triggers\n%s",
}

var schemaTemplates = map[string]string{
	"npc_schema": "Design a schema for AI-NPC properties in a Tiled map:\n" +
		"- Environmental influence factors\n" +
		"- Behavior parameters\n" +
		"- State management\n" +
		"- Event triggers\n%s",
	"map_validation": "Create validation rules for RPGJS map requirements:\n" +
		"- Layer structure\n" +
		"- Required properties\n" +
		"- Event format\n" +
		"- NPC configuration\n%s",
}

// RPGJSQuery renders a named RPGJS template. An unknown name falls back to
// the raw user input.
func RPGJSQuery(name, userInput string) string {
	return renderTemplate(rpgjsTemplates, name, userInput)
}

// SchemaQuery renders a named schema-agent template. An unknown name falls
// back to the raw user input.
func SchemaQuery(name, userInput string) string {
	return renderTemplate(schemaTemplates, name, userInput)
}

func renderTemplate(templates map[string]string, name, userInput string) string {
	tmpl, ok := templates[name]
	if !ok {
		return userInput
	}
	suffix := ""
	if userInput != "" {
		suffix = "User input: " + userInput
	}
	return fmt.Sprintf(tmpl, suffix)
}
