// ABOUTME: Builds the system prompt sent with every translation request
// ABOUTME: Output depends only on the catalog so identical catalogs give identical prompts

package translate

import (
	"strings"

	"github.com/2389/engine-bridge/internal/command"
)

const promptHeader = `You are an assistant that turns instructions for a 3D engine editor into exactly one command for the engine's command server.

Reply with a single JSON object and nothing else:
{"command": "<command name>", "parameters": {<parameter>: <value>, ...}}

Rules:
- Use only the commands and parameter names listed below.
- Omit parameters you do not need. Use {} when there are none.
- Locations are [x, y, z] in engine units, rotations are [pitch, yaw, roll] in degrees, scales are [x, y, z] multipliers.
- Give new actors a unique, descriptive name.
- Instructions may be in any language; command and parameter names stay in English.

# Available commands

`

var promptExamples = []struct {
	instruction string
	reply       string
}{
	{"list everything in the level", `{"command": "get_actors_in_level", "parameters": {}}`},
	{"crea una esfera roja en el centro", `{"command": "create_actor", "parameters": {"name": "RedSphere", "type": "SPHERE", "location": [0, 0, 0]}}`},
	{"move MyCube up by 200 and turn it 45 degrees", `{"command": "set_actor_transform", "parameters": {"name": "MyCube", "location": [0, 0, 200], "rotation": [0, 45, 0]}}`},
	{"make a character blueprint called BP_Hero", `{"command": "create_blueprint", "parameters": {"name": "BP_Hero", "parent_class": "Character"}}`},
}

// SystemPrompt renders the instructions, the catalog and worked examples.
func SystemPrompt(cat *command.Catalog) string {
	var b strings.Builder
	b.WriteString(promptHeader)
	b.WriteString(cat.Render())
	b.WriteString("\n# Examples\n\n")
	for _, ex := range promptExamples {
		b.WriteString("Instruction: " + ex.instruction + "\n")
		b.WriteString("Reply: " + ex.reply + "\n\n")
	}
	return b.String()
}
