// ABOUTME: Built-in command catalog for the engine's command server
// ABOUTME: Used when no tool documentation directory is configured or found

package command

func p(name, desc string) Param {
	return Param{Name: name, Description: desc}
}

var builtinSpecs = []Spec{
	// Actor management
	{Name: "get_actors_in_level", Category: "Actor Management", Description: "Get all actors in the current level",
		Example: `{"command": "get_actors_in_level", "parameters": {}}`},
	{Name: "find_actors_by_name", Category: "Actor Management", Description: "Find actors by name pattern (wildcards allowed)",
		Params:  []Param{p("name", "name pattern, e.g. Player*")},
		Example: `{"command": "find_actors_by_name", "parameters": {"name": "Player*"}}`},
	{Name: "get_actor_properties", Category: "Actor Management", Description: "Get the properties of one actor",
		Params: []Param{p("name", "actor name")}},
	{Name: "create_actor", Category: "Actor Management", Description: "Create an actor (CUBE, SPHERE, PLANE, CYLINDER, CONE, CAMERA, LIGHT, POINT_LIGHT, SPOT_LIGHT)",
		Params: []Param{
			p("name", "unique actor name"),
			p("type", "actor type"),
			p("location", "[x, y, z] in engine units"),
			p("rotation", "[pitch, yaw, roll] in degrees"),
			p("scale", "[x, y, z] multipliers"),
		},
		Example: `{"command": "create_actor", "parameters": {"name": "MyCube", "type": "CUBE", "location": [0, 0, 100]}}`},
	{Name: "delete_actor", Category: "Actor Management", Description: "Remove an actor from the level",
		Params: []Param{p("name", "actor name")}},
	{Name: "set_actor_transform", Category: "Actor Management", Description: "Modify actor location, rotation and scale",
		Params: []Param{
			p("name", "actor name"),
			p("location", "[x, y, z]"),
			p("rotation", "[pitch, yaw, roll]"),
			p("scale", "[x, y, z]"),
		},
		Example: `{"command": "set_actor_transform", "parameters": {"name": "MyCube", "location": [200, 0, 100]}}`},
	{Name: "get_selected_actors", Category: "Actor Management", Description: "Get the actors selected in the editor"},

	// Content discovery
	{Name: "get_project_assets", Category: "Content Discovery", Description: "List project assets",
		Params:  []Param{p("path_pattern", "content path, e.g. /Game/"), p("asset_type", "asset class filter")},
		Example: `{"command": "get_project_assets", "parameters": {"path_pattern": "/Game/", "asset_type": "Blueprint"}}`},
	{Name: "get_project_structure", Category: "Content Discovery", Description: "Get the project folder structure",
		Params: []Param{p("root_path", "root content path")}},
	{Name: "search_assets", Category: "Content Discovery", Description: "Search assets by name",
		Params: []Param{p("search_term", "text to search"), p("exact_match", "require an exact match")}},
	{Name: "get_asset_details", Category: "Content Discovery", Description: "Get details of one asset",
		Params: []Param{p("asset_path", "full asset path")}},

	// Blueprints
	{Name: "create_blueprint", Category: "Blueprint Management", Description: "Create a Blueprint class",
		Params:  []Param{p("name", "blueprint name"), p("parent_class", "base class, e.g. Actor")},
		Example: `{"command": "create_blueprint", "parameters": {"name": "BP_Character", "parent_class": "Character"}}`},
	{Name: "add_component_to_blueprint", Category: "Blueprint Management", Description: "Add a component to a Blueprint",
		Params: []Param{p("blueprint_name", ""), p("component_type", "e.g. StaticMesh"), p("component_name", "")}},
	{Name: "set_component_property", Category: "Blueprint Management", Description: "Set a property on a Blueprint component",
		Params: []Param{p("blueprint_name", ""), p("component_name", ""), p("property_name", ""), p("property_value", "")}},
	{Name: "compile_blueprint", Category: "Blueprint Management", Description: "Compile a Blueprint",
		Params: []Param{p("blueprint_name", "")}},
	{Name: "set_blueprint_property", Category: "Blueprint Management", Description: "Set a property on a Blueprint",
		Params: []Param{p("blueprint_name", ""), p("property_name", ""), p("property_value", "")}},
	{Name: "spawn_blueprint_actor", Category: "Blueprint Management", Description: "Spawn an instance of a Blueprint",
		Params: []Param{p("blueprint_name", ""), p("actor_name", ""), p("location", "[x, y, z]"), p("rotation", "[pitch, yaw, roll]"), p("scale", "[x, y, z]")}},

	// Blueprint graph
	{Name: "add_function_to_blueprint", Category: "Blueprint Nodes", Description: "Add a function to a Blueprint",
		Params: []Param{p("blueprint_name", ""), p("function_name", "")}},
	{Name: "add_variable_to_blueprint", Category: "Blueprint Nodes", Description: "Add a variable to a Blueprint",
		Params: []Param{p("blueprint_name", ""), p("variable_name", ""), p("variable_type", ""), p("default_value", "")}},
	{Name: "add_event_to_blueprint", Category: "Blueprint Nodes", Description: "Add an event to a Blueprint",
		Params: []Param{p("blueprint_name", ""), p("event_name", "e.g. BeginPlay")}},
	{Name: "add_node_to_graph", Category: "Blueprint Nodes", Description: "Add a node to a Blueprint graph",
		Params: []Param{p("blueprint_name", ""), p("graph_name", ""), p("node_type", ""), p("node_name", ""), p("node_position", "[x, y]")}},

	// Editor
	{Name: "get_editor_selection", Category: "Editor", Description: "Get the selected editor items"},
	{Name: "get_editor_viewport_info", Category: "Editor", Description: "Get editor viewport information"},
	{Name: "set_editor_viewport_camera", Category: "Editor", Description: "Move a viewport camera",
		Params: []Param{p("viewport_index", ""), p("location", "[x, y, z]"), p("rotation", "[pitch, yaw, roll]")}},
	{Name: "focus_viewport", Category: "Editor", Description: "Focus the viewport on an actor or location",
		Params: []Param{p("target", "actor name"), p("location", "[x, y, z]")}},
	{Name: "take_screenshot", Category: "Editor", Description: "Capture the screen",
		Params: []Param{p("filename", ""), p("width", ""), p("height", "")}},
	{Name: "get_plugin_actor_classes", Category: "Editor", Description: "List actor classes provided by a plugin",
		Params: []Param{p("plugin_name", "")}},

	// UMG
	{Name: "create_umg_widget_blueprint", Category: "UMG", Description: "Create a Widget Blueprint",
		Params: []Param{p("name", "")}},
	{Name: "add_text_block_to_widget", Category: "UMG", Description: "Add a text block to a widget",
		Params: []Param{p("widget_name", ""), p("text_block_name", ""), p("text", "")}},
	{Name: "add_button_to_widget", Category: "UMG", Description: "Add a button to a widget",
		Params: []Param{p("widget_name", ""), p("button_name", ""), p("text", "")}},
	{Name: "bind_widget_event", Category: "UMG", Description: "Bind a widget event to a function",
		Params: []Param{p("widget_name", ""), p("widget_element", ""), p("event_name", "e.g. OnClicked"), p("function_name", "")}},
}

// Builtin returns the built-in catalog.
func Builtin() *Catalog {
	return NewCatalog(builtinSpecs)
}
