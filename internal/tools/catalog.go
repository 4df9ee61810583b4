// Package tools defines the fixed set of callable operations advertised to
// the cloud model and the dispatch table that executes them.
package tools

// Declaration describes one callable operation with its typed parameters.
type Declaration struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Parameters  *Schema `json:"parameters,omitempty"`
}

// Schema is a flat JSON-schema-style parameter description. Nested objects
// are deliberately not supported; the catalog only needs strings, enums,
// numbers and booleans.
type Schema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties,omitempty"`
	Required   []string            `json:"required,omitempty"`
}

// Property describes a single parameter.
type Property struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

// Tool names, kept in one place so handlers and the catalog cannot drift.
const (
	NameGetSystemState          = "get_system_state"
	NameControlScroll           = "control_scroll"
	NameNavigateToPosition      = "navigate_to_position"
	NameAnalyzeViewport         = "analyze_viewport"
	NamePerformElementAction    = "perform_element_action"
	NameManageUIState           = "manage_ui_state"
	NameTriggerNativeGeneration = "trigger_native_generation"
	NamePerformItemAction       = "perform_item_action"
	NameApplySettingsGlobally   = "apply_settings_globally"
	NameStartProcessingQueue    = "start_processing_queue"
	NameAnalyzeImages           = "analyze_images"
	NameManageQueueActions      = "manage_queue_actions"
	NameManageCompositeSettings = "manage_composite_settings"
	NameRequestVisualContext    = "request_visual_context"
	NameReadDocumentation       = "read_documentation"
	NamePlaybackControl         = "playback_control"
	NameCloseAssistant          = "close_assistant"
)

// Catalog returns the full, versioned tool surface advertised at session
// start. The set is static: handlers are registered for exactly these names.
func Catalog() []Declaration {
	str := func(desc string) Property { return Property{Type: "string", Description: desc} }
	enum := func(desc string, values ...string) Property {
		return Property{Type: "string", Description: desc, Enum: values}
	}
	obj := func(required []string, props map[string]Property) *Schema {
		return &Schema{Type: "object", Properties: props, Required: required}
	}

	return []Declaration{
		{
			Name:        NameGetSystemState,
			Description: "Return a full textual snapshot of the application state.",
		},
		{
			Name:        NameControlScroll,
			Description: "Scroll the page once by a fraction of the viewport height. Never repeats on its own.",
			Parameters: obj([]string{"direction"}, map[string]Property{
				"direction": enum("Scroll direction.", "UP", "DOWN"),
				"intensity": enum("Step size: SMALL=25%, NORMAL=50%, LARGE=90% of the viewport. Defaults to NORMAL.", "SMALL", "NORMAL", "LARGE"),
			}),
		},
		{
			Name:        NameNavigateToPosition,
			Description: "Jump to an absolute position: a percentage ('40%'), a pixel offset ('1200px'), 'top', 'bottom', a CSS selector, or an item reference like 'image 3'.",
			Parameters: obj([]string{"position"}, map[string]Property{
				"position": str("Target position expression."),
			}),
		},
		{
			Name:        NameAnalyzeViewport,
			Description: "Re-scan the visible interactive elements and return a brief summary.",
		},
		{
			Name:        NamePerformElementAction,
			Description: "Interact with a visible element resolved by viewport index or CSS selector.",
			Parameters: obj([]string{"action"}, map[string]Property{
				"action":        enum("Interaction to perform.", "CLICK", "FOCUS", "UPDATE_VALUE"),
				"element_index": Property{Type: "number", Description: "0-based index into the last viewport analysis."},
				"selector":      str("CSS selector, used when no index is given."),
				"value":         str("New value for UPDATE_VALUE."),
			}),
		},
		{
			Name:        NameManageUIState,
			Description: "Open or close application surfaces or change the interface language. Language values must be lower-case ISO codes such as 'en' or 'hu', never full language names.",
			Parameters: obj([]string{"action"}, map[string]Property{
				"action": enum("UI state change.",
					"OPEN_COMPOSITE", "CLOSE_COMPOSITE",
					"OPEN_OCR", "CLOSE_OCR",
					"OPEN_GUIDE", "CLOSE_GUIDE",
					"OPEN_LANGUAGE_MENU", "CLOSE_LANGUAGE_MENU",
					"CHANGE_LANG", "CLOSE_ALL"),
				"value": str("Lower-case ISO language code for CHANGE_LANG."),
			}),
		},
		{
			Name:        NameTriggerNativeGeneration,
			Description: "Fire the primary image generation action. When the user supplied a free-form idea, expand it into a richly descriptive prompt before calling.",
			Parameters: obj(nil, map[string]Property{
				"prompt":       str("Fully expanded generation prompt."),
				"aspect_ratio": enum("Output aspect ratio.", "1:1", "3:4", "4:3", "9:16", "16:9"),
				"resolution":   enum("Output resolution preset.", "1K", "2K", "4K"),
				"format":       enum("Output file format.", "png", "jpeg", "webp"),
			}),
		},
		{
			Name:        NamePerformItemAction,
			Description: "Act on a single image of the queue, addressed by 1-based index.",
			Parameters: obj([]string{"action", "targetIndex"}, map[string]Property{
				"action":      enum("Per-item action.", "REMOVE", "EDIT", "DOWNLOAD", "REMASTER", "CREATE_VARIANTS", "SHARE"),
				"targetIndex": str("1-based queue index of the target image."),
			}),
		},
		{
			Name:        NameApplySettingsGlobally,
			Description: "Apply the current generation settings to every queued image.",
		},
		{
			Name:        NameStartProcessingQueue,
			Description: "Start processing the image queue.",
		},
		{
			Name:        NameAnalyzeImages,
			Description: "Run the host's image analysis over the queue.",
		},
		{
			Name:        NameManageQueueActions,
			Description: "Bulk queue operation.",
			Parameters: obj([]string{"action"}, map[string]Property{
				"action": enum("Queue-wide action.", "CLEAR_ALL", "DOWNLOAD_ZIP"),
			}),
		},
		{
			Name:        NameManageCompositeSettings,
			Description: "Patch the composite modal's settings. Only valid while the composite modal is open.",
			Parameters: obj(nil, map[string]Property{
				"prompt":       str("Composite prompt."),
				"caption":      str("Caption text."),
				"show_caption": Property{Type: "boolean", Description: "Whether the caption is rendered."},
				"aspect_ratio": enum("Composite aspect ratio.", "1:1", "3:4", "4:3", "9:16", "16:9"),
				"resolution":   enum("Composite resolution preset.", "1K", "2K", "4K"),
				"format":       enum("Composite output format.", "png", "jpeg", "webp"),
			}),
		},
		{
			Name:        NameRequestVisualContext,
			Description: "Stream downsized frames of the most recent queued images into the session so you can see their pixels. Returns immediately; frames follow.",
		},
		{
			Name:        NameReadDocumentation,
			Description: "Return the full localized help text. Opens the documentation view if it is not already visible.",
		},
		{
			Name:        NamePlaybackControl,
			Description: "Control your own speech output. STOP discards everything queued and silences immediately; use it when the user asks you to be quiet.",
			Parameters: obj([]string{"action"}, map[string]Property{
				"action": enum("Playback action.", "PAUSE", "RESUME", "STOP"),
			}),
		},
		{
			Name:        NameCloseAssistant,
			Description: "End the voice session entirely. For an ambiguous 'stop' ask the user to confirm first; a plain 'be quiet' means playback_control STOP, not this.",
			Parameters: obj(nil, map[string]Property{
				"confirmed": Property{Type: "boolean", Description: "True only after the user explicitly confirmed shutdown."},
			}),
		},
	}
}
