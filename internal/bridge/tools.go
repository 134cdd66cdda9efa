package bridge

import "github.com/maukemana/lumalens/internal/ports"

// toolSchemas is the stable set spec §4.9 exposes to the LLM: one general
// searchImages tool plus convenience wrappers that pin a single criteria
// field, making single-slot queries cheap for the model to express.
func toolSchemas() []ports.ToolSchema {
	searchParams := func(only ...string) map[string]any {
		all := map[string]any{
			"keywords":           strArray("Positive keywords to match"),
			"negativeKeywords":   strArray("Keywords that must NOT appear"),
			"peopleType":         strParam("Type of people in the image, e.g. 'kids', 'staff'"),
			"activity":           strParam("Activity shown, e.g. 'swimming', 'archery'"),
			"mood":               strParam("Mood or emotion, e.g. 'happy', 'excited'"),
			"location":           strParam("Location or setting, e.g. 'outdoor', 'cabin'"),
			"albumTerm":          strParam("Album name or path fragment"),
			"requireAllKeywords": map[string]any{"type": "boolean", "description": "Require every keyword to match"},
			"maxResults":         map[string]any{"type": "integer", "description": "Maximum results to return"},
		}
		if len(only) == 0 {
			return all
		}
		subset := make(map[string]any, len(only))
		for _, k := range only {
			subset[k] = all[k]
		}
		return subset
	}

	return []ports.ToolSchema{
		{
			Name:        "searchImages",
			Description: "Search images by any combination of keywords and semantic slots.",
			Parameters:  jsonSchema(searchParams()),
		},
		{
			Name:        "searchByKeywords",
			Description: "Search images matching a list of keywords.",
			Parameters:  jsonSchema(searchParams("keywords", "negativeKeywords", "requireAllKeywords")),
		},
		{
			Name:        "searchByPeople",
			Description: "Search images by the type of people shown.",
			Parameters:  jsonSchema(searchParams("peopleType")),
		},
		{
			Name:        "searchByActivity",
			Description: "Search images by activity.",
			Parameters:  jsonSchema(searchParams("activity")),
		},
		{
			Name:        "searchByMood",
			Description: "Search images by mood.",
			Parameters:  jsonSchema(searchParams("mood")),
		},
		{
			Name:        "searchByLocation",
			Description: "Search images by location or setting.",
			Parameters:  jsonSchema(searchParams("location")),
		},
		{
			Name:        "searchByAlbum",
			Description: "Search images within an album by name or path fragment.",
			Parameters:  jsonSchema(searchParams("albumTerm")),
		},
		{
			Name:        "filterByCount",
			Description: "Re-run the previous search criteria limited to maxResults.",
			Parameters:  jsonSchema(searchParams("maxResults")),
		},
		{
			Name:        "getAllImages",
			Description: "Return all images, optionally capped at maxResults.",
			Parameters:  jsonSchema(searchParams("maxResults")),
		},
	}
}

func strParam(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

func strArray(desc string) map[string]any {
	return map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": desc}
}

func jsonSchema(properties map[string]any) map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": properties,
	}
}
