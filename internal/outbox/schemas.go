package outbox

import "example.com/verve/internal/events"

const trackCleanedSchema = `{
  "type": "object",
  "title": "TrackCleaned",
  "properties": {
    "activity_id": {"type": "string"},
    "user_id": {"type": "string"},
    "point_count": {"type": "integer"},
    "distance": {"type": ["number", "null"]},
    "duration_s": {"type": "number"},
    "cleaned_at": {"type": "string", "format": "date-time"}
  },
  "required": ["activity_id", "user_id", "point_count", "duration_s", "cleaned_at"],
  "additionalProperties": false
}`

const trackUploadedSchema = `{
  "type": "object",
  "title": "TrackUploaded",
  "properties": {
    "activity_id": {"type": "string"},
    "user_id": {"type": "string"},
    "uploaded_at": {"type": "string", "format": "date-time"}
  },
  "required": ["activity_id", "user_id"],
  "additionalProperties": false
}`

// SchemaCatalogEntry maps event type to schema definition.
type SchemaCatalogEntry struct {
	Schema string
}

var schemaCatalog = map[string]SchemaCatalogEntry{
	events.TrackCleanedType: {
		Schema: trackCleanedSchema,
	},
	events.TrackUploadedType: {
		Schema: trackUploadedSchema,
	},
}
