package validator

// Per-stage JSON schemas, spec.md §4.F. Kept as Go string constants
// (rather than embedded files) since there are exactly four, fixed,
// and never operator-supplied.

const filterSchema = `{
	"type": "object",
	"required": ["decisions"],
	"properties": {
		"decisions": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["id", "keep"],
				"properties": {
					"id": {"type": "string"},
					"keep": {"type": "boolean"},
					"reason": {"type": "string"},
					"quality_score": {"type": "number", "minimum": 0, "maximum": 1}
				}
			}
		}
	}
}`

const categorizeSchema = `{
	"type": "object",
	"required": ["categorizations"],
	"properties": {
		"categorizations": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["id", "primary_topic", "sentiment", "urgency", "marketing_relevance"],
				"properties": {
					"id": {"type": "string"},
					"primary_topic": {"type": "string"},
					"secondary_topics": {"type": "array", "items": {"type": "string"}},
					"sentiment": {"enum": ["positive", "neutral", "negative", "mixed"]},
					"urgency": {"enum": ["high", "medium", "low"]},
					"marketing_relevance": {"enum": ["high", "medium", "low"]}
				}
			}
		}
	}
}`

const summarizeSchema = `{
	"type": "object",
	"required": ["summary"],
	"properties": {
		"summary": {
			"type": "object",
			"required": ["headline", "key_points"],
			"properties": {
				"headline": {"type": "string"},
				"key_points": {"type": "array", "items": {"type": "string"}},
				"notable_messages": {"type": "array", "items": {"type": "string"}},
				"themes": {"type": "array", "items": {"type": "string"}},
				"sentiment_overview": {"type": "string"},
				"action_items": {"type": "array", "items": {"type": "string"}}
			}
		}
	}
}`

const extractSchema = `{
	"type": "object",
	"required": ["extracts"],
	"properties": {
		"extracts": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["id", "type", "content"],
				"properties": {
					"id": {"type": "string"},
					"source_message_id": {"type": "string"},
					"type": {"type": "string"},
					"content": {"type": "string"},
					"context": {"type": "string"},
					"relevance_score": {"type": "number", "minimum": 0, "maximum": 1},
					"requires_permission": {"type": "boolean"}
				}
			}
		}
	}
}`
