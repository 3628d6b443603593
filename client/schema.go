package client

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/xeipuuv/gojsonschema"
)

// ErrMalformedPayload is returned when a response does not have the expected shape.
var ErrMalformedPayload = errors.New("malformed payload")

// courseSchema is the part of GET courses/{id}/ the course view relies on.
const courseSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["name", "modules"],
  "properties": {
    "id": {"type": "integer"},
    "name": {"type": "string"},
    "modules": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "name": {"type": "string"},
          "question": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["id"],
              "properties": {
                "id": {"type": "integer"},
                "title": {"type": "string"},
                "type": {"type": "string"}
              }
            }
          }
        }
      }
    },
    "solved": {"type": ["array", "null"], "items": {"type": "integer"}}
  }
}`

var coursePayloadSchema = mustSchema(courseSchema)

func mustSchema(s string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(s))
	if err != nil {
		panic(err)
	}
	return schema
}

// validatePayload checks raw against schema; violations are joined into one ErrMalformedPayload.
func validatePayload(schema *gojsonschema.Schema, raw []byte) error {
	res, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return errors.Wrap(ErrMalformedPayload, err.Error())
	}
	if res.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		msgs = append(msgs, e.String())
	}
	return errors.Wrap(ErrMalformedPayload, strings.Join(msgs, "; "))
}
