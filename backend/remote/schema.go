package remote

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"gomarks/backend"
)

//go:embed ack.schema.json
var ackSchemaJSON []byte

const ackSchemaURL = "https://gomarks.local/schemas/ack.schema.json"

var (
	ackSchemaOnce sync.Once
	ackSchema     *jsonschema.Schema
	ackSchemaErr  error
)

// AckValidationError is returned when an acknowledgement does not match the expected shape
type AckValidationError struct {
	Problems []string
}

func (e *AckValidationError) Error() string {
	return "invalid acknowledgement: " + strings.Join(e.Problems, "; ")
}

func compiledAckSchema() (*jsonschema.Schema, error) {
	ackSchemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(ackSchemaJSON))
		if err != nil {
			ackSchemaErr = fmt.Errorf("failed to parse ack schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(ackSchemaURL, doc); err != nil {
			ackSchemaErr = fmt.Errorf("failed to add ack schema resource: %w", err)
			return
		}
		ackSchema, ackSchemaErr = c.Compile(ackSchemaURL)
	})
	return ackSchema, ackSchemaErr
}

// DecodeAck validates raw against the acknowledgement schema and decodes it.
// Nothing in an ack is trusted until it passes.
func DecodeAck(raw []byte) (*backend.Ack, error) {
	schema, err := compiledAckSchema()
	if err != nil {
		return nil, err
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, &AckValidationError{Problems: []string{"body is not JSON: " + err.Error()}}
	}
	if err := schema.Validate(doc); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			var problems []string
			collectProblems(verr, &problems)
			return nil, &AckValidationError{Problems: problems}
		}
		return nil, &AckValidationError{Problems: []string{err.Error()}}
	}

	var ack backend.Ack
	if err := json.Unmarshal(raw, &ack); err != nil {
		return nil, &AckValidationError{Problems: []string{err.Error()}}
	}
	return &ack, nil
}

// collectProblems flattens the leaf causes of a validation error
func collectProblems(err *jsonschema.ValidationError, out *[]string) {
	if len(err.Causes) == 0 {
		location := "/" + strings.Join(err.InstanceLocation, "/")
		keyword := "schema"
		if err.ErrorKind != nil {
			if path := err.ErrorKind.KeywordPath(); len(path) > 0 {
				keyword = strings.Join(path, ".")
			}
		}
		*out = append(*out, fmt.Sprintf("at %s: %s validation failed", location, keyword))
		return
	}
	for _, cause := range err.Causes {
		collectProblems(cause, out)
	}
}
