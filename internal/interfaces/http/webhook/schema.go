// Package webhook verifies and validates inbound platform webhooks before
// they reach the ingestion service.
package webhook

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/erp/catalogsync/internal/domain/catalog"
	"github.com/erp/catalogsync/internal/domain/integration"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const envelopeSchema = "commerce_envelope.json"

// Validator checks webhook bodies against the JSON schema of their platform
// family and entity kind
type Validator struct {
	schemas map[string]*jsonschema.Schema
}

// NewValidator compiles every embedded schema
func NewValidator() (*Validator, error) {
	entries, err := schemaFS.ReadDir("schemas")
	if err != nil {
		return nil, err
	}

	c := jsonschema.NewCompiler()
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		raw, err := schemaFS.ReadFile(path.Join("schemas", entry.Name()))
		if err != nil {
			return nil, err
		}
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("parse schema %s: %w", entry.Name(), err)
		}
		if err := c.AddResource(entry.Name(), doc); err != nil {
			return nil, fmt.Errorf("add schema %s: %w", entry.Name(), err)
		}
		names = append(names, entry.Name())
	}

	v := &Validator{schemas: make(map[string]*jsonschema.Schema, len(names))}
	for _, name := range names {
		sch, err := c.Compile(name)
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", name, err)
		}
		v.schemas[name] = sch
	}
	return v, nil
}

// Validate checks body for a delivery of kind on a platform of family pk.
// Deletes on commerce platforms only need the resource id.
func (v *Validator) Validate(pk integration.PlatformKind, kind catalog.EntityKind, topic integration.InboundTopic, body []byte) error {
	sch, ok := v.schemas[schemaName(pk, kind, topic)]
	if !ok {
		return fmt.Errorf("%w: no schema for %s %s", integration.ErrUnsupportedKind, pk, kind)
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: body is not JSON", integration.ErrInvalidPayload)
	}
	if err := sch.Validate(inst); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			return fmt.Errorf("%w: %s", integration.ErrInvalidPayload, flatten(verr))
		}
		return fmt.Errorf("%w: %v", integration.ErrInvalidPayload, err)
	}
	return nil
}

func schemaName(pk integration.PlatformKind, kind catalog.EntityKind, topic integration.InboundTopic) string {
	if pk == integration.PlatformKindNotes {
		return "notes_page.json"
	}
	if topic == integration.InboundDeleted {
		return envelopeSchema
	}
	return "commerce_" + strings.ToLower(string(kind)) + ".json"
}

var printer = message.NewPrinter(language.English)

// flatten reports the innermost causes on one line
func flatten(verr *jsonschema.ValidationError) string {
	if len(verr.Causes) == 0 {
		loc := "/" + strings.Join(verr.InstanceLocation, "/")
		return fmt.Sprintf("%s: %s", loc, verr.ErrorKind.LocalizedString(printer))
	}
	parts := make([]string, 0, len(verr.Causes))
	for _, cause := range verr.Causes {
		parts = append(parts, flatten(cause))
	}
	return strings.Join(parts, "; ")
}
