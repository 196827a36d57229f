package openapi

import (
	"github.com/getkin/kin-openapi/openapi3"
)

// Generate builds the OpenAPI 3.1 document for the Keywarden admin API.
// The document is assembled programmatically so it can never drift from the
// routes the server actually registers.
func Generate() *openapi3.T {
	doc := &openapi3.T{
		OpenAPI: "3.1.0",
		Info: &openapi3.Info{
			Title:       "Keywarden API",
			Description: "API key issuance, validation, and lifecycle management.",
			Version:     "1.0.0",
		},
	}

	components := openapi3.NewComponents()
	components.Schemas = openapi3.Schemas{}
	components.SecuritySchemes = openapi3.SecuritySchemes{}
	doc.Components = &components

	doc.Components.SecuritySchemes["apiKey"] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{
			Type: "apiKey",
			In:   "header",
			Name: "X-API-Key",
		},
	}
	doc.Components.SecuritySchemes["bearerAuth"] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{
			Type:   "http",
			Scheme: "bearer",
		},
	}
	doc.Security = openapi3.SecurityRequirements{
		{"bearerAuth": {}},
		{"apiKey": {}},
	}

	doc.Components.Schemas["ErrorResponse"] = errorResponseSchema()
	doc.Components.Schemas["KeyInfo"] = keyInfoSchema()
	doc.Components.Schemas["CreatedKey"] = createdKeySchema()

	doc.Paths = openapi3.NewPaths()
	addKeyPaths(doc)
	addAuthPaths(doc)
	return doc
}

func addKeyPaths(doc *openapi3.T) {
	keyInfoRef := openapi3.NewSchemaRef("#/components/schemas/KeyInfo", nil)
	createdRef := openapi3.NewSchemaRef("#/components/schemas/CreatedKey", nil)

	listSchema := &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"keys": &openapi3.SchemaRef{
					Value: &openapi3.Schema{
						Type:  &openapi3.Types{"array"},
						Items: keyInfoRef,
					},
				},
			},
		},
	}

	includeInactive := openapi3.NewQueryParameter("include_inactive").
		WithDescription("Include revoked and deactivated keys in the listing.").
		WithSchema(openapi3.NewBoolSchema())

	doc.Paths.Set("/api/v1/keys", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"keys"},
			Summary:     "List API keys",
			OperationID: "list_keys",
			Parameters: openapi3.Parameters{
				&openapi3.ParameterRef{Value: includeInactive},
			},
			Responses: newResponses("200", "Key metadata, newest first", listSchema),
		},
		Post: &openapi3.Operation{
			Tags:        []string{"keys"},
			Summary:     "Create an API key",
			Description: "Issues a new key. The plaintext secret appears in this response only and cannot be retrieved again.",
			OperationID: "create_key",
			RequestBody: &openapi3.RequestBodyRef{
				Value: openapi3.NewRequestBody().WithJSONSchema(createKeyRequestSchema()),
			},
			Responses: newResponses("201", "The created key, including its one-time secret", createdRef),
		},
	})

	keyIDParam := openapi3.NewPathParameter("keyID").
		WithDescription("Public key identifier.").
		WithSchema(openapi3.NewStringSchema())

	doc.Paths.Set("/api/v1/keys/{keyID}", &openapi3.PathItem{
		Parameters: openapi3.Parameters{&openapi3.ParameterRef{Value: keyIDParam}},
		Get: &openapi3.Operation{
			Tags:        []string{"keys"},
			Summary:     "Get API key metadata",
			OperationID: "get_key",
			Responses:   newResponses("200", "Key metadata", keyInfoRef),
		},
		Delete: &openapi3.Operation{
			Tags:        []string{"keys"},
			Summary:     "Revoke an API key",
			Description: "Deactivates the key. Revocation is permanent and idempotent.",
			OperationID: "revoke_key",
			Responses: newResponses("200", "Revocation confirmation", &openapi3.SchemaRef{
				Value: &openapi3.Schema{
					Type: &openapi3.Types{"object"},
					Properties: openapi3.Schemas{
						"key_id":  &openapi3.SchemaRef{Value: openapi3.NewStringSchema()},
						"revoked": &openapi3.SchemaRef{Value: openapi3.NewBoolSchema()},
					},
				},
			}),
		},
	})

	doc.Paths.Set("/api/v1/keys/{keyID}/rotate", &openapi3.PathItem{
		Parameters: openapi3.Parameters{&openapi3.ParameterRef{Value: keyIDParam}},
		Post: &openapi3.Operation{
			Tags:        []string{"keys"},
			Summary:     "Rotate an API key secret",
			Description: "Replaces the secret of an active key in place. The key ID and metadata are unchanged; the old secret stops validating immediately.",
			OperationID: "rotate_key",
			Responses:   newResponses("200", "The rotated key with its one-time secret", createdRef),
		},
	})

	doc.Paths.Set("/api/v1/keys/cleanup", &openapi3.PathItem{
		Post: &openapi3.Operation{
			Tags:        []string{"keys"},
			Summary:     "Deactivate expired keys",
			OperationID: "cleanup_expired_keys",
			Responses: newResponses("200", "Number of keys deactivated", &openapi3.SchemaRef{
				Value: &openapi3.Schema{
					Type: &openapi3.Types{"object"},
					Properties: openapi3.Schemas{
						"deactivated": &openapi3.SchemaRef{Value: openapi3.NewInt64Schema()},
					},
				},
			}),
		},
	})
}

func addAuthPaths(doc *openapi3.T) {
	keyInfoRef := openapi3.NewSchemaRef("#/components/schemas/KeyInfo", nil)

	doc.Paths.Set("/api/v1/auth/whoami", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"auth"},
			Summary:     "Describe the authenticated key",
			OperationID: "whoami",
			Responses:   newResponses("200", "Metadata of the presented key", keyInfoRef),
		},
	})
}

func keyInfoSchema() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"key_id":       &openapi3.SchemaRef{Value: openapi3.NewStringSchema()},
				"name":         &openapi3.SchemaRef{Value: openapi3.NewStringSchema()},
				"role":         &openapi3.SchemaRef{Value: openapi3.NewStringSchema().WithEnum("admin", "user", "readonly")},
				"is_active":    &openapi3.SchemaRef{Value: openapi3.NewBoolSchema()},
				"expires_at":   &openapi3.SchemaRef{Value: openapi3.NewDateTimeSchema().WithNullable()},
				"created_at":   &openapi3.SchemaRef{Value: openapi3.NewDateTimeSchema()},
				"last_used_at": &openapi3.SchemaRef{Value: openapi3.NewDateTimeSchema().WithNullable()},
				"created_by":   &openapi3.SchemaRef{Value: openapi3.NewStringSchema()},
				"description":  &openapi3.SchemaRef{Value: openapi3.NewStringSchema()},
			},
		},
	}
}

func createdKeySchema() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"key_id":  &openapi3.SchemaRef{Value: openapi3.NewStringSchema()},
				"secret":  &openapi3.SchemaRef{Value: openapi3.NewStringSchema()},
				"info":    openapi3.NewSchemaRef("#/components/schemas/KeyInfo", nil),
				"warning": &openapi3.SchemaRef{Value: openapi3.NewStringSchema()},
			},
		},
	}
}

func createKeyRequestSchema() *openapi3.Schema {
	return &openapi3.Schema{
		Type:     &openapi3.Types{"object"},
		Required: []string{"name", "role"},
		Properties: openapi3.Schemas{
			"name":            &openapi3.SchemaRef{Value: openapi3.NewStringSchema()},
			"role":            &openapi3.SchemaRef{Value: openapi3.NewStringSchema().WithEnum("admin", "user", "readonly")},
			"expires_in_days": &openapi3.SchemaRef{Value: openapi3.NewIntegerSchema()},
			"description":     &openapi3.SchemaRef{Value: openapi3.NewStringSchema()},
		},
	}
}

func errorResponseSchema() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"error": &openapi3.SchemaRef{
					Value: &openapi3.Schema{
						Type: &openapi3.Types{"object"},
						Properties: openapi3.Schemas{
							"code":    &openapi3.SchemaRef{Value: openapi3.NewStringSchema()},
							"message": &openapi3.SchemaRef{Value: openapi3.NewStringSchema()},
						},
					},
				},
			},
		},
	}
}

// newResponses builds a Responses map with a success response and the
// standard error responses.
func newResponses(statusCode, description string, schema *openapi3.SchemaRef) *openapi3.Responses {
	responses := openapi3.NewResponses()

	successDesc := description
	responses.Set(statusCode, &openapi3.ResponseRef{
		Value: &openapi3.Response{
			Description: &successDesc,
			Content:     openapi3.NewContentWithJSONSchemaRef(schema),
		},
	})

	errorRef := openapi3.NewSchemaRef("#/components/schemas/ErrorResponse", nil)
	for code, desc := range map[string]string{
		"400": "Bad request",
		"401": "Missing or invalid API key",
		"403": "Insufficient permissions",
		"404": "Not found",
		"500": "Internal server error",
	} {
		d := desc
		responses.Set(code, &openapi3.ResponseRef{
			Value: &openapi3.Response{
				Description: &d,
				Content:     openapi3.NewContentWithJSONSchemaRef(errorRef),
			},
		})
	}

	return responses
}
