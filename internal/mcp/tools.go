package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/keywarden/keywarden/internal/model"
	"github.com/keywarden/keywarden/internal/service"
)

func (s *MCPServer) registerTools(srv *server.MCPServer) {

	// ----- Inspection tools -----

	srv.AddTool(
		mcp.NewTool("keywarden_list_keys",
			mcp.WithDescription(
				"List issued API keys with their metadata: key ID, name, role, active "+
					"status, expiry, and last-used time. Secrets are never included. "+
					"Pass include_inactive to also see revoked keys.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithBoolean("include_inactive",
				mcp.Description("Include revoked and deactivated keys"),
			),
		),
		s.handleListKeys,
	)

	srv.AddTool(
		mcp.NewTool("keywarden_key_info",
			mcp.WithDescription(
				"Get the metadata for one API key by its public key ID. The secret is "+
					"not recoverable through this or any other tool.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithString("key_id",
				mcp.Required(),
				mcp.Description("Public key identifier"),
			),
		),
		s.handleKeyInfo,
	)

	// ----- Lifecycle tools -----

	srv.AddTool(
		mcp.NewTool("keywarden_create_key",
			mcp.WithDescription(
				"Issue a new API key. The response contains the plaintext secret exactly "+
					"once; relay it to the user immediately, it cannot be retrieved again.",
			),
			mcp.WithToolAnnotation(mutatingAnnotation()),
			mcp.WithString("name",
				mcp.Required(),
				mcp.Description("Human-readable label for the key"),
			),
			mcp.WithString("role",
				mcp.Required(),
				mcp.Description("Access role: admin, user, or readonly"),
			),
			mcp.WithNumber("expires_in_days",
				mcp.Description("Days until the key expires; omit for a key that never expires"),
			),
			mcp.WithString("description",
				mcp.Description("Optional free-form description"),
			),
		),
		s.handleCreateKey,
	)

	srv.AddTool(
		mcp.NewTool("keywarden_revoke_key",
			mcp.WithDescription(
				"Revoke an API key by its public key ID. Revocation takes effect "+
					"immediately and is permanent; revoked keys cannot be reactivated.",
			),
			mcp.WithToolAnnotation(mutatingAnnotation()),
			mcp.WithString("key_id",
				mcp.Required(),
				mcp.Description("Public key identifier"),
			),
		),
		s.handleRevokeKey,
	)

	srv.AddTool(
		mcp.NewTool("keywarden_rotate_key",
			mcp.WithDescription(
				"Rotate an active API key: the secret is replaced, the key ID and "+
					"metadata stay the same, and the old secret stops validating "+
					"immediately. Returns the new plaintext secret exactly once.",
			),
			mcp.WithToolAnnotation(mutatingAnnotation()),
			mcp.WithString("key_id",
				mcp.Required(),
				mcp.Description("Public key identifier"),
			),
		),
		s.handleRotateKey,
	)

	srv.AddTool(
		mcp.NewTool("keywarden_cleanup_expired",
			mcp.WithDescription(
				"Deactivate every active key whose expiry has passed and report how "+
					"many were deactivated.",
			),
			mcp.WithToolAnnotation(mutatingAnnotation()),
		),
		s.handleCleanupExpired,
	)
}

func (s *MCPServer) handleListKeys(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {
	includeInactive := request.GetBool("include_inactive", false)
	infos := s.keys.ListKeys(ctx, includeInactive)
	return successJSON(map[string]any{"keys": infos})
}

func (s *MCPServer) handleKeyInfo(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {
	keyID, err := request.RequireString("key_id")
	if err != nil {
		return toolError("missing required parameter %q", "key_id")
	}

	info := s.keys.GetKeyInfo(ctx, keyID)
	if info == nil {
		return toolError("No API key with ID %q", keyID)
	}
	return successJSON(info)
}

func (s *MCPServer) handleCreateKey(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("name")
	if err != nil {
		return toolError("missing required parameter %q", "name")
	}
	roleStr, err := request.RequireString("role")
	if err != nil {
		return toolError("missing required parameter %q", "role")
	}
	role, err := model.ParseRole(roleStr)
	if err != nil {
		return toolError("%v", err)
	}

	params := service.GenerateParams{
		Name:        name,
		Role:        role,
		CreatedBy:   "mcp",
		Description: request.GetString("description", ""),
	}
	if days := request.GetInt("expires_in_days", -1); days >= 0 {
		params.ExpiresIn = &days
	}

	generated, err := s.keys.Generate(ctx, params)
	if err != nil {
		return toolError("Failed to create API key: %v", err)
	}

	return successJSON(model.CreatedKeyResponse{
		KeyID:   generated.KeyID,
		Secret:  generated.Secret,
		Info:    generated.Info,
		Warning: model.SecretWarning,
	})
}

func (s *MCPServer) handleRevokeKey(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {
	keyID, err := request.RequireString("key_id")
	if err != nil {
		return toolError("missing required parameter %q", "key_id")
	}

	found, err := s.keys.Revoke(ctx, keyID)
	if err != nil {
		return toolError("Failed to revoke API key: %v", err)
	}
	if !found {
		return toolError("No API key with ID %q", keyID)
	}
	return successJSON(map[string]any{"key_id": keyID, "revoked": true})
}

func (s *MCPServer) handleRotateKey(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {
	keyID, err := request.RequireString("key_id")
	if err != nil {
		return toolError("missing required parameter %q", "key_id")
	}

	generated, ok, err := s.keys.Rotate(ctx, keyID)
	if err != nil {
		return toolError("Failed to rotate API key: %v", err)
	}
	if !ok {
		return toolError("No active API key with ID %q (revoked keys cannot be rotated)", keyID)
	}

	return successJSON(model.CreatedKeyResponse{
		KeyID:   generated.KeyID,
		Secret:  generated.Secret,
		Info:    generated.Info,
		Warning: model.SecretWarning,
	})
}

func (s *MCPServer) handleCleanupExpired(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {
	n, err := s.keys.CleanupExpired(ctx)
	if err != nil {
		return toolError("Failed to clean up expired keys: %v", err)
	}
	return successJSON(map[string]any{"deactivated": n})
}
