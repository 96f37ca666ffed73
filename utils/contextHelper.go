package utils

import (
	"context"

	"bitbucket.org/mmdatafocus/menu_backend/appctx"
)

// Alias the shared context key type so callers only need utils.
type contextKey = appctx.ContextKey

var (
	ContextKeyToken         = appctx.ContextKeyToken
	ContextKeyBusinessId    = appctx.ContextKeyBusinessId
	ContextKeyAccountId     = appctx.ContextKeyAccountId
	ContextKeyEmail         = appctx.ContextKeyEmail
	ContextKeyCorrelationId = appctx.ContextKeyCorrelationId

	ContextKeyIsSuperAdmin    = appctx.ContextKeyIsSuperAdmin
	ContextKeySkipTenantScope = appctx.ContextKeySkipTenantScope
)

func GetBusinessIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyBusinessId)
}

func GetAccountIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyAccountId)
}

func GetEmailFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyEmail)
}

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCorrelationId)
}

func GetIsSuperAdminFromContext(ctx context.Context) (bool, bool) {
	return appctx.GetBool(ctx, ContextKeyIsSuperAdmin)
}

func SetTokenInContext(ctx context.Context, token string) context.Context {
	return appctx.Set(ctx, ContextKeyToken, token)
}

func SetBusinessIdInContext(ctx context.Context, businessId string) context.Context {
	return appctx.Set(ctx, ContextKeyBusinessId, businessId)
}

func SetAccountIdInContext(ctx context.Context, accountId string) context.Context {
	return appctx.Set(ctx, ContextKeyAccountId, accountId)
}

func SetEmailInContext(ctx context.Context, email string) context.Context {
	return appctx.Set(ctx, ContextKeyEmail, email)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, ContextKeyCorrelationId, correlationId)
}

func SetIsSuperAdminInContext(ctx context.Context, isSuperAdmin bool) context.Context {
	return appctx.Set(ctx, ContextKeyIsSuperAdmin, isSuperAdmin)
}

func SetSkipTenantScopeInContext(ctx context.Context, skip bool) context.Context {
	return appctx.Set(ctx, ContextKeySkipTenantScope, skip)
}
