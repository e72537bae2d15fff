package middleware

import (
	"context"
	"net/http"

	"github.com/triggerflow/dispatch/pkg/apierror"
	"github.com/triggerflow/dispatch/pkg/domain/shared"
)

// TenantIDKey is the context key carrying the resolved tenant id.
const TenantIDKey contextKey = "tenant_id"

// AccountIDKey is the context key carrying the acting account id.
const AccountIDKey contextKey = "account_id"

// Headers the gateway sets after authentication.
const (
	TenantHeader  = "X-Tenant-ID"
	AccountHeader = "X-Account-ID"
)

// Tenant resolves the tenant id from the gateway header and rejects
// requests without one. Authentication itself happens upstream; this
// service only trusts the forwarded identity.
func Tenant() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get(TenantHeader)
			if raw == "" {
				apierror.BadRequest("Missing " + TenantHeader + " header").WriteJSON(w)
				return
			}

			tenantID, err := shared.IDFromString(raw)
			if err != nil {
				apierror.BadRequest("Invalid tenant id").WriteJSON(w)
				return
			}

			ctx := context.WithValue(r.Context(), TenantIDKey, tenantID)

			// The acting account is optional; end-user triggers carry none.
			if raw := r.Header.Get(AccountHeader); raw != "" {
				if accountID, err := shared.IDFromString(raw); err == nil {
					ctx = context.WithValue(ctx, AccountIDKey, accountID)
				}
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetAccountID extracts the acting account id from context. Zero when the
// request carried none.
func GetAccountID(ctx context.Context) shared.ID {
	if id, ok := ctx.Value(AccountIDKey).(shared.ID); ok {
		return id
	}
	return shared.ID{}
}

// GetTenantID extracts the tenant id from context.
func GetTenantID(ctx context.Context) shared.ID {
	if id, ok := ctx.Value(TenantIDKey).(shared.ID); ok {
		return id
	}
	return shared.ID{}
}
