package gate

import (
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"portalgate/internal/auth"
	"portalgate/internal/contextutil"
	"portalgate/internal/observability/logging"
)

var tracer = otel.Tracer("portalgate/internal/gate")

// Middleware applies Decide to every request. Authorized requests carry the
// subject and role in request headers and the claims in the context.
// Identity headers sent by the client are always dropped.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "gate.Middleware",
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		r = r.WithContext(ctx)
		r.Header.Del(HeaderUserID)
		r.Header.Del(HeaderUserRole)

		d := g.Decide(r)
		logger := logging.FromContext(ctx, g.logger)

		span.SetAttributes(
			attribute.String("gate.state", string(d.State)),
			attribute.String("http.path", r.URL.Path),
		)
		g.metrics.RecordGateDecision(string(d.State))

		if d.Err != nil {
			logger.Warn("Gate rejected token", "state", d.State, "path", r.URL.Path, logging.Err(d.Err))
		}

		if !d.Forward {
			if d.ClearCookie {
				auth.ClearTokenCookie(w)
			}
			count := g.guard.RecordRedirect(w, r)
			g.metrics.RecordRedirect(d.RedirectTo)

			span.SetStatus(codes.Error, string(d.State))
			logger.Info("Redirecting",
				"state", d.State,
				"path", r.URL.Path,
				"to", d.RedirectTo,
				"redirect_count", count,
			)
			http.Redirect(w, r, d.RedirectTo, http.StatusTemporaryRedirect)
			return
		}

		switch d.State {
		case StateAuthorized:
			r.Header.Set(HeaderUserID, d.Claims.Subject)
			r.Header.Set(HeaderUserRole, d.Claims.Role.String())
			ctx = contextutil.WithClaims(ctx, *d.Claims)
			r = r.WithContext(ctx)
			span.SetAttributes(
				attribute.String("user.id", d.Claims.Subject),
				attribute.String("user.role", d.Claims.Role.String()),
			)
		case StateLoopAborted:
			logger.Warn("Redirect loop detected, forwarding without checks",
				"path", r.URL.Path,
				"redirect_count", g.guard.Count(r),
			)
		}

		span.SetStatus(codes.Ok, string(d.State))
		next.ServeHTTP(w, r)
	})
}
