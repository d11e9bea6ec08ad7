// Package server implements the reference character card template API.
//
// # Routing
//
// [Middleware] registered first runs outermost. [BasicRouter.Group] forks the chain, which is how
// /healthz stays public while the API routes sit behind [BearerAuth].
//
// The [BasicRouter] implementation uses [http.ServeMux] internally and registers method-qualified
// patterns ("GET /path/{id}"), so path parameters are read with [http.Request.PathValue] and the mux
// answers 405 for known paths with the wrong method.
//
// # Authentication
//
// [BearerAuth] maps the token in the Authorization header to a user id using the
// [server.tokens] table of the config file. Handlers read the user with [UserFromContext].
// Requests without a known token are rejected with 401 before reaching a handler.
//
// # Template API
//
// [TemplateHandler] serves the seven endpoints under /api/v1:
//
//	GET    /api/v1/character-card-templates?sheetType=
//	POST   /api/v1/character-card-templates
//	PUT    /api/v1/character-card-templates/{id}
//	DELETE /api/v1/character-card-templates/{id}
//	POST   /api/v1/character-card-templates/{id}/set-default
//	GET    /api/v1/character-card-template-bindings?channelId=
//	POST   /api/v1/character-card-template-bindings/upsert
//
// Successful responses wrap the payload as {"item": ...} or {"items": [...]}; failures are
// {"error": "..."} with 400, 403, 404 or 500. Internal errors are logged and reported to the
// client only as "operation failed".
//
// A [Handler] reports its own route patterns, so one value can own a whole resource.
package server
