// Package services implements the client side of the character card template API.
//
// # TemplateAPI
//
// [TemplateAPI] is the seven-call contract consumed by the template store:
//   - GET    /api/v1/character-card-templates?sheetType=       → {items}
//   - POST   /api/v1/character-card-templates                  → {item}
//   - PUT    /api/v1/character-card-templates/{id}             → {item}
//   - DELETE /api/v1/character-card-templates/{id}
//   - POST   /api/v1/character-card-templates/{id}/set-default → {item}
//   - GET    /api/v1/character-card-template-bindings?channelId= → {items}
//   - POST   /api/v1/character-card-template-bindings/upsert   → {item}
//
// # TemplateService
//
// [TemplateService] implements it over HTTP. When configured with a token the underlying client is wrapped
// by [oauth2.NewClient] with a static token source, so every request carries "Authorization: Bearer <token>".
// An optional [rate.Limiter] paces outgoing requests. No timeout is layered on top of the transport.
//
// # Error Handling
//
// Non-2xx responses are returned as [*APIError] with the message from the {"error": "..."} body.
// [APIError] matches shared sentinels with [errors.Is]:
//   - [shared.ErrAPIRequest] : any non-2xx response
//   - [shared.ErrInvalidInput] : 400
//   - [shared.ErrNotAuthenticated] : 401
//   - [shared.ErrForbidden] : 403
//   - [shared.ErrNotFound] : 404
//
// Transport failures are wrapped as "request failed: ..." and are never retried.
package services
