// package store caches character card templates and per-channel bindings in front of the
// template API and resolves which template text a card should use.
//
// The store also carries the one-shot import of templates that older clients kept in local
// storage, keyed by card id.
package store
