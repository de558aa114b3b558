// Package registry provides the central "glue" for the module system.
//
// The Registry maps the type names used in workflow documents (e.g.
// "text_processor") to a Definition: the node's kind, its declared schemas
// and the factory that builds an executable instance. Modules populate it
// once during application startup from a closed list; after that it is only
// read, so lookups need no locking.
package registry
