// Package provider defines the generation service used by the healing loop.
//
// A [Generator] answers role-tagged requests (planning, dependency tracking,
// coding, correcting and lint query extraction) with a parsed [Result]. The
// [TextAdapter] builds a Generator from any prose [Completer] by rendering a
// per-role prompt and parsing the reply. [WithRetry] wraps a Generator with
// exponential backoff for rate limiting and transient unavailability.
//
// Concrete backends live in subpackages, e.g. provider/openai.
package provider
