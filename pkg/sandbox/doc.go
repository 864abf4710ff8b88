// Package sandbox executes generated Python code in isolated environments.
//
// A [Manager] creates an [Environment] (a virtualenv under a base path, or a
// plain directory when isolation is disabled), installs the dependencies
// registered on it, and runs a [CodeUnit] under a deadline. Where the code
// actually runs is decided by a [Runner]: the local subprocess runner in this
// package, or the remote runner in package sandbox/remote, which talks to
// the sandbox server and can be fed by Kubernetes sandbox claims.
//
// Every run produces a [Result] whose Kind is derived from the exit code,
// except that an expired deadline always yields [Timeout].
package sandbox
