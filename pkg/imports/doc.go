// Package imports rewrites alias-qualified member access in generated Python
// code into explicit from-imports, and keeps the leading import block in a
// canonical order.
//
// Given a dependency alias such as "langchain", every access of the form
// langchain.Member outside of an import statement is rewritten to Member and
// a matching "from langchain import Member" line is prepended. Only the first
// attribute segment is unwrapped: langchain.a.b becomes a.b.
//
// After rewriting, a [Sorter] orders the import block. The built-in
// [CanonicalSorter] groups imports as __future__, standard library, third
// party and local; [ExternalSorter] pipes the code through isort.
package imports
