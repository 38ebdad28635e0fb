// Package xmlwriter defines a streaming XML event writer and an Encoder that
// serializes events to bytes in a named character encoding.
//
// Writers are non-repairing: names are written with the prefix given and
// namespace declarations are only emitted when WriteNamespace is called.
// Decorators wrap a Writer to filter or rewrite events as they pass through.
package xmlwriter
