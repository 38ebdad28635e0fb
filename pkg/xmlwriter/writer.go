package xmlwriter

// Name is a namespace-qualified XML name together with the prefix it is
// written with.
type Name struct {
	Space  string
	Prefix string
	Local  string
}

// String returns the lexical form prefix:local.
func (n Name) String() string {
	if n.Prefix == "" {
		return n.Local
	}
	return n.Prefix + ":" + n.Local
}

// Is reports whether n has the given namespace and local name.
func (n Name) Is(space, local string) bool {
	return n.Space == space && n.Local == local
}

// NamespaceContext resolves bindings in scope at the current write position.
type NamespaceContext interface {
	Lookup(prefix string) (string, bool)
	LookupPrefix(uri string) (string, bool)
}

// Writer receives XML events in document order.
//
// Namespace declarations and attributes belong to the most recent start or
// empty element and must be written before any content.
type Writer interface {
	WriteStartDocument() error
	WriteEndDocument() error
	WriteStartElement(name Name) error
	WriteEmptyElement(name Name) error
	WriteEndElement() error
	WriteNamespace(prefix, uri string) error
	WriteAttribute(name Name, value string) error
	WriteCharacters(text string) error
	WriteComment(text string) error
	WriteProcessingInstruction(target, data string) error
	NamespaceContext() NamespaceContext
	Flush() error
}
