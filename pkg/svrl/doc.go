// Package svrl models Schematron Validation Report Language documents.
//
// It provides the report object model, a parser that rebuilds the model from
// a report stream (accepting both the verbose and the compact report shape),
// a serializer for the model, and StreamWriter, a Writer decorator that
// applies formatting and namespace policy to report events while they are
// being produced.
package svrl

// Namespace URIs.
const (
	NamespaceURI      = "http://purl.oclc.org/dsdl/svrl"
	SchematronURI     = "http://purl.oclc.org/dsdl/schematron"
	XSDURI            = "http://www.w3.org/2001/XMLSchema"
	ToolingURI        = "https://doi.org/10.5281/zenodo.1495494"
	DublinCoreURI     = "http://purl.org/dc/terms/"
	DefaultPrefix     = "svrl"
	defaultXMLNSLocal = "xmlns"
)

// Element local names.
const (
	ElemSchematronOutput = "schematron-output"
	ElemMetadata         = "metadata"
	ElemText             = "text"
	ElemNsPrefix         = "ns-prefix-in-attribute-values"
	ElemActivePattern    = "active-pattern"
	ElemFiredRule        = "fired-rule"
	ElemFailedAssert     = "failed-assert"
	ElemSuccessfulReport = "successful-report"
	ElemDiagnosticRef    = "diagnostic-reference"
	ElemPropertyRef      = "property-reference"
)
