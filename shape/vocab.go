package shape

// Namespaces.
const (
	SH  = "http://www.w3.org/ns/shacl#"
	RDF = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
	XSD = "http://www.w3.org/2001/XMLSchema#"
)

// RDF terms.
const (
	RDFType  = RDF + "type"
	RDFFirst = RDF + "first"
	RDFRest  = RDF + "rest"
	RDFNil   = RDF + "nil"
)

// SHACL terms read by Parse.
const (
	SHNodeShape         = SH + "NodeShape"
	SHProperty          = SH + "property"
	SHPath              = SH + "path"
	SHTargetClass       = SH + "targetClass"
	SHClosed            = SH + "closed"
	SHIgnoredProperties = SH + "ignoredProperties"
	SHDatatype          = SH + "datatype"
	SHNode              = SH + "node"
	SHClass             = SH + "class"
	SHNodeKind          = SH + "nodeKind"
	SHMinCount          = SH + "minCount"
	SHMaxCount          = SH + "maxCount"
	SHIn                = SH + "in"
	SHSeverity          = SH + "severity"
	SHName              = SH + "name"
)

// XSDString is the datatype of plain literals.
const XSDString = XSD + "string"

// CompactDatatype writes an XML Schema datatype IRI in its "xsd:" prefixed
// form. Other IRIs are returned unchanged.
func CompactDatatype(iri string) string {
	if len(iri) > len(XSD) && iri[:len(XSD)] == XSD {
		return "xsd:" + iri[len(XSD):]
	}
	return iri
}

// ExpandDatatype is the inverse of CompactDatatype.
func ExpandDatatype(s string) string {
	if len(s) > 4 && s[:4] == "xsd:" {
		return XSD + s[4:]
	}
	return s
}
